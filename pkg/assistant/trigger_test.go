package assistant

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classhub/messaging/pkg/model"
	"github.com/classhub/messaging/pkg/snowflake"
	"github.com/classhub/messaging/pkg/store"
)

type stubCompleter struct {
	reply string
	err   error
	got   []Turn
}

func (s *stubCompleter) Complete(_ context.Context, messages []Turn) (string, error) {
	s.got = messages
	return s.reply, s.err
}

func TestMentioned(t *testing.T) {
	assert.True(t, Mentioned("@assistant what is inertia?"))
	assert.True(t, Mentioned("hey @Assistant help"))
	assert.False(t, Mentioned("my assistant said so"))
	assert.False(t, Mentioned("@assistantx"))
}

func TestTriggerPublishesReply(t *testing.T) {
	node, err := snowflake.NewNode(0, 0)
	require.NoError(t, err)
	mem := store.NewMemory(node)
	ctx := context.Background()

	_, err = mem.Create(ctx, &model.Message{
		ChannelID: "c1", AuthorID: "alice", Content: "@assistant explain inertia", Type: model.TypeText,
	})
	require.NoError(t, err)

	published := make(chan *model.Message, 1)
	comp := &stubCompleter{reply: "Inertia is resistance to change in motion."}
	trig := NewTrigger(comp, mem, func(msg *model.Message) { published <- msg })

	trig.Fire("c1")

	select {
	case msg := <-published:
		assert.Equal(t, UserID, msg.AuthorID)
		assert.Equal(t, "c1", msg.ChannelID)
		assert.Equal(t, comp.reply, msg.Content)
		assert.NotZero(t, msg.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("no assistant reply published")
	}

	require.NotEmpty(t, comp.got)
	assert.Equal(t, "user", comp.got[len(comp.got)-1].Role)

	// The reply must also land in the channel log.
	page, err := mem.ListByChannel(ctx, "c1", 10, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, UserID, page[1].AuthorID)
}

func TestTriggerCompletionFailureIsSwallowed(t *testing.T) {
	node, err := snowflake.NewNode(0, 0)
	require.NoError(t, err)
	mem := store.NewMemory(node)

	trig := NewTrigger(&stubCompleter{err: errors.New("upstream down")}, mem, func(*model.Message) {
		t.Error("nothing should be published on failure")
	})
	trig.Fire("c1")

	time.Sleep(100 * time.Millisecond)
	page, err := mem.ListByChannel(context.Background(), "c1", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page)
}
