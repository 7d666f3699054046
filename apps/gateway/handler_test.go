package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classhub/messaging/pkg/apperr"
	"github.com/classhub/messaging/pkg/assistant"
	"github.com/classhub/messaging/pkg/model"
	"github.com/classhub/messaging/pkg/session"
	"github.com/classhub/messaging/pkg/snowflake"
	"github.com/classhub/messaging/pkg/store"
)

func newTestHandler(t *testing.T) (*Handler, *store.Memory, *session.MemoryStore) {
	t.Helper()
	node, err := snowflake.NewNode(0, 0)
	require.NoError(t, err)

	mem := store.NewMemory(node)
	ctx := context.Background()
	require.NoError(t, mem.CreateWorkspace(ctx, &model.Workspace{
		ID: "w1", Name: "Physics 101", OwnerID: "teacher",
		MemberIDs: []string{"alice", "bob"},
	}))
	require.NoError(t, mem.CreateChannel(ctx, &model.Channel{
		ID: "42", Name: "mechanics", Type: model.ChannelText, WorkspaceID: "w1",
	}))

	sessions := session.NewMemoryStore()
	return NewHandler(NewRegistry(), mem, sessions), mem, sessions
}

func newTestClient(h *Handler, userID string) *Client {
	return newClient(h, nil, userID, userID)
}

// recv pops the next queued frame; handleEvent is synchronous so
// anything owed to the client is already buffered.
func recv(t *testing.T, c *Client) (string, []byte) {
	t.Helper()
	select {
	case frame := <-c.send:
		var head struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(frame, &head))
		return head.Type, frame
	default:
		t.Fatal("expected a queued frame")
		return "", nil
	}
}

func recvWait(t *testing.T, c *Client, timeout time.Duration) (string, []byte) {
	t.Helper()
	select {
	case frame := <-c.send:
		var head struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(frame, &head))
		return head.Type, frame
	case <-time.After(timeout):
		t.Fatal("timed out waiting for frame")
		return "", nil
	}
}

func requireEmpty(t *testing.T, c *Client) {
	t.Helper()
	select {
	case frame := <-c.send:
		t.Fatalf("unexpected frame queued: %s", frame)
	default:
	}
}

func requireError(t *testing.T, c *Client, code apperr.Code) {
	t.Helper()
	typ, frame := recv(t, c)
	require.Equal(t, EventError, typ)
	var evt errorEvent
	require.NoError(t, json.Unmarshal(frame, &evt))
	assert.Equal(t, code, evt.Code)
}

func join(t *testing.T, h *Handler, c *Client, channelID string) {
	t.Helper()
	h.handleEvent(c, &InboundEvent{Type: EventJoinChannel, ChannelID: channelID})
	typ, _ := recv(t, c)
	require.Equal(t, EventJoinedChannel, typ)
}

func TestJoinChannelWorkspaceMembership(t *testing.T) {
	h, _, _ := newTestHandler(t)

	alice := newTestClient(h, "alice")
	join(t, h, alice, "42")
	assert.True(t, h.registry.IsSubscribed(alice, "42"))

	mallory := newTestClient(h, "mallory")
	h.handleEvent(mallory, &InboundEvent{Type: EventJoinChannel, ChannelID: "42"})
	requireError(t, mallory, apperr.CodePermissionDenied)
	assert.False(t, h.registry.IsSubscribed(mallory, "42"))
}

func TestJoinUnknownChannel(t *testing.T) {
	h, _, _ := newTestHandler(t)
	alice := newTestClient(h, "alice")

	h.handleEvent(alice, &InboundEvent{Type: EventJoinChannel, ChannelID: "nope"})
	requireError(t, alice, apperr.CodeNotFound)
}

func TestJoinDMLazyCreate(t *testing.T) {
	h, mem, _ := newTestHandler(t)
	dm := model.DMChannelName("alice", "bob")

	alice := newTestClient(h, "alice")
	join(t, h, alice, dm)

	ch, err := mem.GetChannel(context.Background(), dm)
	require.NoError(t, err)
	assert.Equal(t, model.ChannelDM, ch.Type)

	// A third party is rejected by the name-encoded membership check.
	carol := newTestClient(h, "carol")
	h.handleEvent(carol, &InboundEvent{Type: EventJoinChannel, ChannelID: dm})
	requireError(t, carol, apperr.CodePermissionDenied)
}

func TestJoinArchivedChannel(t *testing.T) {
	h, mem, _ := newTestHandler(t)
	archived := time.Now()
	require.NoError(t, mem.CreateChannel(context.Background(), &model.Channel{
		ID: "old", Name: "old", Type: model.ChannelText, WorkspaceID: "w1", ArchivedAt: &archived,
	}))

	alice := newTestClient(h, "alice")
	h.handleEvent(alice, &InboundEvent{Type: EventJoinChannel, ChannelID: "old"})
	requireError(t, alice, apperr.CodePermissionDenied)
}

func TestJoinBroadcastsOnlinePresence(t *testing.T) {
	h, _, _ := newTestHandler(t)
	alice := newTestClient(h, "alice")
	bob := newTestClient(h, "bob")

	join(t, h, alice, "42")
	join(t, h, bob, "42")

	typ, frame := recv(t, alice)
	require.Equal(t, EventUserPresence, typ)
	var evt presenceEvent
	require.NoError(t, json.Unmarshal(frame, &evt))
	assert.Equal(t, "bob", evt.UserID)
	assert.Equal(t, "online", evt.Status)
	assert.Equal(t, "42", evt.ChannelID)

	// The joiner does not see their own presence event.
	requireEmpty(t, bob)
}

func TestSendMessageFanOut(t *testing.T) {
	h, _, _ := newTestHandler(t)
	alice := newTestClient(h, "alice")
	bob := newTestClient(h, "bob")
	join(t, h, alice, "42")
	join(t, h, bob, "42")
	recv(t, alice) // bob's online presence

	h.handleEvent(alice, &InboundEvent{Type: EventSendMessage, ChannelID: "42", Content: "Hello"})

	typ, echoed := recv(t, alice)
	require.Equal(t, EventNewMessage, typ)
	var echo newMessageEvent
	require.NoError(t, json.Unmarshal(echoed, &echo))
	assert.Equal(t, "alice", echo.Message.AuthorID)
	assert.Equal(t, "42", echo.Message.ChannelID)
	assert.Equal(t, "Hello", echo.Message.Content)
	assert.NotZero(t, echo.Message.ID)
	assert.Empty(t, echo.Message.ReadBy)

	typ, received := recv(t, bob)
	require.Equal(t, EventNewMessage, typ)
	var got newMessageEvent
	require.NoError(t, json.Unmarshal(received, &got))
	assert.Equal(t, echo.Message.ID, got.Message.ID)

	// Exactly one copy each: no duplicate beyond the echo.
	requireEmpty(t, alice)
	requireEmpty(t, bob)
}

func TestSendRequiresSubscription(t *testing.T) {
	h, mem, _ := newTestHandler(t)
	alice := newTestClient(h, "alice")

	h.handleEvent(alice, &InboundEvent{Type: EventSendMessage, ChannelID: "42", Content: "drive-by"})
	requireError(t, alice, apperr.CodePermissionDenied)

	page, err := mem.ListByChannel(context.Background(), "42", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page, "rejected sends must not be persisted")
}

func TestSendTrimsContent(t *testing.T) {
	h, _, _ := newTestHandler(t)
	alice := newTestClient(h, "alice")
	join(t, h, alice, "42")

	h.handleEvent(alice, &InboundEvent{Type: EventSendMessage, ChannelID: "42", Content: "  padded  "})
	typ, frame := recv(t, alice)
	require.Equal(t, EventNewMessage, typ)
	var evt newMessageEvent
	require.NoError(t, json.Unmarshal(frame, &evt))
	assert.Equal(t, "padded", evt.Message.Content)

	h.handleEvent(alice, &InboundEvent{Type: EventSendMessage, ChannelID: "42", Content: "\t \n"})
	requireError(t, alice, apperr.CodeInvalidArgument)
}

func TestSendRateLimited(t *testing.T) {
	h, _, _ := newTestHandler(t)
	alice := newTestClient(h, "alice")
	join(t, h, alice, "42")

	for i := 0; i < 5; i++ {
		h.handleEvent(alice, &InboundEvent{Type: EventSendMessage, ChannelID: "42", Content: "spam"})
		typ, _ := recv(t, alice)
		require.Equal(t, EventNewMessage, typ, "send %d should be admitted", i+1)
	}

	h.handleEvent(alice, &InboundEvent{Type: EventSendMessage, ChannelID: "42", Content: "spam"})
	requireError(t, alice, apperr.CodeRateLimited)
}

func TestTypingBroadcast(t *testing.T) {
	h, _, _ := newTestHandler(t)
	alice := newTestClient(h, "alice")
	bob := newTestClient(h, "bob")
	join(t, h, alice, "42")
	join(t, h, bob, "42")
	recv(t, alice) // bob's online presence

	h.handleEvent(alice, &InboundEvent{Type: EventTyping, ChannelID: "42"})

	typ, frame := recv(t, bob)
	require.Equal(t, EventUserTyping, typ)
	var evt typingEvent
	require.NoError(t, json.Unmarshal(frame, &evt))
	assert.Equal(t, "alice", evt.UserID)

	requireEmpty(t, alice)
}

// End-to-end read-receipt scenario: both subscribers see the message,
// B marks it read, A hears about it.
func TestMarkReadFlow(t *testing.T) {
	h, mem, _ := newTestHandler(t)
	alice := newTestClient(h, "alice")
	bob := newTestClient(h, "bob")
	join(t, h, alice, "42")
	join(t, h, bob, "42")
	recv(t, alice) // bob's online presence

	h.handleEvent(alice, &InboundEvent{Type: EventSendMessage, ChannelID: "42", Content: "Hello"})
	_, echoed := recv(t, alice)
	var echo newMessageEvent
	require.NoError(t, json.Unmarshal(echoed, &echo))
	_, received := recv(t, bob)
	var got newMessageEvent
	require.NoError(t, json.Unmarshal(received, &got))
	require.Equal(t, echo.Message.ID, got.Message.ID)
	assert.Empty(t, got.Message.ReadBy)

	h.handleEvent(bob, &InboundEvent{Type: EventMarkRead, ChannelID: "42", MessageID: got.Message.ID})

	typ, frame := recv(t, alice)
	require.Equal(t, EventMessageRead, typ)
	var read messageReadEvent
	require.NoError(t, json.Unmarshal(frame, &read))
	assert.Equal(t, got.Message.ID, read.MessageID)
	assert.Equal(t, "bob", read.UserID)
	assert.Equal(t, "42", read.ChannelID)

	// Marking again changes nothing in the stored set.
	h.handleEvent(bob, &InboundEvent{Type: EventMarkRead, ChannelID: "42", MessageID: got.Message.ID})
	recv(t, alice)
	page, err := mem.ListByChannel(context.Background(), "42", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, page[0].ReadBy)
}

func TestUnknownEventAnswersSenderOnly(t *testing.T) {
	h, _, _ := newTestHandler(t)
	alice := newTestClient(h, "alice")
	bob := newTestClient(h, "bob")
	join(t, h, alice, "42")
	join(t, h, bob, "42")
	recv(t, alice)

	h.handleEvent(alice, &InboundEvent{Type: "self_destruct"})
	requireError(t, alice, apperr.CodeInvalidArgument)
	requireEmpty(t, bob)
}

func TestDisconnectBroadcastsOffline(t *testing.T) {
	h, _, _ := newTestHandler(t)
	alice := newTestClient(h, "alice")
	bob := newTestClient(h, "bob")
	join(t, h, alice, "42")
	join(t, h, bob, "42")
	recv(t, alice)

	h.disconnect(bob)

	typ, frame := recv(t, alice)
	require.Equal(t, EventUserPresence, typ)
	var evt presenceEvent
	require.NoError(t, json.Unmarshal(frame, &evt))
	assert.Equal(t, "bob", evt.UserID)
	assert.Equal(t, "offline", evt.Status)

	// Exactly one offline event per shared channel.
	requireEmpty(t, alice)
	assert.False(t, h.registry.IsSubscribed(bob, "42"))
}

type completerFunc func() string

func (f completerFunc) Complete(context.Context, []assistant.Turn) (string, error) {
	return f(), nil
}

func TestAssistantMentionInjectsReply(t *testing.T) {
	h, _, _ := newTestHandler(t)
	h.SetAssistant(completerFunc(func() string { return "Inertia resists changes in motion." }))

	alice := newTestClient(h, "alice")
	join(t, h, alice, "42")

	h.handleEvent(alice, &InboundEvent{Type: EventSendMessage, ChannelID: "42", Content: "@assistant what is inertia?"})
	typ, _ := recv(t, alice)
	require.Equal(t, EventNewMessage, typ)

	typ, frame := recvWait(t, alice, 2*time.Second)
	require.Equal(t, EventNewMessage, typ)
	var evt newMessageEvent
	require.NoError(t, json.Unmarshal(frame, &evt))
	assert.Equal(t, "assistant", evt.Message.AuthorID)
	assert.Equal(t, "Inertia resists changes in motion.", evt.Message.Content)
}

func TestServeWSAuth(t *testing.T) {
	h, _, sessions := newTestHandler(t)
	sessions.Put("s-alice", session.Session{UserID: "alice", Username: "Alice"})

	srv := httptest.NewServer(http.HandlerFunc(h.ServeWS))
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	// Unknown session: upgrade succeeds, then a 4001 close.
	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?session=bogus", nil)
	require.NoError(t, err)
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, closeCodeAuthFailure, closeErr.Code)
	conn.Close()

	// Valid session: connected frame with identity.
	conn, _, err = websocket.DefaultDialer.Dial(wsURL+"?session=s-alice", nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt connectedEvent
	require.NoError(t, json.Unmarshal(frame, &evt))
	assert.Equal(t, EventConnected, evt.Type)
	assert.Equal(t, "alice", evt.UserID)
	assert.Equal(t, "Alice", evt.Username)
}
