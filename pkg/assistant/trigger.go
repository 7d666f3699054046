package assistant

import (
	"context"
	"log"
	"regexp"
	"time"

	"github.com/classhub/messaging/pkg/model"
	"github.com/classhub/messaging/pkg/store"
)

var mentionPattern = regexp.MustCompile(`(?i)@assistant\b`)

// Mentioned reports whether message content addresses the assistant.
func Mentioned(content string) bool {
	return mentionPattern.MatchString(content)
}

// historyWindow bounds how much channel context goes into a prompt.
const historyWindow = 10

// Trigger injects assistant replies into a channel. Fire runs the
// completion call off the send path; failures are logged and the
// original sender never hears about them.
type Trigger struct {
	completer Completer
	messages  store.MessageStore
	publish   func(msg *model.Message)
	timeout   time.Duration
}

func NewTrigger(completer Completer, messages store.MessageStore, publish func(msg *model.Message)) *Trigger {
	return &Trigger{
		completer: completer,
		messages:  messages,
		publish:   publish,
		timeout:   45 * time.Second,
	}
}

// Fire asynchronously completes a reply for channelID and publishes it
// as a message authored by the reserved assistant user.
func (t *Trigger) Fire(channelID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.run(ctx, channelID); err != nil {
			log.Printf("assistant: reply for channel %s failed: %v", channelID, err)
		}
	}()
}

func (t *Trigger) run(ctx context.Context, channelID string) error {
	history, err := t.messages.ListByChannel(ctx, channelID, historyWindow, 0)
	if err != nil {
		return err
	}

	turns := make([]Turn, 0, len(history))
	for _, msg := range history {
		role := "user"
		if msg.AuthorID == UserID {
			role = "assistant"
		}
		turns = append(turns, Turn{Role: role, Content: msg.Content})
	}

	content, err := t.completer.Complete(ctx, turns)
	if err != nil {
		return err
	}

	reply, err := t.messages.Create(ctx, &model.Message{
		ChannelID: channelID,
		AuthorID:  UserID,
		Content:   content,
		Type:      model.TypeText,
	})
	if err != nil {
		return err
	}

	t.publish(reply)
	return nil
}
