package store

import (
	"context"

	"github.com/classhub/messaging/pkg/model"
)

// MessageStore is the partitioned, append-only channel log. Messages
// cluster by descending ID inside a channel partition; list methods
// return oldest to newest.
type MessageStore interface {
	// Create assigns a fresh ID and creation timestamp, persists the
	// message with an empty read set, and returns the stored value.
	Create(ctx context.Context, msg *model.Message) (*model.Message, error)

	// ListByChannel pages backwards through a channel's history.
	// beforeID == 0 starts from the newest message; otherwise only
	// messages with id < beforeID are returned.
	ListByChannel(ctx context.Context, channelID string, limit int, beforeID int64) ([]model.Message, error)

	ListPinned(ctx context.Context, channelID string) ([]model.Message, error)

	// MarkRead adds userID to the message's read set. Set-union
	// semantics: marking twice is a no-op.
	MarkRead(ctx context.Context, channelID string, id int64, userID string) error

	SetPinned(ctx context.Context, channelID string, id int64, pinned bool) error

	SetGrading(ctx context.Context, channelID string, id int64, status model.GradingStatus) error

	// Delete removes a message from the log. Later IDs are unaffected.
	Delete(ctx context.Context, channelID string, id int64) (bool, error)
}

type ChannelStore interface {
	GetChannel(ctx context.Context, id string) (*model.Channel, error)
	CreateChannel(ctx context.Context, ch *model.Channel) error
	ListWorkspaceChannels(ctx context.Context, workspaceID string) ([]model.Channel, error)
}

type WorkspaceStore interface {
	GetWorkspace(ctx context.Context, id string) (*model.Workspace, error)
	CreateWorkspace(ctx context.Context, ws *model.Workspace) error
}

// Store bundles the three stores a gateway needs; both backends
// implement all of it.
type Store interface {
	MessageStore
	ChannelStore
	WorkspaceStore
}

// IDNode is the slice of the snowflake generator the backends need.
type IDNode interface {
	Next() (int64, error)
}
