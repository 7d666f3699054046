package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/classhub/messaging/pkg/apperr"
	"github.com/classhub/messaging/pkg/model"
)

// Memory is the non-durable fallback backend. One slice per channel
// partition, kept newest-first to mirror the authoritative backend's
// clustering order.
type Memory struct {
	mu         sync.RWMutex
	messages   map[string][]model.Message
	channels   map[string]model.Channel
	workspaces map[string]model.Workspace
	node       IDNode
}

var _ Store = (*Memory)(nil)

func NewMemory(node IDNode) *Memory {
	return &Memory{
		messages:   make(map[string][]model.Message),
		channels:   make(map[string]model.Channel),
		workspaces: make(map[string]model.Workspace),
		node:       node,
	}
}

func (m *Memory) Create(_ context.Context, msg *model.Message) (*model.Message, error) {
	id, err := m.node.Next()
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *msg
	stored.ID = id
	stored.CreatedAt = time.Now().UTC()
	stored.ReadBy = []string{}

	// IDs are monotonic, so prepending keeps newest-first order.
	m.messages[stored.ChannelID] = append([]model.Message{stored}, m.messages[stored.ChannelID]...)

	out := cloneMessage(stored)
	return &out, nil
}

func (m *Memory) ListByChannel(_ context.Context, channelID string, limit int, beforeID int64) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var page []model.Message
	for _, msg := range m.messages[channelID] {
		if beforeID != 0 && msg.ID >= beforeID {
			continue
		}
		page = append(page, cloneMessage(msg))
		if len(page) == limit {
			break
		}
	}
	slices.Reverse(page)
	return page, nil
}

func (m *Memory) ListPinned(_ context.Context, channelID string) ([]model.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pinned []model.Message
	for _, msg := range m.messages[channelID] {
		if msg.IsPinned {
			pinned = append(pinned, cloneMessage(msg))
		}
	}
	slices.Reverse(pinned)
	return pinned, nil
}

func (m *Memory) MarkRead(_ context.Context, channelID string, id int64, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := m.find(channelID, id)
	if msg == nil {
		return apperr.NotFound("message not found")
	}
	if !slices.Contains(msg.ReadBy, userID) {
		msg.ReadBy = append(msg.ReadBy, userID)
	}
	return nil
}

func (m *Memory) SetPinned(_ context.Context, channelID string, id int64, pinned bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := m.find(channelID, id)
	if msg == nil {
		return apperr.NotFound("message not found")
	}
	msg.IsPinned = pinned

	if ch, ok := m.channels[channelID]; ok {
		ch.PinnedIDs = slices.DeleteFunc(ch.PinnedIDs, func(p int64) bool { return p == id })
		if pinned {
			ch.PinnedIDs = append(ch.PinnedIDs, id)
		}
		m.channels[channelID] = ch
	}
	return nil
}

func (m *Memory) SetGrading(_ context.Context, channelID string, id int64, status model.GradingStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := m.find(channelID, id)
	if msg == nil {
		return apperr.NotFound("message not found")
	}
	msg.IsHomework = status != ""
	msg.GradingStatus = status
	return nil
}

func (m *Memory) Delete(_ context.Context, channelID string, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := m.messages[channelID]
	for i, msg := range msgs {
		if msg.ID == id {
			m.messages[channelID] = append(msgs[:i:i], msgs[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) GetChannel(_ context.Context, id string) (*model.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ch, ok := m.channels[id]
	if !ok {
		return nil, apperr.NotFound("channel not found")
	}
	return &ch, nil
}

func (m *Memory) CreateChannel(_ context.Context, ch *model.Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.ID] = *ch
	return nil
}

func (m *Memory) ListWorkspaceChannels(_ context.Context, workspaceID string) ([]model.Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Channel
	for _, ch := range m.channels {
		if ch.WorkspaceID == workspaceID {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (m *Memory) GetWorkspace(_ context.Context, id string) (*model.Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ws, ok := m.workspaces[id]
	if !ok {
		return nil, apperr.NotFound("workspace not found")
	}
	return &ws, nil
}

func (m *Memory) CreateWorkspace(_ context.Context, ws *model.Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workspaces[ws.ID] = *ws
	return nil
}

// find returns a pointer into the stored slice; callers hold the lock.
func (m *Memory) find(channelID string, id int64) *model.Message {
	msgs := m.messages[channelID]
	for i := range msgs {
		if msgs[i].ID == id {
			return &msgs[i]
		}
	}
	return nil
}

func cloneMessage(msg model.Message) model.Message {
	readBy := make([]string, len(msg.ReadBy))
	copy(readBy, msg.ReadBy)
	msg.ReadBy = readBy
	return msg
}
