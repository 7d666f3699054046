package store

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/gocql/gocql"

	"github.com/classhub/messaging/pkg/apperr"
	"github.com/classhub/messaging/pkg/db"
	"github.com/classhub/messaging/pkg/model"
)

// Scylla is the authoritative backend. Writes go through Quorum; read
// visibility across replicas is eventual, which is why the gateway
// pushes broadcasts itself and history is backfill only.
type Scylla struct {
	db   *db.Session
	node IDNode
}

var _ Store = (*Scylla)(nil)

func NewScylla(session *db.Session, node IDNode) *Scylla {
	return &Scylla{db: session, node: node}
}

func (s *Scylla) Create(ctx context.Context, msg *model.Message) (*model.Message, error) {
	id, err := s.node.Next()
	if err != nil {
		return nil, err
	}

	stored := *msg
	stored.ID = id
	stored.CreatedAt = time.Now().UTC()
	stored.ReadBy = []string{}

	q := `INSERT INTO messages (channel_id, id, author_id, content, msg_type, file_url, created_at, is_pinned, is_homework, grading_status)
	      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if err := s.db.Query(q,
		stored.ChannelID, stored.ID, stored.AuthorID, stored.Content,
		string(stored.Type), stored.FileURL, stored.CreatedAt,
		stored.IsPinned, stored.IsHomework, string(stored.GradingStatus),
	).WithContext(ctx).Exec(); err != nil {
		return nil, apperr.Internal("persisting message", err)
	}
	return &stored, nil
}

const messageColumns = `channel_id, id, author_id, content, msg_type, file_url, created_at, read_by, is_pinned, is_homework, grading_status`

func (s *Scylla) ListByChannel(ctx context.Context, channelID string, limit int, beforeID int64) ([]model.Message, error) {
	var iter *gocql.Iter
	if beforeID != 0 {
		iter = s.db.Query(`SELECT `+messageColumns+` FROM messages WHERE channel_id = ? AND id < ? LIMIT ?`,
			channelID, beforeID, limit).WithContext(ctx).Iter()
	} else {
		iter = s.db.Query(`SELECT `+messageColumns+` FROM messages WHERE channel_id = ? LIMIT ?`,
			channelID, limit).WithContext(ctx).Iter()
	}
	return s.collect(iter)
}

func (s *Scylla) ListPinned(ctx context.Context, channelID string) ([]model.Message, error) {
	// Non-key filter inside one partition; rare path, the filtering
	// cost is accepted.
	iter := s.db.Query(`SELECT `+messageColumns+` FROM messages WHERE channel_id = ? AND is_pinned = true ALLOW FILTERING`,
		channelID).WithContext(ctx).Iter()
	return s.collect(iter)
}

// collect drains an iterator of message rows and flips the native
// newest-first clustering order to oldest-first for callers.
func (s *Scylla) collect(iter *gocql.Iter) ([]model.Message, error) {
	var out []model.Message
	var (
		msg     model.Message
		msgType string
		grading string
		readBy  []string
	)
	for iter.Scan(&msg.ChannelID, &msg.ID, &msg.AuthorID, &msg.Content, &msgType,
		&msg.FileURL, &msg.CreatedAt, &readBy, &msg.IsPinned, &msg.IsHomework, &grading) {
		msg.Type = model.MessageType(msgType)
		msg.GradingStatus = model.GradingStatus(grading)
		if readBy == nil {
			readBy = []string{}
		}
		msg.ReadBy = readBy
		out = append(out, msg)

		msg = model.Message{}
		readBy = nil
	}
	if err := iter.Close(); err != nil {
		return nil, apperr.Internal("reading message log", err)
	}
	slices.Reverse(out)
	return out, nil
}

func (s *Scylla) MarkRead(ctx context.Context, channelID string, id int64, userID string) error {
	if err := s.requireMessage(ctx, channelID, id); err != nil {
		return err
	}
	// CQL set union is idempotent on its own.
	if err := s.db.Query(`UPDATE messages SET read_by = read_by + ? WHERE channel_id = ? AND id = ?`,
		[]string{userID}, channelID, id).WithContext(ctx).Exec(); err != nil {
		return apperr.Internal("updating read set", err)
	}
	return nil
}

func (s *Scylla) SetPinned(ctx context.Context, channelID string, id int64, pinned bool) error {
	if err := s.requireMessage(ctx, channelID, id); err != nil {
		return err
	}
	if err := s.db.Query(`UPDATE messages SET is_pinned = ? WHERE channel_id = ? AND id = ?`,
		pinned, channelID, id).WithContext(ctx).Exec(); err != nil {
		return apperr.Internal("updating pin flag", err)
	}

	// Keep the channel's pin reference list in step with the flag.
	var listOp string
	if pinned {
		listOp = `UPDATE channels SET pinned_ids = pinned_ids + ? WHERE id = ?`
	} else {
		listOp = `UPDATE channels SET pinned_ids = pinned_ids - ? WHERE id = ?`
	}
	if err := s.db.Query(listOp, []int64{id}, channelID).WithContext(ctx).Exec(); err != nil {
		return apperr.Internal("updating channel pin list", err)
	}
	return nil
}

func (s *Scylla) SetGrading(ctx context.Context, channelID string, id int64, status model.GradingStatus) error {
	if err := s.requireMessage(ctx, channelID, id); err != nil {
		return err
	}
	if err := s.db.Query(`UPDATE messages SET is_homework = ?, grading_status = ? WHERE channel_id = ? AND id = ?`,
		status != "", string(status), channelID, id).WithContext(ctx).Exec(); err != nil {
		return apperr.Internal("updating grading status", err)
	}
	return nil
}

func (s *Scylla) Delete(ctx context.Context, channelID string, id int64) (bool, error) {
	if err := s.requireMessage(ctx, channelID, id); err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound {
			return false, nil
		}
		return false, err
	}
	if err := s.db.Query(`DELETE FROM messages WHERE channel_id = ? AND id = ?`,
		channelID, id).WithContext(ctx).Exec(); err != nil {
		return false, apperr.Internal("deleting message", err)
	}
	return true, nil
}

// requireMessage guards the overlay updates: a bare CQL UPDATE is an
// upsert and would create phantom rows for unknown IDs.
func (s *Scylla) requireMessage(ctx context.Context, channelID string, id int64) error {
	var found int64
	err := s.db.Query(`SELECT id FROM messages WHERE channel_id = ? AND id = ?`,
		channelID, id).WithContext(ctx).Scan(&found)
	if errors.Is(err, gocql.ErrNotFound) {
		return apperr.NotFound("message not found")
	}
	if err != nil {
		return apperr.Internal("looking up message", err)
	}
	return nil
}

func (s *Scylla) GetChannel(ctx context.Context, id string) (*model.Channel, error) {
	var (
		ch         model.Channel
		chType     string
		archivedAt time.Time
	)
	err := s.db.Query(`SELECT id, name, channel_type, workspace_id, class_tag, subject_tag, pinned_ids, created_at, archived_at FROM channels WHERE id = ?`,
		id).WithContext(ctx).Scan(&ch.ID, &ch.Name, &chType, &ch.WorkspaceID,
		&ch.ClassTag, &ch.SubjectTag, &ch.PinnedIDs, &ch.CreatedAt, &archivedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, apperr.NotFound("channel not found")
	}
	if err != nil {
		return nil, apperr.Internal("looking up channel", err)
	}
	ch.Type = model.ChannelType(chType)
	if !archivedAt.IsZero() {
		ch.ArchivedAt = &archivedAt
	}
	return &ch, nil
}

func (s *Scylla) CreateChannel(ctx context.Context, ch *model.Channel) error {
	if err := s.db.Query(`INSERT INTO channels (id, name, channel_type, workspace_id, class_tag, subject_tag, pinned_ids, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ch.ID, ch.Name, string(ch.Type), ch.WorkspaceID, ch.ClassTag, ch.SubjectTag,
		ch.PinnedIDs, ch.CreatedAt).WithContext(ctx).Exec(); err != nil {
		return apperr.Internal("creating channel", err)
	}
	return nil
}

func (s *Scylla) ListWorkspaceChannels(ctx context.Context, workspaceID string) ([]model.Channel, error) {
	iter := s.db.Query(`SELECT id, name, channel_type, workspace_id, class_tag, subject_tag, pinned_ids, created_at FROM channels WHERE workspace_id = ? ALLOW FILTERING`,
		workspaceID).WithContext(ctx).Iter()

	var out []model.Channel
	var ch model.Channel
	var chType string
	for iter.Scan(&ch.ID, &ch.Name, &chType, &ch.WorkspaceID, &ch.ClassTag,
		&ch.SubjectTag, &ch.PinnedIDs, &ch.CreatedAt) {
		ch.Type = model.ChannelType(chType)
		out = append(out, ch)
		ch = model.Channel{}
	}
	if err := iter.Close(); err != nil {
		return nil, apperr.Internal("listing channels", err)
	}
	return out, nil
}

func (s *Scylla) GetWorkspace(ctx context.Context, id string) (*model.Workspace, error) {
	var ws model.Workspace
	err := s.db.Query(`SELECT id, name, owner_id, member_ids, created_at FROM workspaces WHERE id = ?`,
		id).WithContext(ctx).Scan(&ws.ID, &ws.Name, &ws.OwnerID, &ws.MemberIDs, &ws.CreatedAt)
	if errors.Is(err, gocql.ErrNotFound) {
		return nil, apperr.NotFound("workspace not found")
	}
	if err != nil {
		return nil, apperr.Internal("looking up workspace", err)
	}
	return &ws, nil
}

func (s *Scylla) CreateWorkspace(ctx context.Context, ws *model.Workspace) error {
	if err := s.db.Query(`INSERT INTO workspaces (id, name, owner_id, member_ids, created_at) VALUES (?, ?, ?, ?, ?)`,
		ws.ID, ws.Name, ws.OwnerID, ws.MemberIDs, ws.CreatedAt).WithContext(ctx).Exec(); err != nil {
		return apperr.Internal("creating workspace", err)
	}
	return nil
}
