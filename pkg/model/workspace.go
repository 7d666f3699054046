package model

import (
	"slices"
	"time"
)

// Workspace is the membership boundary for non-DM channels.
type Workspace struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"ownerId"`
	MemberIDs []string  `json:"memberIds"`
	CreatedAt time.Time `json:"createdAt"`
}

func (w *Workspace) HasMember(userID string) bool {
	return w.OwnerID == userID || slices.Contains(w.MemberIDs, userID)
}
