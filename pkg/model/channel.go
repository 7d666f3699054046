package model

import (
	"strings"
	"time"
)

type ChannelType string

const (
	ChannelText         ChannelType = "text"
	ChannelAnnouncement ChannelType = "announcement"
	ChannelDM           ChannelType = "dm"
	ChannelVoice        ChannelType = "voice"
)

// Channel rows are never physically deleted; ArchivedAt marks them
// inactive instead.
type Channel struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Type        ChannelType `json:"channelType"`
	WorkspaceID string      `json:"workspaceId,omitempty"` // empty for DMs
	ClassTag    string      `json:"classTag,omitempty"`
	SubjectTag  string      `json:"subjectTag,omitempty"`
	PinnedIDs   []int64     `json:"pinnedIds,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	ArchivedAt  *time.Time  `json:"archivedAt,omitempty"`
}

// DM channel names encode both participants so membership is a string
// check, no join table: "dm:<lowerID>:<higherID>".
const dmPrefix = "dm:"

func DMChannelName(userA, userB string) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return dmPrefix + userA + ":" + userB
}

func IsDMName(name string) bool {
	return strings.HasPrefix(name, dmPrefix) && len(strings.Split(name, ":")) == 3
}

// DMParticipant reports whether userID is one of the two participants
// encoded in a DM channel name.
func DMParticipant(name, userID string) bool {
	parts := strings.Split(name, ":")
	if len(parts) != 3 || parts[0] != "dm" {
		return false
	}
	return parts[1] == userID || parts[2] == userID
}
