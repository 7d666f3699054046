package model

import "time"

type MessageType string

const (
	TypeText  MessageType = "text"
	TypeFile  MessageType = "file"
	TypeImage MessageType = "image"
)

type GradingStatus string

const (
	GradingPending GradingStatus = "pending"
	GradingGraded  GradingStatus = "graded"
)

// Message is the unit of the channel log. ID, ChannelID, AuthorID,
// Content, Type, FileURL and CreatedAt are written once on send; the
// remaining fields form a mutable overlay. ReadBy only ever grows.
type Message struct {
	ID        int64       `json:"id"`
	ChannelID string      `json:"channelId"`
	AuthorID  string      `json:"authorId"`
	Content   string      `json:"content"`
	Type      MessageType `json:"messageType"`
	FileURL   string      `json:"fileUrl,omitempty"`
	CreatedAt time.Time   `json:"createdAt"`

	ReadBy        []string      `json:"readBy"`
	IsPinned      bool          `json:"isPinned"`
	IsHomework    bool          `json:"isHomework"`
	GradingStatus GradingStatus `json:"gradingStatus,omitempty"`
}

func ValidMessageType(t MessageType) bool {
	switch t {
	case TypeText, TypeFile, TypeImage:
		return true
	}
	return false
}

func ValidGradingStatus(s GradingStatus) bool {
	switch s {
	case GradingPending, GradingGraded, "":
		return true
	}
	return false
}
