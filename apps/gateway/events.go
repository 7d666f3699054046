package main

import (
	"encoding/json"
	"errors"
	"log"
	"strings"

	"github.com/classhub/messaging/pkg/apperr"
	"github.com/classhub/messaging/pkg/model"
)

// Inbound event types.
const (
	EventJoinChannel  = "join_channel"
	EventLeaveChannel = "leave_channel"
	EventSendMessage  = "send_message"
	EventTyping       = "typing"
	EventMarkRead     = "mark_read"
)

// Outbound event types.
const (
	EventConnected     = "connected"
	EventJoinedChannel = "joined_channel"
	EventLeftChannel   = "left_channel"
	EventNewMessage    = "new_message"
	EventUserPresence  = "user_presence"
	EventUserTyping    = "user_typing"
	EventMessageRead   = "message_read"
	EventError         = "error"
)

// InboundEvent is the tagged union of everything a client may send.
// Which fields matter depends on Type; Validate enforces that per tag
// and rejects unknown tags outright.
type InboundEvent struct {
	Type        string            `json:"type"`
	ChannelID   string            `json:"channelId,omitempty"`
	Content     string            `json:"content,omitempty"`
	MessageType model.MessageType `json:"messageType,omitempty"`
	FileURL     string            `json:"fileUrl,omitempty"`
	MessageID   int64             `json:"messageId,omitempty"`
}

func (e *InboundEvent) Validate() error {
	switch e.Type {
	case EventJoinChannel, EventLeaveChannel, EventTyping:
		if e.ChannelID == "" {
			return apperr.InvalidArg("channelId is required")
		}
	case EventSendMessage:
		if e.ChannelID == "" {
			return apperr.InvalidArg("channelId is required")
		}
		if strings.TrimSpace(e.Content) == "" {
			return apperr.InvalidArg("content must not be empty")
		}
		if e.MessageType != "" && !model.ValidMessageType(e.MessageType) {
			return apperr.InvalidArg("unknown messageType")
		}
	case EventMarkRead:
		if e.ChannelID == "" {
			return apperr.InvalidArg("channelId is required")
		}
		if e.MessageID == 0 {
			return apperr.InvalidArg("messageId is required")
		}
	default:
		return apperr.InvalidArg("unknown event type: " + e.Type)
	}
	return nil
}

type connectedEvent struct {
	Type     string `json:"type"`
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type channelEvent struct {
	Type      string `json:"type"`
	ChannelID string `json:"channelId"`
}

type newMessageEvent struct {
	Type    string         `json:"type"`
	Message *model.Message `json:"message"`
}

type presenceEvent struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Status    string `json:"status"` // "online" | "offline"
	ChannelID string `json:"channelId"`
}

type typingEvent struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	ChannelID string `json:"channelId"`
}

type messageReadEvent struct {
	Type      string `json:"type"`
	MessageID int64  `json:"messageId"`
	UserID    string `json:"userId"`
	ChannelID string `json:"channelId"`
}

type errorEvent struct {
	Type    string      `json:"type"`
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// marshalFrame returns nil on marshal failure; all outbound frames are
// plain structs so that never fires outside a programming error.
func marshalFrame(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("gateway: marshal frame: %v", err)
		return nil
	}
	return data
}

func connectedFrame(userID, username string) []byte {
	return marshalFrame(connectedEvent{Type: EventConnected, UserID: userID, Username: username})
}

func channelFrame(eventType, channelID string) []byte {
	return marshalFrame(channelEvent{Type: eventType, ChannelID: channelID})
}

func newMessageFrame(msg *model.Message) []byte {
	return marshalFrame(newMessageEvent{Type: EventNewMessage, Message: msg})
}

func presenceFrame(userID, username, status, channelID string) []byte {
	return marshalFrame(presenceEvent{
		Type: EventUserPresence, UserID: userID, Username: username,
		Status: status, ChannelID: channelID,
	})
}

func typingFrame(userID, username, channelID string) []byte {
	return marshalFrame(typingEvent{Type: EventUserTyping, UserID: userID, Username: username, ChannelID: channelID})
}

func messageReadFrame(messageID int64, userID, channelID string) []byte {
	return marshalFrame(messageReadEvent{Type: EventMessageRead, MessageID: messageID, UserID: userID, ChannelID: channelID})
}

func errorFrame(err error) []byte {
	msg := err.Error()
	var ae *apperr.Error
	if errors.As(err, &ae) {
		// Keep wrapped causes (driver errors and the like) off the wire.
		msg = ae.Message
	}
	return marshalFrame(errorEvent{Type: EventError, Code: apperr.CodeOf(err), Message: msg})
}
