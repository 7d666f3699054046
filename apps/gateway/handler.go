package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"

	"github.com/classhub/messaging/pkg/apperr"
	"github.com/classhub/messaging/pkg/assistant"
	"github.com/classhub/messaging/pkg/model"
	"github.com/classhub/messaging/pkg/session"
	"github.com/classhub/messaging/pkg/snowflake"
	"github.com/classhub/messaging/pkg/store"
)

// closeCodeAuthFailure tells the client to re-authenticate before
// reconnecting; no other protocol error closes the socket.
const closeCodeAuthFailure = 4001

const storeTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origin policy is enforced at the edge proxy
	},
}

// Handler drives the protocol for every connection of one gateway
// instance. All collaborators are constructor-injected.
type Handler struct {
	registry *Registry
	store    store.Store
	sessions session.Store

	// Optional collaborators; nil disables the feature.
	trigger *assistant.Trigger
	relay   *Relay
	rdb     *redis.Client
}

func NewHandler(registry *Registry, st store.Store, sessions session.Store) *Handler {
	return &Handler{registry: registry, store: st, sessions: sessions}
}

func (h *Handler) SetAssistant(completer assistant.Completer) {
	h.trigger = assistant.NewTrigger(completer, h.store, h.publish)
}

func (h *Handler) SetRelay(relay *Relay) { h.relay = relay }

// SetPresenceMirror mirrors channel membership into Redis sets for the
// REST presence endpoint.
func (h *Handler) SetPresenceMirror(rdb *redis.Client) { h.rdb = rdb }

// ServeWS upgrades the connection, then authenticates it against the
// session store. Failures close with a distinct code and nothing else
// runs for that socket.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := ""
	if cookie, err := r.Cookie("session"); err == nil {
		sessionID = cookie.Value
	}
	if sessionID == "" {
		// Some WS clients cannot set cookies; accept a query param.
		sessionID = r.URL.Query().Get("session")
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("gateway: upgrade failed: %v", err)
		return
	}

	sess, err := h.authenticate(r.Context(), sessionID)
	if err != nil {
		log.Printf("gateway: handshake auth failed: %v", err)
		deadline := time.Now().Add(writeWait)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeCodeAuthFailure, "authentication failed"), deadline)
		conn.Close()
		return
	}

	c := newClient(h, conn, sess.UserID, sess.Username)
	c.enqueue(connectedFrame(sess.UserID, sess.Username))
	log.Printf("gateway: user %s connected", sess.UserID)

	go c.writePump()
	go c.readPump()
}

func (h *Handler) authenticate(ctx context.Context, sessionID string) (*session.Session, error) {
	if sessionID == "" {
		return nil, apperr.Unauthorized("no session provided")
	}
	return h.sessions.Get(ctx, sessionID)
}

// handleEvent dispatches one inbound event. Runs on the connection's
// read goroutine, so events from one socket are strictly sequential.
func (h *Handler) handleEvent(c *Client, event *InboundEvent) {
	if err := event.Validate(); err != nil {
		c.enqueue(errorFrame(err))
		return
	}

	switch event.Type {
	case EventJoinChannel:
		h.handleJoin(c, event)
	case EventLeaveChannel:
		h.handleLeave(c, event)
	case EventSendMessage:
		h.handleSend(c, event)
	case EventTyping:
		h.handleTyping(c, event)
	case EventMarkRead:
		h.handleMarkRead(c, event)
	}
}

func (h *Handler) handleJoin(c *Client, event *InboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	ch, err := h.store.GetChannel(ctx, event.ChannelID)
	if err != nil {
		if apperr.CodeOf(err) == apperr.CodeNotFound && model.IsDMName(event.ChannelID) {
			ch, err = h.createDM(ctx, c, event.ChannelID)
		}
		if err != nil {
			c.enqueue(errorFrame(err))
			return
		}
	}

	if err := h.authorizeChannel(ctx, c, ch); err != nil {
		c.enqueue(errorFrame(err))
		return
	}

	h.registry.Subscribe(c, ch.ID)
	h.presenceAdd(ch.ID, c.userID)
	c.enqueue(channelFrame(EventJoinedChannel, ch.ID))

	frame := presenceFrame(c.userID, c.username, "online", ch.ID)
	h.registry.Broadcast(ch.ID, frame, c)
	h.relayPublish(ch.ID, frame)
}

// createDM lazily materializes a DM channel row the first time either
// participant joins it.
func (h *Handler) createDM(ctx context.Context, c *Client, name string) (*model.Channel, error) {
	if !model.DMParticipant(name, c.userID) {
		return nil, apperr.Forbidden("not a participant of this DM")
	}
	ch := &model.Channel{
		ID:        name,
		Name:      name,
		Type:      model.ChannelDM,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.CreateChannel(ctx, ch); err != nil {
		return nil, err
	}
	return ch, nil
}

func (h *Handler) authorizeChannel(ctx context.Context, c *Client, ch *model.Channel) error {
	if ch.ArchivedAt != nil {
		return apperr.Forbidden("channel is archived")
	}
	if ch.Type == model.ChannelDM {
		if !model.DMParticipant(ch.Name, c.userID) {
			return apperr.Forbidden("not a participant of this DM")
		}
		return nil
	}

	ws, err := h.store.GetWorkspace(ctx, ch.WorkspaceID)
	if err != nil {
		return err
	}
	if !ws.HasMember(c.userID) {
		return apperr.Forbidden("not a member of this workspace")
	}
	return nil
}

func (h *Handler) handleLeave(c *Client, event *InboundEvent) {
	if !h.registry.IsSubscribed(c, event.ChannelID) {
		c.enqueue(channelFrame(EventLeftChannel, event.ChannelID))
		return
	}
	h.registry.Unsubscribe(c, event.ChannelID)
	h.presenceRemove(event.ChannelID, c.userID)
	c.enqueue(channelFrame(EventLeftChannel, event.ChannelID))

	frame := presenceFrame(c.userID, c.username, "offline", event.ChannelID)
	h.registry.Broadcast(event.ChannelID, frame, c)
	h.relayPublish(event.ChannelID, frame)
}

func (h *Handler) handleSend(c *Client, event *InboundEvent) {
	if !h.registry.IsSubscribed(c, event.ChannelID) {
		c.enqueue(errorFrame(apperr.Forbidden("join the channel before sending")))
		return
	}
	if !c.limiter.Allow() {
		c.enqueue(errorFrame(apperr.RateLimited("message rate limit reached, slow down")))
		return
	}

	msgType := event.MessageType
	if msgType == "" {
		msgType = model.TypeText
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	// The log commits before anyone hears about the message; a write
	// failure suppresses the fan-out entirely.
	msg, err := h.store.Create(ctx, &model.Message{
		ChannelID: event.ChannelID,
		AuthorID:  c.userID,
		Content:   strings.TrimSpace(event.Content),
		Type:      msgType,
		FileURL:   event.FileURL,
	})
	if err != nil {
		if errors.Is(err, snowflake.ErrClockRegression) {
			// Continuing would risk duplicate IDs from this generator.
			log.Fatalf("gateway: %v", err)
		}
		c.enqueue(errorFrame(err))
		return
	}

	frame := newMessageFrame(msg)
	c.enqueue(frame) // echo to the sender
	h.registry.Broadcast(event.ChannelID, frame, c)
	h.relayPublish(event.ChannelID, frame)

	if h.trigger != nil && assistant.Mentioned(msg.Content) {
		h.trigger.Fire(event.ChannelID)
	}
}

func (h *Handler) handleTyping(c *Client, event *InboundEvent) {
	if !h.registry.IsSubscribed(c, event.ChannelID) {
		c.enqueue(errorFrame(apperr.Forbidden("join the channel first")))
		return
	}
	frame := typingFrame(c.userID, c.username, event.ChannelID)
	h.registry.Broadcast(event.ChannelID, frame, c)
	h.relayPublish(event.ChannelID, frame)
}

func (h *Handler) handleMarkRead(c *Client, event *InboundEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := h.store.MarkRead(ctx, event.ChannelID, event.MessageID, c.userID); err != nil {
		c.enqueue(errorFrame(err))
		return
	}

	frame := messageReadFrame(event.MessageID, c.userID, event.ChannelID)
	h.registry.Broadcast(event.ChannelID, frame, c)
	h.relayPublish(event.ChannelID, frame)
}

// publish fans out a synthetic message (assistant replies, relayed
// frames use relayDeliver instead).
func (h *Handler) publish(msg *model.Message) {
	frame := newMessageFrame(msg)
	h.registry.Broadcast(msg.ChannelID, frame, nil)
	h.relayPublish(msg.ChannelID, frame)
}

// disconnect runs exactly once per connection, from the read pump's
// exit path: graceful close, read error, or heartbeat timeout all land
// here.
func (h *Handler) disconnect(c *Client) {
	channels := h.registry.Cleanup(c)
	for _, channelID := range channels {
		h.presenceRemove(channelID, c.userID)
		h.relayPublish(channelID, presenceFrame(c.userID, c.username, "offline", channelID))
	}
	close(c.send)
	log.Printf("gateway: user %s disconnected from %d channels", c.userID, len(channels))
}

func (h *Handler) relayPublish(channelID string, frame []byte) {
	if h.relay != nil {
		h.relay.Publish(channelID, frame)
	}
}

// relayDeliver hands a frame from another gateway instance to local
// subscribers only; re-publishing it would loop.
func (h *Handler) relayDeliver(channelID string, frame []byte) {
	h.registry.Broadcast(channelID, frame, nil)
}

func (h *Handler) presenceAdd(channelID, userID string) {
	if h.rdb == nil {
		return
	}
	if err := h.rdb.SAdd(context.Background(), "channel:"+channelID+":users", userID).Err(); err != nil {
		log.Printf("gateway: presence add for %s: %v", userID, err)
	}
}

func (h *Handler) presenceRemove(channelID, userID string) {
	if h.rdb == nil {
		return
	}
	if err := h.rdb.SRem(context.Background(), "channel:"+channelID+":users", userID).Err(); err != nil {
		log.Printf("gateway: presence remove for %s: %v", userID, err)
	}
}
