package main

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"github.com/classhub/messaging/pkg/apperr"
	"github.com/classhub/messaging/pkg/ratelimit"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Heartbeat: a probe every pingPeriod, and the read deadline only
	// moves when a pong arrives. A dead peer is collected within two
	// probe intervals.
	pingPeriod = 30 * time.Second
	pongWait   = 2 * pingPeriod

	// Maximum message size allowed from peer.
	maxMessageSize = 4096
)

// Client is the gateway's side of one WebSocket connection.
type Client struct {
	handler *Handler

	conn *websocket.Conn

	// Buffered channel of outbound frames.
	send chan []byte

	userID   string
	username string

	limiter *ratelimit.Bucket
}

func newClient(h *Handler, conn *websocket.Conn, userID, username string) *Client {
	return &Client{
		handler:  h,
		conn:     conn,
		send:     make(chan []byte, 256),
		userID:   userID,
		username: username,
		limiter:  ratelimit.NewBucket(),
	}
}

func (c *Client) User() (string, string) {
	return c.userID, c.username
}

// enqueue hands a frame to the write pump without blocking. A full
// buffer means the peer is not draining; the frame is dropped and the
// heartbeat will reap the connection if it is actually dead.
func (c *Client) enqueue(frame []byte) bool {
	if frame == nil {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// readPump decodes inbound events and runs them one at a time, so no
// two events from the same socket ever overlap.
func (c *Client) readPump() {
	defer func() {
		c.handler.disconnect(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("gateway: read error from %s: %v", c.userID, err)
			}
			break
		}

		var event InboundEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			c.enqueue(errorFrame(apperr.InvalidArg("malformed event")))
			continue
		}

		// Protocol errors answer the sender and keep the socket open.
		c.handler.handleEvent(c, &event)
	}
}

// writePump owns all writes to the socket, including heartbeat pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
