package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"github.com/classhub/messaging/pkg/model"
)

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateReconnecting
)

func (s connState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateConnected:
		return "connected"
	case stateReconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// chatClient maintains one gateway connection through an explicit
// reconnect state machine; cancelling the context aborts a pending
// backoff wait deterministically.
type chatClient struct {
	url     string
	channel string
	state   connState
	backoff time.Duration
	lines   <-chan string
}

func main() {
	serverAddr := flag.String("addr", "localhost:8080", "gateway service address")
	sessionID := flag.String("session", "", "session id issued at login")
	channelID := flag.String("channel", "general", "channel id")
	dmUser := flag.String("dm", "", "user id to dm (overrides -channel)")
	selfID := flag.String("user", "", "own user id (required with -dm)")
	flag.Parse()

	if *sessionID == "" {
		log.Fatal("a -session id is required")
	}

	finalChannel := *channelID
	if *dmUser != "" {
		if *selfID == "" {
			log.Fatal("-dm requires -user")
		}
		finalChannel = model.DMChannelName(*selfID, *dmUser)
	}

	u := url.URL{
		Scheme:   "ws",
		Host:     *serverAddr,
		Path:     "/ws",
		RawQuery: url.Values{"session": {*sessionID}}.Encode(),
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := &chatClient{url: u.String(), channel: finalChannel, lines: lines}
	c.run(ctx)
}

func (c *chatClient) run(ctx context.Context) {
	c.backoff = initialBackoff
	for {
		c.setState(stateConnecting)
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(stateDisconnected)
				return
			}
			log.Printf("dial failed: %v (retrying in %s)", err, c.backoff)
			if !c.wait(ctx) {
				return
			}
			continue
		}

		c.setState(stateConnected)
		c.backoff = initialBackoff
		c.session(ctx, conn)
		conn.Close()

		if ctx.Err() != nil {
			c.setState(stateDisconnected)
			return
		}
		c.setState(stateReconnecting)
		if !c.wait(ctx) {
			return
		}
	}
}

// wait sleeps for the current backoff, doubling it for next time.
// Returns false if the context was cancelled during the wait.
func (c *chatClient) wait(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		c.setState(stateDisconnected)
		return false
	case <-time.After(c.backoff):
	}
	c.backoff = min(c.backoff*2, maxBackoff)
	return true
}

func (c *chatClient) setState(s connState) {
	c.state = s
	log.Printf("[%s]", s)
}

// session drives one live connection until it drops or the context is
// cancelled.
func (c *chatClient) session(ctx context.Context, conn *websocket.Conn) {
	if err := writeEvent(conn, map[string]any{"type": "join_channel", "channelId": c.channel}); err != nil {
		log.Printf("join failed: %v", err)
		return
	}

	incoming := make(chan []byte)
	readDone := make(chan struct{})
	go func() {
		defer close(readDone)
		for {
			_, frame, err := conn.ReadMessage()
			if err != nil {
				return
			}
			incoming <- frame
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-readDone:
			return
		case frame := <-incoming:
			printFrame(frame)
		case line, ok := <-c.lines:
			if !ok {
				return
			}
			if line == "" {
				continue
			}
			err := writeEvent(conn, map[string]any{
				"type": "send_message", "channelId": c.channel, "content": line,
			})
			if err != nil {
				log.Printf("send failed: %v", err)
				return
			}
		}
	}
}

func writeEvent(conn *websocket.Conn, event map[string]any) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

func printFrame(frame []byte) {
	var evt struct {
		Type   string `json:"type"`
		UserID string `json:"userId"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(frame, &evt); err != nil {
		fmt.Printf("?? %s\n", frame)
		return
	}

	switch evt.Type {
	case "new_message":
		var body struct {
			Message model.Message `json:"message"`
		}
		if err := json.Unmarshal(frame, &body); err == nil {
			msg := body.Message
			fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Format("15:04:05"), msg.AuthorID, msg.Content)
		}
	case "user_presence":
		fmt.Printf("* %s is %s\n", evt.UserID, evt.Status)
	case "user_typing":
		fmt.Printf("* %s is typing...\n", evt.UserID)
	case "connected":
		fmt.Printf("* connected as %s\n", evt.UserID)
	case "error":
		var body struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if err := json.Unmarshal(frame, &body); err == nil {
			fmt.Printf("! %s (%s)\n", body.Message, body.Code)
		}
	default:
		fmt.Printf("%s\n", frame)
	}
}
