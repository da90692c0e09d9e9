// Package push maintains the live-update connection: a websocket pub/sub
// client that delivers server-initiated task mutations out of band from the
// request/response API.
package push

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"taskflow/internal/domain"
)

// Handler receives decoded task mutation events for a subscribed topic.
type Handler func(domain.TaskEvent)

// Frame is the wire envelope exchanged on the socket.
type Frame struct {
	Type  string          `json:"type"` // connected | subscribe | message
	Topic string          `json:"topic,omitempty"`
	Body  json.RawMessage `json:"body,omitempty"`
}

const (
	FrameConnected = "connected"
	FrameSubscribe = "subscribe"
	FrameMessage   = "message"
)

// TaskTopic carries live task mutation events.
const TaskTopic = "/topic/tasks"

// Channel is a reconnecting pub/sub client. On connection failure it retries
// up to maxReconnectAttempts times with exponential backoff; once the ceiling
// is reached it stops and reports through OnDown, and the caller must call
// Connect again explicitly.
type Channel struct {
	URL    string
	Dialer *websocket.Dialer
	Logger *slog.Logger

	// OnConnect runs after every successful handshake, including automatic
	// reconnects. Subscriptions do not survive a connection, so callers
	// resubscribe here.
	OnConnect func()
	// OnDown runs once when automatic reconnection gives up.
	OnDown func()

	mu                   sync.Mutex
	conn                 *websocket.Conn
	handlers             map[string]Handler
	token                string
	closed               bool
	down                 bool
	reconnectAttempts    int
	maxReconnectAttempts int
	reconnectInterval    time.Duration
	reconnectTimer       *time.Timer
}

// NewChannel creates a disconnected channel for the given websocket URL.
func NewChannel(url string) *Channel {
	return &Channel{
		URL:                  url,
		handlers:             map[string]Handler{},
		maxReconnectAttempts: 5,
		reconnectInterval:    time.Second,
	}
}

func (c *Channel) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Connect establishes the transport and waits for the handshake
// acknowledgement, authenticated with the given session token. On failure it
// kicks off the reconnection schedule and returns the error.
func (c *Channel) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	c.closed = false
	c.down = false
	c.token = token
	dialer := c.Dialer
	c.mu.Unlock()

	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := dialer.DialContext(ctx, c.URL, header)
	if err != nil {
		c.logger().Warn("push connect failed", "error", err)
		c.scheduleReconnect()
		return err
	}

	// The handshake completes when the server acknowledges the session.
	var ack Frame
	if err := conn.ReadJSON(&ack); err != nil || ack.Type != FrameConnected {
		conn.Close()
		c.logger().Warn("push handshake failed", "error", err)
		c.scheduleReconnect()
		if err != nil {
			return err
		}
		return &websocket.CloseError{Code: websocket.CloseProtocolError, Text: "expected connected frame"}
	}

	c.mu.Lock()
	c.conn = conn
	c.handlers = map[string]Handler{}
	c.reconnectAttempts = 0
	c.mu.Unlock()

	go c.readLoop(conn)
	if c.OnConnect != nil {
		c.OnConnect()
	}
	return nil
}

// Subscribe registers a handler for a named topic. If the connection is not
// currently established this silently has no effect; callers subscribe from
// OnConnect.
func (c *Channel) Subscribe(topic string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	c.handlers[topic] = h
	_ = c.conn.WriteJSON(Frame{Type: FrameSubscribe, Topic: topic})
}

// Send publishes a message to a topic, best effort. If not connected the
// message is silently dropped.
func (c *Channel) Send(topic string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = c.conn.WriteJSON(Frame{Type: FrameMessage, Topic: topic, Body: body})
}

// Connected reports whether the transport is currently established.
func (c *Channel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Down reports that automatic reconnection has been exhausted and live
// updates are unavailable until Connect is called again.
func (c *Channel) Down() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.down
}

// Disconnect tears down the transport. Safe to call when not connected. Must
// be invoked on session end so no live connection outlives its token.
func (c *Channel) Disconnect() {
	c.mu.Lock()
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.handlers = map[string]Handler{}
	c.mu.Unlock()
	if conn != nil {
		conn.Close()
	}
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			c.mu.Lock()
			deliberate := c.closed || c.conn != conn
			if c.conn == conn {
				c.conn = nil
				c.handlers = map[string]Handler{}
			}
			c.mu.Unlock()
			if !deliberate {
				c.logger().Warn("push connection lost", "error", err)
				c.scheduleReconnect()
			}
			return
		}
		if f.Type != FrameMessage {
			continue
		}
		c.mu.Lock()
		h := c.handlers[f.Topic]
		c.mu.Unlock()
		if h == nil {
			continue
		}
		var event domain.TaskEvent
		if err := json.Unmarshal(f.Body, &event); err != nil {
			c.logger().Warn("push message decode failed", "topic", f.Topic, "error", err)
			continue
		}
		h(event)
	}
}

// scheduleReconnect arms the next reconnection attempt: delays double per
// attempt (2, 4, 8, 16, 32 intervals) and stop after the fifth failure.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if c.reconnectAttempts >= c.maxReconnectAttempts {
		if !c.down {
			c.down = true
			c.logger().Warn("push reconnection exhausted, live updates unavailable",
				"attempts", c.reconnectAttempts)
			if c.OnDown != nil {
				go c.OnDown()
			}
		}
		return
	}
	c.reconnectAttempts++
	attempt := c.reconnectAttempts
	delay := c.reconnectInterval * (1 << attempt)
	token := c.token
	c.logger().Info("push reconnect scheduled",
		"attempt", attempt, "max", c.maxReconnectAttempts, "delay", delay)
	c.reconnectTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		stopped := c.closed
		c.mu.Unlock()
		if stopped {
			return
		}
		_ = c.Connect(context.Background(), token)
	})
}
