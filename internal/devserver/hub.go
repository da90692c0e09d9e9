package devserver

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"taskflow/internal/domain"
	"taskflow/internal/push"
)

type wsClient struct {
	id     string
	conn   *websocket.Conn
	mu     sync.Mutex
	topics map[string]bool
}

func (c *wsClient) write(f push.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteJSON(f)
}

// Hub accepts websocket subscribers and fans task mutation events out to the
// topics they asked for.
type Hub struct {
	secret   string
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu      sync.Mutex
	clients map[string]*wsClient
}

func NewHub(secret string, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		secret:  secret,
		logger:  logger,
		clients: map[string]*wsClient{},
	}
}

// ServeHTTP upgrades the connection, validates the bearer token, and
// acknowledges the handshake before entering the subscribe/publish loop.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r.Header.Get("Authorization"))
	if !ok {
		token = r.URL.Query().Get("token")
	}
	if _, err := authenticateToken(token, h.secret); err != nil {
		respondUnauthorized(w)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{
		id:     uuid.NewString(),
		conn:   conn,
		topics: map[string]bool{},
	}
	if err := client.write(push.Frame{Type: push.FrameConnected}); err != nil {
		conn.Close()
		return
	}

	h.mu.Lock()
	h.clients[client.id] = client
	h.mu.Unlock()
	h.logger.Info("websocket client connected", "client_id", client.id)

	h.readLoop(client)
}

func (h *Hub) readLoop(client *wsClient) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, client.id)
		h.mu.Unlock()
		client.conn.Close()
		h.logger.Info("websocket client disconnected", "client_id", client.id)
	}()
	for {
		var f push.Frame
		if err := client.conn.ReadJSON(&f); err != nil {
			return
		}
		switch f.Type {
		case push.FrameSubscribe:
			client.mu.Lock()
			client.topics[f.Topic] = true
			client.mu.Unlock()
		case push.FrameMessage:
			// Inbound publishes are relayed to the topic's other subscribers.
			h.broadcast(f.Topic, f.Body, client.id)
		}
	}
}

// BroadcastTask publishes a task mutation event to every subscriber of the
// task topic.
func (h *Hub) BroadcastTask(event domain.TaskEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		return
	}
	h.broadcast(push.TaskTopic, body, "")
}

func (h *Hub) broadcast(topic string, body json.RawMessage, excludeID string) {
	h.mu.Lock()
	targets := make([]*wsClient, 0, len(h.clients))
	for _, c := range h.clients {
		if c.id == excludeID {
			continue
		}
		c.mu.Lock()
		subscribed := c.topics[topic]
		c.mu.Unlock()
		if subscribed {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	frame := push.Frame{Type: push.FrameMessage, Topic: topic, Body: body}
	for _, c := range targets {
		if err := c.write(frame); err != nil {
			h.logger.Warn("websocket write failed", "client_id", c.id, "error", err)
		}
	}
}
