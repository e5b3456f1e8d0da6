package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/sirupsen/logrus"

	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/model"
	"github.com/ai-hackathon-team-af/agent-education-video-studio/internal/wizard"
)

// Client represents a WebSocket client
type Client struct {
	SessionID string
	Send      chan []byte
}

// Hub fans session snapshots out to the sockets watching each session
type Hub struct {
	// Clients grouped by session ID
	clients map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *BroadcastMessage
	done       chan struct{}

	log logrus.FieldLogger
	mu  sync.RWMutex
}

// BroadcastMessage represents a message to broadcast
type BroadcastMessage struct {
	SessionID string
	Message   []byte
}

// NewHub creates a new Hub
func NewHub(log logrus.FieldLogger) *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *BroadcastMessage, 256),
		done:       make(chan struct{}),
		log:        log.WithField("component", "websocket"),
	}
}

// Run starts the hub's main loop and returns when ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, clients := range h.clients {
				for client := range clients {
					close(client.Send)
				}
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.SessionID] == nil {
				h.clients[client.SessionID] = make(map[*Client]bool)
			}
			h.clients[client.SessionID][client] = true
			h.mu.Unlock()
			h.log.WithField("session", client.SessionID).Debug("client registered")

		case client := <-h.unregister:
			h.remove(client)
			h.log.WithField("session", client.SessionID).Debug("client unregistered")

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients[msg.SessionID] {
				select {
				case client.Send <- msg.Message:
				default:
					// Slow consumer; drop it.
					close(client.Send)
					delete(h.clients[msg.SessionID], client)
				}
			}
			if len(h.clients[msg.SessionID]) == 0 {
				delete(h.clients, msg.SessionID)
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if clients, ok := h.clients[client.SessionID]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)
			if len(clients) == 0 {
				delete(h.clients, client.SessionID)
			}
		}
	}
}

// Register adds a new client
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Subscribers returns the number of clients watching a session
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[sessionID])
}

// PublishSnapshot queues a snapshot for the session's subscribers. It never
// blocks; when the queue is full the snapshot is dropped, the next one
// carries the full state anyway.
func (h *Hub) PublishSnapshot(snap wizard.Snapshot) {
	data, err := encodeSnapshot(snap)
	if err != nil {
		h.log.WithError(err).Warn("failed to marshal snapshot message")
		return
	}
	select {
	case h.broadcast <- &BroadcastMessage{SessionID: snap.ID, Message: data}:
	default:
		h.log.WithField("session", snap.ID).Warn("broadcast queue full, snapshot dropped")
	}
}

func encodeSnapshot(snap wizard.Snapshot) ([]byte, error) {
	return json.Marshal(model.WSSnapshotMessage{
		Type:      model.WSMessageTypeSnapshot,
		SessionID: snap.ID,
		Snapshot:  snap,
	})
}

// HandleConnection streams snapshots of one session over c, starting with
// the current one
func (h *Hub) HandleConnection(c *websocket.Conn, current wizard.Snapshot) {
	client := &Client{
		SessionID: current.ID,
		Send:      make(chan []byte, 256),
	}

	if data, err := encodeSnapshot(current); err == nil {
		client.Send <- data
	}

	h.Register(client)
	defer h.Unregister(client)

	// Writer goroutine
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case message, ok := <-client.Send:
				if !ok {
					c.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				if err := c.WriteMessage(websocket.TextMessage, message); err != nil {
					return
				}

			case <-ticker.C:
				// Keep-alive
				if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	// Reader loop
	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.WithError(err).Warn("websocket error")
			}
			break
		}

		var msg model.WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == model.WSMessageTypePing {
			data, _ := json.Marshal(model.WSMessage{Type: model.WSMessageTypePong})
			h.mu.RLock()
			_, live := h.clients[client.SessionID][client]
			if live {
				select {
				case client.Send <- data:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}
