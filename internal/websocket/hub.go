package websocket

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/run-matchmaker/internal/domain"
)

// Message types
const (
	MessageTypeRunUpdate    = "run_update"
	MessageTypeBattleResult = "battle_result"
	MessageTypePing         = "ping"
	MessageTypePong         = "pong"
	MessageTypeError        = "error"
)

// Message represents a WebSocket message
type Message struct {
	Type      string    `json:"type"`
	RunID     string    `json:"run_id,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	playerID string
}

// Hub maintains the set of active clients and pushes run updates to the
// connections of the run's owner.
type Hub struct {
	// Registered clients by player ID
	clients map[string]map[*Client]bool

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Outbound messages
	broadcast chan *Message

	// Mutex for thread-safe operations
	mu sync.RWMutex

	// Logger
	logger *slog.Logger

	// Context for shutdown
	ctx    context.Context
	cancel context.CancelFunc
}

// NewHub creates a new Hub
func NewHub(logger *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *Message, 256),
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run starts the hub's main loop
func (h *Hub) Run() {
	h.logger.Info("WebSocket hub started")
	for {
		select {
		case <-h.ctx.Done():
			h.logger.Info("WebSocket hub stopping")
			return

		case client := <-h.register:
			h.mu.Lock()
			if _, ok := h.clients[client.playerID]; !ok {
				h.clients[client.playerID] = make(map[*Client]bool)
			}
			h.clients[client.playerID][client] = true
			h.mu.Unlock()
			h.logger.Debug("client registered", "client_id", client.id, "player_id", client.playerID)

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.playerID]; ok {
				if _, ok := clients[client]; ok {
					delete(clients, client)
					close(client.send)
				}
				if len(clients) == 0 {
					delete(h.clients, client.playerID)
				}
			}
			h.mu.Unlock()
			h.logger.Debug("client unregistered", "client_id", client.id, "player_id", client.playerID)

		case message := <-h.broadcast:
			h.deliver(message)
		}
	}
}

// Stop stops the hub
func (h *Hub) Stop() {
	h.cancel()
}

// deliver sends a message to every connection of its player
func (h *Hub) deliver(message *Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients, ok := h.clients[message.playerID]
	if !ok {
		return
	}

	data, err := json.Marshal(message)
	if err != nil {
		h.logger.Error("failed to marshal message", "error", err)
		return
	}

	for client := range clients {
		select {
		case client.send <- data:
		default:
			// Client's buffer is full, skip
			h.logger.Warn("client buffer full, skipping", "client_id", client.id)
		}
	}
}

func (h *Hub) enqueue(message *Message) {
	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message", "type", message.Type, "run_id", message.RunID)
	}
}

// PublishRun sends the run's current state to its owner
func (h *Hub) PublishRun(r *domain.Run) {
	h.enqueue(&Message{
		Type:      MessageTypeRunUpdate,
		RunID:     r.ID,
		Data:      r.Clone(),
		Timestamp: time.Now(),
		playerID:  r.PlayerID,
	})
}

// PublishBattle sends a battle report to the player
func (h *Hub) PublishBattle(playerID string, report *domain.BattleReport) {
	h.enqueue(&Message{
		Type:      MessageTypeBattleResult,
		RunID:     report.RunID,
		Data:      report,
		Timestamp: time.Now(),
		playerID:  playerID,
	})
}

// Register adds a client to the hub. Once the hub has stopped the client's
// send channel is closed so its write pump exits.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.ctx.Done():
		close(client.send)
	}
}

// Unregister removes a client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// ConnectionCount returns the number of open connections of a player
func (h *Hub) ConnectionCount(playerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[playerID])
}

// GetTotalConnections returns the total number of connected clients
func (h *Hub) GetTotalConnections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, clients := range h.clients {
		total += len(clients)
	}
	return total
}
