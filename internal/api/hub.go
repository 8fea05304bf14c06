package api

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"neswara/internal/metrics"
)

// Message types exchanged with dashboard clients.
const (
	MessageTypeState  = "dashboard_state"
	MessageTypeFilter = "filter"
	MessageTypeRange  = "range"
	MessageTypePing   = "ping"
	MessageTypePong   = "pong"
	MessageTypeError  = "error"
)

type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Hub fans dashboard states out to connected admin browsers.
type Hub struct {
	dashboard  Dashboard
	logger     zerolog.Logger
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub(d Dashboard, logger zerolog.Logger) *Hub {
	return &Hub{
		dashboard:  d,
		logger:     logger.With().Str("component", "websocket-hub").Logger(),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run forwards every published dashboard state until ctx is done, then closes all clients.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	states, stop := h.dashboard.Watch()
	defer stop()

	for {
		// lifecycle events first so a new client never misses the next broadcast
		select {
		case c := <-h.register:
			h.add(c)
			continue
		case c := <-h.unregister:
			h.remove(c)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			n := h.ClientCount()
			h.closeAll()
			h.logger.Info().Int("clients_closed", n).Msg("websocket hub stopped")
			return nil
		case c := <-h.register:
			h.add(c)
		case c := <-h.unregister:
			h.remove(c)
		case st, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			h.send(Message{Type: MessageTypeState, Data: st})
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	// the new client starts from the latest state
	select {
	case c.send <- Message{Type: MessageTypeState, Data: h.dashboard.Current()}:
	default:
	}

	metrics.WebSocketClients.Set(float64(n))
	h.logger.Info().Str("client_id", c.id).Int("total_clients", n).Msg("websocket client connected")
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	metrics.WebSocketClients.Set(float64(n))
	h.logger.Info().Str("client_id", c.id).Int("total_clients", n).Msg("websocket client disconnected")
}

func (h *Hub) send(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			// client is not keeping up
			close(c.send)
			delete(h.clients, c)
		}
	}
	metrics.WebSocketClients.Set(float64(len(h.clients)))
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.WebSocketClients.Set(0)
}

// join hands c to the running hub. It gives up when ctx ends first.
func (h *Hub) join(ctx context.Context, c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// leave must not block once the hub has stopped.
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
