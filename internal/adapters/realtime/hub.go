package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"propdesk/internal/core/domain"
	"propdesk/internal/pkg/logger"

	"github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
)

// Message is the envelope pushed to websocket clients
type Message struct {
	Type  string              `json:"type"`
	Event domain.RequestEvent `json:"event"`
}

// Hub fans approval events out to connected clients so they can revalidate
type Hub struct {
	clients    map[*websocket.Conn]bool
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	broadcast  chan []byte
	mutex      sync.Mutex
	log        zerolog.Logger
}

// NewHub creates a new hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*websocket.Conn]bool),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		broadcast:  make(chan []byte, 64),
		log:        logger.New("realtime"),
	}
}

// Run serves register, unregister and broadcast until ctx is done
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for conn := range h.clients {
				conn.Close()
				delete(h.clients, conn)
			}
			h.mutex.Unlock()
			return

		case conn := <-h.register:
			h.mutex.Lock()
			h.clients[conn] = true
			h.mutex.Unlock()
			h.log.Debug().Int("clients", h.Count()).Msg("ws client connected")

		case conn := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[conn]; ok {
				delete(h.clients, conn)
				conn.Close()
			}
			h.mutex.Unlock()

		case message := <-h.broadcast:
			h.mutex.Lock()
			for conn := range h.clients {
				if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
					conn.Close()
					delete(h.clients, conn)
				}
			}
			h.mutex.Unlock()
		}
	}
}

// Count returns the number of connected clients
func (h *Hub) Count() int {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return len(h.clients)
}

// Serve keeps a websocket connection registered until the client goes away
func (h *Hub) Serve(c *websocket.Conn) {
	h.register <- c
	defer func() { h.unregister <- c }()

	for {
		if _, _, err := c.ReadMessage(); err != nil {
			break
		}
	}
}

// OnRequestEvent implements domain.RequestObserver. Events are dropped when
// the broadcast buffer is full.
func (h *Hub) OnRequestEvent(e domain.RequestEvent) {
	payload, err := json.Marshal(Message{Type: "approval_request", Event: e})
	if err != nil {
		h.log.Error().Err(err).Msg("encode ws event")
		return
	}
	select {
	case h.broadcast <- payload:
	default:
		h.log.Warn().Uint("request_id", e.RequestID).Msg("ws broadcast buffer full, event dropped")
	}
}
