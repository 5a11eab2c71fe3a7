package server

import (
	"context"
	"encoding/json"

	log "github.com/sirupsen/logrus"
)

// Message is the envelope pushed to websocket clients.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

const (
	MessageNowPlaying = "now_playing"
	MessageQueue      = "queue"
)

// Hub manages the set of active clients and broadcasts messages.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop. It must be run in a separate goroutine.
func (h *Hub) Run(ctx context.Context) {
	log.Info("hub started")
	defer log.Info("hub stopped")
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.closeAllConnections()
			return
		case c := <-h.register:
			h.clients[c] = struct{}{}
			connectedClients.Inc()
			log.WithField("remoteAddr", c.conn.RemoteAddr()).Debug("client registered")
		case c := <-h.unregister:
			h.remove(c)
			log.WithField("remoteAddr", c.conn.RemoteAddr()).Debug("client unregistered")
		case msg := <-h.broadcast:
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					log.WithField("remoteAddr", c.conn.RemoteAddr()).Warn("client too slow, dropping connection")
					h.remove(c)
				}
			}
		}
	}
}

// Broadcast sends a message to all connected clients. It returns once the
// hub accepted the message or has stopped.
func (h *Hub) Broadcast(msg Message) {
	b, err := json.Marshal(msg)
	if err != nil {
		log.WithError(err).WithField("type", msg.Type).Error("failed to encode broadcast message")
		return
	}
	select {
	case h.broadcast <- b:
		broadcasts.WithLabelValues(msg.Type).Inc()
	case <-h.done:
	}
}

// Register adds a client, unless the hub has stopped.
func (h *Hub) Register(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client, unless the hub has stopped.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// remove must only be called from Run.
func (h *Hub) remove(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	connectedClients.Dec()
}

// closeAllConnections closes all active client connections during shutdown.
func (h *Hub) closeAllConnections() {
	for c := range h.clients {
		h.remove(c)
		if err := c.conn.Close(); err != nil {
			log.WithError(err).WithField("remoteAddr", c.conn.RemoteAddr()).Debug("error closing client connection during shutdown")
		}
	}
}
