package capture

import (
	"context"
	"sync"

	"portfolio_exporter/internal/core"
)

// Client represents one connected interceptor client.
type Client struct {
	id     string
	send   chan Message
	mu     sync.Mutex
	closed bool
}

func NewClient(id string) *Client {
	return &Client{
		id:   id,
		send: make(chan Message, 256), // Buffered to prevent blocking
	}
}

// Send queues a message for the client (non-blocking).
func (c *Client) Send(msg Message) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- msg:
		return true
	default:
		// Channel full, client is slow
		return false
	}
}

// SendChan returns the send channel for the write pump.
func (c *Client) SendChan() <-chan Message {
	return c.send
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// Hub manages interceptor connections and broadcasts trigger and status
// messages to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	logger     core.ILogger
}

func NewHub(logger core.ILogger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run starts the hub's main loop.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			close(h.done)
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Capture client registered", "client_id", client.id, "total_clients", total)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			total := len(h.clients)
			h.mu.Unlock()
			h.logger.Info("Capture client unregistered", "client_id", client.id, "total_clients", total)

		case message := <-h.broadcast:
			h.mu.RLock()
			clientList := make([]*Client, 0, len(h.clients))
			for client := range h.clients {
				clientList = append(clientList, client)
			}
			h.mu.RUnlock()

			// Broadcast outside the lock; a slow client gets dropped
			// rather than stalling the others.
			for _, client := range clientList {
				if !client.Send(message) {
					select {
					case h.unregister <- client:
					default:
					}
				}
			}
		}
	}
}

// Register hands a client to the hub loop. After the hub has stopped the
// client is closed immediately instead of blocking the caller.
func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.Close()
	}
}

// Broadcast queues a message for every connected client.
func (h *Hub) Broadcast(msg Message) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("Broadcast channel full, dropping message", "type", msg.Type)
	}
}

// ClientCount returns the current number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
