package game

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"
)

const (
	clientSendBuffer = 64
	writeTimeout     = 10 * time.Second
)

// Client is one connected viewer session. Outbound messages go through a
// buffered channel drained by a single writer goroutine, so every session
// sees broadcasts in the order the game loop produced them.
type Client struct {
	conn       *websocket.Conn
	externalID string

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// Send marshals and enqueues a message for this session only. Delivery is
// best-effort: a full buffer or a closed session drops the message.
func (c *Client) Send(message any) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Send marshal error: %v", err)
		return
	}
	c.enqueue(data)
}

func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) writePump(h *Hub) {
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[WS] Write error for user %s: %v", c.externalID, err)
			h.remove(c)
			return
		}
	}
}

// Hub maintains the live set of viewer sessions and fans out events. A
// delivery failure evicts that one session and never blocks the others.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan any
	register   chan *Client
	unregister chan *Client
	mu         sync.RWMutex
	onJoin     func() any
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan any, 100),
		register:   make(chan *Client),
		unregister: make(chan *Client),
	}
}

// OnJoin sets the snapshot provider sent to every newly registered session.
// Must be called before Run.
func (h *Hub) OnJoin(fn func() any) {
	h.onJoin = fn
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			// Events queued before this registration are older than the
			// join snapshot; flush them to the existing sessions first so
			// the new session never sees the feed step backwards.
			h.flushBroadcasts()

			h.mu.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mu.Unlock()
			if client.conn != nil {
				go client.writePump(h)
			}
			if h.onJoin != nil {
				client.Send(h.onJoin())
			}
			log.Printf("[WS] Client connected: %s (Total: %d)", client.externalID, total)

		case client := <-h.unregister:
			h.remove(client)

		case message := <-h.broadcast:
			h.fanOut(message)
		}
	}
}

func (h *Hub) flushBroadcasts() {
	for {
		select {
		case message := <-h.broadcast:
			h.fanOut(message)
		default:
			return
		}
	}
}

func (h *Hub) fanOut(message any) {
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("[WS] Marshal error: %v", err)
		return
	}

	var slow []*Client
	h.mu.RLock()
	for client := range h.clients {
		if !client.enqueue(data) {
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	// A session that cannot keep up is dropped rather than allowed to
	// reorder or stall the feed.
	for _, client := range slow {
		h.remove(client)
	}
}

// Broadcast enqueues an event for every live session.
func (h *Hub) Broadcast(message any) {
	select {
	case h.broadcast <- message:
	default:
		log.Println("[WS] Broadcast channel full, dropping message")
	}
}

func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RegisterClient wraps a transport connection in a session and adds it to
// the hub. The returned client is what the read loop uses for replies.
func (h *Hub) RegisterClient(conn *websocket.Conn, externalID string) *Client {
	client := &Client{
		conn:       conn,
		externalID: externalID,
		send:       make(chan []byte, clientSendBuffer),
	}
	h.register <- client
	return client
}

// UnregisterClient removes a session. Safe to call more than once.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	default:
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	_, ok := h.clients[client]
	if ok {
		delete(h.clients, client)
	}
	total := len(h.clients)
	h.mu.Unlock()
	if ok {
		client.close()
		log.Printf("[WS] Client disconnected: %s (Total: %d)", client.externalID, total)
	}
}
