package ws

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ErrGone is returned by Push when the connection no longer exists
var ErrGone = errors.New("connection gone")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // origins are enforced by the CORS layer and the bearer token
	},
}

// Message is one inbound command frame
type Message struct {
	Action  string          `json:"action"`
	Message json.RawMessage `json:"message"`
}

// Handler processes an inbound frame of a client
type Handler func(ctx context.Context, c *Client, msg Message)

// Client represents a connected WebSocket client
type Client struct {
	conn     *websocket.Conn
	id       string
	identity string
	send     chan []byte
	done     chan struct{}
	once     sync.Once
}

func newClient(conn *websocket.Conn, identity string) *Client {
	return &Client{
		conn:     conn,
		id:       uuid.NewString(),
		identity: identity,
		send:     make(chan []byte, 256),
		done:     make(chan struct{}),
	}
}

// ID is the connection id handed to the match flows
func (c *Client) ID() string { return c.id }

// Identity is the external identity the socket authenticated with
func (c *Client) Identity() string { return c.identity }

// Send queues payload without blocking; false when the buffer is full or the client closed
func (c *Client) Send(payload []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		log.Printf("[WS] send buffer full for connection %s, dropping message", c.id)
		return false
	}
}

// SendJSON marshals v and queues it
func (c *Client) SendJSON(v interface{}) bool {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("[WS] marshal for connection %s: %v", c.id, err)
		return false
	}
	return c.Send(data)
}

func (c *Client) close() {
	c.once.Do(func() { close(c.done) })
}

// Hub maintains the set of active clients keyed by connection id
type Hub struct {
	clients    map[string]*Client
	register   chan *Client
	unregister chan *Client
	stopped    chan struct{}
	onClose    func(c *Client)
	mu         sync.RWMutex
}

// NewHub creates a new Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stopped:    make(chan struct{}),
	}
}

// OnClose sets a callback run after a client left. Call before Run.
func (h *Hub) OnClose(fn func(c *Client)) {
	h.onClose = fn
}

// Run serves registrations until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.stopped)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for id, c := range h.clients {
				c.close()
				delete(h.clients, id)
			}
			h.mu.Unlock()
			return
		case c := <-h.register:
			h.add(c)
			log.Printf("[WS] connection %s opened (identity=%s)", c.id, c.identity)
		case c := <-h.unregister:
			if h.remove(c) {
				log.Printf("[WS] connection %s closed", c.id)
				if h.onClose != nil {
					h.onClose(c)
				}
			}
		}
	}
}

// join hands c to Run; false once the hub has stopped
func (h *Hub) join(c *Client) bool {
	select {
	case h.register <- c:
		return true
	case <-h.stopped:
		c.close()
		return false
	}
}

// leave hands c back to Run, or closes it when nothing is left to receive
func (h *Hub) leave(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
		c.close()
	}
}

func (h *Hub) add(c *Client) {
	h.mu.Lock()
	h.clients[c.id] = c
	h.mu.Unlock()
}

func (h *Hub) remove(c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur, ok := h.clients[c.id]
	if !ok || cur != c {
		return false
	}
	delete(h.clients, c.id)
	c.close()
	return true
}

// Count returns the number of open connections on this instance
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Push delivers payload to a local connection. ErrGone when the connection
// is unknown or closes before the payload is queued.
func (h *Hub) Push(ctx context.Context, connectionID string, payload []byte) error {
	h.mu.RLock()
	c, ok := h.clients[connectionID]
	h.mu.RUnlock()
	if !ok {
		return ErrGone
	}
	select {
	case <-c.done:
		return ErrGone
	default:
	}
	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return ErrGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Serve upgrades the request and runs the client until it disconnects.
// onOpen runs once the connection id is known, before any frame is read.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, identity string, onOpen func(c *Client), handle Handler) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	c := newClient(conn, identity)
	if !h.join(c) {
		conn.Close()
		return
	}
	if onOpen != nil {
		onOpen(c)
	}

	go c.writePump()
	go c.readPump(h, handle)
}

// writePump writes messages to the WebSocket connection
func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Printf("[WS] write error for connection %s: %v", c.id, err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Printf("[WS] ping error for connection %s: %v", c.id, err)
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		}
	}
}

// readPump reads frames and hands them to handle, one at a time
func (c *Client) readPump(h *Hub, handle Handler) {
	defer func() {
		h.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] unexpected close for connection %s: %v", c.id, err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil || msg.Action == "" {
			c.sendError("invalid message")
			continue
		}
		if handle != nil {
			handle(context.Background(), c, msg)
		}
	}
}

// sendError sends an error frame to the client
func (c *Client) sendError(message string) {
	c.SendJSON(map[string]interface{}{
		"action": "error",
		"error":  message,
	})
}
