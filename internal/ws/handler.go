package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"birthday-wall/backend/internal/models"
	"birthday-wall/backend/pkg/logger"
	wire "birthday-wall/backend/pkg/ws"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Subscribers only send pings
	maxMessageSize = 4 * 1024

	sendBuffer = 64
)

// Client is one live wall subscriber. send is never closed; the hub
// closes done to drop the client.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	hub  *Hub
}

func (c *Client) stop() {
	c.once.Do(func() { close(c.done) })
}

// Hub fans wall events out to every connected subscriber
type Hub struct {
	mu         sync.Mutex
	clients    map[*Client]struct{}
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	// done is closed when Run returns
	done       chan struct{}
	upgrader   websocket.Upgrader
	log        *logger.Logger
}

// NewHub creates a hub. allowedOrigins of ["*"] accepts any origin.
func NewHub(log *logger.Logger, allowedOrigins []string) *Hub {
	h := &Hub{
		clients:    make(map[*Client]struct{}),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log.WithComponent("ws"),
	}
	h.upgrader = websocket.Upgrader{
		HandshakeTimeout: 10 * time.Second,
		ReadBufferSize:   1024,
		WriteBufferSize:  4096,
		CheckOrigin:      originChecker(allowedOrigins),
	}
	return h
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set[origin]
	}
}

// Run dispatches registrations and broadcasts until ctx is done
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				client.stop()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
			h.log.Debug("Subscriber registered", "client", client.ID)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.stop()
				h.log.Debug("Subscriber unregistered", "client", client.ID)
			}
			h.mu.Unlock()

		case frame := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- frame:
				default:
					client.stop()
					delete(h.clients, client)
					h.log.Warn("Subscriber dropped, send buffer full", "client", client.ID)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Count returns the number of connected subscribers
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Publish queues an event for every subscriber. It never blocks the
// caller; events are dropped when the hub is saturated.
func (h *Hub) Publish(eventType string, content any) {
	frame, err := encode(eventType, content)
	if err != nil {
		h.log.LogError(err, "Failed to encode wall event", "type", eventType)
		return
	}
	select {
	case h.broadcast <- frame:
	default:
		h.log.Warn("Wall event dropped, hub is busy", "type", eventType)
	}
}

// MessageCreated implements the service notifier
func (h *Hub) MessageCreated(m models.Message) {
	h.Publish(wire.EventMessageCreated, wire.MessageCreated{Message: m})
}

// MessagesReplaced implements the service notifier
func (h *Hub) MessagesReplaced(count int, reason string) {
	h.Publish(wire.EventMessagesReplaced, wire.MessagesReplaced{Count: count, Reason: reason})
}

func encode(eventType string, content any) ([]byte, error) {
	return json.Marshal(wire.Envelope{Type: eventType, SentAt: time.Now().UTC(), Content: content})
}

// readPump watches for close and answers pings
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("Subscriber closed unexpectedly", "client", c.ID, "error", err.Error())
			}
			return
		}

		var in wire.Inbound
		if err := json.Unmarshal(data, &in); err != nil || in.Type != "ping" {
			continue
		}
		if frame, err := encode(wire.EventPong, nil); err == nil {
			select {
			case <-c.done:
			case c.send <- frame:
			default:
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWs upgrades the request and subscribes it to wall events. count
// reports the current wall size for the hello frame.
func (h *Hub) ServeWs(count func(ctx context.Context) int) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.FromContext(c).Warn("WebSocket upgrade failed", "error", err.Error())
			return
		}

		client := &Client{
			ID:   uuid.NewString(),
			conn: conn,
			send: make(chan []byte, sendBuffer),
			done: make(chan struct{}),
			hub:  h,
		}

		n := 0
		if count != nil {
			n = count(c.Request.Context())
		}
		if frame, err := encode(wire.EventHello, wire.Hello{ClientID: client.ID, Count: n}); err == nil {
			client.send <- frame
		}

		select {
		case h.register <- client:
		case <-h.done:
			conn.Close()
			return
		}
		go client.writePump()
		go client.readPump()
	}
}
