// Package hub keeps the set of connected WebSocket clients and moves event
// frames between them and the bridge.
package hub

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"furitingoasis/smart_irrigation/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 64
)

var (
	ErrUnknownClient = errors.New("hub: unknown client")
	ErrSlowClient    = errors.New("hub: client send buffer full")
)

// Handler receives client lifecycle and command callbacks. Calls are made
// from the client's read goroutine.
type Handler interface {
	ClientConnected(clientID string)
	ClientFrame(clientID string, f wire.Frame)
	ClientDisconnected(clientID string)
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

type Hub struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	handler Handler
	clients map[string]*client
	closed  bool
}

func New(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// the dashboard may be served from another origin
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetHandler installs h. It must be called before the hub serves requests.
func (h *Hub) SetHandler(handler Handler) {
	h.mu.Lock()
	h.handler = handler
	h.mu.Unlock()
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an error response.
		h.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c.id] = c
	handler := h.handler
	h.mu.Unlock()

	h.logger.Info("client connected", "client", c.id, "remote", r.RemoteAddr)

	go h.writePump(c)
	if handler != nil {
		handler.ClientConnected(c.id)
	}
	h.readPump(c, handler)
}

func (h *Hub) readPump(c *client, handler Handler) {
	defer func() {
		h.remove(c)
		if handler != nil {
			handler.ClientDisconnected(c.id)
		}
		h.logger.Info("client disconnected", "client", c.id)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read", "client", c.id, "error", err)
			}
			return
		}

		var f wire.Frame
		if err := json.Unmarshal(msg, &f); err != nil || f.Event == "" {
			h.logger.Warn("dropping malformed client frame", "client", c.id, "error", err)
			continue
		}
		if handler != nil {
			handler.ClientFrame(c.id, f)
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Warn("websocket write", "client", c.id, "error", err)
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

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c.id]; ok {
		delete(h.clients, c.id)
		close(c.send)
	}
}

// Broadcast queues f for every connected client. A client whose send
// buffer is full is disconnected; frames are incremental, so skipping one
// would leave that client's view wrong.
func (h *Hub) Broadcast(f wire.Frame) {
	msg, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("encode frame", "event", f.Event, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.evict(c, f.Event)
		}
	}
}

// Send queues f for one client.
func (h *Hub) Send(clientID string, f wire.Frame) error {
	msg, err := json.Marshal(f)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	c, ok := h.clients[clientID]
	if !ok {
		return ErrUnknownClient
	}
	select {
	case c.send <- msg:
		return nil
	default:
		h.evict(c, f.Event)
		return ErrSlowClient
	}
}

// evict drops a client that cannot keep up. Closing send makes its write
// pump close the connection, which ends the read pump. h.mu must be held.
func (h *Hub) evict(c *client, event string) {
	h.logger.Warn("client send buffer full, disconnecting", "client", c.id, "event", event)
	delete(h.clients, c.id)
	close(c.send)
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for id, c := range h.clients {
		delete(h.clients, id)
		close(c.send)
	}
}
