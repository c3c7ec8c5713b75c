package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"jorfline/internal/domain"
	"jorfline/internal/logging"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 32
)

// Message is the frame pushed to subscribers.
type Message struct {
	Channel string              `json:"channel"`
	Event   string              `json:"event"`
	Data    domain.Notification `json:"data"`
}

// Channel names the per-recipient push channel.
func Channel(recipient string) string { return "users." + recipient }

type client struct {
	recipient string
	conn      *websocket.Conn
	send      chan []byte
	mu        sync.Mutex
	closed    bool
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// trySend queues a frame without blocking; false means the buffer is full.
func (c *client) trySend(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Hub pushes notifications to connected websocket clients. A recipient with
// no open socket is not an error; they read the inbox on reconnect.
type Hub struct {
	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	upgrader websocket.Upgrader
}

func NewHub() *Hub {
	return &Hub{
		clients: map[string]map[*client]struct{}{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.clients[c.recipient]
	if !ok {
		set = map[*client]struct{}{}
		h.clients[c.recipient] = set
	}
	set[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if set, ok := h.clients[c.recipient]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.clients, c.recipient)
		}
	}
	h.mu.Unlock()
	c.close()
}

// Connected returns how many sockets the recipient has open.
func (h *Hub) Connected(recipient string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[recipient])
}

// Deliver queues the notification on every socket of its recipient.
func (h *Hub) Deliver(_ context.Context, n domain.Notification) error {
	frame, err := json.Marshal(Message{Channel: Channel(n.Recipient), Event: "notification", Data: n})
	if err != nil {
		return err
	}
	h.mu.RLock()
	targets := make([]*client, 0, len(h.clients[n.Recipient]))
	for c := range h.clients[n.Recipient] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	var slow []*client
	for _, c := range targets {
		if !c.trySend(frame) {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		h.unregister(c)
	}
	if len(slow) > 0 && len(slow) == len(targets) {
		return ErrSlowConsumer
	}
	return nil
}

// Serve upgrades the request and streams the recipient's notifications until
// the socket closes.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, recipient string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := &client{recipient: recipient, conn: conn, send: make(chan []byte, sendBuffer)}
	h.register(c)
	log := logging.FromContext(r.Context())
	log.Debug().Str("recipient", recipient).Msg("websocket subscribed")
	go h.writePump(c)
	h.readPump(c)
	return nil
}

func (h *Hub) readPump(c *client) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
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
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
