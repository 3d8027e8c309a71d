package hub

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

const (
	writeWait = 10 * time.Second

	pongWait = 60 * time.Second

	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 512
)

// Event is one frame sent to connected clients.
type Event struct {
	Name    string `json:"event"`
	Payload any    `json:"payload"`
}

// statusMessage is what a client sends when its app moves between
// foreground and background.
type statusMessage struct {
	DeviceID string `json:"deviceId"`
	IsOpen   bool   `json:"isOpen"`
}

// SessionSink receives session lifecycle changes observed on the socket.
type SessionSink interface {
	Upsert(deviceID, connectionID string, isOpen bool) error
	MarkClosedByConnection(connectionID string) error
}

// Hub is the live-broadcast transport: it tracks connected endpoints and
// fans events out to all of them. Each connection gets a transport-assigned
// id; status frames from clients and disconnects are forwarded to the
// session sink.
type Hub struct {
	clients    map[*client]bool
	broadcast  chan Event
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
	sessions   SessionSink
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	id   string
	send chan Event
}

// New returns a hub; call Run on its own goroutine before serving.
func New(sessions SessionSink) *Hub {
	return &Hub{
		clients:    make(map[*client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		sessions:   sessions,
	}
}

// Run owns the client set. Disconnect handling runs here, asynchronously
// relative to ingest.
func (h *Hub) Run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[Hub] Client %s connected. Total clients: %d", c.id, total)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			total := len(h.clients)
			h.mu.Unlock()
			log.Printf("[Hub] Client %s disconnected. Total clients: %d", c.id, total)
			if err := h.sessions.MarkClosedByConnection(c.id); err != nil {
				log.Printf("[Hub] Closing session for %s: %v", c.id, err)
			}

		case ev := <-h.broadcast:
			h.mu.Lock()
			for c := range h.clients {
				select {
				case c.send <- ev:
				default:
					// Slow client, drop it.
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.Unlock()
		}
	}
}

// SendToAll queues an event for every connected endpoint. It never blocks;
// when the broadcast queue is full the event is dropped and an error
// returned.
func (h *Hub) SendToAll(event string, payload any) error {
	select {
	case h.broadcast <- Event{Name: event, Payload: payload}:
		return nil
	default:
		return ErrBroadcastFull
	}
}

// ClientCount reports the number of connected endpoints.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request into a hub connection.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Hub] Upgrade failed: %v", err)
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		id:   uuid.NewString(),
		send: make(chan Event, 256),
	}
	h.register <- c

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
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
				log.Printf("[Hub] Read error: %v", err)
			}
			break
		}
		c.handleStatus(data)
	}
}

// handleStatus processes a client's foreground/background announcement and
// records it in the session registry under this connection's id.
func (c *client) handleStatus(data []byte) {
	var msg statusMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("[Hub] Bad status frame from %s: %v", c.id, err)
		return
	}
	if msg.DeviceID == "" {
		return
	}
	if err := c.hub.sessions.Upsert(msg.DeviceID, c.id, msg.IsOpen); err != nil {
		log.Printf("[Hub] Updating session for %s: %v", msg.DeviceID, err)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case ev, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			data, err := json.Marshal(ev)
			if err != nil {
				log.Printf("[Hub] Marshal failed: %v", err)
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
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
