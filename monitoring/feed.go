// Package monitoring pushes scoring activity to connected dashboards.
package monitoring

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// EventType tags feed messages.
type EventType string

const (
	ScreeningScored EventType = "screening_scored"
	ModelReloaded   EventType = "model_reloaded"
	Heartbeat       EventType = "heartbeat"
)

// Event is the wire envelope pushed to every connected client.
type Event struct {
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	id   string
}

// Feed is a websocket hub: dashboards connect, the request path publishes.
// Slow clients are dropped rather than allowed to stall the broadcast.
type Feed struct {
	clients    map[*client]bool
	broadcast  chan []byte
	register   chan *client
	unregister chan *client
	mu         sync.Mutex
	upgrader   websocket.Upgrader
	ctx        context.Context
	cancel     context.CancelFunc
	log        *zap.SugaredLogger
	nextID     int
}

// NewFeed creates a stopped feed; call Start in a goroutine.
func NewFeed(log *zap.SugaredLogger) *Feed {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Feed{
		clients:    make(map[*client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *client),
		unregister: make(chan *client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		log:    log,
	}
}

// Start runs the hub loop until Stop.
func (f *Feed) Start() {
	for {
		select {
		case c := <-f.register:
			f.mu.Lock()
			f.clients[c] = true
			total := len(f.clients)
			f.mu.Unlock()
			f.log.Infow("feed client connected", "client", c.id, "total", total)

		case c := <-f.unregister:
			f.mu.Lock()
			if _, ok := f.clients[c]; ok {
				delete(f.clients, c)
				close(c.send)
			}
			total := len(f.clients)
			f.mu.Unlock()
			f.log.Infow("feed client disconnected", "client", c.id, "total", total)

		case message := <-f.broadcast:
			f.mu.Lock()
			for c := range f.clients {
				select {
				case c.send <- message:
				default:
					close(c.send)
					delete(f.clients, c)
				}
			}
			f.mu.Unlock()

		case <-f.ctx.Done():
			f.mu.Lock()
			for c := range f.clients {
				close(c.send)
				delete(f.clients, c)
			}
			f.mu.Unlock()
			return
		}
	}
}

// Stop shuts the hub down and disconnects all clients.
func (f *Feed) Stop() {
	f.cancel()
}

// Publish broadcasts one event to all connected clients. Never blocks the
// caller; when the queue is full the event is dropped.
func (f *Feed) Publish(eventType EventType, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		f.log.Warnw("feed payload marshal failed", "type", eventType, "error", err)
		return
	}
	event, err := json.Marshal(Event{Type: eventType, Timestamp: time.Now().UTC(), Data: data})
	if err != nil {
		return
	}
	select {
	case f.broadcast <- event:
	default:
		f.log.Warnw("feed broadcast queue full, dropping event", "type", eventType)
	}
}

// ServeWS upgrades an HTTP request into a feed subscription.
func (f *Feed) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warnw("websocket upgrade failed", "error", err)
		return
	}

	f.mu.Lock()
	f.nextID++
	id := fmt.Sprintf("client-%d", f.nextID)
	f.mu.Unlock()

	c := &client{conn: conn, send: make(chan []byte, 64), id: id}
	f.register <- c

	go c.writePump()
	go c.readPump(f)
}

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 50 * time.Second
)

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

// readPump drains client frames so pongs are processed; inbound data is
// ignored, the feed is one-way.
func (c *client) readPump(f *Feed) {
	defer func() {
		f.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
