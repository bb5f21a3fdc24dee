// Package wshub pushes chart events to websocket clients.
package wshub

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ChartSync/internal/domain/models"
	applogger "ChartSync/pkg/logger"
)

// Filter selects events for a client. Empty fields match anything.
type Filter struct {
	CoinUID  string `json:"coin_uid"`
	Currency string `json:"currency"`
	Range    string `json:"range"`
}

func (f Filter) Matches(ev models.ChartEvent) bool {
	return (f.CoinUID == "" || f.CoinUID == ev.CoinUID) &&
		(f.Currency == "" || f.Currency == ev.Currency) &&
		(f.Range == "" || f.Range == ev.Range)
}

// Config tunes connection keepalive and buffering.
type Config struct {
	WriteTimeout time.Duration
	PongWait     time.Duration
	PingInterval time.Duration
	SendBuffer   int
	MaxMessage   int64
}

func DefaultConfig() Config {
	return Config{
		WriteTimeout: 10 * time.Second,
		PongWait:     60 * time.Second,
		PingInterval: 50 * time.Second,
		SendBuffer:   32,
		MaxMessage:   4096,
	}
}

// Hub is a ChartObserver fanning events out to connected clients. A client
// that cannot keep up with its send buffer is disconnected.
type Hub struct {
	cfg      Config
	upgrader websocket.Upgrader
	l        *applogger.Logger

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

func New(cfg Config, l *applogger.Logger) *Hub {
	if l == nil {
		l = applogger.Nop()
	}
	return &Hub{
		cfg: cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		l:       l,
		clients: make(map[*client]struct{}),
	}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	mu     sync.Mutex
	filter Filter

	closeOnce sync.Once
}

func (c *client) matches(ev models.ChartEvent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter.Matches(ev)
}

func (c *client) setFilter(f Filter) {
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

// close is idempotent; it ends the write pump which closes the connection.
func (c *client) close() {
	c.closeOnce.Do(func() { close(c.send) })
}

func (h *Hub) ChartUpdated(info models.ChartInfo, key models.ChartKey) {
	h.Broadcast(models.NewChartUpdatedEvent(info, key))
}

func (h *Hub) ChartNotFound(key models.ChartKey) {
	h.Broadcast(models.NewChartNotFoundEvent(key))
}

// Broadcast sends ev to every client whose filter matches. It never blocks.
func (h *Hub) Broadcast(ev models.ChartEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.l.Error("marshal chart event", applogger.Error(err))
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.clients {
		if !c.matches(ev) {
			continue
		}
		select {
		case c.send <- data:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		h.l.Warn("websocket client too slow, disconnecting", applogger.String("remote", c.conn.RemoteAddr().String()))
		h.unregister(c)
	}
}

// ServeWS upgrades the request and serves the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, f Filter) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("websocket upgrade: %w", err)
	}

	c := &client{hub: h, conn: conn, send: make(chan []byte, h.cfg.SendBuffer), filter: f}
	if !h.register(c) {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		return conn.Close()
	}
	h.l.Debug("websocket client connected",
		applogger.String("remote", conn.RemoteAddr().String()),
		applogger.String("coin_uid", f.CoinUID),
	)

	go c.writePump()
	c.readPump()
	return nil
}

func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.close()
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and rejects new ones.
func (h *Hub) Close() error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for _, c := range clients {
		c.close()
	}
	return nil
}

// readPump handles pongs and filter updates sent by the client.
func (c *client) readPump() {
	defer c.hub.unregister(c)

	c.conn.SetReadLimit(c.hub.cfg.MaxMessage)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.PongWait))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var f Filter
		if err := json.Unmarshal(msg, &f); err != nil {
			c.hub.l.Debug("ignore websocket message", applogger.Error(err))
			continue
		}
		c.setFilter(f)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
