// Package wshub pushes lifecycle signals to websocket subscribers as JSON messages.
package wshub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"cryptoPaperTrader/internal/ports"
	"cryptoPaperTrader/internal/signal"
)

const (
	writeWait  = 5 * time.Second
	sendBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Message is the wire format of a broadcast signal.
type Message struct {
	Kind     string        `json:"kind"`
	MarketID string        `json:"market-id"`
	Ref      string        `json:"ref-order-id,omitempty"`
	Data     signal.Signal `json:"data"`
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub fans signals out to every connected websocket client. A client that cannot keep
// up is dropped.
type Hub struct {
	logger ports.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// New creates an empty hub.
func New(logger ports.Logger) *Hub {
	return &Hub{logger: logger, clients: make(map[*client]struct{})}
}

// Handle broadcasts a signal. It never blocks on a client.
func (h *Hub) Handle(s signal.Signal) {
	data, err := json.Marshal(Message{Kind: s.Kind(), MarketID: s.Market(), Ref: s.Ref(), Data: s})
	if err != nil {
		h.logger.Error(context.Background(), err, "Hub.Handle: Failed to encode signal", map[string]interface{}{"kind": s.Kind()})
		return
	}
	h.Broadcast(data)
}

// Broadcast queues a raw message for every client.
func (h *Hub) Broadcast(data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.logger.Warn(context.Background(), "Hub.Broadcast: Slow client dropped", map[string]interface{}{"remote": c.conn.RemoteAddr().String()})
			h.drop(c)
		}
	}
}

// drop must be called with mu held.
func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request to a websocket subscription.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn(r.Context(), "Hub.ServeHTTP: Upgrade failed", map[string]interface{}{"error": err.Error()})
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.Info(r.Context(), "Hub.ServeHTTP: Client connected", map[string]interface{}{"remote": conn.RemoteAddr().String()})

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()
			return
		}
	}
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
}

// readPump discards client input and detects disconnection.
func (h *Hub) readPump(c *client) {
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			h.mu.Lock()
			h.drop(c)
			h.mu.Unlock()
			return
		}
	}
}

// Close disconnects every client. Later connections are refused.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		h.drop(c)
	}
}

// Server serves the hub on addr at /ws until ctx is done.
func Server(ctx context.Context, hub *Hub, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	hub.logger.Info(ctx, "Notification hub listening", map[string]interface{}{"addr": addr})

	select {
	case <-ctx.Done():
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
