package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteTimeout = 5 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
}

// pushMessage is the envelope of every websocket frame.
type pushMessage struct {
	Type string `json:"type"` // snapshot | toast
	Data any    `json:"data"`
}

// wsClient serializes writes to one connection.
type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Hub pushes snapshot and toast updates to connected browsers.
type Hub struct {
	snapshots Snapshots
	toasts    Toasts
	log       *slog.Logger

	mu        sync.RWMutex
	clients   map[*wsClient]struct{}
	broadcast chan []byte
}

// NewHub creates a Hub fed by the store and the notifier.
func NewHub(snapshots Snapshots, toasts Toasts) *Hub {
	return &Hub{
		snapshots: snapshots,
		toasts:    toasts,
		log:       slog.With("component", "Web"),
		clients:   make(map[*wsClient]struct{}),
		broadcast: make(chan []byte, 64),
	}
}

// Run forwards store changes and toasts to clients until ctx ends.
func (h *Hub) Run(ctx context.Context) {
	toastCh, release := h.toasts.Subscribe()
	defer release()
	go h.handleBroadcasts(ctx)

	changeCh := h.snapshots.ChangeCh()
	var lastCycle uint64
	var lastCycles map[string]uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-changeCh:
			snap, ready := h.snapshots.Snapshot()
			if !ready || (snap.Cycle == lastCycle && sameCycles(snap.SectionCycles, lastCycles)) {
				continue
			}
			lastCycle, lastCycles = snap.Cycle, snap.SectionCycles
			h.publish(pushMessage{Type: "snapshot", Data: snap})
		case t, ok := <-toastCh:
			if !ok {
				return
			}
			h.publish(pushMessage{Type: "toast", Data: t})
		}
	}
}

func sameCycles(a, b map[string]uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if b[k] != v {
			return false
		}
	}
	return true
}

func (h *Hub) publish(msg pushMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error("encoding push message", "type", msg.Type, "error", err)
		return
	}
	select {
	case h.broadcast <- data:
	default:
		h.log.Warn("push queue full, dropping update", "type", msg.Type)
	}
}

func (h *Hub) handleBroadcasts(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				c.conn.Close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return
		case data := <-h.broadcast:
			h.mu.RLock()
			var dead []*wsClient
			for c := range h.clients {
				if err := c.write(data); err != nil {
					dead = append(dead, c)
				}
			}
			h.mu.RUnlock()
			for _, c := range dead {
				h.drop(c)
			}
		}
	}
}

func (h *Hub) drop(c *wsClient) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.conn.Close()
	}
	h.mu.Unlock()
}

// Clients returns the number of connected browsers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request, sends the current state, then waits for the
// client to go away.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("websocket upgrade failed", "error", err)
		return
	}
	client := &wsClient{conn: conn}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("websocket client connected", "remote", r.RemoteAddr)

	if snap, ready := h.snapshots.Snapshot(); ready {
		h.sendTo(client, pushMessage{Type: "snapshot", Data: snap})
	}
	if t, ok := h.toasts.Current(); ok {
		h.sendTo(client, pushMessage{Type: "toast", Data: t})
	}

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	h.drop(client)
	h.log.Debug("websocket client disconnected", "remote", r.RemoteAddr)
}

func (h *Hub) sendTo(c *wsClient, msg pushMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := c.write(data); err != nil {
		h.drop(c)
	}
}
