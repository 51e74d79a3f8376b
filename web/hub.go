package web

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/exp/maps"

	"lautenbacher.net/ledtrigger/led"
	u "lautenbacher.net/ledtrigger/util"
)

const writeTimeout = 200 * time.Millisecond

// Frame is one device update as sent to websocket clients.
type Frame struct {
	T      int64     `json:"t"`
	Device string    `json:"device"`
	Leds   []led.Led `json:"leds"`
}

// Hub fans device updates out to websocket clients. Updates arriving
// faster than they can be sent are collapsed to the newest frame per
// device.
type Hub struct {
	// Guards clients
	mu      sync.RWMutex
	clients map[*websocket.Conn]bool
	pending *u.Latest[map[string]Frame]
}

func NewHub() *Hub {
	return &Hub{
		clients: map[*websocket.Conn]bool{},
		pending: u.NewLatest[map[string]Frame](),
	}
}

// Sink returns the function a debug device with the given uid forwards
// its updates to. It never blocks on network I/O.
func (h *Hub) Sink(uid string) func([]led.Led) {
	return func(leds []led.Led) {
		frame := Frame{T: time.Now().UnixNano(), Device: uid, Leds: slices.Clone(leds)}
		h.pending.Update(func(frames map[string]Frame) map[string]Frame {
			if frames == nil {
				frames = make(map[string]Frame)
			}
			frames[uid] = frame
			return frames
		})
	}
}

// Run broadcasts pending frames until ctx is done, then closes all
// client connections.
func (h *Hub) Run(ctx context.Context) {
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.pending.Channel():
			frames := h.pending.Swap()
			uids := maps.Keys(frames)
			slices.Sort(uids)
			for _, uid := range uids {
				h.broadcast(frames[uid])
			}
		}
	}
}

// HandleFramesWS upgrades the request and registers the connection as
// a frame receiver. Messages from the client are read and discarded.
func (h *Hub) HandleFramesWS(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("Websocket upgrade failed", "error", err)
		return
	}
	h.mu.Lock()
	h.clients[conn] = true
	h.mu.Unlock()
	slog.Debug("Frame client connected", "remote", r.RemoteAddr)

	go func() {
		defer h.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// ClientCount returns the number of connected websocket clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) broadcast(frame Frame) {
	b, err := json.Marshal(frame)
	if err != nil {
		slog.Error("Failed to encode frame", "device", frame.Device, "error", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.WriteMessage(websocket.TextMessage, b); err != nil {
			slog.Debug("Failed to write frame", "device", frame.Device, "error", err)
		}
	}
}

func (h *Hub) remove(conn *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, conn)
	h.mu.Unlock()
	conn.Close()
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.Close()
		delete(h.clients, c)
	}
}
