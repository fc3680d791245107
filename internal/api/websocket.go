package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"danmaku/internal/metrics"
	"danmaku/internal/sim"

	"github.com/gorilla/websocket"
)

const (
	// MaxWSConnectionsPerIP caps connections from one address
	MaxWSConnectionsPerIP = 4

	writeWait  = 2 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = pongWait * 9 / 10
)

// HubConfig configures the snapshot feed
type HubConfig struct {
	MaxClients     int
	AllowedOrigins []string
	BroadcastHz    int
}

type wsClient struct {
	conn *websocket.Conn
	ip   string
	send chan []byte // Buffered; a full buffer means a slow client
}

// WebSocketHub fans out frames to connected debug clients. Slow clients
// miss frames instead of stalling the hub.
type WebSocketHub struct {
	cfg      HubConfig
	upgrader websocket.Upgrader
	limiter  *ConnLimiter

	mu      sync.RWMutex
	clients map[*wsClient]struct{}

	broadcast chan []byte
	stopChan  chan struct{}
	stopOnce  sync.Once
}

// NewWebSocketHub creates a hub; call Run to start it.
func NewWebSocketHub(cfg HubConfig) *WebSocketHub {
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = 32
	}
	if cfg.BroadcastHz <= 0 {
		cfg.BroadcastHz = 10
	}
	if cfg.AllowedOrigins == nil {
		cfg.AllowedOrigins = DefaultCORSOrigins
	}
	origins := NewOriginChecker(cfg.AllowedOrigins)

	h := &WebSocketHub{
		cfg:       cfg,
		limiter:   NewConnLimiter(MaxWSConnectionsPerIP),
		clients:   make(map[*wsClient]struct{}),
		broadcast: make(chan []byte, 16),
		stopChan:  make(chan struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origins.Allowed(origin) {
				return true
			}
			log.Printf("⚠️ WebSocket connection rejected from origin: %s", origin)
			RecordConnectionRejected("origin")
			return false
		},
	}
	return h
}

// Run fans broadcast messages out to clients until Stop.
func (h *WebSocketHub) Run() {
	for {
		select {
		case <-h.stopChan:
			h.closeAll()
			return
		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					// Slow client; drop this frame for it
				}
			}
			h.mu.RUnlock()
			metrics.IncrementWSMessages()
		}
	}
}

// Stop closes every client and ends Run and the broadcast loop
func (h *WebSocketHub) Stop() {
	h.stopOnce.Do(func() { close(h.stopChan) })
}

func (h *WebSocketHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
		h.limiter.Release(c.ip)
	}
	metrics.UpdateWSConnections(0)
}

func (h *WebSocketHub) register(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	count := len(h.clients)
	h.mu.Unlock()

	log.Printf("📱 Client connected from %s (%d total)", c.ip, count)
	metrics.UpdateWSConnections(count)
}

func (h *WebSocketHub) unregister(c *wsClient) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.limiter.Release(c.ip)
		log.Printf("📱 Client disconnected (%d remaining)", count)
		metrics.UpdateWSConnections(count)
	}
}

// ClientCount returns the number of connected clients
func (h *WebSocketHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues an {"event", "data"} message for every client.
// Drops the message when the hub is backed up.
func (h *WebSocketHub) Broadcast(event string, data any) {
	msg, err := json.Marshal(map[string]any{"event": event, "data": data})
	if err != nil {
		return
	}
	h.broadcastRaw(msg)
}

func (h *WebSocketHub) broadcastRaw(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
	}
}

// StartBroadcastLoop pushes the latest frame at BroadcastHz and stats once
// a second while any client is connected.
func (h *WebSocketHub) StartBroadcastLoop(engine EngineInterface) {
	ticker := time.NewTicker(time.Second / time.Duration(h.cfg.BroadcastHz))

	go func() {
		defer ticker.Stop()
		n := 0
		var buf bytes.Buffer
		for {
			select {
			case <-h.stopChan:
				return
			case <-ticker.C:
			}
			if h.ClientCount() == 0 {
				continue
			}

			buf.Reset()
			buf.WriteString(`{"event":"sim:frame","data":`)
			var err error
			engine.ViewSnapshot(func(f *sim.Frame) {
				err = json.NewEncoder(&buf).Encode(f)
			})
			if err != nil {
				continue
			}
			buf.WriteByte('}')
			h.broadcastRaw(bytes.Clone(buf.Bytes()))

			n++
			if n%h.cfg.BroadcastHz == 0 {
				h.Broadcast("sim:stats", engine.Stats())
			}
		}
	}()
}

// HandleWebSocket upgrades the request and registers the client.
func (h *WebSocketHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := GetClientIP(r)

	if total := h.ClientCount(); total >= h.cfg.MaxClients {
		log.Printf("⚠️ WebSocket connection rejected: total limit reached (%d)", total)
		RecordConnectionRejected("ws_total_limit")
		writeError(w, "too many connections", http.StatusServiceUnavailable)
		return
	}
	if !h.limiter.Acquire(ip) {
		log.Printf("⚠️ WebSocket connection rejected from %s: per-IP limit reached", ip)
		RecordConnectionRejected("ws_ip_limit")
		writeError(w, "too many connections from your IP", http.StatusTooManyRequests)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade error: %v", err)
		h.limiter.Release(ip)
		return
	}

	c := &wsClient{conn: conn, ip: ip, send: make(chan []byte, 8)}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// readPump discards client messages and detects disconnects.
func (h *WebSocketHub) readPump(c *wsClient) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// writePump is the only writer on c.conn.
func (h *WebSocketHub) writePump(c *wsClient) {
	ping := time.NewTicker(pingPeriod)
	defer func() {
		ping.Stop()
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
				return
			}
		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
