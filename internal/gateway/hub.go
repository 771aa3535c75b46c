package gateway

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"tastream/internal/model"

	"github.com/gorilla/websocket"
)

const (
	sendBuffer        = 256
	defaultReplaySize = 1000
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Hub fans indicator results out to websocket clients. Every envelope carries
// a hub-wide sequence number; the most recent envelopes are kept in a replay
// buffer so a reconnecting client can ask for what it missed with ?since=N.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}
	seq     int64
	replay  *ReplayBuffer
	now     func() time.Time

	// OnClients is called with the client count after every connect and
	// disconnect. OnDrop is called when a slow client misses an envelope.
	OnClients func(n int)
	OnDrop    func()
}

// NewHub creates a hub keeping replaySize envelopes for gap backfill.
func NewHub(replaySize int) *Hub {
	if replaySize <= 0 {
		replaySize = defaultReplaySize
	}
	return &Hub{
		clients: make(map[*Client]struct{}),
		replay:  NewReplayBuffer(replaySize),
		now:     time.Now,
	}
}

// Broadcast sends each ready result to the clients subscribed to its symbol.
func (h *Hub) Broadcast(results []model.IndicatorResult) {
	for i := range results {
		r := &results[i]
		if !r.Ready {
			continue
		}

		h.mu.Lock()
		h.seq++
		seq := h.seq
		h.mu.Unlock()

		buf := buildEnvelope(r.PubSubChannel(), r.JSON(), h.now().UTC(), seq)
		h.replay.Push(seq, r.Symbol, buf)

		h.mu.RLock()
		for c := range h.clients {
			if !c.wants(r.Symbol) {
				continue
			}
			c.enqueue(buf)
		}
		h.mu.RUnlock()
	}
}

// buildEnvelope hand-crafts the websocket frame; data is already JSON.
func buildEnvelope(channel string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(channel)+len(data)+96)
	buf = append(buf, `{"channel":"`...)
	buf = append(buf, channel...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}

// ServeHTTP upgrades the request to a websocket. Query parameters:
// symbols (comma separated, empty for all) and since (replay envelopes with
// a greater sequence number).
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var since int64 = -1
	if s := r.URL.Query().Get("since"); s != "" {
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil || n < 0 {
			http.Error(w, "since must be a non-negative integer", http.StatusBadRequest)
			return
		}
		since = n
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "error", err)
		return
	}

	c := newClient(h, conn, parseSymbols(r.URL.Query().Get("symbols")))
	h.register(c)
	if since >= 0 {
		h.replayTo(c, since)
	}

	go c.writePump()
	go c.readPump()
}

// replayTo queues buffered envelopes after since for the client.
func (h *Hub) replayTo(c *Client, since int64) {
	missed := h.replay.For(since, c.wants)

	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	for _, env := range missed {
		c.enqueue(env)
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	slog.Info("ws client connected", "clients", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

// RemoveClient unregisters a client and closes its send channel. Calling it
// twice for the same client is a no-op.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	close(c.send)
	n := len(h.clients)
	h.mu.Unlock()

	slog.Info("ws client disconnected", "clients", n)
	if h.OnClients != nil {
		h.OnClients(n)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last envelope sent.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.RUnlock()
	for _, c := range clients {
		h.RemoveClient(c)
	}
}

func parseSymbols(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
