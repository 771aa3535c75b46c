package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

// Client represents a single websocket peer.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub

	// symbols the client receives; empty means every symbol.
	mu      sync.RWMutex
	symbols map[string]struct{}
}

// controlMsg is what a client may send: SUBSCRIBE / UNSUBSCRIBE with a symbol
// list, or a ping carrying its own timestamp.
type controlMsg struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
	Ping    int64    `json:"ping"`
}

func newClient(h *Hub, conn *websocket.Conn, symbols []string) *Client {
	c := &Client{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		hub:     h,
		symbols: make(map[string]struct{}),
	}
	c.subscribe(symbols)
	return c
}

func (c *Client) wants(symbol string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.symbols) == 0 {
		return true
	}
	_, ok := c.symbols[symbol]
	return ok
}

func (c *Client) subscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		c.symbols[s] = struct{}{}
	}
	c.mu.Unlock()
}

func (c *Client) unsubscribe(symbols []string) {
	c.mu.Lock()
	for _, s := range symbols {
		delete(c.symbols, s)
	}
	c.mu.Unlock()
}

// enqueue never blocks; a full buffer drops the envelope. The caller holds
// the hub read lock so send cannot be closed underneath.
func (c *Client) enqueue(msg []byte) {
	select {
	case c.send <- msg:
	default:
		if c.hub.OnDrop != nil {
			c.hub.OnDrop()
		}
	}
}

func (c *Client) writePump() {
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

			// Coalesce whatever is queued into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
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

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		var msg controlMsg
		if json.Unmarshal(raw, &msg) != nil {
			continue
		}
		switch msg.Type {
		case "SUBSCRIBE":
			c.subscribe(msg.Symbols)
		case "UNSUBSCRIBE":
			c.unsubscribe(msg.Symbols)
		default:
			if msg.Ping > 0 {
				pong, _ := json.Marshal(map[string]int64{
					"ping":      msg.Ping,
					"server_ts": time.Now().UnixMilli(),
				})
				c.hub.mu.RLock()
				c.enqueue(pong)
				c.hub.mu.RUnlock()
			}
		}
	}
}
