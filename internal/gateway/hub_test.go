package gateway

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"tastream/internal/model"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Channel string                `json:"channel"`
	Data    model.IndicatorResult `json:"data"`
	TS      string                `json:"ts"`
	Seq     int64                 `json:"seq"`
}

func result(symbol, name string, v float64, ready bool) model.IndicatorResult {
	return model.IndicatorResult{
		Name:   name,
		Symbol: symbol,
		Value:  v,
		TS:     time.Date(2026, 3, 2, 15, 30, 0, 0, time.UTC),
		Ready:  ready,
	}
}

func TestBuildEnvelope(t *testing.T) {
	r := result("AAPL", "SMA_20", 101.25, true)
	now := time.Date(2026, 3, 2, 15, 30, 1, 0, time.UTC)

	buf := buildEnvelope(r.PubSubChannel(), r.JSON(), now, 42)

	var env envelope
	require.NoError(t, json.Unmarshal(buf, &env), "raw: %s", buf)
	assert.Equal(t, "pub:ind:SMA_20:AAPL", env.Channel)
	assert.Equal(t, int64(42), env.Seq)
	assert.Equal(t, 101.25, env.Data.Value)
	assert.True(t, env.Data.Ready)

	parsed, err := time.Parse(time.RFC3339Nano, env.TS)
	require.NoError(t, err)
	assert.True(t, parsed.Equal(now))
}

func TestHub_BroadcastFiltersBySymbol(t *testing.T) {
	h := NewHub(10)
	all := newClient(h, nil, nil)
	msft := newClient(h, nil, []string{"MSFT"})
	h.register(all)
	h.register(msft)

	h.Broadcast([]model.IndicatorResult{
		result("AAPL", "SMA_20", 1, true),
		result("MSFT", "SMA_20", 2, true),
		result("AAPL", "EMA_9", 3, false),
	})

	assert.Len(t, all.send, 2)
	assert.Len(t, msft.send, 1)
	assert.Equal(t, int64(2), h.Seq(), "not-ready results get no sequence number")

	var env envelope
	require.NoError(t, json.Unmarshal(<-msft.send, &env))
	assert.Equal(t, "MSFT", env.Data.Symbol)
	assert.Equal(t, int64(2), env.Seq)
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	h := NewHub(10)
	c := newClient(h, nil, []string{"AAPL"})
	assert.True(t, c.wants("AAPL"))
	assert.False(t, c.wants("MSFT"))

	c.subscribe([]string{"MSFT"})
	assert.True(t, c.wants("MSFT"))

	c.unsubscribe([]string{"AAPL", "MSFT"})
	assert.True(t, c.wants("TSLA"), "an empty filter receives every symbol")
}

func TestHub_DropsWhenClientIsSlow(t *testing.T) {
	h := NewHub(10)
	var drops atomic.Int64
	h.OnDrop = func() { drops.Add(1) }

	c := newClient(h, nil, nil)
	h.register(c)

	for i := 0; i < sendBuffer+3; i++ {
		h.Broadcast([]model.IndicatorResult{result("AAPL", "SMA_20", float64(i), true)})
	}
	assert.Len(t, c.send, sendBuffer)
	assert.Equal(t, int64(3), drops.Load())
}

func TestHub_RemoveClientTwice(t *testing.T) {
	h := NewHub(10)
	var counts []int
	h.OnClients = func(n int) { counts = append(counts, n) }

	c := newClient(h, nil, nil)
	h.register(c)
	h.RemoveClient(c)
	h.RemoveClient(c)

	assert.Equal(t, []int{1, 0}, counts)
	_, open := <-c.send
	assert.False(t, open)
}

func TestHub_ReplaySince(t *testing.T) {
	h := NewHub(10)
	for i := 0; i < 5; i++ {
		h.Broadcast([]model.IndicatorResult{
			result("AAPL", "SMA_20", float64(i), true),
			result("MSFT", "SMA_20", float64(i), true),
		})
	}
	require.Equal(t, int64(10), h.Seq())

	c := newClient(h, nil, []string{"AAPL"})
	h.register(c)
	h.replayTo(c, 6)

	// seqs 7..10 are buffered; the AAPL ones are 7 and 9
	require.Len(t, c.send, 2)
	var env envelope
	require.NoError(t, json.Unmarshal(<-c.send, &env))
	assert.Equal(t, int64(7), env.Seq)
	require.NoError(t, json.Unmarshal(<-c.send, &env))
	assert.Equal(t, int64(9), env.Seq)

	h.replayTo(c, 10)
	assert.Empty(t, c.send)
}

func TestHub_ServeHTTPRejectsBadSince(t *testing.T) {
	h := NewHub(10)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws?since=abc", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, h.ClientCount())
}

func TestHub_WebsocketRoundTrip(t *testing.T) {
	h := NewHub(10)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "?symbols=AAPL"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	h.Broadcast([]model.IndicatorResult{
		result("MSFT", "SMA_20", 1, true),
		result("AAPL", "SMA_20", 2, true),
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var env envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	assert.Equal(t, "pub:ind:SMA_20:AAPL", env.Channel)
	assert.Equal(t, 2.0, env.Data.Value)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return h.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
