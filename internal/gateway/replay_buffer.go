package gateway

import "sync"

// replayEntry is one sent result envelope and the symbol it belongs to.
type replayEntry struct {
	Seq    int64
	Symbol string
	Data   []byte
}

// ReplayBuffer keeps the newest result envelopes so a client reconnecting
// with ?since=N can be sent what it missed. Entries are pushed in increasing
// seq order; once capacity is reached the oldest entry is overwritten.
type ReplayBuffer struct {
	mu      sync.RWMutex
	entries []replayEntry
	next    int // slot the next Push writes
	count   int
}

// NewReplayBuffer returns a buffer holding up to capacity envelopes.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = defaultReplaySize
	}
	return &ReplayBuffer{entries: make([]replayEntry, capacity)}
}

// Push stores a copy of the envelope sent with seq for symbol.
func (rb *ReplayBuffer) Push(seq int64, symbol string, data []byte) {
	env := append([]byte(nil), data...)

	rb.mu.Lock()
	rb.entries[rb.next] = replayEntry{Seq: seq, Symbol: symbol, Data: env}
	rb.next = (rb.next + 1) % len(rb.entries)
	if rb.count < len(rb.entries) {
		rb.count++
	}
	rb.mu.Unlock()
}

// Range returns the held envelopes with fromSeq <= seq <= toSeq, oldest first.
func (rb *ReplayBuffer) Range(fromSeq, toSeq int64) []replayEntry {
	return rb.collect(func(e replayEntry) bool { return e.Seq >= fromSeq && e.Seq <= toSeq })
}

// For returns the envelopes after seq whose symbol passes wants, oldest first.
func (rb *ReplayBuffer) For(after int64, wants func(symbol string) bool) [][]byte {
	entries := rb.collect(func(e replayEntry) bool { return e.Seq > after && wants(e.Symbol) })
	out := make([][]byte, len(entries))
	for i, e := range entries {
		out[i] = e.Data
	}
	return out
}

func (rb *ReplayBuffer) collect(keep func(replayEntry) bool) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	oldest := (rb.next - rb.count + len(rb.entries)) % len(rb.entries)
	for i := 0; i < rb.count; i++ {
		e := rb.entries[(oldest+i)%len(rb.entries)]
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of envelopes held.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}
