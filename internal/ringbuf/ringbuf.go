// Package ringbuf provides a fixed-limit ring of float64 values used as the
// storage behind count-based indicator windows. Pushing into a full window
// evicts the oldest value. The backing array is sized to a power of two so
// positions are masked rather than taken modulo.
//
// A Window is not safe for concurrent use.
package ringbuf

// Window holds the most recent Limit() values in insertion order.
type Window struct {
	buf   []float64
	mask  uint64
	limit uint64

	head uint64 // next write sequence
	tail uint64 // sequence of the oldest held value
}

// New creates a window holding at most limit values. limit must be positive.
func New(limit int) *Window {
	if limit <= 0 {
		panic("ringbuf: limit must be positive")
	}
	size := nextPow2(limit)
	return &Window{
		buf:   make([]float64, size),
		mask:  uint64(size - 1),
		limit: uint64(limit),
	}
}

// Push appends v. When the window already holds Limit() values the oldest
// one is evicted and returned with ok=true.
func (w *Window) Push(v float64) (evicted float64, ok bool) {
	if w.head-w.tail >= w.limit {
		evicted = w.buf[w.tail&w.mask]
		w.tail++
		ok = true
	}
	w.buf[w.head&w.mask] = v
	w.head++
	return evicted, ok
}

// At returns the i-th held value, 0 being the oldest. It panics when i is
// out of range, like a slice index.
func (w *Window) At(i int) float64 {
	if i < 0 || uint64(i) >= w.head-w.tail {
		panic("ringbuf: index out of range")
	}
	return w.buf[(w.tail+uint64(i))&w.mask]
}

// Oldest returns the oldest held value; ok is false when the window is empty.
func (w *Window) Oldest() (float64, bool) {
	if w.head == w.tail {
		return 0, false
	}
	return w.buf[w.tail&w.mask], true
}

// Newest returns the most recently pushed value.
func (w *Window) Newest() (float64, bool) {
	if w.head == w.tail {
		return 0, false
	}
	return w.buf[(w.head-1)&w.mask], true
}

// Seq returns the sequence number the next Push will get. Sequence numbers
// increase by one per push and are never reused until Reset.
func (w *Window) Seq() uint64 { return w.head }

// Len returns the current number of held values.
func (w *Window) Len() int { return int(w.head - w.tail) }

// Limit returns the maximum number of held values.
func (w *Window) Limit() int { return int(w.limit) }

// Full reports whether the window holds Limit() values.
func (w *Window) Full() bool { return w.head-w.tail == w.limit }

// Values returns a copy of the held values, oldest first.
func (w *Window) Values() []float64 {
	out := make([]float64, 0, w.Len())
	for s := w.tail; s < w.head; s++ {
		out = append(out, w.buf[s&w.mask])
	}
	return out
}

// Reset empties the window. Sequence numbers restart at zero.
func (w *Window) Reset() {
	w.head = 0
	w.tail = 0
	for i := range w.buf {
		w.buf[i] = 0
	}
}

// nextPow2 returns the smallest power of 2 >= n.
func nextPow2(n int) int {
	if n <= 0 {
		return 1
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
