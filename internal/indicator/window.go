package indicator

import (
	"fmt"

	"tastream/internal/ringbuf"
)

// countWindow is the shared count-based window: the last N values plus their
// running sum and sum of squares, adjusted on every push.
type countWindow struct {
	buf   *ringbuf.Window
	sum   float64
	sumSq float64
}

func newCountWindow(limit int) countWindow {
	return countWindow{buf: ringbuf.New(limit)}
}

func (w *countWindow) push(v float64) {
	if old, ok := w.buf.Push(v); ok {
		w.sum -= old
		w.sumSq -= old * old
	}
	w.sum += v
	w.sumSq += v * v
}

func (w *countWindow) n() float64 { return float64(w.buf.Len()) }

func (w *countWindow) mean() float64 {
	if w.buf.Len() == 0 {
		return 0
	}
	return w.sum / w.n()
}

func (w *countWindow) reset() {
	w.buf.Reset()
	w.sum = 0
	w.sumSq = 0
}

func (w *countWindow) snapshot(st *State) {
	st.Window = w.buf.Values()
	st.Sum = w.sum
	st.SumSq = w.sumSq
}

// restore refills the buffer and takes the running sums verbatim so that
// later outputs are bit-identical to the instance the state came from.
func (w *countWindow) restore(st State) error {
	if len(st.Window) > w.buf.Limit() {
		return fmt.Errorf("%w: %d window values for limit %d", ErrInvalidParameter, len(st.Window), w.buf.Limit())
	}
	w.buf.Reset()
	for _, v := range st.Window {
		w.buf.Push(v)
	}
	w.sum = st.Sum
	w.sumSq = st.SumSq
	return nil
}

func checkPeriod(name string, period int) error {
	if period <= 0 {
		return fmt.Errorf("%s period %d: %w", name, period, ErrInvalidParameter)
	}
	return nil
}
