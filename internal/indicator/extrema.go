package indicator

import (
	"fmt"

	"tastream/internal/ringbuf"
)

type dequeEntry struct {
	seq uint64
	v   float64
}

// extremum tracks the minimum or maximum of a count window with a monotonic
// deque of (sequence, value) pairs. The front is always the current extreme;
// entries that fell out of the window are dropped from the front and entries
// that can never become the extreme again are dropped from the back.
// Amortized O(1) per update.
type extremum struct {
	win  *ringbuf.Window
	dq   []dequeEntry
	head int
	// keeps reports whether an existing entry a survives the arrival of v.
	keeps func(a, v float64) bool
}

func newExtremum(period int, keeps func(a, v float64) bool) extremum {
	return extremum{
		win:   ringbuf.New(period),
		dq:    make([]dequeEntry, 0, period),
		keeps: keeps,
	}
}

func (e *extremum) push(v float64) float64 {
	seq := e.win.Seq()
	e.win.Push(v)

	for len(e.dq) > e.head && !e.keeps(e.dq[len(e.dq)-1].v, v) {
		e.dq = e.dq[:len(e.dq)-1]
	}
	e.dq = append(e.dq, dequeEntry{seq: seq, v: v})

	oldest := e.win.Seq() - uint64(e.win.Len())
	for e.dq[e.head].seq < oldest {
		e.head++
	}
	if e.head > 0 && e.head*2 >= len(e.dq) {
		n := copy(e.dq, e.dq[e.head:])
		e.dq = e.dq[:n]
		e.head = 0
	}
	return e.dq[e.head].v
}

func (e *extremum) reset() {
	e.win.Reset()
	e.dq = e.dq[:0]
	e.head = 0
}

// restore replays the window; the deque is fully determined by the values.
func (e *extremum) restore(values []float64) error {
	if len(values) > e.win.Limit() {
		return fmt.Errorf("%w: %d window values for limit %d", ErrInvalidParameter, len(values), e.win.Limit())
	}
	e.reset()
	for _, v := range values {
		e.push(v)
	}
	return nil
}

// Minimum returns the lowest value of the last period values.
type Minimum struct {
	period int
	ext    extremum
}

// NewMinimum creates a new rolling minimum.
func NewMinimum(period int) (*Minimum, error) {
	if err := checkPeriod(TypeMIN, period); err != nil {
		return nil, err
	}
	return &Minimum{
		period: period,
		ext:    newExtremum(period, func(a, v float64) bool { return a < v }),
	}, nil
}

// DefaultMinimum returns MIN(14).
func DefaultMinimum() *Minimum {
	m, _ := NewMinimum(14)
	return m
}

func (m *Minimum) Update(v float64) float64 { return m.ext.push(v) }
func (m *Minimum) Reset()                   { m.ext.reset() }
func (m *Minimum) Period() int              { return m.period }
func (m *Minimum) Ready() bool              { return m.ext.win.Full() }
func (m *Minimum) String() string           { return fmt.Sprintf("MIN(%d)", m.period) }

func (m *Minimum) Snapshot() State {
	return State{Type: TypeMIN, Period: m.period, Window: m.ext.win.Values()}
}

func (m *Minimum) Restore(st State) error {
	if err := st.expect(TypeMIN, m.period); err != nil {
		return err
	}
	return m.ext.restore(st.Window)
}

// Maximum returns the highest value of the last period values.
type Maximum struct {
	period int
	ext    extremum
}

// NewMaximum creates a new rolling maximum.
func NewMaximum(period int) (*Maximum, error) {
	if err := checkPeriod(TypeMAX, period); err != nil {
		return nil, err
	}
	return &Maximum{
		period: period,
		ext:    newExtremum(period, func(a, v float64) bool { return a > v }),
	}, nil
}

// DefaultMaximum returns MAX(14).
func DefaultMaximum() *Maximum {
	m, _ := NewMaximum(14)
	return m
}

func (m *Maximum) Update(v float64) float64 { return m.ext.push(v) }
func (m *Maximum) Reset()                   { m.ext.reset() }
func (m *Maximum) Period() int              { return m.period }
func (m *Maximum) Ready() bool              { return m.ext.win.Full() }
func (m *Maximum) String() string           { return fmt.Sprintf("MAX(%d)", m.period) }

func (m *Maximum) Snapshot() State {
	return State{Type: TypeMAX, Period: m.period, Window: m.ext.win.Values()}
}

func (m *Maximum) Restore(st State) error {
	if err := st.expect(TypeMAX, m.period); err != nil {
		return err
	}
	return m.ext.restore(st.Window)
}
