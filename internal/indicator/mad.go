package indicator

import (
	"fmt"
	"math"
)

// MAD calculates the Mean Absolute Deviation of the last period values.
// The mean comes from the running sum; the deviations need one full pass of
// the window per update.
type MAD struct {
	period int
	win    countWindow
}

// NewMAD creates a new mean absolute deviation indicator.
func NewMAD(period int) (*MAD, error) {
	if err := checkPeriod(TypeMAD, period); err != nil {
		return nil, err
	}
	return &MAD{period: period, win: newCountWindow(period)}, nil
}

// DefaultMAD returns MAD(9).
func DefaultMAD() *MAD {
	m, _ := NewMAD(9)
	return m
}

func (m *MAD) Update(v float64) float64 {
	m.win.push(v)
	mean := m.win.mean()
	var dev float64
	for i, n := 0, m.win.buf.Len(); i < n; i++ {
		dev += math.Abs(m.win.buf.At(i) - mean)
	}
	return dev / m.win.n()
}

func (m *MAD) Reset()         { m.win.reset() }
func (m *MAD) Period() int    { return m.period }
func (m *MAD) Ready() bool    { return m.win.buf.Full() }
func (m *MAD) String() string { return fmt.Sprintf("MAD(%d)", m.period) }

func (m *MAD) Snapshot() State {
	st := State{Type: TypeMAD, Period: m.period}
	m.win.snapshot(&st)
	return st
}

func (m *MAD) Restore(st State) error {
	if err := st.expect(TypeMAD, m.period); err != nil {
		return err
	}
	return m.win.restore(st)
}
