package indicator

import (
	"fmt"
	"math"
)

// StdDev calculates the population standard deviation of the last period
// values from running sum and sum-of-squares, without rescanning the window.
type StdDev struct {
	period int
	win    countWindow
}

// NewStdDev creates a new standard deviation indicator.
func NewStdDev(period int) (*StdDev, error) {
	if err := checkPeriod(TypeSD, period); err != nil {
		return nil, err
	}
	return &StdDev{period: period, win: newCountWindow(period)}, nil
}

// DefaultStdDev returns SD(9).
func DefaultStdDev() *StdDev {
	s, _ := NewStdDev(9)
	return s
}

func (s *StdDev) Update(v float64) float64 {
	s.win.push(v)
	n := s.win.n()
	mean := s.win.sum / n
	variance := s.win.sumSq/n - mean*mean
	// cancellation can leave a tiny negative residue
	if variance < 0 {
		variance = 0
	}
	return math.Sqrt(variance)
}

func (s *StdDev) Reset()         { s.win.reset() }
func (s *StdDev) Period() int    { return s.period }
func (s *StdDev) Ready() bool    { return s.win.buf.Full() }
func (s *StdDev) String() string { return fmt.Sprintf("SD(%d)", s.period) }

func (s *StdDev) Snapshot() State {
	st := State{Type: TypeSD, Period: s.period}
	s.win.snapshot(&st)
	return st
}

func (s *StdDev) Restore(st State) error {
	if err := st.expect(TypeSD, s.period); err != nil {
		return err
	}
	return s.win.restore(st)
}
