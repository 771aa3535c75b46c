package indicator

import "fmt"

// SMA calculates the Simple Moving Average over the last period values.
// Before the window fills the average is taken over the values seen so far.
// O(1) per update via a running sum.
type SMA struct {
	period int
	win    countWindow
}

// NewSMA creates a new SMA indicator with the given period.
func NewSMA(period int) (*SMA, error) {
	if err := checkPeriod(TypeSMA, period); err != nil {
		return nil, err
	}
	return &SMA{period: period, win: newCountWindow(period)}, nil
}

// DefaultSMA returns SMA(9).
func DefaultSMA() *SMA {
	s, _ := NewSMA(9)
	return s
}

func (s *SMA) Update(v float64) float64 {
	s.win.push(v)
	return s.win.mean()
}

func (s *SMA) Reset()         { s.win.reset() }
func (s *SMA) Period() int    { return s.period }
func (s *SMA) Ready() bool    { return s.win.buf.Full() }
func (s *SMA) String() string { return fmt.Sprintf("SMA(%d)", s.period) }

func (s *SMA) Snapshot() State {
	st := State{Type: TypeSMA, Period: s.period}
	s.win.snapshot(&st)
	return st
}

func (s *SMA) Restore(st State) error {
	if err := st.expect(TypeSMA, s.period); err != nil {
		return err
	}
	return s.win.restore(st)
}
