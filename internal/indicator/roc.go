package indicator

import (
	"fmt"

	"tastream/internal/ringbuf"
)

// ROC calculates the Rate of Change in percent between the current value and
// the value period steps ago. Until period values have passed it compares
// against the oldest value seen so far. The window holds period+1 values.
//
// When the reference value is the current one (first update) or is zero the
// output is 0.
type ROC struct {
	period int
	win    *ringbuf.Window
}

// NewROC creates a new rate of change indicator.
func NewROC(period int) (*ROC, error) {
	if err := checkPeriod(TypeROC, period); err != nil {
		return nil, err
	}
	return &ROC{period: period, win: ringbuf.New(period + 1)}, nil
}

// DefaultROC returns ROC(9).
func DefaultROC() *ROC {
	r, _ := NewROC(9)
	return r
}

func (r *ROC) Update(v float64) float64 {
	r.win.Push(v)
	if r.win.Len() == 1 {
		return 0
	}
	ref, _ := r.win.Oldest()
	if ref == 0 {
		return 0
	}
	return 100 * (v - ref) / ref
}

func (r *ROC) Reset()         { r.win.Reset() }
func (r *ROC) Period() int    { return r.period }
func (r *ROC) Ready() bool    { return r.win.Full() }
func (r *ROC) String() string { return fmt.Sprintf("ROC(%d)", r.period) }

func (r *ROC) Snapshot() State {
	return State{Type: TypeROC, Period: r.period, Window: r.win.Values()}
}

func (r *ROC) Restore(st State) error {
	if err := st.expect(TypeROC, r.period); err != nil {
		return err
	}
	if len(st.Window) > r.win.Limit() {
		return fmt.Errorf("%w: %d ROC values for period %d", ErrInvalidParameter, len(st.Window), r.period)
	}
	r.win.Reset()
	for _, v := range st.Window {
		r.win.Push(v)
	}
	return nil
}
