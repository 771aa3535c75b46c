package indicator

import (
	"fmt"
	"math"
)

// EMA calculates an Exponential Moving Average.
// O(1) per update, no window storage. The first update seeds the average
// with the input itself; later updates apply
// ema = alpha*price + (1-alpha)*ema.
type EMA struct {
	typ    string
	period int
	alpha  float64
	value  float64
	seeded bool
}

// NewEMA creates a new EMA with the given period and alpha = 2/(period+1).
func NewEMA(period int) (*EMA, error) {
	if err := checkPeriod(TypeEMA, period); err != nil {
		return nil, err
	}
	return &EMA{typ: TypeEMA, period: period, alpha: 2.0 / float64(period+1)}, nil
}

// NewEMAWithAlpha creates an EMA with an explicit smoothing constant in (0, 1].
func NewEMAWithAlpha(alpha float64) (*EMA, error) {
	if err := checkAlpha(alpha); err != nil {
		return nil, err
	}
	return &EMA{typ: TypeEMA, alpha: alpha}, nil
}

// NewSMMA creates a Smoothed Moving Average (Wilder smoothing), which is an
// EMA with alpha = 1/period.
func NewSMMA(period int) (*EMA, error) {
	if err := checkPeriod(TypeSMMA, period); err != nil {
		return nil, err
	}
	return &EMA{typ: TypeSMMA, period: period, alpha: 1.0 / float64(period)}, nil
}

// DefaultEMA returns EMA(9).
func DefaultEMA() *EMA {
	e, _ := NewEMA(9)
	return e
}

func checkAlpha(alpha float64) error {
	if math.IsNaN(alpha) || alpha <= 0 || alpha > 1 {
		return fmt.Errorf("smoothing constant %v outside (0, 1]: %w", alpha, ErrInvalidParameter)
	}
	return nil
}

func (e *EMA) Update(v float64) float64 {
	if !e.seeded {
		e.value = v
		e.seeded = true
		return v
	}
	e.value = e.alpha*v + (1-e.alpha)*e.value
	return e.value
}

// Reset clears the seed so the next update reseeds instead of smoothing.
func (e *EMA) Reset() {
	e.value = 0
	e.seeded = false
}

func (e *EMA) Period() int    { return e.period }
func (e *EMA) Alpha() float64 { return e.alpha }
func (e *EMA) Ready() bool    { return e.seeded }

func (e *EMA) String() string {
	if e.period == 0 {
		return fmt.Sprintf("%s(alpha=%g)", e.typ, e.alpha)
	}
	return fmt.Sprintf("%s(%d)", e.typ, e.period)
}

func (e *EMA) Snapshot() State {
	return State{
		Type:   e.typ,
		Period: e.period,
		Alpha:  e.alpha,
		Seeded: e.seeded,
		Value:  e.value,
	}
}

func (e *EMA) Restore(st State) error {
	if err := st.expect(e.typ, e.period); err != nil {
		return err
	}
	if st.Alpha != e.alpha {
		return fmt.Errorf("%w: %s state alpha %v, want %v", ErrInvalidParameter, e.typ, st.Alpha, e.alpha)
	}
	e.seeded = st.Seeded
	e.value = st.Value
	return nil
}
