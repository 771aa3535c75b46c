package indicator

import (
	"fmt"
	"math"
)

// BollingerOutput is one Bollinger Bands reading.
type BollingerOutput struct {
	Lower  float64 `json:"lower"`
	Middle float64 `json:"middle"`
	Upper  float64 `json:"upper"`
}

// BollingerBands places bands k standard deviations around an SMA of the
// same period. It owns its SMA and StdDev instances.
type BollingerBands struct {
	period int
	k      float64
	sma    *SMA
	sd     *StdDev
}

// NewBollingerBands creates Bollinger Bands; k must be finite and >= 0.
func NewBollingerBands(period int, k float64) (*BollingerBands, error) {
	if err := checkPeriod(TypeBB, period); err != nil {
		return nil, err
	}
	if math.IsNaN(k) || math.IsInf(k, 0) || k < 0 {
		return nil, fmt.Errorf("BB multiplier %v: %w", k, ErrInvalidParameter)
	}
	sma, _ := NewSMA(period)
	sd, _ := NewStdDev(period)
	return &BollingerBands{period: period, k: k, sma: sma, sd: sd}, nil
}

// DefaultBollingerBands returns BB(9, 2).
func DefaultBollingerBands() *BollingerBands {
	b, _ := NewBollingerBands(9, 2)
	return b
}

func (b *BollingerBands) Update(v float64) BollingerOutput {
	mid := b.sma.Update(v)
	band := b.k * b.sd.Update(v)
	return BollingerOutput{
		Lower:  mid - band,
		Middle: mid,
		Upper:  mid + band,
	}
}

func (b *BollingerBands) Reset() {
	b.sma.Reset()
	b.sd.Reset()
}

func (b *BollingerBands) Period() int    { return b.period }
func (b *BollingerBands) K() float64     { return b.k }
func (b *BollingerBands) Ready() bool    { return b.sma.Ready() }
func (b *BollingerBands) String() string { return fmt.Sprintf("BB(%d, %g)", b.period, b.k) }

func (b *BollingerBands) Snapshot() State {
	mid := b.sma.Snapshot()
	dev := b.sd.Snapshot()
	return State{Type: TypeBB, Period: b.period, K: b.k, Middle: &mid, Dev: &dev}
}

func (b *BollingerBands) Restore(st State) error {
	if err := st.expect(TypeBB, b.period); err != nil {
		return err
	}
	if st.K != b.k || st.Middle == nil || st.Dev == nil {
		return fmt.Errorf("%w: BB state does not match BB(%d, %g)", ErrInvalidParameter, b.period, b.k)
	}
	if err := b.sma.Restore(*st.Middle); err != nil {
		b.Reset()
		return err
	}
	if err := b.sd.Restore(*st.Dev); err != nil {
		b.Reset()
		return err
	}
	return nil
}
