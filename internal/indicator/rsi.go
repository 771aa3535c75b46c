package indicator

import (
	"fmt"
	"time"

	"tastream/internal/model"
)

const (
	// Day is the default RSI lookback unit.
	Day = 24 * time.Hour

	// rsiSeed primes both averages on the first sample. With a 3 day lookback
	// the series 10, 10.5, 10, 9.5 yields 50, 86, 35, 16.
	rsiSeed = 0.1

	rsiNeutral = 50.0
)

// timeWindow is the time-ordered sample log of RSI. It evicts every sample
// with ts <= now-duration before appending. Samples are assumed to arrive in
// non-decreasing timestamp order.
type timeWindow struct {
	duration time.Duration
	samples  []model.Sample
	head     int
}

func (w *timeWindow) push(s model.Sample) {
	cutoff := s.TS.Add(-w.duration)
	for w.head < len(w.samples) && !w.samples[w.head].TS.After(cutoff) {
		w.head++
	}
	if w.head > 0 && w.head*2 >= len(w.samples) {
		n := copy(w.samples, w.samples[w.head:])
		w.samples = w.samples[:n]
		w.head = 0
	}
	w.samples = append(w.samples, s)
}

func (w *timeWindow) len() int { return len(w.samples) - w.head }

func (w *timeWindow) values() []model.Sample {
	out := make([]model.Sample, w.len())
	copy(out, w.samples[w.head:])
	return out
}

func (w *timeWindow) reset() {
	w.samples = w.samples[:0]
	w.head = 0
}

// RSI calculates the Relative Strength Index over a time-based lookback.
// Gains and losses between consecutive samples are smoothed by two EMAs whose
// period is the lookback expressed in units (days by default).
// Output is 100*up/(up+down), or 50 when both averages are zero.
type RSI struct {
	duration time.Duration
	unit     time.Duration
	up       *EMA
	down     *EMA
	log      timeWindow
	prev     float64
	hasPrev  bool
}

// NewRSI creates an RSI over the given lookback, measured in days.
func NewRSI(duration time.Duration) (*RSI, error) {
	return NewRSIWithUnit(duration, Day)
}

// NewRSIWithUnit creates an RSI whose smoothing period is duration/unit.
// The duration must cover at least one unit.
func NewRSIWithUnit(duration, unit time.Duration) (*RSI, error) {
	if duration <= 0 || unit <= 0 {
		return nil, fmt.Errorf("RSI duration %v unit %v: %w", duration, unit, ErrInvalidParameter)
	}
	periods := float64(duration) / float64(unit)
	if periods < 1 {
		return nil, fmt.Errorf("RSI duration %v shorter than one %v unit: %w", duration, unit, ErrInvalidParameter)
	}
	alpha := 2 / (periods + 1)
	up, err := NewEMAWithAlpha(alpha)
	if err != nil {
		return nil, err
	}
	down, _ := NewEMAWithAlpha(alpha)
	return &RSI{
		duration: duration,
		unit:     unit,
		up:       up,
		down:     down,
		log:      timeWindow{duration: duration},
	}, nil
}

// DefaultRSI returns RSI(14 days).
func DefaultRSI() *RSI {
	r, _ := NewRSI(14 * Day)
	return r
}

func (r *RSI) Update(s model.Sample) float64 {
	r.log.push(s)

	gain, loss := rsiSeed, rsiSeed
	if r.hasPrev {
		gain, loss = 0, 0
		if s.Value > r.prev {
			gain = s.Value - r.prev
		} else {
			loss = r.prev - s.Value
		}
	}
	r.prev = s.Value
	r.hasPrev = true

	upAvg := r.up.Update(gain)
	downAvg := r.down.Update(loss)
	if upAvg+downAvg == 0 {
		return rsiNeutral
	}
	// Equal averages give exactly 0.5 before scaling.
	return 100 * (upAvg / (upAvg + downAvg))
}

func (r *RSI) Reset() {
	r.log.reset()
	r.prev = 0
	r.hasPrev = false
	r.up.Reset()
	r.down.Reset()
}

func (r *RSI) Duration() time.Duration { return r.duration }
func (r *RSI) Ready() bool             { return r.hasPrev }

// Len returns the number of samples inside the lookback.
func (r *RSI) Len() int { return r.log.len() }

func (r *RSI) String() string {
	if r.unit == Day {
		return fmt.Sprintf("RSI(%d days)", int64(r.duration/Day))
	}
	return fmt.Sprintf("RSI(%v)", r.duration)
}

func (r *RSI) Snapshot() State {
	up := r.up.Snapshot()
	down := r.down.Snapshot()
	st := State{
		Type:     TypeRSI,
		Duration: r.duration,
		Unit:     r.unit,
		Samples:  r.log.values(),
		Up:       &up,
		Down:     &down,
	}
	if r.hasPrev {
		prev := r.prev
		st.Prev = &prev
	}
	return st
}

func (r *RSI) Restore(st State) error {
	if st.Type != TypeRSI || st.Duration != r.duration || st.Unit != r.unit {
		return fmt.Errorf("%w: state %s/%v/%v does not match %s", ErrInvalidParameter, st.Type, st.Duration, st.Unit, r)
	}
	if st.Up == nil || st.Down == nil {
		return fmt.Errorf("%w: RSI state missing smoothing averages", ErrInvalidParameter)
	}
	if err := r.up.Restore(*st.Up); err != nil {
		r.Reset()
		return err
	}
	if err := r.down.Restore(*st.Down); err != nil {
		r.Reset()
		return err
	}
	for i := 1; i < len(st.Samples); i++ {
		if st.Samples[i].TS.Before(st.Samples[i-1].TS) {
			r.Reset()
			return fmt.Errorf("%w: RSI samples out of order at %d", ErrInvalidParameter, i)
		}
	}
	r.log.reset()
	r.log.samples = append(r.log.samples, st.Samples...)
	r.hasPrev = st.Prev != nil
	r.prev = 0
	if st.Prev != nil {
		r.prev = *st.Prev
	}
	return nil
}
