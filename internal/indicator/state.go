package indicator

import (
	"fmt"
	"time"

	"tastream/internal/model"
)

// Snapshottable is implemented by every indicator in this package.
type Snapshottable interface {
	Snapshot() State
	Restore(st State) error
}

// State is the serialized state of one indicator instance. Restoring a State
// into an instance with the same parameter reproduces bit-identical outputs.
type State struct {
	Type   string `json:"type"`
	Period int    `json:"period,omitempty"`

	// count-window fields
	Window []float64 `json:"window,omitempty"` // oldest first
	Sum    float64   `json:"sum,omitempty"`
	SumSq  float64   `json:"sum_sq,omitempty"`

	// smoothing fields
	Alpha  float64 `json:"alpha,omitempty"`
	Seeded bool    `json:"seeded,omitempty"`
	Value  float64 `json:"value,omitempty"`

	// RSI fields
	Duration time.Duration  `json:"duration,omitempty"`
	Unit     time.Duration  `json:"unit,omitempty"`
	Prev     *float64       `json:"prev,omitempty"`
	Samples  []model.Sample `json:"samples,omitempty"`
	Up       *State         `json:"up,omitempty"`
	Down     *State         `json:"down,omitempty"`

	// Bollinger fields
	K      float64 `json:"k,omitempty"`
	Middle *State  `json:"middle,omitempty"`
	Dev    *State  `json:"dev,omitempty"`
}

func (st State) expect(typ string, period int) error {
	if st.Type != typ {
		return fmt.Errorf("%w: state type %q, want %q", ErrInvalidParameter, st.Type, typ)
	}
	if st.Period != period {
		return fmt.Errorf("%w: %s state period %d, want %d", ErrInvalidParameter, typ, st.Period, period)
	}
	return nil
}
