// Package indicator provides incremental technical indicator calculations.
//
// Every indicator is a standalone state machine: it is built with a fixed,
// validated parameter, consumes one observation per Update, returns its
// current output, and can be Reset back to its freshly-constructed state.
// Memory is bounded by the parameter, never by the number of updates.
//
// Indicators are not safe for concurrent use. Callers sharing an instance
// across goroutines must serialize access themselves.
package indicator

import (
	"errors"

	"tastream/internal/model"
)

// ErrInvalidParameter is returned by constructors given a non-positive period
// or duration (or an otherwise unusable parameter).
var ErrInvalidParameter = errors.New("indicator: invalid parameter")

// Next is the incremental update contract. I is the observation type
// (float64, model.Sample) and O the output type.
type Next[I, O any] interface {
	// Update consumes one observation and returns the output reflecting it.
	Update(in I) O

	// Reset restores the state the indicator had right after construction.
	Reset()

	// String returns a human-readable label such as "SMA(9)".
	String() string
}

// Close feeds the close price of a bar into a scalar indicator.
func Close[O any](n Next[float64, O], bar model.Bar) O {
	return n.Update(bar.Close())
}

// Indicator type tags used in configs and snapshots.
const (
	TypeSMA  = "SMA"
	TypeEMA  = "EMA"
	TypeSMMA = "SMMA"
	TypeSD   = "SD"
	TypeMAD  = "MAD"
	TypeMIN  = "MIN"
	TypeMAX  = "MAX"
	TypeROC  = "ROC"
	TypeBB   = "BB"
	TypeRSI  = "RSI"
)
