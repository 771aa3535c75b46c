package model

import (
	"errors"
	"math"
)

var (
	// ErrBarIncomplete is returned by BarBuilder.Build when a field was never set.
	ErrBarIncomplete = errors.New("bar: incomplete, every OHLCV field must be set")

	// ErrBarInvalid is returned by BarBuilder.Build when the OHLC/volume invariant fails.
	ErrBarInvalid = errors.New("bar: invalid OHLCV values")
)

// Bar is one validated OHLCV observation. It can only be obtained from
// BarBuilder.Build, so every Bar satisfies low <= open,close <= high and
// volume >= 0. Bars compare with == by value.
type Bar struct {
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
}

func (b Bar) Open() float64   { return b.open }
func (b Bar) High() float64   { return b.high }
func (b Bar) Low() float64    { return b.low }
func (b Bar) Close() float64  { return b.close }
func (b Bar) Volume() float64 { return b.volume }

const (
	fieldOpen uint8 = 1 << iota
	fieldHigh
	fieldLow
	fieldClose
	fieldVolume

	fieldAll = fieldOpen | fieldHigh | fieldLow | fieldClose | fieldVolume
)

// BarBuilder accumulates the five bar fields. Setting a field twice keeps the
// last value.
type BarBuilder struct {
	bar Bar
	set uint8
}

// NewBarBuilder returns an empty builder.
func NewBarBuilder() *BarBuilder {
	return &BarBuilder{}
}

func (bb *BarBuilder) Open(v float64) *BarBuilder {
	bb.bar.open = v
	bb.set |= fieldOpen
	return bb
}

func (bb *BarBuilder) High(v float64) *BarBuilder {
	bb.bar.high = v
	bb.set |= fieldHigh
	return bb
}

func (bb *BarBuilder) Low(v float64) *BarBuilder {
	bb.bar.low = v
	bb.set |= fieldLow
	return bb
}

func (bb *BarBuilder) Close(v float64) *BarBuilder {
	bb.bar.close = v
	bb.set |= fieldClose
	return bb
}

func (bb *BarBuilder) Volume(v float64) *BarBuilder {
	bb.bar.volume = v
	bb.set |= fieldVolume
	return bb
}

// Build validates the accumulated fields and returns the bar.
func (bb *BarBuilder) Build() (Bar, error) {
	if bb.set != fieldAll {
		return Bar{}, ErrBarIncomplete
	}
	b := bb.bar
	for _, v := range [...]float64{b.open, b.high, b.low, b.close, b.volume} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Bar{}, ErrBarInvalid
		}
	}
	if b.low <= b.open &&
		b.low <= b.close &&
		b.low <= b.high &&
		b.high >= b.open &&
		b.high >= b.close &&
		b.volume >= 0 {
		return b, nil
	}
	return Bar{}, ErrBarInvalid
}
