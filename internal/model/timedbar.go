package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TimedBar is a validated bar for one symbol at one point in time.
// It is the unit the indicator engine consumes.
type TimedBar struct {
	Symbol string
	TS     time.Time
	Bar    Bar
}

// Message returns the wire form of the bar.
func (tb TimedBar) Message() BarMessage {
	return BarMessage{
		Symbol: tb.Symbol,
		TS:     tb.TS,
		Open:   tb.Bar.Open(),
		High:   tb.Bar.High(),
		Low:    tb.Bar.Low(),
		Close:  tb.Bar.Close(),
		Volume: tb.Bar.Volume(),
	}
}

// BarMessage is the JSON form of a bar as carried on Redis streams and stored
// in SQLite. It is only trusted after ToTimedBar has validated it.
type BarMessage struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// barWire mirrors BarMessage with optional fields for decoding.
type barWire struct {
	Symbol string    `json:"symbol"`
	TS     time.Time `json:"ts"`
	Open   *float64  `json:"open"`
	High   *float64  `json:"high"`
	Low    *float64  `json:"low"`
	Close  *float64  `json:"close"`
	Volume *float64  `json:"volume"`
}

// DecodeBar parses a JSON bar and validates it through BarBuilder. Missing
// fields yield ErrBarIncomplete, bad values ErrBarInvalid.
func DecodeBar(data []byte) (TimedBar, error) {
	var w barWire
	if err := json.Unmarshal(data, &w); err != nil {
		return TimedBar{}, fmt.Errorf("decode bar: %w", err)
	}
	if w.Symbol == "" {
		return TimedBar{}, fmt.Errorf("decode bar: missing symbol: %w", ErrBarIncomplete)
	}
	bb := NewBarBuilder()
	if w.Open != nil {
		bb.Open(*w.Open)
	}
	if w.High != nil {
		bb.High(*w.High)
	}
	if w.Low != nil {
		bb.Low(*w.Low)
	}
	if w.Close != nil {
		bb.Close(*w.Close)
	}
	if w.Volume != nil {
		bb.Volume(*w.Volume)
	}
	bar, err := bb.Build()
	if err != nil {
		return TimedBar{}, fmt.Errorf("decode bar %s: %w", w.Symbol, err)
	}
	return TimedBar{Symbol: w.Symbol, TS: w.TS.UTC(), Bar: bar}, nil
}

// ToTimedBar validates the message through BarBuilder.
func (m BarMessage) ToTimedBar() (TimedBar, error) {
	bar, err := NewBarBuilder().
		Open(m.Open).
		High(m.High).
		Low(m.Low).
		Close(m.Close).
		Volume(m.Volume).
		Build()
	if err != nil {
		return TimedBar{}, fmt.Errorf("bar %s@%s: %w", m.Symbol, m.TS.Format(time.RFC3339), err)
	}
	return TimedBar{Symbol: m.Symbol, TS: m.TS.UTC(), Bar: bar}, nil
}

// JSON returns the JSON-encoded message (ignoring errors for hot-path usage).
func (m BarMessage) JSON() []byte {
	b, _ := json.Marshal(m)
	return b
}

// StreamKey returns the Redis stream key for a symbol's bars: "bars:{symbol}".
func StreamKey(symbol string) string {
	return "bars:" + symbol
}

// Sample is a timestamped scalar, the input of time-windowed indicators.
type Sample struct {
	TS    time.Time `json:"ts"`
	Value float64   `json:"value"`
}
