package model

import (
	"encoding/json"
	"time"
)

// IndicatorResult holds a computed indicator value for one symbol.
type IndicatorResult struct {
	Name   string    `json:"name"` // e.g. "SMA_20", "RSI_14d", "BB_20_2"
	Symbol string    `json:"symbol"`
	Value  float64   `json:"value"`
	Lower  *float64  `json:"lower,omitempty"` // band indicators only
	Upper  *float64  `json:"upper,omitempty"`
	TS     time.Time `json:"ts"`    // bar timestamp that produced this value
	Ready  bool      `json:"ready"` // true once the indicator's window has filled
}

// StreamKey returns the Redis stream key: "ind:{name}:{symbol}".
func (r *IndicatorResult) StreamKey() string {
	return "ind:" + r.Name + ":" + r.Symbol
}

// LatestKey returns the Redis key holding the most recent value.
func (r *IndicatorResult) LatestKey() string {
	return "ind:" + r.Name + ":latest:" + r.Symbol
}

// PubSubChannel returns the Redis pub/sub channel: "pub:ind:{name}:{symbol}".
func (r *IndicatorResult) PubSubChannel() string {
	return "pub:ind:" + r.Name + ":" + r.Symbol
}

// JSON returns the JSON-encoded indicator result.
func (r *IndicatorResult) JSON() []byte {
	b, _ := json.Marshal(r)
	return b
}
