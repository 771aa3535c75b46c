package model

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ohlcv struct{ open, high, low, close, volume float64 }

func build(r ohlcv) (Bar, error) {
	return NewBarBuilder().
		Open(r.open).
		High(r.high).
		Low(r.low).
		Close(r.close).
		Volume(r.volume).
		Build()
}

func TestBarBuilder_Valid(t *testing.T) {
	for _, r := range []ohlcv{
		{20, 25, 15, 21, 7500},
		{10, 10, 10, 10, 10},
		{0, 0, 0, 0, 0},
	} {
		bar, err := build(r)
		require.NoError(t, err, "%+v", r)
		assert.Equal(t, r.open, bar.Open())
		assert.Equal(t, r.high, bar.High())
		assert.Equal(t, r.low, bar.Low())
		assert.Equal(t, r.close, bar.Close())
		assert.Equal(t, r.volume, bar.Volume())
	}
}

func TestBarBuilder_Invalid(t *testing.T) {
	for _, r := range []ohlcv{
		{-1, 25, 15, 21, 7500},
		{20, -1, 15, 21, 7500},
		{20, 25, 15, -1, 7500},
		{20, 25, 15, 21, -1},
		{14.9, 25, 15, 21, 7500},
		{25.1, 25, 15, 21, 7500},
		{20, 25, 15, 14.9, 7500},
		{20, 25, 15, 25.1, 7500},
		{20, 15, 25, 21, 7500},
		{20, math.Inf(1), 15, 21, 7500},
		{20, 25, 15, 21, math.NaN()},
	} {
		_, err := build(r)
		assert.ErrorIs(t, err, ErrBarInvalid, "%+v", r)
	}
}

func TestBarBuilder_Incomplete(t *testing.T) {
	_, err := NewBarBuilder().Open(20).High(25).Low(15).Close(21).Build()
	assert.ErrorIs(t, err, ErrBarIncomplete)

	_, err = NewBarBuilder().Build()
	assert.ErrorIs(t, err, ErrBarIncomplete)

	// Incomplete wins over invalid: the invariant is only checked on a full set.
	_, err = NewBarBuilder().Open(20).High(1).Low(15).Close(21).Build()
	assert.ErrorIs(t, err, ErrBarIncomplete)
}

func TestBarBuilder_OverwriteKeepsLast(t *testing.T) {
	bar, err := NewBarBuilder().
		Open(20).High(25).Low(15).Close(21).Volume(-1).
		Volume(7500).
		Build()
	require.NoError(t, err)
	assert.Equal(t, 7500.0, bar.Volume())
}

func TestBar_ValueSemantics(t *testing.T) {
	a, err := build(ohlcv{20, 25, 15, 21, 7500})
	require.NoError(t, err)
	b, err := build(ohlcv{20, 25, 15, 21, 7500})
	require.NoError(t, err)
	c, err := build(ohlcv{20, 25, 15, 22, 7500})
	require.NoError(t, err)

	assert.True(t, a == b)
	assert.False(t, a == c)
}

func TestDecodeBar(t *testing.T) {
	tb, err := DecodeBar([]byte(`{"symbol":"BTCUSD","ts":"2020-01-01T00:00:00Z","open":20,"high":25,"low":15,"close":21,"volume":7500}`))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSD", tb.Symbol)
	assert.Equal(t, time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC), tb.TS)
	assert.Equal(t, 21.0, tb.Bar.Close())

	_, err = DecodeBar([]byte(`{"symbol":"BTCUSD","open":20,"high":25,"low":15,"close":21}`))
	assert.ErrorIs(t, err, ErrBarIncomplete)

	_, err = DecodeBar([]byte(`{"symbol":"BTCUSD","open":20,"high":25,"low":15,"close":21,"volume":-1}`))
	assert.ErrorIs(t, err, ErrBarInvalid)

	// Zero is a real value, not a missing one.
	_, err = DecodeBar([]byte(`{"symbol":"X","open":0,"high":0,"low":0,"close":0,"volume":0}`))
	assert.NoError(t, err)

	_, err = DecodeBar([]byte(`not json`))
	assert.Error(t, err)
}

func TestBarMessage_RoundTrip(t *testing.T) {
	bar, err := build(ohlcv{20, 25, 15, 21, 7500})
	require.NoError(t, err)
	tb := TimedBar{Symbol: "ETHUSD", TS: time.Unix(1700000000, 0).UTC(), Bar: bar}

	got, err := DecodeBar(tb.Message().JSON())
	require.NoError(t, err)
	assert.Equal(t, tb, got)

	back, err := tb.Message().ToTimedBar()
	require.NoError(t, err)
	assert.Equal(t, tb, back)
}
