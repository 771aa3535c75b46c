package main

import (
	"math"
	"math/rand/v2"
	"time"

	"tastream/internal/model"
)

// volatility is the per-bar standard deviation of the close-to-close return.
const volatility = 0.002

// walker produces random-walk OHLCV bars for a fixed set of symbols. Every
// bar opens at the previous close.
type walker struct {
	symbols []string
	last    map[string]float64
	rng     *rand.Rand
}

func newWalker(symbols []string, start float64, seed uint64) *walker {
	w := &walker{
		symbols: symbols,
		last:    make(map[string]float64, len(symbols)),
		rng:     rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
	for _, s := range symbols {
		w.last[s] = start
	}
	return w
}

// next returns one bar per symbol stamped ts, validated through BarBuilder.
func (w *walker) next(ts time.Time) ([]model.TimedBar, error) {
	bars := make([]model.TimedBar, 0, len(w.symbols))
	for _, sym := range w.symbols {
		open := w.last[sym]
		closePx := open * math.Exp(w.rng.NormFloat64()*volatility)
		high := math.Max(open, closePx) * (1 + math.Abs(w.rng.NormFloat64())*volatility/2)
		low := math.Min(open, closePx) * (1 - math.Abs(w.rng.NormFloat64())*volatility/2)
		volume := math.Floor(w.rng.Float64() * 1000)

		bar, err := model.NewBarBuilder().Open(open).High(high).Low(low).Close(closePx).Volume(volume).Build()
		if err != nil {
			return nil, err
		}
		w.last[sym] = closePx
		bars = append(bars, model.TimedBar{Symbol: sym, TS: ts, Bar: bar})
	}
	return bars, nil
}
