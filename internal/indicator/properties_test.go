package indicator

import (
	"math"
	"math/rand"
	"testing"

	"github.com/markcheno/go-talib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tastream/internal/model"
)

func randomWalk(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	out := make([]float64, n)
	price := 100.0
	for i := range out {
		price += rng.NormFloat64()
		if price < 1 {
			price = 1
		}
		out[i] = price
	}
	return out
}

func feed(n Next[float64, float64], in []float64) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = n.Update(v)
	}
	return out
}

func TestOracle_FullWindowsMatchTalib(t *testing.T) {
	in := randomWalk(7, 400)

	for _, period := range []int{2, 5, 14, 30} {
		sma, err := NewSMA(period)
		require.NoError(t, err)
		sd, err := NewStdDev(period)
		require.NoError(t, err)
		min, err := NewMinimum(period)
		require.NoError(t, err)
		max, err := NewMaximum(period)
		require.NoError(t, err)

		gotSMA := feed(sma, in)
		gotSD := feed(sd, in)
		gotMin := feed(min, in)
		gotMax := feed(max, in)

		wantSMA := talib.Sma(in, period)
		wantSD := talib.StdDev(in, period, 1)
		wantMin := talib.Min(in, period)
		wantMax := talib.Max(in, period)

		for i := period - 1; i < len(in); i++ {
			assert.InDelta(t, wantSMA[i], gotSMA[i], 1e-8, "SMA(%d) #%d", period, i)
			assert.InDelta(t, wantSD[i], gotSD[i], 1e-6, "SD(%d) #%d", period, i)
			assert.Equal(t, wantMin[i], gotMin[i], "MIN(%d) #%d", period, i)
			assert.Equal(t, wantMax[i], gotMax[i], "MAX(%d) #%d", period, i)
		}
	}
}

func TestProperty_ExtremaMatchBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for _, period := range []int{1, 3, 8, 17} {
		min, _ := NewMinimum(period)
		max, _ := NewMaximum(period)
		var seen []float64
		for i := 0; i < 500; i++ {
			// few distinct values so ties are frequent
			v := float64(rng.Intn(6))
			seen = append(seen, v)
			lo := len(seen) - period
			if lo < 0 {
				lo = 0
			}
			wantMin, wantMax := math.Inf(1), math.Inf(-1)
			for _, w := range seen[lo:] {
				wantMin = math.Min(wantMin, w)
				wantMax = math.Max(wantMax, w)
			}
			require.Equal(t, wantMin, min.Update(v), "MIN(%d) step %d", period, i)
			require.Equal(t, wantMax, max.Update(v), "MAX(%d) step %d", period, i)
		}
	}
}

func TestProperty_DispersionNonNegative(t *testing.T) {
	in := randomWalk(11, 300)
	sd, _ := NewStdDev(10)
	mad, _ := NewMAD(10)
	bb, _ := NewBollingerBands(10, 2)
	for i, v := range in {
		assert.GreaterOrEqual(t, sd.Update(v), 0.0, "SD #%d", i)
		assert.GreaterOrEqual(t, mad.Update(v), 0.0, "MAD #%d", i)
		out := bb.Update(v)
		assert.LessOrEqual(t, out.Lower, out.Middle, "BB lower #%d", i)
		assert.LessOrEqual(t, out.Middle, out.Upper, "BB upper #%d", i)
	}
}

func TestProperty_RSIBounded(t *testing.T) {
	in := randomWalk(5, 200)
	rsi, err := NewRSI(5 * Day)
	require.NoError(t, err)
	for i, v := range in {
		got := rsi.Update(model.Sample{TS: day(i), Value: v})
		require.GreaterOrEqual(t, got, 0.0)
		require.LessOrEqual(t, got, 100.0)
	}
}

func TestProperty_ResetReplaysBitIdentical(t *testing.T) {
	in := randomWalk(9, 120)

	scalars := map[string]Next[float64, float64]{}
	for _, ctor := range []func() (Next[float64, float64], error){
		func() (Next[float64, float64], error) { return NewSMA(7) },
		func() (Next[float64, float64], error) { return NewEMA(7) },
		func() (Next[float64, float64], error) { return NewSMMA(7) },
		func() (Next[float64, float64], error) { return NewStdDev(7) },
		func() (Next[float64, float64], error) { return NewMAD(7) },
		func() (Next[float64, float64], error) { return NewMinimum(7) },
		func() (Next[float64, float64], error) { return NewMaximum(7) },
		func() (Next[float64, float64], error) { return NewROC(7) },
	} {
		n, err := ctor()
		require.NoError(t, err)
		scalars[n.String()] = n
	}

	for label, n := range scalars {
		first := feed(n, in)
		n.Reset()
		second := feed(n, in)
		assert.Equal(t, first, second, label)
	}

	bb := DefaultBollingerBands()
	var first []BollingerOutput
	for _, v := range in {
		first = append(first, bb.Update(v))
	}
	bb.Reset()
	for i, v := range in {
		require.Equal(t, first[i], bb.Update(v), "BB #%d", i)
	}

	rsi := DefaultRSI()
	var rsiFirst []float64
	for i, v := range in {
		rsiFirst = append(rsiFirst, rsi.Update(model.Sample{TS: day(i), Value: v}))
	}
	rsi.Reset()
	for i, v := range in {
		require.Equal(t, rsiFirst[i], rsi.Update(model.Sample{TS: day(i), Value: v}), "RSI #%d", i)
	}
}

func TestProperty_WindowsStayBounded(t *testing.T) {
	sma, _ := NewSMA(4)
	roc, _ := NewROC(4)
	rsi, _ := NewRSI(2 * Day)
	for i := 0; i < 100; i++ {
		sma.Update(float64(i))
		roc.Update(float64(i))
		rsi.Update(model.Sample{TS: day(i), Value: float64(i)})
		require.LessOrEqual(t, sma.win.buf.Len(), 4)
		require.LessOrEqual(t, roc.win.Len(), 5)
		require.LessOrEqual(t, rsi.Len(), 2)
	}
}

func TestConstructors_RejectInvalidParameters(t *testing.T) {
	cases := []struct {
		name string
		ctor func() error
	}{
		{"SMA(0)", func() error { _, err := NewSMA(0); return err }},
		{"EMA(-1)", func() error { _, err := NewEMA(-1); return err }},
		{"SMMA(0)", func() error { _, err := NewSMMA(0); return err }},
		{"EMA alpha 0", func() error { _, err := NewEMAWithAlpha(0); return err }},
		{"EMA alpha 1.5", func() error { _, err := NewEMAWithAlpha(1.5); return err }},
		{"EMA alpha NaN", func() error { _, err := NewEMAWithAlpha(math.NaN()); return err }},
		{"SD(0)", func() error { _, err := NewStdDev(0); return err }},
		{"MAD(-3)", func() error { _, err := NewMAD(-3); return err }},
		{"MIN(0)", func() error { _, err := NewMinimum(0); return err }},
		{"MAX(0)", func() error { _, err := NewMaximum(0); return err }},
		{"ROC(0)", func() error { _, err := NewROC(0); return err }},
		{"BB(0, 2)", func() error { _, err := NewBollingerBands(0, 2); return err }},
		{"BB(9, -1)", func() error { _, err := NewBollingerBands(9, -1); return err }},
		{"BB(9, Inf)", func() error { _, err := NewBollingerBands(9, math.Inf(1)); return err }},
		{"RSI(0)", func() error { _, err := NewRSI(0); return err }},
		{"RSI(-1d)", func() error { _, err := NewRSI(-Day); return err }},
		{"RSI(12h)", func() error { _, err := NewRSI(Day / 2); return err }},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.ErrorIs(t, c.ctor(), ErrInvalidParameter)
		})
	}
}
