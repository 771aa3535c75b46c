package indicator

import (
	"context"
	"testing"
	"time"

	"tastream/internal/model"
)

func makeTimedBar(symbol string, i int, close float64) model.TimedBar {
	return model.TimedBar{Symbol: symbol, TS: day(i), Bar: bar(close)}
}

func TestEngine_SMA20(t *testing.T) {
	engine, err := NewEngine([]Config{{Type: TypeSMA, Period: 20}})
	if err != nil {
		t.Fatal(err)
	}

	// Feed 25 bars with close = 100
	for i := 0; i < 25; i++ {
		results := engine.Process(makeTimedBar("BTCUSDT", i, 100))
		if len(results) != 1 {
			t.Fatalf("bar %d: expected 1 result, got %d", i, len(results))
		}
		r := results[0]
		if r.Name != "SMA_20" || r.Symbol != "BTCUSDT" {
			t.Fatalf("bar %d: unexpected result identity %s/%s", i, r.Name, r.Symbol)
		}
		if r.Ready != (i >= 19) {
			t.Errorf("bar %d: Ready=%v", i, r.Ready)
		}
		assertClose(t, "SMA_20", r.Value, 100, 1e-9)
	}
}

func TestEngine_SymbolsAreIndependent(t *testing.T) {
	engine, _ := NewEngine([]Config{{Type: TypeSMA, Period: 2}})

	engine.Process(makeTimedBar("A", 0, 10))
	engine.Process(makeTimedBar("B", 0, 1000))
	ra := engine.Process(makeTimedBar("A", 1, 20))
	rb := engine.Process(makeTimedBar("B", 1, 3000))

	assertClose(t, "A", ra[0].Value, 15, 1e-12)
	assertClose(t, "B", rb[0].Value, 2000, 1e-12)

	syms := engine.Symbols()
	if len(syms) != 2 || syms[0] != "A" || syms[1] != "B" {
		t.Errorf("Symbols() = %v", syms)
	}
}

func TestEngine_BollingerAndRSIResults(t *testing.T) {
	k := 2.0
	engine, err := NewEngine([]Config{
		{Type: TypeBB, Period: 3, K: &k},
		{Type: TypeRSI, Period: 3, Unit: "d"},
	})
	if err != nil {
		t.Fatal(err)
	}

	var results []model.IndicatorResult
	for i, c := range []float64{10, 10.5, 10, 9.5} {
		results = engine.Process(makeTimedBar("ETH", i, c))
	}

	bb := results[0]
	if bb.Lower == nil || bb.Upper == nil {
		t.Fatal("BB result missing bands")
	}
	if !(*bb.Lower <= bb.Value && bb.Value <= *bb.Upper) {
		t.Errorf("BB bands out of order: %v %v %v", *bb.Lower, bb.Value, *bb.Upper)
	}
	assertClose(t, "BB middle", bb.Value, 10, 1e-12)

	rsi := results[1]
	if rsi.Name != "RSI_3d" {
		t.Errorf("RSI name = %q", rsi.Name)
	}
	assertClose(t, "RSI day 3", rsi.Value, 16.2, 0.1)
}

func TestEngine_ResetAndForget(t *testing.T) {
	engine, _ := NewEngine([]Config{{Type: TypeEMA, Period: 3}})
	engine.Process(makeTimedBar("X", 0, 10))
	engine.Process(makeTimedBar("X", 1, 20))

	if !engine.Reset("X") {
		t.Fatal("Reset of a known symbol returned false")
	}
	r := engine.Process(makeTimedBar("X", 2, 40))
	assertClose(t, "EMA after reset", r[0].Value, 40, 0)

	if engine.Reset("missing") {
		t.Error("Reset of an unknown symbol returned true")
	}

	engine.Forget("X")
	if len(engine.Symbols()) != 0 {
		t.Errorf("Symbols() after Forget = %v", engine.Symbols())
	}
}

func TestEngine_Labels(t *testing.T) {
	engine, _ := NewEngine(DefaultConfigs())
	engine.Process(makeTimedBar("X", 0, 1))
	labels := engine.Labels("X")
	want := []string{"SMA(9)", "SMA(20)", "EMA(9)", "EMA(21)", "SD(20)", "MAD(20)",
		"MIN(14)", "MAX(14)", "ROC(9)", "BB(20, 2)", "RSI(14 days)"}
	if len(labels) != len(want) {
		t.Fatalf("labels = %v", labels)
	}
	for i := range want {
		if labels[i] != want[i] {
			t.Errorf("label %d = %q, want %q", i, labels[i], want[i])
		}
	}
	if engine.Labels("unknown") != nil {
		t.Error("labels for unknown symbol should be nil")
	}
}

func TestEngine_Run(t *testing.T) {
	engine, _ := NewEngine([]Config{{Type: TypeSMA, Period: 2}, {Type: TypeMAX, Period: 2}})

	in := make(chan model.TimedBar, 4)
	out := make(chan model.IndicatorResult, 16)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	in <- makeTimedBar("X", 0, 1)
	in <- makeTimedBar("X", 1, 3)
	close(in)

	done := make(chan struct{})
	go func() {
		engine.Run(ctx, in, out)
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		t.Fatal("Run did not return after input closed")
	}

	if len(out) != 4 {
		t.Fatalf("expected 4 results, got %d", len(out))
	}
	var last []model.IndicatorResult
	for len(out) > 0 {
		last = append(last, <-out)
	}
	assertClose(t, "SMA_2", last[2].Value, 2, 1e-12)
	assertClose(t, "MAX_2", last[3].Value, 3, 0)
}

func TestEngine_RejectsInvalidConfigs(t *testing.T) {
	if _, err := NewEngine(nil); err == nil {
		t.Error("expected error for empty config")
	}
	if _, err := NewEngine([]Config{{Type: TypeSMA, Period: 0}}); err == nil {
		t.Error("expected error for zero period")
	}
}

func TestEngine_ReloadPreservesMatchingState(t *testing.T) {
	engine, _ := NewEngine([]Config{{Type: TypeSMA, Period: 3}, {Type: TypeEMA, Period: 3}})
	for i, c := range []float64{1, 2, 3} {
		engine.Process(makeTimedBar("X", i, c))
		engine.Process(makeTimedBar("Y", i, c))
	}

	preserved, created, err := engine.ReloadConfigs([]Config{{Type: TypeSMA, Period: 3}, {Type: TypeMAX, Period: 2}})
	if err != nil {
		t.Fatal(err)
	}
	if preserved != 2 || created != 2 {
		t.Errorf("preserved=%d created=%d, want 2/2", preserved, created)
	}

	r := engine.Process(makeTimedBar("X", 3, 4))
	if len(r) != 2 {
		t.Fatalf("expected 2 results after reload, got %d", len(r))
	}
	// SMA kept its window 1,2,3 → 2,3,4
	assertClose(t, "SMA preserved", r[0].Value, 3, 1e-12)
	if !r[0].Ready {
		t.Error("preserved SMA should stay ready")
	}
	if r[1].Ready {
		t.Error("new MAX should start cold")
	}

	if _, _, err := engine.ReloadConfigs(nil); err == nil {
		t.Error("reload with empty configs should fail")
	}
	if len(engine.Configs()) != 2 {
		t.Error("failed reload must keep the previous configs")
	}
}
