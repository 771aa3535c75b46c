package indicator

import (
	"context"
	"sort"

	"tastream/internal/model"
)

// symbolIndicators holds live indicator instances for one symbol.
type symbolIndicators struct {
	bindings []*binding
}

// Engine computes the configured indicators for every symbol it sees.
// Each symbol owns private instances; nothing is shared across symbols.
// Designed for single-goroutine usage, no locks inside.
type Engine struct {
	configs []Config

	// state[symbol] → *symbolIndicators
	state map[string]*symbolIndicators
}

// NewEngine creates an indicator engine after validating the configs.
func NewEngine(configs []Config) (*Engine, error) {
	if err := ValidateConfigs(configs); err != nil {
		return nil, err
	}
	return &Engine{
		configs: configs,
		state:   make(map[string]*symbolIndicators, 64),
	}, nil
}

// Configs returns the active indicator configs.
func (e *Engine) Configs() []Config {
	out := make([]Config, len(e.configs))
	copy(out, e.configs)
	return out
}

// Process feeds a validated bar to every indicator of its symbol and returns
// one result per indicator, in config order.
func (e *Engine) Process(tb model.TimedBar) []model.IndicatorResult {
	si, exists := e.state[tb.Symbol]
	if !exists {
		// First bar for this symbol, create indicator instances
		si = newSymbolIndicators(e.configs)
		e.state[tb.Symbol] = si
	}

	results := make([]model.IndicatorResult, 0, len(si.bindings))
	for _, b := range si.bindings {
		results = append(results, b.process(tb))
	}
	return results
}

// Run consumes bars and emits indicator results. Blocks until ctx is done or
// the input channel is closed.
func (e *Engine) Run(ctx context.Context, in <-chan model.TimedBar, out chan<- model.IndicatorResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case tb, ok := <-in:
			if !ok {
				return
			}
			for _, r := range e.Process(tb) {
				select {
				case out <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

// Reset restores every indicator of a symbol to its freshly-built state.
// It reports whether the symbol was known.
func (e *Engine) Reset(symbol string) bool {
	si, ok := e.state[symbol]
	if !ok {
		return false
	}
	for _, b := range si.bindings {
		b.ind.Reset()
	}
	return true
}

// Forget drops all state for a symbol.
func (e *Engine) Forget(symbol string) {
	delete(e.state, symbol)
}

// Symbols returns the symbols seen so far, sorted.
func (e *Engine) Symbols() []string {
	out := make([]string, 0, len(e.state))
	for s := range e.state {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Labels returns the human-readable labels of a symbol's indicators.
func (e *Engine) Labels(symbol string) []string {
	si, ok := e.state[symbol]
	if !ok {
		return nil
	}
	out := make([]string, len(si.bindings))
	for i, b := range si.bindings {
		out[i] = b.ind.String()
	}
	return out
}

// newSymbolIndicators creates fresh indicator instances. Configs are
// validated up front, so construction cannot fail here.
func newSymbolIndicators(configs []Config) *symbolIndicators {
	si := &symbolIndicators{bindings: make([]*binding, 0, len(configs))}
	for _, cfg := range configs {
		b, err := newBinding(cfg)
		if err != nil {
			continue
		}
		si.bindings = append(si.bindings, b)
	}
	return si
}
