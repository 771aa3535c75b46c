package indicator

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"tastream/internal/model"
)

// Config specifies a single indicator to compute for every symbol.
type Config struct {
	Type   string   `json:"type"`           // "SMA", "EMA", "RSI", ...
	Period int      `json:"period"`         // window length, or RSI lookback in units
	Unit   string   `json:"unit,omitempty"` // RSI lookback unit: "d" (default), "h", "m", "s"
	K      *float64 `json:"k,omitempty"`    // Bollinger multiplier, default 2
}

const defaultK = 2.0

var units = map[string]time.Duration{
	"d": Day,
	"h": time.Hour,
	"m": time.Minute,
	"s": time.Second,
}

// Key identifies the indicator within a symbol: "SMA_20", "RSI_14d", "BB_20_2".
// Snapshots and reloads match instances by key.
func (c Config) Key() string {
	switch c.Type {
	case TypeRSI:
		return c.Type + "_" + strconv.Itoa(c.Period) + c.unit()
	case TypeBB:
		return c.Type + "_" + strconv.Itoa(c.Period) + "_" + strconv.FormatFloat(c.k(), 'g', -1, 64)
	default:
		return c.Type + "_" + strconv.Itoa(c.Period)
	}
}

func (c Config) unit() string {
	if c.Unit == "" {
		return "d"
	}
	return c.Unit
}

func (c Config) k() float64 {
	if c.K == nil {
		return defaultK
	}
	return *c.K
}

// DefaultConfigs is the indicator set used when none is configured.
func DefaultConfigs() []Config {
	k := defaultK
	return []Config{
		{Type: TypeSMA, Period: 9},
		{Type: TypeSMA, Period: 20},
		{Type: TypeEMA, Period: 9},
		{Type: TypeEMA, Period: 21},
		{Type: TypeSD, Period: 20},
		{Type: TypeMAD, Period: 20},
		{Type: TypeMIN, Period: 14},
		{Type: TypeMAX, Period: 14},
		{Type: TypeROC, Period: 9},
		{Type: TypeBB, Period: 20, K: &k},
		{Type: TypeRSI, Period: 14, Unit: "d"},
	}
}

// ParseSpecs parses "TYPE:PERIOD[:EXTRA],..." into configs.
// EXTRA is the Bollinger multiplier; RSI periods may carry a unit suffix.
// Example: "SMA:20,EMA:9,RSI:14d,RSI:30m,BB:20:2.5". An empty string yields
// DefaultConfigs.
func ParseSpecs(s string) ([]Config, error) {
	if strings.TrimSpace(s) == "" {
		return DefaultConfigs(), nil
	}
	var configs []Config
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		fields := strings.Split(part, ":")
		if len(fields) < 2 || len(fields) > 3 {
			return nil, fmt.Errorf("indicator spec %q: want TYPE:PERIOD[:K]", part)
		}
		cfg := Config{Type: strings.ToUpper(strings.TrimSpace(fields[0]))}
		period := strings.TrimSpace(fields[1])
		if cfg.Type == TypeRSI {
			period, cfg.Unit = splitUnit(period)
		}
		n, err := strconv.Atoi(period)
		if err != nil {
			return nil, fmt.Errorf("indicator spec %q: period: %w", part, err)
		}
		cfg.Period = n
		if len(fields) == 3 {
			if cfg.Type != TypeBB {
				return nil, fmt.Errorf("indicator spec %q: only BB takes a multiplier", part)
			}
			k, err := strconv.ParseFloat(strings.TrimSpace(fields[2]), 64)
			if err != nil {
				return nil, fmt.Errorf("indicator spec %q: multiplier: %w", part, err)
			}
			cfg.K = &k
		}
		configs = append(configs, cfg)
	}
	if err := ValidateConfigs(configs); err != nil {
		return nil, err
	}
	return configs, nil
}

func splitUnit(s string) (string, string) {
	if s == "" {
		return s, ""
	}
	last := s[len(s)-1:]
	if _, ok := units[last]; ok {
		return s[:len(s)-1], last
	}
	return s, ""
}

// ValidateConfigs checks a set of configs for unknown types, bad parameters
// and duplicate keys.
func ValidateConfigs(configs []Config) error {
	if len(configs) == 0 {
		return fmt.Errorf("no indicators configured")
	}
	seen := make(map[string]bool, len(configs))
	for _, cfg := range configs {
		if _, err := newBinding(cfg); err != nil {
			return err
		}
		key := cfg.Key()
		if seen[key] {
			return fmt.Errorf("duplicate indicator %s", key)
		}
		seen[key] = true
	}
	return nil
}

// instance is what every indicator in the package provides besides Update.
type instance interface {
	Snapshottable
	Reset()
	Ready() bool
	String() string
}

// binding adapts a typed indicator to bar input and result output.
type binding struct {
	cfg  Config
	key  string
	ind  instance
	feed func(tb model.TimedBar, r *model.IndicatorResult)
}

func scalar(n Next[float64, float64]) func(model.TimedBar, *model.IndicatorResult) {
	return func(tb model.TimedBar, r *model.IndicatorResult) {
		r.Value = Close(n, tb.Bar)
	}
}

// newBinding constructs the indicator a config describes.
func newBinding(cfg Config) (*binding, error) {
	b := &binding{cfg: cfg, key: cfg.Key()}
	switch cfg.Type {
	case TypeSMA:
		ind, err := NewSMA(cfg.Period)
		if err != nil {
			return nil, err
		}
		b.ind, b.feed = ind, scalar(ind)
	case TypeEMA:
		ind, err := NewEMA(cfg.Period)
		if err != nil {
			return nil, err
		}
		b.ind, b.feed = ind, scalar(ind)
	case TypeSMMA:
		ind, err := NewSMMA(cfg.Period)
		if err != nil {
			return nil, err
		}
		b.ind, b.feed = ind, scalar(ind)
	case TypeSD:
		ind, err := NewStdDev(cfg.Period)
		if err != nil {
			return nil, err
		}
		b.ind, b.feed = ind, scalar(ind)
	case TypeMAD:
		ind, err := NewMAD(cfg.Period)
		if err != nil {
			return nil, err
		}
		b.ind, b.feed = ind, scalar(ind)
	case TypeMIN:
		ind, err := NewMinimum(cfg.Period)
		if err != nil {
			return nil, err
		}
		b.ind, b.feed = ind, scalar(ind)
	case TypeMAX:
		ind, err := NewMaximum(cfg.Period)
		if err != nil {
			return nil, err
		}
		b.ind, b.feed = ind, scalar(ind)
	case TypeROC:
		ind, err := NewROC(cfg.Period)
		if err != nil {
			return nil, err
		}
		b.ind, b.feed = ind, scalar(ind)
	case TypeBB:
		ind, err := NewBollingerBands(cfg.Period, cfg.k())
		if err != nil {
			return nil, err
		}
		b.ind = ind
		b.feed = func(tb model.TimedBar, r *model.IndicatorResult) {
			out := Close[BollingerOutput](ind, tb.Bar)
			r.Value = out.Middle
			r.Lower = &out.Lower
			r.Upper = &out.Upper
		}
	case TypeRSI:
		unit, ok := units[cfg.unit()]
		if !ok {
			return nil, fmt.Errorf("RSI unit %q: %w", cfg.Unit, ErrInvalidParameter)
		}
		if cfg.Period <= 0 || int64(cfg.Period) > math.MaxInt64/int64(unit) {
			return nil, fmt.Errorf("RSI period %d%s: %w", cfg.Period, cfg.unit(), ErrInvalidParameter)
		}
		ind, err := NewRSIWithUnit(time.Duration(cfg.Period)*unit, unit)
		if err != nil {
			return nil, err
		}
		b.ind = ind
		b.feed = func(tb model.TimedBar, r *model.IndicatorResult) {
			r.Value = ind.Update(model.Sample{TS: tb.TS, Value: tb.Bar.Close()})
		}
	default:
		return nil, fmt.Errorf("unknown indicator type %q", cfg.Type)
	}
	return b, nil
}

// process feeds one bar and returns the resulting value.
func (b *binding) process(tb model.TimedBar) model.IndicatorResult {
	r := model.IndicatorResult{
		Name:   b.key,
		Symbol: tb.Symbol,
		TS:     tb.TS,
	}
	b.feed(tb, &r)
	r.Ready = b.ind.Ready()
	return r
}
