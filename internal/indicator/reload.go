package indicator

import "log/slog"

// ReloadConfigs swaps the engine's indicator set. Instances whose key exists
// in both the old and new config keep their accumulated state; new ones start
// cold. Returns the number of preserved and newly created instances summed
// over all symbols.
func (e *Engine) ReloadConfigs(newConfigs []Config) (preserved, created int, err error) {
	if err := ValidateConfigs(newConfigs); err != nil {
		return 0, 0, err
	}

	for symbol, si := range e.state {
		p, c := migrate(si, newConfigs)
		preserved += p
		created += c
		slog.Debug("reload migrated symbol", slog.String("symbol", symbol), slog.Int("preserved", p), slog.Int("created", c))
	}
	e.configs = newConfigs

	slog.Info("indicator config reloaded",
		slog.Int("configs", len(newConfigs)), slog.Int("preserved", preserved), slog.Int("created", created))
	return preserved, created, nil
}

// migrate rebuilds a symbol's bindings for newConfigs, reusing old instances
// that match by key.
func migrate(si *symbolIndicators, newConfigs []Config) (preserved, created int) {
	old := make(map[string]*binding, len(si.bindings))
	for _, b := range si.bindings {
		old[b.key] = b
	}

	bindings := make([]*binding, 0, len(newConfigs))
	for _, cfg := range newConfigs {
		if b, ok := old[cfg.Key()]; ok {
			bindings = append(bindings, b)
			preserved++
			continue
		}
		b, err := newBinding(cfg)
		if err != nil {
			continue
		}
		bindings = append(bindings, b)
		created++
	}
	si.bindings = bindings
	return preserved, created
}

// ConfigsEqual reports whether two config sets hold the same indicator keys,
// ignoring order.
func ConfigsEqual(a, b []Config) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]bool, len(a))
	for _, c := range a {
		set[c.Key()] = true
	}
	for _, c := range b {
		if !set[c.Key()] {
			return false
		}
	}
	return true
}
