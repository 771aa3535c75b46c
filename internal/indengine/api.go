package indengine

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"

	"tastream/internal/indicator"
	"tastream/internal/model"
)

const configChannel = "config:indicators"

// routes builds the HTTP mux.
func (svc *Service) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/healthz", svc.health)
	mux.Handle("/metrics", svc.prom.Handler())
	mux.HandleFunc("/reload", svc.handleReload)
	mux.HandleFunc("/latest", svc.handleLatest)
	mux.Handle("/ws", svc.hub)
	return mux
}

// startHTTP launches the HTTP server in a goroutine.
func (svc *Service) startHTTP() *http.Server {
	srv := &http.Server{Addr: svc.cfg.HTTPAddr, Handler: svc.routes()}
	go func() {
		svc.log.Info("http server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			svc.log.Error("http server failed", slog.Any("err", err))
		}
	}()
	return srv
}

// handleReload handles POST /reload with a JSON list of indicator configs.
func (svc *Service) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST only", http.StatusMethodNotAllowed)
		return
	}
	var configs []indicator.Config
	if err := json.NewDecoder(r.Body).Decode(&configs); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return
	}
	preserved, created, err := svc.reload(configs, "http")
	if err != nil {
		http.Error(w, "validation: "+err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"preserved": preserved,
		"created":   created,
	})
}

// handleLatest handles GET /latest?symbol=X with the newest result of every
// indicator for the symbol, ordered by name.
func (svc *Service) handleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "GET only", http.StatusMethodNotAllowed)
		return
	}
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		http.Error(w, "symbol is required", http.StatusBadRequest)
		return
	}
	results := svc.latestFor(symbol)
	if results == nil {
		http.Error(w, "no results for "+symbol, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

func (svc *Service) latestFor(symbol string) []model.IndicatorResult {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	m, ok := svc.latest[symbol]
	if !ok {
		return nil
	}
	out := make([]model.IndicatorResult, 0, len(m))
	for _, r := range m {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// reload swaps the indicator configs, keeping warmed state for every
// indicator whose key is unchanged. New indicators start cold and warm up on
// live bars.
func (svc *Service) reload(configs []indicator.Config, source string) (preserved, created int, err error) {
	svc.mu.Lock()
	defer svc.mu.Unlock()

	preserved, created, err = svc.engine.ReloadConfigs(configs)
	if err != nil {
		return 0, 0, err
	}
	svc.configs = configs

	keys := make(map[string]bool, len(configs))
	for _, c := range configs {
		keys[c.Key()] = true
	}
	for _, m := range svc.latest {
		for name := range m {
			if !keys[name] {
				delete(m, name)
			}
		}
	}

	svc.prom.ConfigReloads.WithLabelValues(source).Inc()
	return preserved, created, nil
}

// startConfigSubscriber listens on Redis pub/sub for indicator spec strings
// such as "SMA:20,RSI:14d".
func (svc *Service) startConfigSubscriber(ctx context.Context) {
	msgs, err := svc.publisher.Subscribe(ctx, configChannel)
	if err != nil {
		svc.log.Warn("config subscription failed", slog.String("channel", configChannel), slog.Any("err", err))
		return
	}
	svc.log.Info("subscribed for dynamic reload", slog.String("channel", configChannel))

	go func() {
		for payload := range msgs {
			svc.applySpecs(payload)
		}
	}()
}

func (svc *Service) applySpecs(payload string) {
	configs, err := indicator.ParseSpecs(payload)
	if err != nil {
		svc.log.Warn("invalid indicator specs", slog.String("payload", payload), slog.Any("err", err))
		return
	}
	if _, _, err := svc.reload(configs, "pubsub"); err != nil {
		svc.log.Warn("config reload rejected", slog.Any("err", err))
	}
}
