package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"time"
)

// Probe checks one dependency and returns details to report.
type Probe func(ctx context.Context) (any, error)

// HealthHandler serves the health-check endpoint.
type HealthHandler struct {
	mode      string
	wallets   int
	startedAt time.Time
	probes    map[string]Probe
	timeout   time.Duration
	logger    *slog.Logger
}

// HealthOption configures a HealthHandler.
type HealthOption func(*HealthHandler)

// WithProbe adds a dependency check run by GET /api/health?deep=true.
func WithProbe(name string, p Probe) HealthOption {
	return func(h *HealthHandler) { h.probes[name] = p }
}

// NewHealthHandler creates a HealthHandler reporting the run mode and the
// number of loaded wallets.
func NewHealthHandler(mode string, wallets int, logger *slog.Logger, opts ...HealthOption) *HealthHandler {
	h := &HealthHandler{
		mode:      mode,
		wallets:   wallets,
		startedAt: time.Now(),
		probes:    make(map[string]Probe),
		timeout:   5 * time.Second,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type probeResult struct {
	OK        bool   `json:"ok"`
	LatencyMs int64  `json:"latency_ms"`
	Detail    any    `json:"detail,omitempty"`
	Error     string `json:"error,omitempty"`
}

// HealthCheck responds with the process status. With ?deep=true every probe
// runs and a failing one turns the response into 503.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":         "ok",
		"mode":           h.mode,
		"wallets":        h.wallets,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}
	if r.URL.Query().Get("deep") != "true" || len(h.probes) == 0 {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.probes))
	for name := range h.probes {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	checks := make(map[string]probeResult, len(names))
	for _, name := range names {
		start := time.Now()
		detail, err := h.probes[name](ctx)
		res := probeResult{OK: err == nil, LatencyMs: time.Since(start).Milliseconds(), Detail: detail}
		if err != nil {
			res.Error = err.Error()
			status = http.StatusServiceUnavailable
			if !errors.Is(err, context.Canceled) {
				h.logger.Warn("health probe failed", slog.String("probe", name), slog.String("error", err.Error()))
			}
		}
		checks[name] = res
	}
	if status != http.StatusOK {
		resp["status"] = "degraded"
	}
	resp["checks"] = checks
	writeJSON(w, status, resp)
}
