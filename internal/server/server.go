// Package server exposes the sniper's HTTP API: triggers, wallet pool
// state, metrics and the session stream.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/kpizzy812/solana-sniper-sub000/internal/ratelimit"
	"github.com/kpizzy812/solana-sniper-sub000/internal/server/handler"
	"github.com/kpizzy812/solana-sniper-sub000/internal/server/middleware"
	"github.com/kpizzy812/solana-sniper-sub000/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port   int
	APIKey string // if empty, authentication is disabled
	// WriteTimeout must cover a full synchronous session.
	WriteTimeout time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Nil entries
// leave their routes unregistered.
type Handlers struct {
	Health  *handler.HealthHandler
	Trigger *handler.TriggerHandler
	Wallets *handler.WalletHandler
	Metrics http.Handler
}

// Server is the headless HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux.
// limiter, when non-nil, rate limits each client IP.
func NewServer(cfg Config, handlers Handlers, hub *ws.Hub, limiter *ratelimit.Registry, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	if handlers.Trigger != nil {
		mux.HandleFunc("POST /api/trigger", handlers.Trigger.Trigger)
	}

	if handlers.Wallets != nil {
		mux.HandleFunc("GET /api/wallets", handlers.Wallets.ListWallets)
		mux.HandleFunc("POST /api/wallets/reset-trades", handlers.Wallets.ResetTrades)
		mux.HandleFunc("GET /api/stats", handlers.Wallets.GetStats)
	}

	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}

	if hub != nil {
		mux.HandleFunc("GET /ws", hub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey, "/api/health", "/metrics")(h)
	h = middleware.RateLimit(limiter)(h)
	h = middleware.Logging(logger)(h)

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Minute
	}
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
