package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/kpizzy812/solana-sniper-sub000/internal/wallet"
)

// WalletService defines the methods the wallet handler requires from the
// multi-wallet manager.
type WalletService interface {
	PoolStats() wallet.PoolStats
	Stats() wallet.Stats
	RefreshBalances(ctx context.Context) error
	ResetTradeCounts()
}

// WalletHandler serves pool and lifetime statistics.
type WalletHandler struct {
	wallets WalletService
	logger  *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallets WalletService, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, logger: logHandler(logger, "wallets")}
}

// ListWallets returns the pool snapshot. refresh=true re-reads balances
// first; a partial refresh failure is reported alongside the snapshot.
// GET /api/wallets?refresh=true
func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	resp := struct {
		wallet.PoolStats
		RefreshError string `json:"refresh_error,omitempty"`
	}{}

	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if err := h.wallets.RefreshBalances(r.Context()); err != nil {
			h.logger.WarnContext(r.Context(), "handler: balance refresh incomplete",
				slog.String("error", err.Error()),
			)
			resp.RefreshError = err.Error()
		}
	}

	resp.PoolStats = h.wallets.PoolStats()
	writeJSON(w, http.StatusOK, resp)
}

// GetStats returns lifetime session statistics.
// GET /api/stats
func (h *WalletHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.wallets.Stats())
}

// ResetTrades zeroes every wallet's trade counter.
// POST /api/wallets/reset-trades
func (h *WalletHandler) ResetTrades(w http.ResponseWriter, r *http.Request) {
	h.wallets.ResetTradeCounts()
	h.logger.InfoContext(r.Context(), "trade counters reset")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}
