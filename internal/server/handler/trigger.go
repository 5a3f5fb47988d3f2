package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/intake"
)

// TriggerSubmitter defines what the trigger handler requires from the intake
// layer.
type TriggerSubmitter interface {
	Submit(ctx context.Context, t domain.Trigger) (*domain.TradingSession, error)
}

// TriggerHandler starts trading sessions from HTTP requests.
type TriggerHandler struct {
	intake TriggerSubmitter
	// base outlives the request so async sessions survive the response.
	base   context.Context
	logger *slog.Logger
}

// NewTriggerHandler creates a TriggerHandler. base bounds sessions started
// with async=true.
func NewTriggerHandler(base context.Context, intake TriggerSubmitter, logger *slog.Logger) *TriggerHandler {
	return &TriggerHandler{intake: intake, base: base, logger: logHandler(logger, "trigger")}
}

// triggerRequest is the POST /api/trigger body. Amounts are given in SOL.
type triggerRequest struct {
	TargetMint    string            `json:"target_mint"`
	TradeCount    int               `json:"trade_count"`
	AmountSOL     float64           `json:"amount_sol"`
	UseMaxBalance bool              `json:"use_max_balance"`
	Source        map[string]string `json:"source"`
	Async         bool              `json:"async"`
}

// Trigger runs a session for the requested target. By default the response
// carries the session summary; with async set it returns 202 immediately.
// POST /api/trigger
func (h *TriggerHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.TargetMint == "" {
		writeError(w, http.StatusBadRequest, "target_mint is required")
		return
	}
	if req.TradeCount < 0 || req.AmountSOL < 0 {
		writeError(w, http.StatusBadRequest, "trade_count and amount_sol must not be negative")
		return
	}

	src := req.Source
	if src == nil {
		src = map[string]string{}
	}
	if _, ok := src["origin"]; !ok {
		src["origin"] = "http"
	}
	t := domain.Trigger{
		TargetMint:     req.TargetMint,
		Source:         src,
		TradeCount:     req.TradeCount,
		AmountPerTrade: domain.SOLFloatToLamports(req.AmountSOL),
		UseMaxBalance:  req.UseMaxBalance,
	}

	if req.Async {
		go func() {
			if _, err := h.intake.Submit(h.base, t); err != nil {
				h.logger.Warn("async trigger failed",
					slog.String("target", t.TargetMint),
					slog.String("error", err.Error()),
				)
			}
		}()
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":      "accepted",
			"target_mint": t.TargetMint,
		})
		return
	}

	s, err := h.intake.Submit(r.Context(), t)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTargetRejected):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, intake.ErrDuplicate):
			writeError(w, http.StatusConflict, "target already triggered recently")
		case errors.Is(err, domain.ErrSessionInProgress):
			writeError(w, http.StatusConflict, "a trading session is already running")
		case errors.Is(err, context.Canceled):
			writeError(w, http.StatusServiceUnavailable, "request cancelled")
		default:
			h.logger.ErrorContext(r.Context(), "handler: trigger failed",
				slog.String("target", t.TargetMint),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to run session")
		}
		return
	}

	writeJSON(w, http.StatusOK, s.Summarize())
}
