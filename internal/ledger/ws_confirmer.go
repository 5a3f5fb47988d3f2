package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/ratelimit"
)

// WSConfirmer waits for confirmation with a signatureSubscribe websocket
// subscription. Each Confirm call owns its own short-lived connection, so a
// dropped socket only affects one trade; on any socket failure it falls
// back to the poll confirmer for the remaining time.
type WSConfirmer struct {
	endpoint   string
	commitment string
	limiter    ratelimit.Acquirer
	fallback   domain.Confirmer
	dialer     websocket.Dialer
	requestID  atomic.Uint64
	logger     *slog.Logger
}

// NewWSConfirmer creates a WSConfirmer. fallback may be nil.
func NewWSConfirmer(endpoint, commitment string, limiter ratelimit.Acquirer, fallback domain.Confirmer, logger *slog.Logger) *WSConfirmer {
	if commitment == "" {
		commitment = DefaultCommitment
	}
	if limiter == nil {
		limiter = ratelimit.Unlimited{}
	}
	return &WSConfirmer{
		endpoint:   endpoint,
		commitment: commitment,
		limiter:    limiter,
		fallback:   fallback,
		dialer:     websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		logger:     logger.With(slog.String("component", "ws_confirmer")),
	}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

type wsMessage struct {
	ID     *uint64         `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RPCError       `json:"error,omitempty"`
	Method string          `json:"method,omitempty"`
	Params *struct {
		Subscription uint64 `json:"subscription"`
		Result       struct {
			Context struct {
				Slot uint64 `json:"slot"`
			} `json:"context"`
			Value struct {
				Err json.RawMessage `json:"err"`
			} `json:"value"`
		} `json:"result"`
	} `json:"params,omitempty"`
}

// Confirm subscribes to signature and blocks until the notification arrives
// or ctx ends.
func (w *WSConfirmer) Confirm(ctx context.Context, signature string) (*domain.SignatureStatus, error) {
	st, err := w.subscribe(ctx, signature)
	if err == nil {
		return st, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrConfirmationTimeout, signature)
	}
	w.logger.WarnContext(ctx, "signature subscription failed",
		slog.String("signature", signature),
		slog.String("error", err.Error()),
	)
	if w.fallback != nil {
		return w.fallback.Confirm(ctx, signature)
	}
	return nil, err
}

func (w *WSConfirmer) subscribe(ctx context.Context, signature string) (*domain.SignatureStatus, error) {
	if err := w.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	conn, _, err := w.dialer.DialContext(ctx, w.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}
	defer conn.Close()

	// Unblock ReadJSON when ctx ends.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	reqID := w.requestID.Add(1)
	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "signatureSubscribe",
		Params: []interface{}{
			signature,
			map[string]string{"commitment": w.commitment},
		},
	}
	if err := conn.WriteJSON(req); err != nil {
		return nil, fmt.Errorf("write subscribe: %w", err)
	}

	var subID uint64
	subscribed := false
	for {
		var msg wsMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %v", domain.ErrWSDisconnect, err)
		}

		switch {
		case msg.ID != nil && *msg.ID == reqID:
			if msg.Error != nil {
				return nil, msg.Error
			}
			if err := json.Unmarshal(msg.Result, &subID); err != nil {
				return nil, fmt.Errorf("parse subscription id: %w", err)
			}
			subscribed = true
		case msg.Method == "signatureNotification" && msg.Params != nil:
			if subscribed && msg.Params.Subscription != subID {
				continue
			}
			return &domain.SignatureStatus{
				Slot:               msg.Params.Result.Context.Slot,
				ConfirmationStatus: w.commitment,
				Err:                msg.Params.Result.Value.Err,
			}, nil
		}
	}
}

var _ domain.Confirmer = (*WSConfirmer)(nil)
