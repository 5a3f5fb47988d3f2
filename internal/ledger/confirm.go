package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
)

// DefaultPollInterval is how often PollConfirmer asks for a status.
const DefaultPollInterval = 500 * time.Millisecond

// PollConfirmer waits for confirmation by polling getSignatureStatuses.
type PollConfirmer struct {
	ledger   domain.Ledger
	interval time.Duration
	logger   *slog.Logger
}

// NewPollConfirmer creates a PollConfirmer.
func NewPollConfirmer(ledger domain.Ledger, interval time.Duration, logger *slog.Logger) *PollConfirmer {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &PollConfirmer{
		ledger:   ledger,
		interval: interval,
		logger:   logger.With(slog.String("component", "poll_confirmer")),
	}
}

// Confirm polls until the signature is confirmed, fails on-chain, or ctx
// ends. Lookup errors are logged and polling continues; they are not
// evidence the transaction failed.
func (p *PollConfirmer) Confirm(ctx context.Context, signature string) (*domain.SignatureStatus, error) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		st, err := p.ledger.GetSignatureStatus(ctx, signature)
		switch {
		case err == nil && (st.Landed() || st.Failed()):
			return st, nil
		case err != nil && !errors.Is(err, domain.ErrNotFound) && ctx.Err() == nil:
			p.logger.DebugContext(ctx, "status lookup failed",
				slog.String("signature", signature),
				slog.String("error", err.Error()),
			)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", domain.ErrConfirmationTimeout, signature)
		case <-ticker.C:
		}
	}
}

var _ domain.Confirmer = (*PollConfirmer)(nil)
