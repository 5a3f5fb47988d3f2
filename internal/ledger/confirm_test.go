package ledger

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kpizzy812/solana-sniper-sub000/internal/domain"
	"github.com/kpizzy812/solana-sniper-sub000/internal/ledger/ledgertest"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPollConfirmer_Confirmed(t *testing.T) {
	fake := &ledgertest.Ledger{}
	c := NewPollConfirmer(fake, time.Millisecond, discardLogger())

	st, err := c.Confirm(context.Background(), "sig-a")
	require.NoError(t, err)
	assert.True(t, st.Landed())
	assert.False(t, st.Failed())
}

func TestPollConfirmer_ChainError(t *testing.T) {
	fake := &ledgertest.Ledger{ChainErr: true}
	c := NewPollConfirmer(fake, time.Millisecond, discardLogger())

	st, err := c.Confirm(context.Background(), "sig-a")
	require.NoError(t, err)
	assert.True(t, st.Failed())
}

func TestPollConfirmer_Timeout(t *testing.T) {
	fake := &ledgertest.Ledger{Unconfirmed: true}
	c := NewPollConfirmer(fake, 5*time.Millisecond, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	_, err := c.Confirm(ctx, "sig-a")
	require.ErrorIs(t, err, domain.ErrConfirmationTimeout)

	_, _, _, status := fake.Counts()
	assert.Greater(t, status, 1, "should keep polling until the deadline")
}
