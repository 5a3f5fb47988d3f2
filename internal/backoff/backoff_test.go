package backoff

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPolicy_Delay(t *testing.T) {
	p := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: 500 * time.Millisecond}

	assert.Equal(t, time.Duration(0), p.Delay(0))
	assert.Equal(t, 100*time.Millisecond, p.Delay(1))
	assert.Equal(t, 200*time.Millisecond, p.Delay(2))
	assert.Equal(t, 400*time.Millisecond, p.Delay(3))
	assert.Equal(t, 500*time.Millisecond, p.Delay(4))
	assert.Equal(t, 500*time.Millisecond, p.Delay(40))
}

func recordSleeps(out *[]time.Duration) Sleeper {
	return func(ctx context.Context, d time.Duration) error {
		*out = append(*out, d)
		return ctx.Err()
	}
}

func TestPolicy_DoRetriesUntilSuccess(t *testing.T) {
	var sleeps []time.Duration
	p := Policy{MaxAttempts: 4, BaseDelay: time.Second, Multiplier: 2}

	calls := 0
	err := p.Do(context.Background(), recordSleeps(&sleeps), func(attempt int) (bool, error) {
		calls++
		if attempt < 2 {
			return true, errors.New("flaky")
		}
		return false, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, sleeps)
}

func TestPolicy_DoStopsOnPermanentError(t *testing.T) {
	permanent := errors.New("rpc error")
	var sleeps []time.Duration
	calls := 0

	err := Default().Do(context.Background(), recordSleeps(&sleeps), func(int) (bool, error) {
		calls++
		return false, permanent
	})

	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeps)
}

func TestPolicy_DoReturnsLastError(t *testing.T) {
	var sleeps []time.Duration
	p := Policy{MaxAttempts: 2}
	errs := []error{errors.New("first"), errors.New("second")}

	err := p.Do(context.Background(), recordSleeps(&sleeps), func(attempt int) (bool, error) {
		return true, errs[attempt]
	})

	require.ErrorIs(t, err, errs[1])
	assert.Equal(t, []time.Duration{0}, sleeps)
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
}
