// Package backoff provides the retry policy shared by the ledger client and
// the quote client's tier fallback.
package backoff

import (
	"context"
	"time"
)

// Policy is an exponential backoff schedule.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	// MaxDelay caps a single delay. Zero means no cap.
	MaxDelay time.Duration
}

// Default mirrors the ledger client's historical settings: four tries,
// starting at one second and doubling up to ten.
func Default() Policy {
	return Policy{
		MaxAttempts: 4,
		BaseDelay:   time.Second,
		Multiplier:  2,
		MaxDelay:    10 * time.Second,
	}
}

// Delay returns the wait before the given retry (attempt 1 is the first
// retry). Attempt 0 never waits.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 || p.BaseDelay <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		d *= mult
		if p.MaxDelay > 0 && d >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && time.Duration(d) > p.MaxDelay {
		return p.MaxDelay
	}
	return time.Duration(d)
}

// Sleeper waits for a duration or until ctx is done. Tests substitute a
// recorder.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Do calls fn until it succeeds, reports that the error is not retryable, or
// the attempts run out. fn receives the zero-based attempt number. The last
// error is returned unchanged so callers can classify it with errors.Is.
func (p Policy) Do(ctx context.Context, sleep Sleeper, fn func(attempt int) (retry bool, err error)) error {
	if sleep == nil {
		sleep = Sleep
	}
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, p.Delay(attempt)); err != nil {
				return err
			}
		}
		retry, err := fn(attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}
