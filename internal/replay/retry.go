package replay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rzbill/shardsink/internal/stream"
)

// Policy bounds the retry loop around every cursor-open and page-fetch call.
type Policy struct {
	// Base is the first backoff delay; it doubles after each retry.
	Base time.Duration
	// MaxRetries caps how many times a throttled call is retried.
	MaxRetries int
	// MaxElapsed caps the total time spent inside one retried call,
	// including backoff sleeps. Zero means no time bound.
	MaxElapsed time.Duration
}

// DefaultPolicy returns the built-in retry bounds.
func DefaultPolicy() Policy {
	return Policy{Base: 200 * time.Millisecond, MaxRetries: 5, MaxElapsed: 30 * time.Second}
}

// Terminal retry outcomes. Both wrap the last throttling error so callers
// can tell which bound tripped.
var (
	ErrRetriesExhausted = errors.New("replay: retries exhausted")
	ErrRetryTimeout     = errors.New("replay: retry window elapsed")
)

// retry invokes fn until it succeeds, fails fatally, or a bound trips.
// Throttling errors (per stream.Retryable) back off and retry; anything else
// returns immediately without consuming the remaining budget. Cancellation
// is observed between retries.
func retry(ctx context.Context, pol Policy, fn func() error) error {
	start := time.Now()
	delay := pol.Base
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !stream.Retryable(err) {
			return err
		}
		if pol.MaxElapsed > 0 && time.Since(start) >= pol.MaxElapsed {
			return fmt.Errorf("%w after %s: %w", ErrRetryTimeout, time.Since(start).Round(time.Millisecond), err)
		}
		if attempt >= pol.MaxRetries {
			return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt+1, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}
