// Package retry provides the single bounded exponential-backoff policy shared
// by embedding, LLM and action handler calls.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/anishgillella/Voice-Receptionist/pkg/utils/logging"
)

// Policy controls retry behaviour.
type Policy struct {
	// MaxAttempts is the total number of attempts including the first.
	// Zero or negative values are treated as 1.
	MaxAttempts int
	// InitialDelay is the wait before the second attempt; it doubles up to MaxDelay.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ShouldRetry classifies errors as retryable. When nil, every error is retried.
	ShouldRetry func(err error) bool
}

// DefaultPolicy is used for short-lived calls to external services.
var DefaultPolicy = Policy{
	MaxAttempts:  3,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     5 * time.Second,
}

// NoRetry runs the function once.
var NoRetry = Policy{MaxAttempts: 1}

// Do calls fn until it succeeds, the policy gives up, or ctx is done. The
// error from the last attempt is returned.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 1
	}
	if p.InitialDelay <= 0 {
		p.InitialDelay = DefaultPolicy.InitialDelay
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = DefaultPolicy.MaxDelay
	}
	shouldRetry := p.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = func(error) bool { return true }
	}

	delay := p.InitialDelay
	var lastErr error

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return errors.Join(lastErr, err)
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !shouldRetry(lastErr) || attempt == p.MaxAttempts {
			return lastErr
		}

		logging.From(ctx).Debug("attempt failed, retrying",
			"attempt", attempt,
			"max", p.MaxAttempts,
			"delay", delay,
			"error", lastErr,
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return errors.Join(lastErr, ctx.Err())
		case <-timer.C:
		}

		delay *= 2
		if delay > p.MaxDelay {
			delay = p.MaxDelay
		}
	}

	return lastErr
}

// On returns a copy of p that retries only errors matching one of targets.
func (p Policy) On(targets ...error) Policy {
	p.ShouldRetry = func(err error) bool {
		for _, target := range targets {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	}
	return p
}
