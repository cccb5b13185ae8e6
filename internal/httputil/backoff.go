// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package httputil

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Policy bounds a retry loop: at most Attempts calls, waiting Backoff[i]
// after failed attempt i. When Backoff is shorter than the number of waits,
// its last entry is reused; an empty Backoff retries immediately.
type Policy struct {
	Attempts int
	Backoff  []time.Duration
}

// Fixed returns a policy of attempts calls separated by the same wait.
func Fixed(attempts int, wait time.Duration) Policy {
	return Policy{Attempts: attempts, Backoff: []time.Duration{wait}}
}

// delay returns the wait after the given zero-based failed attempt.
func (p Policy) delay(attempt int) time.Duration {
	if len(p.Backoff) == 0 {
		return 0
	}
	if attempt < len(p.Backoff) {
		return p.Backoff[attempt]
	}
	return p.Backoff[len(p.Backoff)-1]
}

// ErrPermanent wraps errors that must not be retried.
var ErrPermanent = errors.New("permanent failure")

// Permanent marks err so Retry stops immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// Retry calls fn until it succeeds, returns a Permanent error, the context
// ends, or the policy's attempts are used up. onFailure, when non-nil, is
// called after every failed attempt with the one-based attempt number. The
// last error is returned, wrapped with the attempt count.
func Retry[T any](ctx context.Context, p Policy, fn func(ctx context.Context, attempt int) (T, error), onFailure func(attempt int, err error)) (T, error) {
	var zero T
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	made := 0
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		made = attempt
		v, err := fn(ctx, attempt)
		if err == nil {
			return v, nil
		}
		lastErr = err
		if onFailure != nil {
			onFailure(attempt, err)
		}
		if errors.Is(err, ErrPermanent) || ctx.Err() != nil {
			break
		}
		if attempt < attempts {
			if err := Sleep(ctx, p.delay(attempt-1)); err != nil {
				return zero, err
			}
		}
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return zero, ctxErr
	}
	return zero, fmt.Errorf("after %d attempt(s): %w", made, lastErr)
}
