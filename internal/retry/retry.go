// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package retry provides the single retry policy shared by every stage
// that talks to an external service.
package retry

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/lycheng/paperboy/pkg/types"
)

// BaseDelay is the default first backoff interval; it doubles each
// attempt. Tests override this to avoid real sleeps.
var BaseDelay = time.Second

const defaultMaxAttempts = 3

// Policy describes how an operation is retried: how many times, with
// what backoff, and which errors are worth retrying at all.
type Policy struct {
	// MaxAttempts is the total number of tries, including the first.
	MaxAttempts int

	// BaseDelay is the first backoff interval. Zero means the package
	// default.
	BaseDelay time.Duration

	// Retriable reports whether err is transient. Nil means every
	// error is retriable.
	Retriable func(error) bool
}

// FromConfig builds a Policy from stage configuration, applying defaults.
func FromConfig(cfg types.RetryConfig, retriable func(error) bool) Policy {
	return Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		Retriable:   retriable,
	}
}

// Do runs fn until it succeeds, returns a non-retriable error, or the
// attempt budget is spent. Backoff doubles per attempt: base, 2*base,
// 4*base. A context cancellation during a backoff wait returns ctx.Err();
// non-retriable errors are returned unwrapped so callers can classify them.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = BaseDelay
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(math.Pow(2, float64(attempt-1))) * base
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		err := fn()
		if err == nil {
			return nil
		}
		if p.Retriable != nil && !p.Retriable(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("after %d attempts: %w", maxAttempts, lastErr)
}
