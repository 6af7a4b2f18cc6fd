// Package retry wraps a single store operation with bounded
// exponential-backoff retry. Only failures classified as transient are
// retried; permanent failures propagate immediately.
package retry

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/mbenali/docmigrate/pkg/store"
)

const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
)

// Policy describes how one operation is retried. The zero value behaves
// like Default.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Jitter      bool
}

// Default returns the standard policy: three attempts, one-second base
// delay, no jitter.
func Default() Policy {
	return Policy{MaxAttempts: DefaultMaxAttempts, BaseDelay: DefaultBaseDelay}
}

// ExhaustedError reports that every attempt failed transiently. It carries
// the last underlying failure.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("retries exhausted after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Do runs op until it succeeds, fails permanently, or attempts run out.
// A succeeded op is never re-run. The backoff before attempt k doubles from
// BaseDelay and the sleep is cancellable through ctx; cancellation returns
// ctx's error without another attempt.
func (p Policy) Do(ctx context.Context, op func() error) error {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}

	var last error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			if err := sleep(ctx, backoffDelay(base, attempt, p.Jitter)); err != nil {
				return err
			}
		}
		err := op()
		if err == nil {
			return nil
		}
		if !store.IsTransient(err) {
			return err
		}
		last = err
	}
	return &ExhaustedError{Attempts: maxAttempts, Last: last}
}

// backoffDelay is the wait before attempt k (k >= 2): base * 2^(k-2),
// plus up to 50% jitter when enabled.
func backoffDelay(base time.Duration, attempt int, jitter bool) time.Duration {
	d := base << (attempt - 2)
	if jitter {
		d += rand.N(d/2 + 1)
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
