package retry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/mbenali/docmigrate/pkg/store"
)

// scripted returns an operation that fails with each error in sequence,
// then succeeds, counting its invocations.
func scripted(calls *int, failures ...error) func() error {
	i := 0
	return func() error {
		*calls++
		if i < len(failures) {
			err := failures[i]
			i++
			return err
		}
		return nil
	}
}

func fastPolicy() Policy {
	return Policy{MaxAttempts: 3, BaseDelay: time.Millisecond}
}

func TestDoSucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := fastPolicy().Do(context.Background(), scripted(&calls))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesTransientThenSucceeds(t *testing.T) {
	transient := store.NewTransient("upsert", errors.New("timeout"))
	calls := 0
	err := fastPolicy().Do(context.Background(), scripted(&calls, transient, transient))
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	transient := store.NewTransient("upsert", errors.New("throttled"))
	calls := 0
	err := fastPolicy().Do(context.Background(), scripted(&calls, transient, transient, transient, transient))
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, transient)
}

func TestDoDoesNotRetryPermanent(t *testing.T) {
	permanent := store.NewPermanent("upsert", errors.New("unauthorized"))
	calls := 0
	err := fastPolicy().Do(context.Background(), scripted(&calls, permanent))
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoDoesNotRetryUnclassified(t *testing.T) {
	plain := errors.New("boom")
	calls := 0
	err := fastPolicy().Do(context.Background(), scripted(&calls, plain))
	assert.ErrorIs(t, err, plain)
	assert.Equal(t, 1, calls)
}

func TestDoCancelledDuringBackoff(t *testing.T) {
	transient := store.NewTransient("upsert", errors.New("timeout"))
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	op := func() error {
		calls++
		cancel() // cancel while the policy is backing off
		return transient
	}

	err := Policy{MaxAttempts: 3, BaseDelay: time.Minute}.Do(ctx, op)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoZeroValueUsesDefaults(t *testing.T) {
	permanent := store.NewPermanent("upsert", errors.New("bad record"))
	calls := 0
	err := Policy{}.Do(context.Background(), scripted(&calls, permanent))
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestBackoffDelay(t *testing.T) {
	base := 250 * time.Millisecond
	assert.Equal(t, base, backoffDelay(base, 2, false))
	assert.Equal(t, 2*base, backoffDelay(base, 3, false))
	assert.Equal(t, 4*base, backoffDelay(base, 4, false))

	// Jitter adds at most half the deterministic delay.
	for range 50 {
		d := backoffDelay(base, 3, true)
		assert.GreaterOrEqual(t, d, 2*base)
		assert.LessOrEqual(t, d, 3*base)
	}
}
