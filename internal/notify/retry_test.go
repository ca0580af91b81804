package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicyStopsOnPermanentError(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.Sleep = func(context.Context, time.Duration) error { return nil }

	permanent := errors.New("bad request")
	attempts, err := policy.Execute(context.Background(), func(context.Context) error {
		return permanent
	})
	require.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, attempts)
}

func TestRetryPolicyExhaustsSchedule(t *testing.T) {
	policy := DefaultRetryPolicy()
	var slept []time.Duration
	policy.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	attempts, err := policy.Execute(context.Background(), func(context.Context) error {
		return Transient(errors.New("unavailable"))
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, slept)
}

func TestRetryPolicyStopsWhenContextCancelled(t *testing.T) {
	policy := DefaultRetryPolicy()
	ctx, cancel := context.WithCancel(context.Background())

	attempts, err := policy.Execute(ctx, func(context.Context) error {
		cancel()
		return Transient(errors.New("unavailable"))
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestMaxAttempts(t *testing.T) {
	assert.Equal(t, 3, DefaultRetryPolicy().MaxAttempts())
}
