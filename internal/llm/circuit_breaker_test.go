package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCircuitBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	cb := NewCircuitBreakerWithConfig("test", CircuitBreakerConfig{MaxFailures: 3})
	ctx := context.Background()
	boom := errors.New("provider down")

	for i := 0; i < 3; i++ {
		_, err := cb.Execute(ctx, func() (interface{}, error) { return nil, boom })
		assert.ErrorIs(t, err, boom)
	}
	assert.Equal(t, "open", cb.State())

	_, err := cb.Execute(ctx, func() (interface{}, error) { return "ok", nil })
	assert.ErrorIs(t, err, ErrCircuitOpen)
}

func TestCircuitBreaker_PassesThroughWhenClosed(t *testing.T) {
	cb := NewCircuitBreaker("test")
	result, err := cb.Execute(context.Background(), func() (interface{}, error) {
		return "hello", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "hello", result)
	assert.Equal(t, "closed", cb.State())
}

func TestCircuitBreaker_RespectsCancelledContext(t *testing.T) {
	cb := NewCircuitBreaker("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := cb.Execute(ctx, func() (interface{}, error) { return "never", nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWithRetry(t *testing.T) {
	ctx := context.Background()

	calls := 0
	err := withRetry(ctx, 3, time.Millisecond, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	// Open circuit short-circuits the retry loop.
	calls = 0
	err = withRetry(ctx, 3, time.Millisecond, func() error {
		calls++
		return ErrCircuitOpen
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 1, calls)
}
