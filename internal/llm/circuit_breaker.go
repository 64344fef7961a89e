package llm

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker is open and rejects
// requests to prevent cascading failures.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitBreakerConfig holds the configuration for a provider circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures required to trip
	// the circuit. Default: 3.
	MaxFailures uint32

	// Timeout is the duration the circuit stays open before transitioning
	// to half-open. Default: 30 seconds.
	Timeout time.Duration

	// HalfOpenMaxSuccesses is the number of consecutive successes required
	// in half-open state to close the circuit again. Default: 2.
	HalfOpenMaxSuccesses uint32
}

// CircuitBreaker wraps gobreaker to protect provider calls. Closed passes
// requests through; after MaxFailures consecutive failures the circuit opens
// and rejects everything; after Timeout it goes half-open and test requests
// decide whether to close again.
type CircuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

// NewCircuitBreaker creates a circuit breaker with default configuration.
// The name shows up in state-transition logs, one breaker per provider.
func NewCircuitBreaker(name string) *CircuitBreaker {
	return NewCircuitBreakerWithConfig(name, CircuitBreakerConfig{})
}

// NewCircuitBreakerWithConfig creates a circuit breaker with custom settings.
// Zero-valued fields take their defaults.
func NewCircuitBreakerWithConfig(name string, config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures == 0 {
		config.MaxFailures = 3
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HalfOpenMaxSuccesses == 0 {
		config.HalfOpenMaxSuccesses = 2
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: config.HalfOpenMaxSuccesses,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= config.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Printf("llm: circuit breaker %s: %s -> %s", name, from, to)
		},
	}

	return &CircuitBreaker{breaker: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs the given function through the circuit breaker. If the circuit
// is open it returns ErrCircuitOpen immediately.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	result, err := cb.breaker.Execute(func() (interface{}, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}
	return result, nil
}

// State returns the current breaker state: "closed", "open" or "half-open".
func (cb *CircuitBreaker) State() string {
	switch cb.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// withRetry runs fn up to attempts times with jittered exponential backoff.
// It does not retry once the circuit is open or the context is done; the
// breaker is the backstop, the retry just smooths transient provider errors.
func withRetry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		if err = fn(); err == nil {
			return nil
		}
		if errors.Is(err, ErrCircuitOpen) || ctx.Err() != nil {
			return err
		}
		if i == attempts-1 {
			break
		}
		backoff := base << uint(i)
		backoff += time.Duration(rand.Int63n(int64(base)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return err
}
