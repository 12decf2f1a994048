package inference

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/steveyegge/dupsweep/internal/embedding"
)

// CircuitState represents the state of a circuit breaker
type CircuitState int

const (
	CircuitClosed   CircuitState = iota // Normal operation, requests pass through
	CircuitOpen                         // Too many failures, block requests (fail fast)
	CircuitHalfOpen                     // Testing recovery, allow limited requests
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// ErrCircuitOpen is returned when the circuit breaker is open
var ErrCircuitOpen = errors.New("circuit breaker is open")

// StateChangeFunc is called after every circuit breaker transition.
type StateChangeFunc func(from, to CircuitState, failures int)

// CircuitBreaker stops sending requests to a model server that keeps failing
type CircuitBreaker struct {
	mu sync.Mutex

	state            CircuitState
	failureCount     int
	successCount     int
	lastFailureTime  time.Time
	lastStateChange  time.Time
	failureThreshold int
	successThreshold int
	openTimeout      time.Duration

	onChange StateChangeFunc
	now      func() time.Time
}

// NewCircuitBreaker creates a new circuit breaker with the given configuration
func NewCircuitBreaker(failureThreshold, successThreshold int, openTimeout time.Duration, onChange StateChangeFunc) *CircuitBreaker {
	return &CircuitBreaker{
		state:            CircuitClosed,
		failureThreshold: failureThreshold,
		successThreshold: successThreshold,
		openTimeout:      openTimeout,
		lastStateChange:  time.Now(),
		onChange:         onChange,
		now:              time.Now,
	}
}

// Allow checks if a request should be allowed through the circuit breaker.
// Returns ErrCircuitOpen if the circuit is open and hasn't timed out yet.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	var change *transition
	var err error

	switch cb.state {
	case CircuitClosed, CircuitHalfOpen:
	case CircuitOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.openTimeout {
			change = cb.transitionTo(CircuitHalfOpen)
		} else {
			err = ErrCircuitOpen
		}
	default:
		err = ErrCircuitOpen
	}
	cb.mu.Unlock()

	cb.notify(change)
	return err
}

// RecordSuccess records a successful request
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	var change *transition

	switch cb.state {
	case CircuitClosed:
		cb.failureCount = 0
	case CircuitHalfOpen:
		cb.successCount++
		if cb.successCount >= cb.successThreshold {
			change = cb.transitionTo(CircuitClosed)
		}
	}
	cb.mu.Unlock()

	cb.notify(change)
}

// RecordFailure records a failed request
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	var change *transition

	cb.lastFailureTime = cb.now()
	switch cb.state {
	case CircuitClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			change = cb.transitionTo(CircuitOpen)
		}
	case CircuitHalfOpen:
		// Any failure in half-open immediately opens the circuit
		change = cb.transitionTo(CircuitOpen)
	}
	cb.mu.Unlock()

	cb.notify(change)
}

// GetState returns the current state
func (cb *CircuitBreaker) GetState() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// GetMetrics returns current metrics (for monitoring/logging)
func (cb *CircuitBreaker) GetMetrics() (state CircuitState, failures, successes int) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state, cb.failureCount, cb.successCount
}

type transition struct {
	from, to CircuitState
	failures int
}

// transitionTo must be called with the lock held.
func (cb *CircuitBreaker) transitionTo(state CircuitState) *transition {
	t := &transition{from: cb.state, to: state, failures: cb.failureCount}
	cb.state = state
	cb.successCount = 0
	if state == CircuitClosed {
		cb.failureCount = 0
	}
	cb.lastStateChange = cb.now()
	return t
}

func (cb *CircuitBreaker) notify(t *transition) {
	if t != nil && cb.onChange != nil {
		cb.onChange(t.from, t.to, t.failures)
	}
}

// Retrying wraps an Inferencer with retry, exponential backoff and an
// optional circuit breaker.
type Retrying struct {
	next    embedding.Inferencer
	cfg     RetryConfig
	breaker *CircuitBreaker // nil when disabled

	// OnRetry, if set, is called before sleeping between attempts.
	OnRetry func(attempt int, wait time.Duration, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

var _ embedding.Inferencer = (*Retrying)(nil)

// NewRetrying wraps next. onChange may be nil.
func NewRetrying(next embedding.Inferencer, cfg RetryConfig, onChange StateChangeFunc) (*Retrying, error) {
	if next == nil {
		return nil, fmt.Errorf("inferencer is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid retry config: %w", err)
	}

	r := &Retrying{next: next, cfg: cfg, sleep: sleepCtx}
	if cfg.CircuitBreakerEnabled {
		r.breaker = NewCircuitBreaker(cfg.FailureThreshold, cfg.SuccessThreshold, cfg.OpenTimeout, onChange)
	}
	return r, nil
}

// Breaker returns the circuit breaker, or nil if it is disabled.
func (r *Retrying) Breaker() *CircuitBreaker {
	return r.breaker
}

// Infer calls the wrapped inferencer until it succeeds, fails with a
// non-retriable error, or runs out of attempts.
func (r *Retrying) Infer(ctx context.Context, t embedding.Tensor) ([]float32, error) {
	var lastErr error
	backoff := r.cfg.InitialBackoff

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if r.breaker != nil {
			if err := r.breaker.Allow(); err != nil {
				return nil, fmt.Errorf("inference blocked: %w", err)
			}
		}

		out, err := r.attempt(ctx, t)
		if err == nil {
			if r.breaker != nil {
				r.breaker.RecordSuccess()
			}
			return out, nil
		}
		lastErr = err

		// Non-retriable errors (bad payloads, 4xx) don't count against the breaker
		if !isRetriableError(err) {
			return nil, err
		}
		if r.breaker != nil {
			r.breaker.RecordFailure()
		}

		if attempt == r.cfg.MaxRetries {
			break
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("inference canceled: %w", ctx.Err())
		}

		if r.OnRetry != nil {
			r.OnRetry(attempt+1, backoff, err)
		}
		if err := r.sleep(ctx, backoff); err != nil {
			return nil, fmt.Errorf("inference canceled during backoff: %w", err)
		}
		backoff = time.Duration(float64(backoff) * r.cfg.BackoffMultiplier)
		if backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}

	return nil, fmt.Errorf("inference failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}

func (r *Retrying) attempt(ctx context.Context, t embedding.Tensor) ([]float32, error) {
	if r.cfg.Timeout <= 0 {
		return r.next.Infer(ctx, t)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	return r.next.Infer(attemptCtx, t)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
