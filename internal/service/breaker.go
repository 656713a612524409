package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/luxsync/selene/internal/domain"
	"go.uber.org/zap"
)

// Resilience defaults
const (
	defaultFailureThreshold = 3
	defaultSuccessThreshold = 2
	defaultRecoveryTimeout  = 30 * time.Second

	defaultGuardTimeout  = 5 * time.Second
	defaultMaxConcurrent = 5
)

// Guard errors. Hitting the concurrency cap is a hard failure, not a queue.
var (
	ErrTooManyEvaluations = errors.New("too many concurrent evaluations")
	ErrEvaluationTimeout  = errors.New("evaluation timed out")
)

// CircuitBreaker isolates a failing subsystem: CLOSED counts consecutive
// failures, OPEN blocks until the recovery timeout, HALF_OPEN lets probes
// through until enough successes close it again (or one failure reopens it).
type CircuitBreaker struct {
	logger *zap.Logger

	failureThreshold int
	successThreshold int
	recoveryTimeout  time.Duration

	mu          sync.Mutex
	state       domain.BreakerState
	failures    int
	successes   int
	lastFailure time.Time
	lastSuccess time.Time
}

func NewCircuitBreaker(logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		logger:           logger,
		failureThreshold: defaultFailureThreshold,
		successThreshold: defaultSuccessThreshold,
		recoveryTimeout:  defaultRecoveryTimeout,
		state:            domain.BreakerClosed,
	}
}

// CanProceed is the only gate callers consult. Polling it also performs the
// time-based OPEN to HALF_OPEN transition.
func (b *CircuitBreaker) CanProceed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case domain.BreakerClosed, domain.BreakerHalfOpen:
		return true
	case domain.BreakerOpen:
		if time.Since(b.lastFailure) >= b.recoveryTimeout {
			b.state = domain.BreakerHalfOpen
			b.successes = 0
			b.logger.Info("circuit breaker half-open, probing recovery")
			return true
		}
		return false
	}
	return false
}

// RecordSuccess advances HALF_OPEN toward CLOSED and clears failure counts.
func (b *CircuitBreaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastSuccess = time.Now()
	switch b.state {
	case domain.BreakerHalfOpen:
		b.successes++
		if b.successes >= b.successThreshold {
			b.state = domain.BreakerClosed
			b.failures = 0
			b.successes = 0
			b.logger.Info("circuit breaker closed")
		}
	case domain.BreakerClosed:
		b.failures = 0
	}
}

// RecordFailure trips the breaker after enough consecutive failures, and
// reopens immediately on any HALF_OPEN failure.
func (b *CircuitBreaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailure = time.Now()
	switch b.state {
	case domain.BreakerHalfOpen:
		b.state = domain.BreakerOpen
		b.successes = 0
		b.logger.Warn("circuit breaker reopened during recovery probe")
	case domain.BreakerClosed:
		b.failures++
		if b.failures >= b.failureThreshold {
			b.state = domain.BreakerOpen
			b.logger.Warn("circuit breaker opened",
				zap.Int("consecutive_failures", b.failures))
		}
	}
}

// State returns the current breaker state.
func (b *CircuitBreaker) State() domain.BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Healthy reports whether calls are currently allowed without a probe.
func (b *CircuitBreaker) Healthy() bool {
	return b.State() != domain.BreakerOpen
}

// SetRecoveryTimeout overrides the recovery timeout. Intended for tests.
func (b *CircuitBreaker) SetRecoveryTimeout(d time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recoveryTimeout = d
}

// Reset restores the closed state. Intended for tests.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = domain.BreakerClosed
	b.failures = 0
	b.successes = 0
}

// ConcurrencyGuard bounds in-flight operations and races each one against
// a deadline. The active count is always released via defer, whichever
// side of the race settles first.
type ConcurrencyGuard struct {
	timeout time.Duration
	slots   chan struct{}
}

func NewConcurrencyGuard() *ConcurrencyGuard {
	return &ConcurrencyGuard{
		timeout: defaultGuardTimeout,
		slots:   make(chan struct{}, defaultMaxConcurrent),
	}
}

// SetTimeout overrides the per-operation deadline. Intended for tests.
func (g *ConcurrencyGuard) SetTimeout(d time.Duration) {
	g.timeout = d
}

// Active returns the number of operations currently in flight.
func (g *ConcurrencyGuard) Active() int {
	return len(g.slots)
}

// Run executes fn under the guard. Returns ErrTooManyEvaluations when the
// concurrency cap is already reached and ErrEvaluationTimeout when fn does
// not settle before the deadline.
func (g *ConcurrencyGuard) Run(ctx context.Context, fn func(context.Context) error) error {
	select {
	case g.slots <- struct{}{}:
	default:
		return ErrTooManyEvaluations
	}
	defer func() { <-g.slots }()

	opCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- fn(opCtx) }()

	select {
	case err := <-done:
		return err
	case <-opCtx.Done():
		if errors.Is(opCtx.Err(), context.DeadlineExceeded) {
			return ErrEvaluationTimeout
		}
		return opCtx.Err()
	}
}
