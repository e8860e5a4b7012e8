package biz

import (
	"context"
	"sync"
	"time"

	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// BreakerState represents the circuit breaker state.
type BreakerState int

const (
	// StateClosed is the normal operating state. Calls flow through.
	StateClosed BreakerState = iota
	// StateOpen is the tripped state. Calls are rejected immediately.
	StateOpen
	// StateHalfOpen is the recovery probing state.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Clock abstracts time for breaker and retry tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// BreakerConfig holds circuit breaker tuning.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive tripping failures
	// that opens the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long an open circuit rejects calls before
	// allowing a half-open probe, measured from the last attempt.
	RecoveryTimeout time.Duration
	// TripKinds lists the failure kinds that count toward tripping.
	// Failures of other kinds still propagate and still count in the
	// raw metrics, but never open the circuit.
	TripKinds map[model.FailureKind]bool
	// Clock is injectable for tests; nil means the wall clock.
	Clock Clock
	// OnOpen and OnClose are notified on state transitions. Both are
	// optional and must not block; they run with the breaker locked.
	OnOpen  func(model.CircuitOpenedEvent)
	OnClose func(model.CircuitClosedEvent)
}

// DefaultTripKinds returns the trip set used when none is configured:
// rate limits, server errors and unclassified transient failures trip
// the breaker; permission and not-found failures are caller errors and
// never do.
func DefaultTripKinds() map[model.FailureKind]bool {
	return map[model.FailureKind]bool{
		model.FailureUnknown:     true,
		model.FailureRateLimited: true,
		model.FailureServerError: true,
	}
}

// BreakerMetrics is an immutable snapshot of a breaker's counters.
type BreakerMetrics struct {
	OperationType       model.OperationType `json:"operation_type"`
	State               string              `json:"state"`
	TotalRequests       int64               `json:"total_requests"`
	SuccessfulRequests  int64               `json:"successful_requests"`
	FailedRequests      int64               `json:"failed_requests"`
	ConsecutiveFailures int                 `json:"consecutive_failures"`
	LastFailureTime     time.Time           `json:"last_failure_time,omitzero"`
	LastAttemptTime     time.Time           `json:"last_attempt_time,omitzero"`
}

// CircuitBreaker guards one operation class of Discord calls. One
// breaker exists per operation type, shared process-wide: a spike of
// failures in one guild trips the breaker for all guilds, trading
// per-guild isolation for fleet-wide protection. Safe for concurrent
// use.
type CircuitBreaker struct {
	op         model.OperationType
	cfg        BreakerConfig
	classifier model.FailureClassifier
	logger     *log.Helper

	mu                  sync.Mutex
	state               BreakerState
	totalRequests       int64
	successfulRequests  int64
	failedRequests      int64
	consecutiveFailures int
	lastFailureTime     time.Time
	lastAttemptTime     time.Time
}

// NewCircuitBreaker creates a breaker for one operation type.
func NewCircuitBreaker(op model.OperationType, cfg BreakerConfig, classifier model.FailureClassifier, logger log.Logger) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.RecoveryTimeout <= 0 {
		cfg.RecoveryTimeout = 60 * time.Second
	}
	if cfg.TripKinds == nil {
		cfg.TripKinds = DefaultTripKinds()
	}
	if cfg.Clock == nil {
		cfg.Clock = realClock{}
	}
	return &CircuitBreaker{
		op:         op,
		cfg:        cfg,
		classifier: classifier,
		logger:     log.NewHelper(logger),
		state:      StateClosed,
	}
}

// Call runs fn once under breaker protection. While the circuit is
// open and the recovery timeout has not elapsed since the last
// attempt, Call fails fast with model.ErrCircuitOpen without invoking
// fn. An open circuit whose timeout has elapsed transitions to
// half-open before the attempt.
func (b *CircuitBreaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allow(); err != nil {
		return err
	}

	err := fn(ctx)

	b.record(err)
	return err
}

func (b *CircuitBreaker) allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.cfg.Clock.Now()

	if b.state == StateOpen {
		if now.Sub(b.lastAttemptTime) < b.cfg.RecoveryTimeout {
			return model.ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
	}

	b.lastAttemptTime = now
	return nil
}

func (b *CircuitBreaker) record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalRequests++

	if err == nil {
		b.successfulRequests++
		b.consecutiveFailures = 0
		if b.state == StateHalfOpen {
			b.transition(StateClosed)
		}
		return
	}

	b.failedRequests++
	b.lastFailureTime = b.cfg.Clock.Now()

	kind := model.FailureUnknown
	if b.classifier != nil {
		kind = b.classifier.Classify(err)
	}
	if !b.cfg.TripKinds[kind] {
		// Non-tripping failure: counted above, propagated by Call,
		// but the trip counter is untouched.
		return
	}

	b.consecutiveFailures++

	switch {
	case b.state == StateHalfOpen:
		b.transition(StateOpen)
	case b.state == StateClosed && b.consecutiveFailures >= b.cfg.FailureThreshold:
		b.transition(StateOpen)
	}
}

// transition must be called with b.mu held.
func (b *CircuitBreaker) transition(to BreakerState) {
	if b.state == to {
		return
	}
	from := b.state
	b.state = to

	switch to {
	case StateOpen:
		b.logger.Warnw("circuit breaker opened",
			"operation_type", b.op,
			"from", from.String(),
			"consecutive_failures", b.consecutiveFailures)
		if b.cfg.OnOpen != nil {
			b.cfg.OnOpen(model.CircuitOpenedEvent{
				OperationType:       b.op,
				ConsecutiveFailures: b.consecutiveFailures,
				OpenedAt:            b.cfg.Clock.Now(),
			})
		}
	case StateClosed:
		b.logger.Infow("circuit breaker closed",
			"operation_type", b.op,
			"from", from.String())
		if b.cfg.OnClose != nil {
			b.cfg.OnClose(model.CircuitClosedEvent{
				OperationType: b.op,
				ClosedAt:      b.cfg.Clock.Now(),
			})
		}
	case StateHalfOpen:
		b.logger.Infow("circuit breaker half-open, probing",
			"operation_type", b.op)
	}
}

// State returns the current state.
func (b *CircuitBreaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// GetMetrics returns an immutable snapshot of the breaker's counters.
func (b *CircuitBreaker) GetMetrics() BreakerMetrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerMetrics{
		OperationType:       b.op,
		State:               b.state.String(),
		TotalRequests:       b.totalRequests,
		SuccessfulRequests:  b.successfulRequests,
		FailedRequests:      b.failedRequests,
		ConsecutiveFailures: b.consecutiveFailures,
		LastFailureTime:     b.lastFailureTime,
		LastAttemptTime:     b.lastAttemptTime,
	}
}

// Reset manually closes the circuit and zeroes the trip counter.
// Operational escape hatch; counters other than the trip counter are
// preserved.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutiveFailures = 0
	b.transition(StateClosed)
}
