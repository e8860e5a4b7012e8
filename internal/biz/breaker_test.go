package biz

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Sentinel errors used across the biz tests, each mapped onto one
// failure kind by the stub classifier.
var (
	errPermission  = errors.New("missing permissions")
	errNotFound    = errors.New("unknown member")
	errRateLimited = errors.New("rate limited")
	errServer      = errors.New("internal server error")
	errTransient   = errors.New("connection reset")
)

// stubClassifier maps the sentinel errors above onto failure kinds.
type stubClassifier struct {
	hints map[error]time.Duration
}

func (c *stubClassifier) Classify(err error) model.FailureKind {
	switch {
	case errors.Is(err, errPermission):
		return model.FailurePermission
	case errors.Is(err, errNotFound):
		return model.FailureNotFound
	case errors.Is(err, errRateLimited):
		return model.FailureRateLimited
	case errors.Is(err, errServer):
		return model.FailureServerError
	default:
		return model.FailureUnknown
	}
}

func (c *stubClassifier) RetryAfter(err error) (time.Duration, bool) {
	for target, hint := range c.hints {
		if errors.Is(err, target) {
			return hint, true
		}
	}
	return 0, false
}

// fakeClock is a manually advanced clock for breaker and retry tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(clock Clock, threshold int, recovery time.Duration) *CircuitBreaker {
	logger := log.NewStdLogger(os.Stdout)
	return NewCircuitBreaker(model.OpBanKick, BreakerConfig{
		FailureThreshold: threshold,
		RecoveryTimeout:  recovery,
		Clock:            clock,
	}, &stubClassifier{}, logger)
}

func TestCircuitBreaker_StaysClosedBelowThreshold(t *testing.T) {
	br := newTestBreaker(newFakeClock(), 3, time.Minute)
	ctx := context.Background()

	// Two failures with a threshold of three: still closed.
	for i := 0; i < 2; i++ {
		err := br.Call(ctx, func(ctx context.Context) error { return errServer })
		assert.ErrorIs(t, err, errServer)
	}
	assert.Equal(t, StateClosed, br.State())
}

func TestCircuitBreaker_OpensExactlyAtThreshold(t *testing.T) {
	br := newTestBreaker(newFakeClock(), 3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_ = br.Call(ctx, func(ctx context.Context) error { return errServer })
	}
	assert.Equal(t, StateOpen, br.State())
}

func TestCircuitBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	clock := newFakeClock()
	br := newTestBreaker(clock, 1, time.Minute)
	ctx := context.Background()

	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })
	require.Equal(t, StateOpen, br.State())

	called := false
	err := br.Call(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, model.ErrCircuitOpen)
	assert.False(t, called, "open breaker must not invoke the wrapped call")
}

func TestCircuitBreaker_SuccessResetsConsecutiveCount(t *testing.T) {
	br := newTestBreaker(newFakeClock(), 3, time.Minute)
	ctx := context.Background()

	// Two failures, a success, then two more failures: the success
	// resets the streak, so the breaker must stay closed.
	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })
	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })
	require.NoError(t, br.Call(ctx, func(ctx context.Context) error { return nil }))
	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })
	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })

	assert.Equal(t, StateClosed, br.State())
}

func TestCircuitBreaker_HalfOpenAfterRecoveryTimeout(t *testing.T) {
	clock := newFakeClock()
	br := newTestBreaker(clock, 1, time.Minute)
	ctx := context.Background()

	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })
	require.Equal(t, StateOpen, br.State())

	// Just inside the window the call is rejected without running.
	clock.Advance(59 * time.Second)
	err := br.Call(ctx, func(ctx context.Context) error { return nil })
	require.ErrorIs(t, err, model.ErrCircuitOpen)

	// The rejection does not restart the window: one more second
	// completes the timeout since the last attempted call and the
	// next call probes half-open.
	clock.Advance(time.Second)
	err = br.Call(ctx, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
	assert.Equal(t, StateClosed, br.State())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	clock := newFakeClock()
	br := newTestBreaker(clock, 1, time.Minute)
	ctx := context.Background()

	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })
	require.Equal(t, StateOpen, br.State())

	clock.Advance(time.Minute)
	err := br.Call(ctx, func(ctx context.Context) error { return errServer })
	assert.ErrorIs(t, err, errServer)
	assert.Equal(t, StateOpen, br.State())
}

func TestCircuitBreaker_EmitsTransitionEvents(t *testing.T) {
	clock := newFakeClock()
	var opened []model.CircuitOpenedEvent
	var closed []model.CircuitClosedEvent

	br := NewCircuitBreaker(model.OpTimeout, BreakerConfig{
		FailureThreshold: 2,
		RecoveryTimeout:  time.Minute,
		Clock:            clock,
		OnOpen:           func(ev model.CircuitOpenedEvent) { opened = append(opened, ev) },
		OnClose:          func(ev model.CircuitClosedEvent) { closed = append(closed, ev) },
	}, &stubClassifier{}, log.NewStdLogger(os.Stdout))
	ctx := context.Background()

	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })
	assert.Empty(t, opened, "no event below the threshold")

	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })
	require.Len(t, opened, 1)
	assert.Equal(t, model.OpTimeout, opened[0].OperationType)
	assert.Equal(t, 2, opened[0].ConsecutiveFailures)
	assert.Equal(t, clock.Now(), opened[0].OpenedAt)
	assert.Empty(t, closed)

	clock.Advance(time.Minute)
	err := br.Call(ctx, func(ctx context.Context) error { return nil })
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, model.OpTimeout, closed[0].OperationType)
	assert.Len(t, opened, 1, "recovery emits no extra open event")
}

func TestCircuitBreaker_NonTrippingFailuresNeverOpen(t *testing.T) {
	br := newTestBreaker(newFakeClock(), 2, time.Minute)
	ctx := context.Background()

	// Permission and not-found failures propagate but never trip.
	for i := 0; i < 10; i++ {
		err := br.Call(ctx, func(ctx context.Context) error { return errPermission })
		assert.ErrorIs(t, err, errPermission)
	}
	for i := 0; i < 10; i++ {
		err := br.Call(ctx, func(ctx context.Context) error { return errNotFound })
		assert.ErrorIs(t, err, errNotFound)
	}
	assert.Equal(t, StateClosed, br.State())

	metrics := br.GetMetrics()
	assert.Equal(t, int64(20), metrics.FailedRequests)
	assert.Equal(t, 0, metrics.ConsecutiveFailures)
}

func TestCircuitBreaker_RateLimitAndUnknownTrip(t *testing.T) {
	for _, failure := range []error{errRateLimited, errTransient, errServer} {
		br := newTestBreaker(newFakeClock(), 2, time.Minute)
		ctx := context.Background()

		_ = br.Call(ctx, func(ctx context.Context) error { return failure })
		_ = br.Call(ctx, func(ctx context.Context) error { return failure })
		assert.Equal(t, StateOpen, br.State(), "failure %v should trip the breaker", failure)
	}
}

func TestCircuitBreaker_Metrics(t *testing.T) {
	clock := newFakeClock()
	br := newTestBreaker(clock, 5, time.Minute)
	ctx := context.Background()

	require.NoError(t, br.Call(ctx, func(ctx context.Context) error { return nil }))
	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })
	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })

	m := br.GetMetrics()
	assert.Equal(t, model.OpBanKick, m.OperationType)
	assert.Equal(t, "closed", m.State)
	assert.Equal(t, int64(3), m.TotalRequests)
	assert.Equal(t, int64(1), m.SuccessfulRequests)
	assert.Equal(t, int64(2), m.FailedRequests)
	assert.Equal(t, 2, m.ConsecutiveFailures)
	assert.Equal(t, clock.Now(), m.LastFailureTime)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	br := newTestBreaker(newFakeClock(), 1, time.Hour)
	ctx := context.Background()

	_ = br.Call(ctx, func(ctx context.Context) error { return errServer })
	require.Equal(t, StateOpen, br.State())

	br.Reset()
	assert.Equal(t, StateClosed, br.State())

	// Calls flow again without waiting for the recovery timeout.
	err := br.Call(ctx, func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestCircuitBreaker_ConcurrentCalls(t *testing.T) {
	br := newTestBreaker(newFakeClock(), 1000, time.Minute)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_ = br.Call(ctx, func(ctx context.Context) error { return nil })
			}
		}()
	}
	wg.Wait()

	m := br.GetMetrics()
	assert.Equal(t, int64(1000), m.TotalRequests)
	assert.Equal(t, int64(1000), m.SuccessfulRequests)
}
