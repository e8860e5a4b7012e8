package biz

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"
	"time"

	"tux/internal/conf"
	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// minBackoff is the floor applied to computed backoff delays so a
// misconfigured base delay can never produce a zero-length wait.
const minBackoff = 100 * time.Millisecond

// RetryConfig defines retry behavior for one operation type.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`
	BaseDelay     time.Duration `json:"base_delay"`
	MaxDelay      time.Duration `json:"max_delay"`
	BackoffFactor float64       `json:"backoff_factor"`
	Jitter        bool          `json:"jitter"`
}

// DefaultRetryConfig returns the config applied to operation types
// without an explicit override.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		BaseDelay:     time.Second,
		MaxDelay:      30 * time.Second,
		BackoffFactor: 2.0,
		Jitter:        true,
	}
}

// RetryHandler wraps Discord calls with bounded retry, exponential
// backoff with jitter, and a circuit breaker per operation type.
// Breakers and configs are created lazily on first use and live for
// the process lifetime. Safe for concurrent use.
type RetryHandler struct {
	classifier model.FailureClassifier
	audit      AuditLogger
	breakerCfg BreakerConfig
	defaults   RetryConfig
	rawLogger  log.Logger
	logger     *log.Helper
	clock      Clock

	// sleep is injectable for tests; nil means a timer honoring ctx.
	sleep func(ctx context.Context, d time.Duration) error

	mu       sync.Mutex
	breakers map[model.OperationType]*CircuitBreaker
	configs  map[model.OperationType]RetryConfig
}

// NewRetryHandler creates a retry handler from configuration. Breaker
// state transitions are recorded through audit when one is provided.
func NewRetryHandler(c *conf.Moderation, classifier model.FailureClassifier, audit AuditLogger, logger log.Logger) *RetryHandler {
	defaults := DefaultRetryConfig()
	breakerCfg := BreakerConfig{}
	if c != nil && c.Retry != nil {
		if c.Retry.MaxAttempts > 0 {
			defaults.MaxAttempts = c.Retry.MaxAttempts
		}
		if c.Retry.BaseDelay > 0 {
			defaults.BaseDelay = c.Retry.BaseDelay
		}
		if c.Retry.MaxDelay > 0 {
			defaults.MaxDelay = c.Retry.MaxDelay
		}
		if c.Retry.BackoffFactor > 0 {
			defaults.BackoffFactor = c.Retry.BackoffFactor
		}
		defaults.Jitter = c.Retry.Jitter
	}
	if c != nil && c.Breaker != nil {
		breakerCfg.FailureThreshold = c.Breaker.FailureThreshold
		breakerCfg.RecoveryTimeout = c.Breaker.RecoveryTimeout
	}

	return &RetryHandler{
		classifier: classifier,
		audit:      audit,
		breakerCfg: breakerCfg,
		defaults:   defaults,
		rawLogger:  logger,
		logger:     log.NewHelper(logger),
		clock:      realClock{},
		breakers:   make(map[model.OperationType]*CircuitBreaker),
		configs:    make(map[model.OperationType]RetryConfig),
	}
}

// Execute runs fn under the operation type's retry policy. Each
// attempt goes through the operation's circuit breaker. Non-retriable
// failures (permission, not found) propagate on the first occurrence.
// Rate-limit failures honor a server wait hint when it is shorter than
// the computed backoff. Once attempts are exhausted the last error is
// returned; failures are never silently swallowed here.
func (h *RetryHandler) Execute(ctx context.Context, op model.OperationType, fn func(ctx context.Context) error) error {
	br := h.breaker(op)
	cfg := h.GetRetryConfig(op)

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		err := br.Call(ctx, fn)
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, model.ErrCircuitOpen) {
			// Retrying inside the recovery window cannot succeed.
			return err
		}

		kind := h.classifier.Classify(err)
		if !kind.Retriable() {
			return err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := BackoffDelay(cfg, attempt)
		if kind == model.FailureRateLimited {
			if hint, ok := h.classifier.RetryAfter(err); ok && hint < delay {
				delay = hint
			}
		}

		h.logger.Warnw("retrying discord operation",
			"operation_type", op,
			"attempt", attempt+1,
			"max_attempts", cfg.MaxAttempts,
			"delay", delay,
			"failure_kind", kind.String(),
			"error", err)

		if err := h.wait(ctx, delay); err != nil {
			return err
		}
	}

	h.logger.Errorw("discord operation failed after all attempts",
		"operation_type", op,
		"max_attempts", cfg.MaxAttempts,
		"error", lastErr)
	return lastErr
}

// Retry runs a typed call through h and returns its value. Convenience
// wrapper mirroring Execute.
func Retry[T any](ctx context.Context, h *RetryHandler, op model.OperationType, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := h.Execute(ctx, op, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

// BackoffDelay computes the delay before the attempt after attempt
// index i (0-based): min(maxDelay, max(floor, base*factor^i)), with
// ±25% jitter when enabled.
func BackoffDelay(cfg RetryConfig, attempt int) time.Duration {
	d := time.Duration(float64(cfg.BaseDelay) * math.Pow(cfg.BackoffFactor, float64(attempt)))
	if d < minBackoff {
		d = minBackoff
	}
	if cfg.MaxDelay > 0 && d > cfg.MaxDelay {
		d = cfg.MaxDelay
	}
	if cfg.Jitter {
		// Uniform in [0.75d, 1.25d).
		d = time.Duration(float64(d) * (0.75 + 0.5*rand.Float64())) // #nosec G404 -- jitter needs no crypto rand
	}
	return d
}

func (h *RetryHandler) wait(ctx context.Context, d time.Duration) error {
	if h.sleep != nil {
		return h.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// breaker returns the operation type's breaker, creating it with
// defaults on first use.
func (h *RetryHandler) breaker(op model.OperationType) *CircuitBreaker {
	h.mu.Lock()
	defer h.mu.Unlock()
	br, ok := h.breakers[op]
	if !ok {
		cfg := h.breakerCfg
		if h.audit != nil {
			cfg.OnOpen = func(ev model.CircuitOpenedEvent) {
				h.audit.LogCircuitOpened(context.Background(), ev)
			}
			cfg.OnClose = func(ev model.CircuitClosedEvent) {
				h.audit.LogCircuitClosed(context.Background(), ev)
			}
		}
		br = NewCircuitBreaker(op, cfg, h.classifier, h.rawLogger)
		h.breakers[op] = br
	}
	return br
}

// SetRetryConfig overrides the retry config for one operation type.
func (h *RetryHandler) SetRetryConfig(op model.OperationType, cfg RetryConfig) {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = h.defaults.MaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = h.defaults.BaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = h.defaults.MaxDelay
	}
	if cfg.BackoffFactor <= 0 {
		cfg.BackoffFactor = h.defaults.BackoffFactor
	}
	h.mu.Lock()
	h.configs[op] = cfg
	h.mu.Unlock()
}

// GetRetryConfig returns the effective config for an operation type;
// unknown types get the defaults.
func (h *RetryHandler) GetRetryConfig(op model.OperationType) RetryConfig {
	h.mu.Lock()
	defer h.mu.Unlock()
	if cfg, ok := h.configs[op]; ok {
		return cfg
	}
	return h.defaults
}

// GetAllMetrics snapshots every live breaker for operational
// introspection.
func (h *RetryHandler) GetAllMetrics() []BreakerMetrics {
	h.mu.Lock()
	breakers := make([]*CircuitBreaker, 0, len(h.breakers))
	for _, br := range h.breakers {
		breakers = append(breakers, br)
	}
	h.mu.Unlock()

	out := make([]BreakerMetrics, 0, len(breakers))
	for _, br := range breakers {
		out = append(out, br.GetMetrics())
	}
	return out
}

// ResetCircuitBreaker manually closes one operation type's breaker.
// Returns false when no breaker exists for the type yet.
func (h *RetryHandler) ResetCircuitBreaker(op model.OperationType) bool {
	h.mu.Lock()
	br, ok := h.breakers[op]
	h.mu.Unlock()
	if !ok {
		return false
	}
	br.Reset()
	return true
}
