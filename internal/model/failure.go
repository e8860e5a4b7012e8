package model

import (
	"errors"
	"time"
)

// FailureKind classifies a Discord-side failure into the retry
// taxonomy. The classification is deliberately decoupled from any
// particular client library's error hierarchy; the discord package
// provides the concrete classifier.
type FailureKind int

const (
	// FailureUnknown covers transient network errors and anything the
	// classifier cannot place. Treated as retriable.
	FailureUnknown FailureKind = iota
	// FailurePermission means the bot lacks the permission for the
	// action. Never retried.
	FailurePermission
	// FailureNotFound means the target (user, member, channel) does
	// not exist. Never retried.
	FailureNotFound
	// FailureRateLimited is an HTTP 429. Retried, honoring the
	// server-specified wait when one is available.
	FailureRateLimited
	// FailureServerError is a 5xx-class Discord failure. Retried with
	// exponential backoff.
	FailureServerError
)

// String returns the string representation of the failure kind.
func (k FailureKind) String() string {
	switch k {
	case FailurePermission:
		return "permission"
	case FailureNotFound:
		return "not_found"
	case FailureRateLimited:
		return "rate_limited"
	case FailureServerError:
		return "server_error"
	default:
		return "unknown"
	}
}

// Retriable reports whether the retry handler may attempt the
// operation again after a failure of this kind.
func (k FailureKind) Retriable() bool {
	switch k {
	case FailurePermission, FailureNotFound:
		return false
	default:
		return true
	}
}

// FailureClassifier inspects Discord-side errors. Implementations live
// next to the client library they understand (internal/discord).
type FailureClassifier interface {
	// Classify maps an error onto the failure taxonomy.
	Classify(err error) FailureKind
	// RetryAfter extracts a server-specified wait hint from a
	// rate-limit error. ok is false when no hint is present.
	RetryAfter(err error) (wait time.Duration, ok bool)
}

// ErrCircuitOpen is returned when a circuit breaker rejects a call
// without invoking the wrapped action.
var ErrCircuitOpen = errors.New("circuit open: service unavailable")

// ErrQueueTimeout is returned when a queued moderation action could
// not start before its queue timeout elapsed. Raised before any
// Discord call is attempted.
var ErrQueueTimeout = errors.New("timed out waiting for pending moderation actions")

// ErrQueueFull is returned when a user's action queue is at capacity.
var ErrQueueFull = errors.New("too many pending moderation actions for this user")
