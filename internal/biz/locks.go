package biz

import (
	"context"
	"sync"
	"time"

	"tux/internal/conf"
	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// LockStats is a snapshot of the lock manager's counters.
type LockStats struct {
	ActiveLocks    int   `json:"active_locks"`
	HeldLocks      int   `json:"held_locks"`
	QueuedWaiters  int   `json:"queued_waiters"`
	TotalExecuted  int64 `json:"total_executed"`
	TotalTimeouts  int64 `json:"total_timeouts"`
	TotalRejected  int64 `json:"total_rejected"`
	TotalSweptAway int64 `json:"total_swept_away"`
}

type waiter struct {
	// ready is closed by the previous holder when ownership of the
	// user's lock transfers to this waiter.
	ready chan struct{}
}

// userLock is the per-target mutual exclusion primitive. Waiters are
// granted the lock strictly in arrival order.
type userLock struct {
	held    bool
	waiters []*waiter
}

// LockManager serializes moderation actions per target user. Two
// operations for the same user never run concurrently; operations for
// different users never block each other. Locks are created lazily,
// cached, and swept once the map grows past the cleanup threshold.
// Safe for concurrent use.
type LockManager struct {
	queueTimeout     time.Duration
	maxQueueSize     int
	cleanupThreshold int
	logger           *log.Helper

	mu    sync.Mutex
	locks map[string]*userLock

	totalExecuted  int64
	totalTimeouts  int64
	totalRejected  int64
	totalSweptAway int64
}

// NewLockManager creates a lock manager from configuration.
func NewLockManager(c *conf.Moderation, logger log.Logger) *LockManager {
	m := &LockManager{
		queueTimeout:     30 * time.Second,
		maxQueueSize:     10,
		cleanupThreshold: 100,
		logger:           log.NewHelper(logger),
		locks:            make(map[string]*userLock),
	}
	if c != nil && c.Lock != nil {
		if c.Lock.QueueTimeout > 0 {
			m.queueTimeout = c.Lock.QueueTimeout
		}
		if c.Lock.MaxQueueSize > 0 {
			m.maxQueueSize = c.Lock.MaxQueueSize
		}
		if c.Lock.CleanupThreshold > 0 {
			m.cleanupThreshold = c.Lock.CleanupThreshold
		}
	}
	return m
}

// Execute runs fn holding userID's lock. When the lock is free the
// call starts immediately with no queuing overhead. When it is held,
// the call waits in a FIFO queue bounded by the configured queue size;
// a call that cannot start before the queue timeout elapses fails with
// model.ErrQueueTimeout, and a call arriving at a full queue fails
// with model.ErrQueueFull. Both failures happen before fn runs. The
// lock is always released, even when fn panics via the deferred
// release in run.
func (m *LockManager) Execute(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	lock := m.locks[userID]
	if lock == nil {
		lock = &userLock{}
		m.locks[userID] = lock
	}

	if !lock.held {
		// Fast path: uncontended acquire.
		lock.held = true
		m.mu.Unlock()
		return m.run(ctx, userID, fn)
	}

	if len(lock.waiters) >= m.maxQueueSize {
		m.totalRejected++
		m.mu.Unlock()
		m.logger.Warnw("moderation action queue full",
			"user_id", userID,
			"max_queue_size", m.maxQueueSize)
		return model.ErrQueueFull
	}

	w := &waiter{ready: make(chan struct{})}
	lock.waiters = append(lock.waiters, w)
	m.mu.Unlock()

	timer := time.NewTimer(m.queueTimeout)
	defer timer.Stop()

	select {
	case <-w.ready:
		return m.run(ctx, userID, fn)
	case <-timer.C:
		m.mu.Lock()
		m.totalTimeouts++
		m.mu.Unlock()
		if m.abandon(userID, w) {
			m.logger.Warnw("moderation action timed out in queue",
				"user_id", userID,
				"queue_timeout", m.queueTimeout)
			return model.ErrQueueTimeout
		}
		// The grant raced the timeout: we now own the lock and must
		// hand it on before reporting the timeout.
		m.release(userID)
		return model.ErrQueueTimeout
	case <-ctx.Done():
		if m.abandon(userID, w) {
			return ctx.Err()
		}
		m.release(userID)
		return ctx.Err()
	}
}

// run executes fn and guarantees the lock release.
func (m *LockManager) run(ctx context.Context, userID string, fn func(ctx context.Context) error) error {
	defer m.release(userID)
	err := fn(ctx)
	m.mu.Lock()
	m.totalExecuted++
	m.mu.Unlock()
	return err
}

// release hands the lock to the next queued waiter, or marks it free.
// Freed locks stay cached for reuse until a sweep reclaims them.
func (m *LockManager) release(userID string) {
	m.mu.Lock()
	lock := m.locks[userID]
	if lock == nil {
		m.mu.Unlock()
		return
	}
	if len(lock.waiters) > 0 {
		next := lock.waiters[0]
		lock.waiters = lock.waiters[1:]
		m.mu.Unlock()
		close(next.ready)
		return
	}
	lock.held = false
	over := len(m.locks) > m.cleanupThreshold
	m.mu.Unlock()

	if over {
		m.CleanLocks()
	}
}

// abandon removes w from userID's queue. Returns false when w was
// already granted the lock, in which case the caller owns it.
func (m *LockManager) abandon(userID string, w *waiter) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock := m.locks[userID]
	if lock == nil {
		return false
	}
	for i, qw := range lock.waiters {
		if qw == w {
			lock.waiters = append(lock.waiters[:i], lock.waiters[i+1:]...)
			return true
		}
	}
	return false
}

// Locked reports whether userID's lock is currently held.
func (m *LockManager) Locked(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	lock := m.locks[userID]
	return lock != nil && lock.held
}

// Len returns the number of cached locks.
func (m *LockManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

// CleanLocks removes cached locks that are neither held nor waited on,
// bounding memory growth over the bot's lifetime. Returns the number
// of locks reclaimed. Also run periodically from the cron sweep.
func (m *LockManager) CleanLocks() int {
	m.mu.Lock()
	removed := 0
	for id, lock := range m.locks {
		if !lock.held && len(lock.waiters) == 0 {
			delete(m.locks, id)
			removed++
		}
	}
	m.totalSweptAway += int64(removed)
	remaining := len(m.locks)
	m.mu.Unlock()

	if removed > 0 {
		m.logger.Debugw("swept idle user locks",
			"removed", removed,
			"remaining", remaining)
	}
	return removed
}

// Stats snapshots the manager's counters.
func (m *LockManager) Stats() LockStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	held, queued := 0, 0
	for _, lock := range m.locks {
		if lock.held {
			held++
		}
		queued += len(lock.waiters)
	}
	return LockStats{
		ActiveLocks:    len(m.locks),
		HeldLocks:      held,
		QueuedWaiters:  queued,
		TotalExecuted:  m.totalExecuted,
		TotalTimeouts:  m.totalTimeouts,
		TotalRejected:  m.totalRejected,
		TotalSweptAway: m.totalSweptAway,
	}
}
