// Package service exposes the operational admin API over HTTP:
// breaker metrics and resets, retry tuning, lock stats and case
// lookups.
package service

import (
	"context"
	"fmt"
	"time"

	"tux/internal/biz"
	"tux/internal/data"
	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(NewAdminService)

// validOps guards path parameters against arbitrary operation names.
var validOps = map[model.OperationType]bool{
	model.OpBanKick:  true,
	model.OpTimeout:  true,
	model.OpMessages: true,
}

// AdminService backs the admin HTTP endpoints.
type AdminService struct {
	retry  *biz.RetryHandler
	locks  *biz.LockManager
	cases  biz.CaseRepo
	logger *log.Helper
}

// NewAdminService creates the admin service.
func NewAdminService(retry *biz.RetryHandler, locks *biz.LockManager, cases biz.CaseRepo, logger log.Logger) *AdminService {
	return &AdminService{
		retry:  retry,
		locks:  locks,
		cases:  cases,
		logger: log.NewHelper(logger),
	}
}

// BreakerMetrics returns a snapshot of every circuit breaker.
func (s *AdminService) BreakerMetrics(ctx context.Context) []biz.BreakerMetrics {
	return s.retry.GetAllMetrics()
}

// ResetBreaker forces a breaker back to closed. Used after a Discord
// incident resolves faster than the recovery timeout.
func (s *AdminService) ResetBreaker(ctx context.Context, op model.OperationType) error {
	if !validOps[op] {
		return fmt.Errorf("unknown operation type %q", op)
	}
	if !s.retry.ResetCircuitBreaker(op) {
		// No breaker yet means no call has run for this op; nothing
		// to reset.
		return nil
	}
	s.logger.Warnw("circuit breaker manually reset", "operation_type", op)
	return nil
}

// RetryConfigView is the wire shape of one operation's retry policy.
type RetryConfigView struct {
	OperationType model.OperationType `json:"operation_type"`
	MaxAttempts   int                 `json:"max_attempts"`
	BaseDelay     string              `json:"base_delay"`
	MaxDelay      string              `json:"max_delay"`
	BackoffFactor float64             `json:"backoff_factor"`
	Jitter        bool                `json:"jitter"`
}

// GetRetryConfig returns the effective retry policy for an operation.
func (s *AdminService) GetRetryConfig(ctx context.Context, op model.OperationType) (*RetryConfigView, error) {
	if !validOps[op] {
		return nil, fmt.Errorf("unknown operation type %q", op)
	}
	cfg := s.retry.GetRetryConfig(op)
	return &RetryConfigView{
		OperationType: op,
		MaxAttempts:   cfg.MaxAttempts,
		BaseDelay:     cfg.BaseDelay.String(),
		MaxDelay:      cfg.MaxDelay.String(),
		BackoffFactor: cfg.BackoffFactor,
		Jitter:        cfg.Jitter,
	}, nil
}

// UpdateRetryConfig replaces the retry policy for an operation.
func (s *AdminService) UpdateRetryConfig(ctx context.Context, op model.OperationType, view *RetryConfigView) error {
	if !validOps[op] {
		return fmt.Errorf("unknown operation type %q", op)
	}

	baseDelay, err := time.ParseDuration(view.BaseDelay)
	if err != nil {
		return fmt.Errorf("invalid base_delay: %w", err)
	}
	maxDelay, err := time.ParseDuration(view.MaxDelay)
	if err != nil {
		return fmt.Errorf("invalid max_delay: %w", err)
	}
	if view.MaxAttempts < 1 || baseDelay <= 0 || maxDelay < baseDelay || view.BackoffFactor < 1 {
		return fmt.Errorf("invalid retry config")
	}

	s.retry.SetRetryConfig(op, biz.RetryConfig{
		MaxAttempts:   view.MaxAttempts,
		BaseDelay:     baseDelay,
		MaxDelay:      maxDelay,
		BackoffFactor: view.BackoffFactor,
		Jitter:        view.Jitter,
	})
	s.logger.Infow("retry config updated",
		"operation_type", op,
		"max_attempts", view.MaxAttempts,
		"base_delay", baseDelay,
		"max_delay", maxDelay)
	return nil
}

// LockStats returns a snapshot of the per-user lock queues.
func (s *AdminService) LockStats(ctx context.Context) biz.LockStats {
	return s.locks.Stats()
}

// CaseView is the wire shape of one moderation case.
type CaseView struct {
	CaseNumber  int64      `json:"case_number"`
	GuildID     string     `json:"guild_id"`
	CaseType    string     `json:"case_type"`
	TargetID    string     `json:"target_id"`
	ModeratorID string     `json:"moderator_id"`
	Reason      string     `json:"reason"`
	Status      string     `json:"status"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ListCases returns a guild's recent cases, optionally filtered by
// target.
func (s *AdminService) ListCases(ctx context.Context, guildID, targetID string, limit int) ([]*CaseView, error) {
	if guildID == "" {
		return nil, fmt.Errorf("guild_id is required")
	}

	cases, err := s.cases.ListCases(ctx, guildID, targetID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}

	views := make([]*CaseView, 0, len(cases))
	for _, c := range cases {
		views = append(views, caseView(c))
	}
	return views, nil
}

func caseView(c *data.Case) *CaseView {
	return &CaseView{
		CaseNumber:  c.CaseNumber,
		GuildID:     c.GuildID,
		CaseType:    string(c.CaseType),
		TargetID:    c.TargetID,
		ModeratorID: c.ModeratorID,
		Reason:      c.Reason,
		Status:      string(c.Status),
		ExpiresAt:   c.ExpiresAt,
		CreatedAt:   c.CreatedAt,
	}
}
