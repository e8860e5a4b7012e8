package biz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tux/internal/conf"
	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// User-visible failure messages, sent exactly once per failed action
// before the error continues to propagate.
const (
	msgInsufficientPerms  = "I don't have sufficient permissions to do that."
	msgRateLimited        = "Discord is rate limiting this action, please try again in a moment."
	msgDiscordIssues      = "Discord is experiencing issues right now, please try again later."
	msgTargetNotFound     = "Could not find the target of this action."
	msgServiceUnavailable = "Moderation actions of this kind are temporarily unavailable, please try again shortly."
	msgQueueTimeout       = "Timed out waiting for other moderation actions against this user to finish."
	msgQueueFull          = "Too many moderation actions are already pending for this user."
)

// ModActionRequest describes one moderation action to execute.
type ModActionRequest struct {
	Invocation model.Invocation
	CaseType   model.CaseType
	TargetID   string
	Reason     string
	Silent     bool
	Duration   string     // human form for the case title, e.g. "1h"
	ExpiresAt  *time.Time // set for temp bans and timeouts
	Actions    []model.Action
}

// CaseExecutor coordinates a single moderation action: per-target
// serialization, DM timing, retried Discord calls, case persistence
// and the final response embed.
type CaseExecutor struct {
	locks      *LockManager
	retry      *RetryHandler
	cases      CaseRepo
	classifier model.FailureClassifier
	dm         DMSender
	embeds     EmbedSender
	response   *CaseResponseHandler
	audit      AuditLogger
	dmTimeout  time.Duration
	logger     *log.Helper
}

// NewCaseExecutor creates the case executor.
func NewCaseExecutor(
	c *conf.Discord,
	locks *LockManager,
	retry *RetryHandler,
	cases CaseRepo,
	classifier model.FailureClassifier,
	dm DMSender,
	embeds EmbedSender,
	response *CaseResponseHandler,
	audit AuditLogger,
	logger log.Logger,
) *CaseExecutor {
	dmTimeout := 5 * time.Second
	if c != nil && c.DMTimeout > 0 {
		dmTimeout = c.DMTimeout
	}
	return &CaseExecutor{
		locks:      locks,
		retry:      retry,
		cases:      cases,
		classifier: classifier,
		dm:         dm,
		embeds:     embeds,
		response:   response,
		audit:      audit,
		dmTimeout:  dmTimeout,
		logger:     log.NewHelper(logger),
	}
}

// ExecuteModAction runs one moderation action end to end, serialized
// against other actions targeting the same user. Queue-level failures
// (timeout, full queue) are reported to the moderator and returned
// before any Discord call is attempted.
func (e *CaseExecutor) ExecuteModAction(ctx context.Context, req ModActionRequest) error {
	err := e.locks.Execute(ctx, req.TargetID, func(ctx context.Context) error {
		return e.execute(ctx, req)
	})
	switch {
	case errors.Is(err, model.ErrQueueTimeout):
		e.embeds.SendErrorResponse(ctx, req.Invocation, msgQueueTimeout)
	case errors.Is(err, model.ErrQueueFull):
		e.embeds.SendErrorResponse(ctx, req.Invocation, msgQueueFull)
	}
	return err
}

// execute is one pass of the per-case state machine: DM timing,
// retried actions, persistence, response.
func (e *CaseExecutor) execute(ctx context.Context, req ModActionRequest) error {
	if len(req.Actions) == 0 {
		return fmt.Errorf("mod action %s has no discord actions", req.CaseType)
	}

	dmSent := false

	// Removal actions DM first: after a ban or a kick the bot no
	// longer shares a guild with the target and the DM would fail.
	if req.CaseType.IsRemoval() {
		dmSent = e.sendDM(ctx, req)
	}

	op := req.CaseType.OperationType()
	for _, action := range req.Actions {
		err := e.retry.Execute(ctx, op, func(ctx context.Context) error {
			_, execErr := action.Execute(ctx)
			return execErr
		})
		if err != nil {
			e.reportFailure(ctx, req.Invocation, action.Verb, err)
			return err
		}
	}

	if !req.CaseType.IsRemoval() {
		dmSent = e.sendDM(ctx, req)
	}

	caseNumber := e.persistCase(ctx, req)

	e.response.HandleCaseResponse(ctx, req.Invocation, req.CaseType, caseNumber, req.Reason, req.TargetID, dmSent, req.Duration)
	return nil
}

// sendDM is best-effort: silent mode skips the attempt entirely, and
// delivery failures (including timeouts) only flip the dm_sent flag.
func (e *CaseExecutor) sendDM(ctx context.Context, req ModActionRequest) bool {
	if req.Silent {
		return false
	}
	dmCtx, cancel := context.WithTimeout(ctx, e.dmTimeout)
	defer cancel()
	return e.dm.SendDM(dmCtx, req.TargetID, req.Invocation.GuildID, req.CaseType.Verb(), req.Reason)
}

// reportFailure translates a Discord-layer failure into exactly one
// user-visible message, then lets the caller re-raise the error.
// Report and reraise, never recover and continue.
func (e *CaseExecutor) reportFailure(ctx context.Context, inv model.Invocation, verb string, err error) {
	var message string
	if errors.Is(err, model.ErrCircuitOpen) {
		message = msgServiceUnavailable
	} else {
		switch e.classifier.Classify(err) {
		case model.FailurePermission:
			message = msgInsufficientPerms
		case model.FailureRateLimited:
			message = msgRateLimited
		case model.FailureServerError:
			message = msgDiscordIssues
		case model.FailureNotFound:
			message = msgTargetNotFound
		default:
			message = msgDiscordIssues
		}
	}

	e.logger.Errorw("moderation action failed",
		"guild_id", inv.GuildID,
		"moderator_id", inv.ModeratorID,
		"action", verb,
		"error", err)

	e.embeds.SendErrorResponse(ctx, inv, message)
}

// persistCase writes the case record and returns its guild-scoped
// number. A persistence failure after the Discord action already
// succeeded is critical but non-fatal: the action cannot be cleanly
// undone, so the failure is logged, audited, and the response step
// still runs with case number 0.
func (e *CaseExecutor) persistCase(ctx context.Context, req ModActionRequest) int64 {
	c, err := e.cases.InsertCase(ctx, model.NewCase{
		GuildID:     req.Invocation.GuildID,
		CaseType:    req.CaseType,
		TargetID:    req.TargetID,
		ModeratorID: req.Invocation.ModeratorID,
		Reason:      req.Reason,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		e.logger.Errorw("CRITICAL: case persistence failed after discord action succeeded",
			"guild_id", req.Invocation.GuildID,
			"case_type", req.CaseType,
			"target_id", req.TargetID,
			"moderator_id", req.Invocation.ModeratorID,
			"error", err)
		e.audit.LogCasePersistFailed(ctx, req.Invocation.GuildID, req.CaseType, req.TargetID, err)
		return 0
	}

	e.audit.LogCaseCreated(ctx, c.GuildID, c.CaseNumber, c.CaseType, c.ModeratorID, c.TargetID)
	return c.CaseNumber
}
