package biz

import (
	"context"
	"fmt"
	"time"

	"tux/internal/data"
	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
)

// GatewayActions builds the Discord-side actions for a case. The
// discord adapter implements it; the tempban expiry task uses it to
// run unbans through the same executor path as moderator-issued ones.
type GatewayActions interface {
	UnbanAction(guildID, userID string) model.Action
}

// TempBanExpiryTask unbans users whose temporary bans have run out.
// It runs from the cron scheduler and routes each unban through the
// CaseExecutor, so expiry gets the same retry, locking and case
// bookkeeping as a moderator-issued unban.
type TempBanExpiryTask struct {
	cases    CaseRepo
	executor *CaseExecutor
	gateway  GatewayActions
	audit    AuditLogger
	logger   *log.Helper
}

// NewTempBanExpiryTask creates the expiry task.
func NewTempBanExpiryTask(
	cases CaseRepo,
	executor *CaseExecutor,
	gateway GatewayActions,
	audit AuditLogger,
	logger log.Logger,
) *TempBanExpiryTask {
	return &TempBanExpiryTask{
		cases:    cases,
		executor: executor,
		gateway:  gateway,
		audit:    audit,
		logger:   log.NewHelper(logger),
	}
}

// ExpireTempBans lifts every temp ban whose expiry has passed. One
// failed unban does not stop the rest of the batch.
func (t *TempBanExpiryTask) ExpireTempBans(ctx context.Context) error {
	expired, err := t.cases.ListExpiredTempBans(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("failed to list expired temp bans: %w", err)
	}

	if len(expired) == 0 {
		return nil
	}

	t.logger.Infof("Found %d expired temp bans", len(expired))

	successCount := 0
	errorCount := 0

	for _, c := range expired {
		if err := t.expireOne(ctx, c); err != nil {
			t.logger.Errorw("failed to lift expired temp ban",
				"guild_id", c.GuildID,
				"case_number", c.CaseNumber,
				"target_id", c.TargetID,
				"error", err)
			errorCount++
			continue
		}
		successCount++
	}

	t.logger.Infow("Temp ban expiry task completed",
		"total", len(expired),
		"success", successCount,
		"error", errorCount)

	return nil
}

func (t *TempBanExpiryTask) expireOne(ctx context.Context, c *data.Case) error {
	req := ModActionRequest{
		Invocation: model.Invocation{
			GuildID: c.GuildID,
			// The original moderator is credited on the expiry case.
			ModeratorID: c.ModeratorID,
		},
		CaseType: model.CaseUnban,
		TargetID: c.TargetID,
		Reason:   fmt.Sprintf("Temp ban expired (case #%d)", c.CaseNumber),
		// The scheduled unban never DMs; the target may share no
		// guild with the bot anymore.
		Silent:  true,
		Actions: []model.Action{t.gateway.UnbanAction(c.GuildID, c.TargetID)},
	}

	if err := t.executor.ExecuteModAction(ctx, req); err != nil {
		return err
	}

	if err := t.cases.SetCaseStatus(ctx, c.ID, model.CaseInactive); err != nil {
		return fmt.Errorf("failed to deactivate case #%d: %w", c.CaseNumber, err)
	}

	t.audit.LogTempBanExpired(ctx, c.GuildID, c.CaseNumber, c.TargetID)
	return nil
}
