package data

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tux/internal/model"
	pkgerrors "tux/pkg/errors"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Guild is the GORM model for the guilds table. CaseCount is the
// guild-scoped case counter; it is only ever read and bumped inside
// the case insert transaction, under a row lock.
type Guild struct {
	GuildID   string    `gorm:"primaryKey;column:guild_id;size:20"`
	CaseCount int64     `gorm:"column:case_count;default:0;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Guild) TableName() string {
	return "guilds"
}

// Case is the GORM model for the cases table.
type Case struct {
	ID          int64            `gorm:"primaryKey;column:id"`
	GuildID     string           `gorm:"column:guild_id;size:20;not null;uniqueIndex:uq_guild_case,priority:1"`
	CaseNumber  int64            `gorm:"column:case_number;not null;uniqueIndex:uq_guild_case,priority:2"`
	CaseType    model.CaseType   `gorm:"column:case_type;type:enum('ban','tempban','unban','kick','timeout','untimeout','warn','jail','unjail');not null"`
	TargetID    string           `gorm:"column:target_id;size:20;not null;index"`
	ModeratorID string           `gorm:"column:moderator_id;size:20;not null"`
	Reason      string           `gorm:"column:reason;type:text"`
	Status      model.CaseStatus `gorm:"column:status;type:enum('active','inactive');default:'active';not null"`
	ExpiresAt   *time.Time       `gorm:"column:expires_at;index"`
	CreatedAt   time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName specifies the table name for GORM.
func (Case) TableName() string {
	return "cases"
}

// CaseRepo implements biz.CaseRepo on MySQL.
type CaseRepo struct {
	db     *gorm.DB
	logger *log.Helper
}

// NewCaseRepo creates a new case repository.
func NewCaseRepo(db *gorm.DB, logger log.Logger) *CaseRepo {
	return &CaseRepo{
		db:     db,
		logger: log.NewHelper(logger),
	}
}

// InsertCase persists a case with the next guild-scoped case number.
// The guild counter read, increment and the case insert happen in one
// transaction with the guild row locked, so two concurrent insertions
// for the same guild cannot receive the same number. Deadlocks and
// duplicate-number collisions are retried with a short backoff.
func (r *CaseRepo) InsertCase(ctx context.Context, nc model.NewCase) (*Case, error) {
	const maxRetries = 3

	var lastErr error
	for i := 0; i < maxRetries; i++ {
		c, err := r.insertOnce(ctx, nc)
		if err == nil {
			r.logger.Infow("case inserted",
				"guild_id", c.GuildID,
				"case_number", c.CaseNumber,
				"case_type", c.CaseType)
			return c, nil
		}
		lastErr = err

		dbErr := pkgerrors.ClassifyDBError(err)
		if dbErr.Type != pkgerrors.ErrorTypeDeadlock && dbErr.Type != pkgerrors.ErrorTypeDuplicateKey {
			return nil, fmt.Errorf("failed to insert case: %w", err)
		}

		backoff := time.Duration(i+1) * 10 * time.Millisecond
		r.logger.Debugw("case insert conflict, retrying",
			"guild_id", nc.GuildID,
			"retry", i+1,
			"backoff", backoff)
		time.Sleep(backoff)
	}

	return nil, fmt.Errorf("case insert failed after %d retries: %w", maxRetries, lastErr)
}

func (r *CaseRepo) insertOnce(ctx context.Context, nc model.NewCase) (*Case, error) {
	var c *Case
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var g Guild
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("guild_id = ?", nc.GuildID).
			First(&g).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			g = Guild{GuildID: nc.GuildID}
			if err := tx.Create(&g).Error; err != nil {
				return err
			}
		} else if err != nil {
			return err
		}

		g.CaseCount++
		if err := tx.Model(&Guild{}).
			Where("guild_id = ?", g.GuildID).
			Update("case_count", g.CaseCount).Error; err != nil {
			return err
		}

		c = &Case{
			GuildID:     nc.GuildID,
			CaseNumber:  g.CaseCount,
			CaseType:    nc.CaseType,
			TargetID:    nc.TargetID,
			ModeratorID: nc.ModeratorID,
			Reason:      nc.Reason,
			Status:      model.CaseActive,
			ExpiresAt:   nc.ExpiresAt,
		}
		return tx.Create(c).Error
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// GetCase fetches one case by guild and case number.
func (r *CaseRepo) GetCase(ctx context.Context, guildID string, caseNumber int64) (*Case, error) {
	var c Case
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND case_number = ?", guildID, caseNumber).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("case #%d not found in guild %s", caseNumber, guildID)
		}
		return nil, fmt.Errorf("failed to get case: %w", err)
	}
	return &c, nil
}

// ListCases returns a guild's cases, newest first, optionally filtered
// by target.
func (r *CaseRepo) ListCases(ctx context.Context, guildID, targetID string, limit int) ([]*Case, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	q := r.db.WithContext(ctx).Where("guild_id = ?", guildID)
	if targetID != "" {
		q = q.Where("target_id = ?", targetID)
	}

	var cases []*Case
	if err := q.Order("case_number DESC").Limit(limit).Find(&cases).Error; err != nil {
		return nil, fmt.Errorf("failed to list cases: %w", err)
	}
	return cases, nil
}

// SetCaseStatus flips a case between active and inactive.
func (r *CaseRepo) SetCaseStatus(ctx context.Context, id int64, status model.CaseStatus) error {
	result := r.db.WithContext(ctx).
		Model(&Case{}).
		Where("id = ?", id).
		Update("status", status)
	if result.Error != nil {
		return fmt.Errorf("failed to update case status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("case not found: %d", id)
	}
	return nil
}

// ListExpiredTempBans returns active temp bans whose expiry has
// passed. Consumed by the cron expiry task.
func (r *CaseRepo) ListExpiredTempBans(ctx context.Context, now time.Time) ([]*Case, error) {
	var cases []*Case
	err := r.db.WithContext(ctx).
		Where("case_type = ? AND status = ? AND expires_at IS NOT NULL AND expires_at <= ?",
			model.CaseTempBan, model.CaseActive, now).
		Order("expires_at ASC").
		Find(&cases).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired temp bans: %w", err)
	}
	return cases, nil
}
