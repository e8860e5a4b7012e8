package data

import (
	"context"
	"encoding/json"
	"time"

	"tux/internal/model"

	"github.com/go-kratos/kratos/v2/log"
	"gorm.io/gorm"
)

// ModAuditLog is the GORM model for mod_audit_logs table
type ModAuditLog struct {
	ID        int64     `gorm:"primaryKey;column:id"`
	GuildID   string    `gorm:"column:guild_id;size:20;not null;index"`
	EventType string    `gorm:"column:event_type;type:varchar(50);not null"`
	Details   string    `gorm:"column:details;type:json"` // JSON string
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName specifies the table name for GORM
func (ModAuditLog) TableName() string {
	return "mod_audit_logs"
}

// AuditLoggerImpl implements biz.AuditLogger interface
type AuditLoggerImpl struct {
	db      *gorm.DB
	logChan chan *ModAuditLog
	logger  *log.Helper
}

// NewAuditLogger creates a new audit logger with async channel
func NewAuditLogger(db *gorm.DB, logger log.Logger) *AuditLoggerImpl {
	al := &AuditLoggerImpl{
		db:      db,
		logChan: make(chan *ModAuditLog, 1000), // Buffer size 1000 to prevent blocking
		logger:  log.NewHelper(logger),
	}

	// Start background goroutine for async logging
	go al.start()

	return al
}

// start processes audit log events from channel
func (a *AuditLoggerImpl) start() {
	for event := range a.logChan {
		ctx := context.Background()
		if err := a.db.WithContext(ctx).Create(event).Error; err != nil {
			a.logger.Errorw("failed to write audit log",
				"guild_id", event.GuildID,
				"event_type", event.EventType,
				"error", err)
		} else {
			a.logger.Debugw("audit log written",
				"guild_id", event.GuildID,
				"event_type", event.EventType)
		}
	}
}

// enqueue sends an event to the channel without blocking the caller.
func (a *AuditLoggerImpl) enqueue(event *ModAuditLog) {
	select {
	case a.logChan <- event:
		// Successfully queued
	default:
		a.logger.Warnw("audit log channel full, dropping event",
			"guild_id", event.GuildID,
			"event_type", event.EventType)
	}
}

// LogCaseCreated records a successfully persisted moderation case.
func (a *AuditLoggerImpl) LogCaseCreated(ctx context.Context, guildID string, caseNumber int64, caseType model.CaseType, moderatorID, targetID string) {
	details := map[string]interface{}{
		"case_number":  caseNumber,
		"case_type":    string(caseType),
		"moderator_id": moderatorID,
		"target_id":    targetID,
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&ModAuditLog{
		GuildID:   guildID,
		EventType: model.AuditEventCaseCreated,
		Details:   string(detailsJSON),
	})
}

// LogCasePersistFailed records a Discord action that succeeded but
// whose case row could not be written.
func (a *AuditLoggerImpl) LogCasePersistFailed(ctx context.Context, guildID string, caseType model.CaseType, targetID string, reason error) {
	details := map[string]interface{}{
		"case_type": string(caseType),
		"target_id": targetID,
		"reason":    reason.Error(),
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&ModAuditLog{
		GuildID:   guildID,
		EventType: model.AuditEventCasePersistFailed,
		Details:   string(detailsJSON),
	})
}

// LogCircuitOpened records a circuit breaker tripping open. Breakers
// are process-wide, so the row carries no guild.
func (a *AuditLoggerImpl) LogCircuitOpened(ctx context.Context, ev model.CircuitOpenedEvent) {
	details := map[string]interface{}{
		"operation_type":       string(ev.OperationType),
		"consecutive_failures": ev.ConsecutiveFailures,
		"opened_at":            ev.OpenedAt.Format(time.RFC3339),
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&ModAuditLog{
		EventType: model.AuditEventCircuitOpened,
		Details:   string(detailsJSON),
	})
}

// LogCircuitClosed records a circuit breaker recovering.
func (a *AuditLoggerImpl) LogCircuitClosed(ctx context.Context, ev model.CircuitClosedEvent) {
	details := map[string]interface{}{
		"operation_type": string(ev.OperationType),
		"closed_at":      ev.ClosedAt.Format(time.RFC3339),
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&ModAuditLog{
		EventType: model.AuditEventCircuitClosed,
		Details:   string(detailsJSON),
	})
}

// LogTempBanExpired records the automatic expiry of a temporary ban.
func (a *AuditLoggerImpl) LogTempBanExpired(ctx context.Context, guildID string, caseNumber int64, targetID string) {
	details := map[string]interface{}{
		"case_number": caseNumber,
		"target_id":   targetID,
	}

	detailsJSON, err := json.Marshal(details)
	if err != nil {
		a.logger.Errorw("failed to marshal audit log details", "error", err)
		return
	}

	a.enqueue(&ModAuditLog{
		GuildID:   guildID,
		EventType: model.AuditEventTempBanExpired,
		Details:   string(detailsJSON),
	})
}
