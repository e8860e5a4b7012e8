// Package model holds domain types shared across the biz and data layers.
package model

import (
	"database/sql/driver"
	"fmt"
	"time"
)

// CaseType represents the database ENUM type for a moderation case.
type CaseType string

// Case type constants representing the moderation actions the bot can take.
const (
	CaseBan       CaseType = "ban"
	CaseTempBan   CaseType = "tempban"
	CaseUnban     CaseType = "unban"
	CaseKick      CaseType = "kick"
	CaseTimeout   CaseType = "timeout"
	CaseUntimeout CaseType = "untimeout"
	CaseWarn      CaseType = "warn"
	CaseJail      CaseType = "jail"
	CaseUnjail    CaseType = "unjail"
)

// OperationType is the coarse bucket used to select a shared retry
// policy and circuit breaker, decoupled from the exact case type.
type OperationType string

// Operation type constants. One circuit breaker and one retry config
// exist per operation type, shared process-wide.
const (
	OpBanKick  OperationType = "ban_kick"
	OpTimeout  OperationType = "timeout"
	OpMessages OperationType = "messages"
)

// removalActions is the single source of truth for whether a case type
// ends the target's guild membership. Both DM timing and any future
// membership checks read this table; keeping it in one place prevents
// the two decisions from drifting apart.
var removalActions = map[CaseType]bool{
	CaseBan:     true,
	CaseTempBan: true,
	CaseKick:    true,
}

// operationTypes maps each case type onto its retry/breaker bucket.
// Case types absent from the table fall into the messages bucket.
var operationTypes = map[CaseType]OperationType{
	CaseBan:       OpBanKick,
	CaseTempBan:   OpBanKick,
	CaseUnban:     OpBanKick,
	CaseKick:      OpBanKick,
	CaseTimeout:   OpTimeout,
	CaseUntimeout: OpTimeout,
}

// IsRemoval reports whether the case type removes the target from the
// guild. Removal actions must DM the target before acting because the
// bot shares no guild with the user afterwards.
func (t CaseType) IsRemoval() bool {
	return removalActions[t]
}

// OperationType returns the retry/breaker bucket for the case type.
func (t CaseType) OperationType() OperationType {
	if op, ok := operationTypes[t]; ok {
		return op
	}
	return OpMessages
}

// Verb returns the past-tense verb used in DM notifications and audit
// entries, e.g. "banned" or "warned".
func (t CaseType) Verb() string {
	switch t {
	case CaseBan, CaseTempBan:
		return "banned"
	case CaseUnban:
		return "unbanned"
	case CaseKick:
		return "kicked"
	case CaseTimeout:
		return "timed out"
	case CaseUntimeout:
		return "untimed out"
	case CaseWarn:
		return "warned"
	case CaseJail:
		return "jailed"
	case CaseUnjail:
		return "unjailed"
	default:
		return string(t)
	}
}

// Scan implements sql.Scanner for CaseType.
func (t *CaseType) Scan(value interface{}) error {
	if value == nil {
		*t = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*t = CaseType(v)
	case []byte:
		*t = CaseType(v)
	default:
		return fmt.Errorf("cannot scan %T into CaseType", value)
	}
	return nil
}

// Value implements driver.Valuer for CaseType.
func (t CaseType) Value() (driver.Value, error) {
	return string(t), nil
}

// CaseStatus represents the database ENUM type for case status.
type CaseStatus string

// Case status constants. Temp bans flip to inactive once the cron
// expiry job unbans the target.
const (
	CaseActive   CaseStatus = "active"
	CaseInactive CaseStatus = "inactive"
)

// Scan implements sql.Scanner for CaseStatus.
func (s *CaseStatus) Scan(value interface{}) error {
	if value == nil {
		*s = ""
		return nil
	}
	switch v := value.(type) {
	case string:
		*s = CaseStatus(v)
	case []byte:
		*s = CaseStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into CaseStatus", value)
	}
	return nil
}

// Value implements driver.Valuer for CaseStatus.
func (s CaseStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// NewCase carries the inputs of a case insertion. The guild-scoped case
// number is assigned by the repository at insert time.
type NewCase struct {
	GuildID     string
	CaseType    CaseType
	TargetID    string
	ModeratorID string
	Reason      string
	ExpiresAt   *time.Time // set for temp bans and timeouts
}
