package model

// Audit event type constants
const (
	AuditEventCaseCreated       = "CASE_CREATED"
	AuditEventCasePersistFailed = "CASE_PERSIST_FAILED"
	AuditEventCircuitOpened     = "CIRCUIT_OPENED"
	AuditEventCircuitClosed     = "CIRCUIT_CLOSED"
	AuditEventLockSweep         = "LOCK_SWEEP"
	AuditEventTempBanExpired    = "TEMPBAN_EXPIRED"
)
