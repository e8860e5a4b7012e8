package model

import "time"

// CircuitOpenedEvent is emitted when a breaker trips open.
type CircuitOpenedEvent struct {
	OperationType       OperationType
	ConsecutiveFailures int
	OpenedAt            time.Time
}

// CircuitClosedEvent is emitted when a breaker recovers.
type CircuitClosedEvent struct {
	OperationType OperationType
	ClosedAt      time.Time
}
