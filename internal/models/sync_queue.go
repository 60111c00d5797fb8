// Package models provides data model definitions for the POS core.
package models

import "encoding/json"

// OperationType is the kind of mutation a sync queue entry carries.
type OperationType string

const (
	OperationCreate OperationType = "CREATE"
	OperationUpdate OperationType = "UPDATE"
	OperationDelete OperationType = "DELETE"
)

// SyncStatus is the processing state of a sync queue entry.
// Acknowledged entries are deleted rather than kept in a terminal state.
type SyncStatus string

const (
	SyncStatusPending  SyncStatus = "PENDING"
	SyncStatusInFlight SyncStatus = "IN_FLIGHT"
	SyncStatusFailed   SyncStatus = "FAILED"
)

// SyncQueueEntry represents one pending outbound mutation. Retry state
// (attempts, next_attempt_at) lives on the row so it survives restarts.
type SyncQueueEntry struct {
	ID            UUID            `db:"id" json:"id"`
	OperationType OperationType   `db:"operation_type" json:"operation_type"`
	TableName     string          `db:"table_name" json:"table_name"`
	RecordID      UUID            `db:"record_id" json:"record_id"`
	Data          json.RawMessage `db:"data" json:"data"`
	Status        SyncStatus      `db:"status" json:"status"`
	Attempts      int             `db:"attempts" json:"attempts"`
	LastAttempt   int64           `db:"last_attempt" json:"last_attempt"`
	NextAttemptAt int64           `db:"next_attempt_at" json:"next_attempt_at"`
	ErrorMessage  string          `db:"error_message" json:"error_message,omitempty"`
	CreatedAt     int64           `db:"created_at" json:"created_at"`
}
