// Package models provides data model definitions for the sync engine.
package models

import "encoding/json"

// Operation represents the kind of queued mutation.
type Operation string

const (
	OperationInsert Operation = "INSERT"
	OperationUpdate Operation = "UPDATE"
	OperationDelete Operation = "DELETE"
)

// Valid reports whether op is a known mutation kind.
func (op Operation) Valid() bool {
	switch op {
	case OperationInsert, OperationUpdate, OperationDelete:
		return true
	}
	return false
}

// OperationStatus represents the lifecycle state of a queued mutation.
type OperationStatus string

const (
	StatusPending OperationStatus = "PENDING"
	StatusSyncing OperationStatus = "SYNCING"
	StatusSynced  OperationStatus = "SYNCED"
	StatusFailed  OperationStatus = "FAILED"
)

// SyncOperation represents a durable queued mutation awaiting upload.
// CreatedAt and SyncedAt are unix milliseconds; CreatedAt preserves enqueue
// order within a single drain pass.
type SyncOperation struct {
	ID         string          `db:"id" json:"id"`
	TableName  string          `db:"table_name" json:"table_name"`
	Operation  Operation       `db:"operation" json:"operation"`
	RecordID   string          `db:"record_id" json:"record_id"`
	Payload    json.RawMessage `db:"payload" json:"payload"`
	CreatedAt  int64           `db:"created_at" json:"created_at"`
	SyncedAt   int64           `db:"synced_at" json:"synced_at,omitempty"`
	Status     OperationStatus `db:"status" json:"status"`
	RetryCount int             `db:"retry_count" json:"retry_count"`
}
