package models

import "time"

// SyncMetadata tracks the last successful pull watermark for one tenant.
// One row per tenant, created lazily on first pull.
type SyncMetadata struct {
	TenantID     string    `db:"tenant_id" json:"tenant_id"`
	LastSyncTime time.Time `db:"last_sync_time" json:"last_sync_time"`
}

// TableName returns the storage table name for SyncMetadata.
func (SyncMetadata) TableName() string {
	return "sync_metadata"
}

// RecordSyncMetadata tracks the last observed modification timestamp of a
// single record, keyed by (table, record, tenant). SyncVersion increments on
// every reconciliation and exists for auditing, not enforcement.
type RecordSyncMetadata struct {
	TableName   string    `db:"table_name" json:"table_name"`
	RecordID    string    `db:"record_id" json:"record_id"`
	TenantID    string    `db:"tenant_id" json:"tenant_id"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
	IsSynced    bool      `db:"is_synced" json:"is_synced"`
	SyncVersion int64     `db:"sync_version" json:"sync_version"`
}
