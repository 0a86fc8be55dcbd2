package db

import (
	"fmt"
)

// schema holds the engine tables. Statements are idempotent so Migrate can
// run on every startup.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sync_queue (
		id TEXT PRIMARY KEY,
		table_name TEXT NOT NULL,
		operation TEXT NOT NULL,
		record_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		synced_at INTEGER,
		status TEXT NOT NULL DEFAULT 'PENDING',
		retry_count INTEGER NOT NULL DEFAULT 0
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_status
		ON sync_queue(status, created_at);`,
	`CREATE INDEX IF NOT EXISTS idx_sync_queue_record
		ON sync_queue(table_name, record_id, operation);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS idx_sync_queue_one_insert
		ON sync_queue(table_name, record_id)
		WHERE operation = 'INSERT' AND status IN ('PENDING', 'SYNCING', 'FAILED');`,
	`CREATE TABLE IF NOT EXISTS sync_metadata (
		tenant_id TEXT NOT NULL PRIMARY KEY,
		last_sync_time TEXT,
		updated_at TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS record_sync_metadata (
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		updated_at TEXT,
		is_synced INTEGER NOT NULL DEFAULT 0,
		sync_version INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (table_name, record_id, tenant_id)
	);`,
	`CREATE TABLE IF NOT EXISTS local_records (
		table_name TEXT NOT NULL,
		record_id TEXT NOT NULL,
		tenant_id TEXT NOT NULL,
		created_at TEXT,
		updated_at TEXT,
		payload TEXT NOT NULL,
		PRIMARY KEY (table_name, record_id, tenant_id)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_local_records_tenant
		ON local_records(table_name, tenant_id, updated_at);`,
}

// Migrate creates the engine tables if they do not exist.
func Migrate(db *DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}
