// Package metadata tracks sync watermarks: the last successful pull time per
// tenant, and the last observed modification timestamp per record. Both feed
// incremental pull and conflict comparison.
package metadata

import (
	"context"
	"database/sql"
	"time"

	"github.com/niyaskv/offsync/internal/db"
	"github.com/niyaskv/offsync/internal/errors"
	"github.com/niyaskv/offsync/internal/models"
)

// Store persists sync metadata in SQLite.
type Store struct {
	db *db.DB
}

// NewStore creates a Store on top of database.
func NewStore(database *db.DB) *Store {
	return &Store{db: database}
}

// LastSyncTime returns the pull watermark for tenantID. The second return is
// false when the tenant has never completed a pull.
func (s *Store) LastSyncTime(ctx context.Context, tenantID string) (time.Time, bool, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT last_sync_time FROM sync_metadata WHERE tenant_id = ?", tenantID).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, errors.Wrap(errors.ErrDatabase, "failed to read last sync time", err)
	}
	if !raw.Valid || raw.String == "" {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw.String)
	if err != nil {
		return time.Time{}, false, errors.Wrap(errors.ErrDatabase, "corrupt last sync time", err)
	}
	return t.UTC(), true, nil
}

// SetLastSyncTime advances the pull watermark for tenantID. The row is
// created lazily on the first successful pull.
func (s *Store) SetLastSyncTime(ctx context.Context, tenantID string, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO sync_metadata (tenant_id, last_sync_time, updated_at)
	VALUES (?, ?, ?)
	ON CONFLICT(tenant_id) DO UPDATE SET last_sync_time = excluded.last_sync_time, updated_at = excluded.updated_at`,
		tenantID, t.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to set last sync time", err)
	}
	return nil
}

// RecordVersion returns the tracked metadata for one record. The second
// return is false when the record has never been observed, which pull treats
// as "local absent".
func (s *Store) RecordVersion(ctx context.Context, table, recordID, tenantID string) (models.RecordSyncMetadata, bool, error) {
	var meta models.RecordSyncMetadata
	var raw sql.NullString
	var synced int
	err := s.db.QueryRowContext(ctx, `
	SELECT updated_at, is_synced, sync_version FROM record_sync_metadata
	WHERE table_name = ? AND record_id = ? AND tenant_id = ?`,
		table, recordID, tenantID).Scan(&raw, &synced, &meta.SyncVersion)
	if err == sql.ErrNoRows {
		return models.RecordSyncMetadata{}, false, nil
	}
	if err != nil {
		return models.RecordSyncMetadata{}, false, errors.Wrap(errors.ErrDatabase, "failed to read record metadata", err)
	}

	meta.TableName = table
	meta.RecordID = recordID
	meta.TenantID = tenantID
	meta.IsSynced = synced != 0
	if raw.Valid && raw.String != "" {
		t, perr := time.Parse(time.RFC3339Nano, raw.String)
		if perr != nil {
			return models.RecordSyncMetadata{}, false, errors.Wrap(errors.ErrDatabase, "corrupt record timestamp", perr)
		}
		meta.UpdatedAt = t.UTC()
	}
	return meta, true, nil
}

// MarkSynced records that a record was reconciled at updatedAt, bumping its
// sync version.
func (s *Store) MarkSynced(ctx context.Context, table, recordID, tenantID string, updatedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO record_sync_metadata (table_name, record_id, tenant_id, updated_at, is_synced, sync_version)
	VALUES (?, ?, ?, ?, 1, 1)
	ON CONFLICT(table_name, record_id, tenant_id) DO UPDATE SET
		updated_at = excluded.updated_at,
		is_synced = 1,
		sync_version = record_sync_metadata.sync_version + 1`,
		table, recordID, tenantID, updatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to mark record synced", err)
	}
	return nil
}

// MarkUnsynced flags a record as carrying local changes not yet pushed.
func (s *Store) MarkUnsynced(ctx context.Context, table, recordID, tenantID string) error {
	_, err := s.db.ExecContext(ctx, `
	UPDATE record_sync_metadata SET is_synced = 0
	WHERE table_name = ? AND record_id = ? AND tenant_id = ?`,
		table, recordID, tenantID)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to mark record unsynced", err)
	}
	return nil
}
