// Package store persists materialized records locally. Documents are kept
// verbatim as JSON so the engine never needs to know per-table columns.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/niyaskv/offsync/internal/db"
	"github.com/niyaskv/offsync/internal/errors"
	"github.com/niyaskv/offsync/internal/models"
)

// Store is the local record cache, one logical table per remote resource.
type Store struct {
	db *db.DB
}

// New creates a Store over an open database.
func New(d *db.DB) *Store {
	return &Store{db: d}
}

// Upsert inserts or replaces a record for its (table, id, tenant) key.
func (s *Store) Upsert(ctx context.Context, table string, rec models.Record) error {
	query := `
		INSERT INTO local_records (table_name, record_id, tenant_id, created_at, updated_at, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(table_name, record_id, tenant_id) DO UPDATE SET
			updated_at = excluded.updated_at,
			payload = excluded.payload
	`
	_, err := s.db.ExecContext(ctx, query,
		table, rec.ID, rec.TenantID,
		formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
		string(rec.Raw),
	)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to upsert record", err)
	}
	return nil
}

// Delete removes a record. Deleting an absent record is not an error.
func (s *Store) Delete(ctx context.Context, table, recordID, tenantID string) error {
	query := `DELETE FROM local_records WHERE table_name = ? AND record_id = ? AND tenant_id = ?`
	if _, err := s.db.ExecContext(ctx, query, table, recordID, tenantID); err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to delete record", err)
	}
	return nil
}

// Get returns a record by key, reporting presence separately from errors.
func (s *Store) Get(ctx context.Context, table, recordID, tenantID string) (models.Record, bool, error) {
	query := `
		SELECT payload FROM local_records
		WHERE table_name = ? AND record_id = ? AND tenant_id = ?
	`
	var payload string
	err := s.db.QueryRowContext(ctx, query, table, recordID, tenantID).Scan(&payload)
	if err == sql.ErrNoRows {
		return models.Record{}, false, nil
	}
	if err != nil {
		return models.Record{}, false, errors.Wrap(errors.ErrDatabase, "failed to load record", err)
	}
	rec, err := models.ParseRecord([]byte(payload))
	if err != nil {
		return models.Record{}, false, err
	}
	return rec, true, nil
}

// List returns every record a tenant holds in one logical table, ordered by
// updated_at ascending. Rows with unparsable payloads are skipped.
func (s *Store) List(ctx context.Context, table, tenantID string) ([]models.Record, error) {
	query := `
		SELECT payload FROM local_records
		WHERE table_name = ? AND tenant_id = ?
		ORDER BY updated_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, table, tenantID)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to list records", err)
	}
	defer rows.Close()

	var records []models.Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "failed to scan record", err)
		}
		rec, err := models.ParseRecord([]byte(payload))
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to iterate records", err)
	}
	return records, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
