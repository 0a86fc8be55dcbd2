package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niyaskv/offsync/internal/db"
	"github.com/niyaskv/offsync/internal/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	database, err := db.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.Migrate(database))
	return New(database)
}

func testRecord(id string, updatedAt time.Time) models.Record {
	raw := fmt.Sprintf(`{"id":%q,"tenant_id":"tenant-1","updated_at":%q,"name":"rec %s"}`,
		id, updatedAt.Format(time.RFC3339Nano), id)
	return models.Record{
		ID:        id,
		TenantID:  "tenant-1",
		UpdatedAt: updatedAt,
		Raw:       json.RawMessage(raw),
	}
}

func TestUpsertAndGet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, "patients", testRecord("rec-1", at)))

	rec, found, err := s.Get(ctx, "patients", "rec-1", "tenant-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "rec-1", rec.ID)
	assert.True(t, rec.UpdatedAt.Equal(at))

	// Second upsert replaces, not duplicates.
	later := at.Add(time.Hour)
	require.NoError(t, s.Upsert(ctx, "patients", testRecord("rec-1", later)))

	rec, _, err = s.Get(ctx, "patients", "rec-1", "tenant-1")
	require.NoError(t, err)
	assert.True(t, rec.UpdatedAt.Equal(later))

	all, err := s.List(ctx, "patients", "tenant-1")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestGetMissing(t *testing.T) {
	s := newTestStore(t)

	_, found, err := s.Get(context.Background(), "patients", "no-such", "tenant-1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "patients", testRecord("rec-1", time.Now())))
	require.NoError(t, s.Delete(ctx, "patients", "rec-1", "tenant-1"))

	_, found, err := s.Get(ctx, "patients", "rec-1", "tenant-1")
	require.NoError(t, err)
	assert.False(t, found)

	// Deleting again is a no-op.
	require.NoError(t, s.Delete(ctx, "patients", "rec-1", "tenant-1"))
}

func TestListScopesTableAndTenant(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, s.Upsert(ctx, "patients", testRecord("rec-1", at)))
	require.NoError(t, s.Upsert(ctx, "patients", testRecord("rec-2", at.Add(time.Minute))))
	require.NoError(t, s.Upsert(ctx, "visits", testRecord("rec-3", at)))

	other := testRecord("rec-4", at)
	other.TenantID = "tenant-2"
	require.NoError(t, s.Upsert(ctx, "patients", other))

	records, err := s.List(ctx, "patients", "tenant-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "rec-1", records[0].ID)
	assert.Equal(t, "rec-2", records[1].ID)
}
