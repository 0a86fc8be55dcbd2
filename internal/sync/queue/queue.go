// Package queue provides the durable mutation queue for offline operation.
// Mutations are persisted locally in creation order and drained by the
// orchestrator once the remote endpoint is reachable.
package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/niyaskv/offsync/internal/db"
	"github.com/niyaskv/offsync/internal/errors"
	"github.com/niyaskv/offsync/internal/logging"
	"github.com/niyaskv/offsync/internal/models"
	"github.com/niyaskv/offsync/internal/schema"
	"github.com/niyaskv/offsync/internal/session"
)

const (
	defaultMaxRetries = 5
	defaultRetention  = 30 * 24 * time.Hour
)

// Queue is a durable, ordered log of pending mutations backed by SQLite.
type Queue struct {
	db         *db.DB
	schemas    *schema.Registry
	maxRetries int
	retention  time.Duration
	now        func() time.Time
}

// Option configures a Queue.
type Option func(*Queue)

// WithSchemas normalizes payloads against declared resource schemas at
// enqueue time.
func WithSchemas(reg *schema.Registry) Option {
	return func(q *Queue) { q.schemas = reg }
}

// WithMaxRetries caps drain attempts before an operation is excluded from
// Pending.
func WithMaxRetries(n int) Option {
	return func(q *Queue) { q.maxRetries = n }
}

// WithRetention sets how long SYNCED entries are kept before CleanupOld
// deletes them.
func WithRetention(d time.Duration) Option {
	return func(q *Queue) { q.retention = d }
}

// withClock overrides the queue clock in tests.
func withClock(now func() time.Time) Option {
	return func(q *Queue) { q.now = now }
}

// New creates a Queue on top of database.
func New(database *db.DB, opts ...Option) *Queue {
	q := &Queue{
		db:         database,
		maxRetries: defaultMaxRetries,
		retention:  defaultRetention,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue persists a mutation for later upload and returns its operation id.
//
// The payload must carry a tenant id; when it does not, the tenant is taken
// from sess. Payloads with no derivable tenant are rejected and never
// persisted. An INSERT for a (table, record) that already has an undelivered
// INSERT queued (PENDING, SYNCING, or FAILED) returns the existing operation
// id instead of creating a duplicate; a partial unique index enforces the
// same rule against concurrent enqueues. SYNCED entries do not block
// re-inserts since the prior insert already completed.
func (q *Queue) Enqueue(ctx context.Context, sess session.Session, table string, op models.Operation, recordID string, payload map[string]interface{}) (string, error) {
	if table == "" || recordID == "" {
		return "", errors.New(errors.ErrInvalid, "table and record id are required")
	}
	if !op.Valid() {
		return "", errors.Newf(errors.ErrInvalid, "unknown operation %q", op)
	}

	doc := q.normalize(table, payload)

	tenant := stringField(doc, "tenant_id")
	if tenant == "" && sess.Valid() {
		tenant = sess.TenantID
		doc["tenant_id"] = tenant
	}
	if tenant == "" {
		logging.Warn("rejecting enqueue without tenant id", map[string]interface{}{
			"table":     table,
			"operation": string(op),
			"record_id": recordID,
		})
		return "", errors.New(errors.ErrEnqueueRejected, "payload carries no tenant id")
	}

	if op == models.OperationInsert {
		existing, err := q.outstandingInsert(ctx, table, recordID)
		if err != nil {
			return "", err
		}
		if existing != "" {
			logging.Debug("suppressing duplicate insert", map[string]interface{}{
				"table":     table,
				"record_id": recordID,
				"existing":  existing,
			})
			return existing, nil
		}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return "", errors.Wrap(errors.ErrPayloadInvalid, "unserializable payload", err)
	}

	id := uuid.New().String()
	createdAt := q.now().UnixMilli()

	const insertSQL = `
	INSERT INTO sync_queue (id, table_name, operation, record_id, payload, created_at, status, retry_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0)`
	if _, err := q.db.ExecContext(ctx, insertSQL, id, table, string(op), recordID, string(raw), createdAt, string(models.StatusPending)); err != nil {
		// A concurrent enqueue can win the race between the duplicate check
		// and the insert; the partial unique index rejects the loser. Resolve
		// to the row that won.
		if op == models.OperationInsert {
			if existing, qerr := q.outstandingInsert(ctx, table, recordID); qerr == nil && existing != "" {
				logging.Debug("suppressing duplicate insert", map[string]interface{}{
					"table":     table,
					"record_id": recordID,
					"existing":  existing,
				})
				return existing, nil
			}
		}
		return "", errors.Wrap(errors.ErrDatabase, "failed to enqueue operation", err)
	}

	logging.Debug("queued sync operation", map[string]interface{}{
		"id":        id,
		"table":     table,
		"operation": string(op),
		"record_id": recordID,
		"tenant_id": tenant,
	})
	return id, nil
}

// normalize applies the declared schema, or copies the payload as-is.
func (q *Queue) normalize(table string, payload map[string]interface{}) map[string]interface{} {
	if q.schemas != nil {
		return q.schemas.Normalize(table, payload)
	}
	doc := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		doc[k] = v
	}
	return doc
}

// outstandingInsert returns the id of an undelivered INSERT for
// (table, recordID), or "". FAILED counts as undelivered since those entries
// drain again under the retry cap or after a reset.
func (q *Queue) outstandingInsert(ctx context.Context, table, recordID string) (string, error) {
	const query = `
	SELECT id FROM sync_queue
	WHERE table_name = ? AND record_id = ? AND operation = ?
	  AND status IN (?, ?, ?)
	LIMIT 1`
	var id string
	err := q.db.QueryRowContext(ctx, query, table, recordID, string(models.OperationInsert),
		string(models.StatusPending), string(models.StatusSyncing), string(models.StatusFailed)).Scan(&id)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(errors.ErrDatabase, "failed to check queued inserts", err)
	}
	return id, nil
}

// Pending returns the drainable operations in creation order: PENDING
// entries plus FAILED entries still under the retry cap. Permanently failed
// entries are excluded until explicitly reset.
func (q *Queue) Pending(ctx context.Context) ([]models.SyncOperation, error) {
	const query = `
	SELECT id, table_name, operation, record_id, payload, created_at, COALESCE(synced_at, 0), status, retry_count
	FROM sync_queue
	WHERE status = ? OR (status = ? AND retry_count < ?)
	ORDER BY created_at ASC, id ASC`
	return q.list(ctx, query, string(models.StatusPending), string(models.StatusFailed), q.maxRetries)
}

// Failed returns permanently failed operations, for diagnostics and manual
// reset.
func (q *Queue) Failed(ctx context.Context) ([]models.SyncOperation, error) {
	const query = `
	SELECT id, table_name, operation, record_id, payload, created_at, COALESCE(synced_at, 0), status, retry_count
	FROM sync_queue
	WHERE status = ?
	ORDER BY created_at ASC, id ASC`
	return q.list(ctx, query, string(models.StatusFailed))
}

func (q *Queue) list(ctx context.Context, query string, args ...interface{}) ([]models.SyncOperation, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to query sync queue", err)
	}
	defer rows.Close()

	var ops []models.SyncOperation
	for rows.Next() {
		var op models.SyncOperation
		var operation, status, payload string
		if err := rows.Scan(&op.ID, &op.TableName, &operation, &op.RecordID, &payload, &op.CreatedAt, &op.SyncedAt, &status, &op.RetryCount); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "failed to scan sync operation", err)
		}
		op.Operation = models.Operation(operation)
		op.Status = models.OperationStatus(status)
		op.Payload = json.RawMessage(payload)
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to iterate sync queue", err)
	}
	return ops, nil
}

// MarkSyncing transitions an operation to SYNCING for the current drain.
func (q *Queue) MarkSyncing(ctx context.Context, id string) error {
	return q.setStatus(ctx, id, "UPDATE sync_queue SET status = ? WHERE id = ?", string(models.StatusSyncing), id)
}

// MarkSynced transitions an operation to SYNCED and stamps synced_at.
// retries is the number of failed delivery attempts that preceded success;
// it is added to retry_count for auditing, never for exclusion (SYNCED
// entries are already out of Pending).
func (q *Queue) MarkSynced(ctx context.Context, id string, retries int) error {
	if retries < 0 {
		retries = 0
	}
	return q.setStatus(ctx, id, "UPDATE sync_queue SET status = ?, synced_at = ?, retry_count = retry_count + ? WHERE id = ?",
		string(models.StatusSynced), q.now().UnixMilli(), retries, id)
}

// MarkFailed transitions an operation to FAILED and increments its retry
// count. Once the count reaches the cap the operation stays out of Pending
// until reset.
func (q *Queue) MarkFailed(ctx context.Context, id string) error {
	return q.setStatus(ctx, id, "UPDATE sync_queue SET status = ?, retry_count = retry_count + 1 WHERE id = ?",
		string(models.StatusFailed), id)
}

func (q *Queue) setStatus(ctx context.Context, id, query string, args ...interface{}) error {
	res, err := q.db.ExecContext(ctx, query, args...)
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to update sync operation", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(errors.ErrDatabase, "failed to read update result", err)
	}
	if affected == 0 {
		return errors.Newf(errors.ErrOperationNotFound, "operation %s not found", id)
	}
	return nil
}

// ResetFailed moves permanently failed operations back to PENDING with a
// zeroed retry count, returning how many were reset.
func (q *Queue) ResetFailed(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"UPDATE sync_queue SET status = ?, retry_count = 0 WHERE status = ?",
		string(models.StatusPending), string(models.StatusFailed))
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to reset failed operations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to read reset result", err)
	}
	if n > 0 {
		logging.Info("reset failed operations", map[string]interface{}{"count": n})
	}
	return n, nil
}

// ClearUnsynced deletes every PENDING, SYNCING, and FAILED entry. Used when
// the queue is re-seeded from scratch (e.g. before an initial sync) so stale
// entries from older payload shapes don't replay.
func (q *Queue) ClearUnsynced(ctx context.Context) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		"DELETE FROM sync_queue WHERE status IN (?, ?, ?)",
		string(models.StatusPending), string(models.StatusSyncing), string(models.StatusFailed))
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to clear unsynced operations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to read clear result", err)
	}
	return n, nil
}

// CleanupOld deletes SYNCED entries older than the retention window.
func (q *Queue) CleanupOld(ctx context.Context) (int64, error) {
	cutoff := q.now().Add(-q.retention).UnixMilli()
	res, err := q.db.ExecContext(ctx,
		"DELETE FROM sync_queue WHERE status = ? AND synced_at IS NOT NULL AND synced_at < ?",
		string(models.StatusSynced), cutoff)
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to clean up synced operations", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(errors.ErrDatabase, "failed to read cleanup result", err)
	}
	return n, nil
}

// Stats returns per-status counts.
func (q *Queue) Stats(ctx context.Context) (map[string]int, error) {
	rows, err := q.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM sync_queue GROUP BY status")
	if err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to query queue stats", err)
	}
	defer rows.Close()

	stats := map[string]int{
		string(models.StatusPending): 0,
		string(models.StatusSyncing): 0,
		string(models.StatusSynced):  0,
		string(models.StatusFailed):  0,
	}
	total := 0
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(errors.ErrDatabase, "failed to scan queue stats", err)
		}
		stats[status] = count
		total += count
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrDatabase, "failed to iterate queue stats", err)
	}
	stats["total"] = total
	return stats, nil
}

// stringField reads a string-ish field out of a document. Numeric tenant ids
// are stringified the way the wire format expects.
func stringField(doc map[string]interface{}, key string) string {
	v, ok := doc[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return fmt.Sprintf("%.0f", t)
	case int:
		return fmt.Sprintf("%d", t)
	case int64:
		return fmt.Sprintf("%d", t)
	default:
		return ""
	}
}
