// Package sync coordinates the offline-first engine: it drains the durable
// mutation queue to the remote endpoint, pulls remote deltas per tenant, and
// resolves conflicts per syncable resource.
package sync

import (
	"context"
	"encoding/json"
	"time"

	"github.com/niyaskv/offsync/internal/models"
	"github.com/niyaskv/offsync/internal/session"
	"github.com/niyaskv/offsync/internal/sync/remote"
)

// Resource describes one syncable table. The orchestrator iterates these
// generically instead of hand-written per-table blocks.
type Resource struct {
	Table string
	// StatusAuthority enables the equal-timestamp status override for this
	// table: an administrative status correction that did not bump the
	// timestamp still wins over the local copy.
	StatusAuthority bool
}

// LocalStore is the materialized local copy the pull pass writes into.
type LocalStore interface {
	Upsert(ctx context.Context, table string, rec models.Record) error
	Delete(ctx context.Context, table, recordID, tenantID string) error
	Get(ctx context.Context, table, recordID, tenantID string) (models.Record, bool, error)
	List(ctx context.Context, table, tenantID string) ([]models.Record, error)
}

// RemoteClient is the remote endpoint the push and pull passes talk to.
type RemoteClient interface {
	Upload(ctx context.Context, sess session.Session, table string, payload json.RawMessage) remote.Result
	Update(ctx context.Context, sess session.Session, table, recordID string, payload json.RawMessage) remote.Result
	Delete(ctx context.Context, sess session.Session, table, recordID string) remote.Result
	DownloadDelta(ctx context.Context, sess session.Session, table string, since time.Time) ([]models.Record, error)
}
