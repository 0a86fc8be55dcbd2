package sync

import (
	"context"
	"encoding/json"
	stdsync "sync"
	"sync/atomic"
	"time"

	"github.com/niyaskv/offsync/internal/errors"
	"github.com/niyaskv/offsync/internal/logging"
	"github.com/niyaskv/offsync/internal/models"
	"github.com/niyaskv/offsync/internal/session"
	"github.com/niyaskv/offsync/internal/sync/conflict"
	"github.com/niyaskv/offsync/internal/sync/metadata"
	"github.com/niyaskv/offsync/internal/sync/queue"
	"github.com/niyaskv/offsync/internal/sync/remote"
)

const (
	defaultInterval = 60 * time.Second
	defaultDebounce = 500 * time.Millisecond
	defaultSettle   = 1 * time.Second
)

// Status is a point-in-time snapshot of the orchestrator.
type Status struct {
	InFlight  bool
	LastSync  time.Time
	LastError string
	Pending   int
	Failed    int
}

// Orchestrator owns trigger handling and runs the bidirectional sync pass:
// push (drain the queue) then pull (download deltas, resolve conflicts).
// Only one pass runs at a time; triggers arriving while a pass is in flight
// are dropped, the next timer or edge picks up remaining work.
type Orchestrator struct {
	queue     *queue.Queue
	meta      *metadata.Store
	local     LocalStore
	remote    RemoteClient
	sessions  session.Source
	resources []Resource
	resolvers map[string]*conflict.Resolver

	interval time.Duration
	debounce time.Duration
	settle   time.Duration
	now      func() time.Time

	inFlight atomic.Bool

	mu            stdsync.Mutex
	lastSync      time.Time
	lastError     string
	debounceTimer *time.Timer
	running       bool

	stopCh chan struct{}
	wg     stdsync.WaitGroup
}

// OrchestratorOption configures an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithInterval sets the periodic sync interval.
func WithInterval(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.interval = d }
}

// WithDebounce sets the post-mutation batching window.
func WithDebounce(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.debounce = d }
}

// WithSettleDelay sets the pause between a connectivity-restored edge and
// the sync it triggers.
func WithSettleDelay(d time.Duration) OrchestratorOption {
	return func(o *Orchestrator) { o.settle = d }
}

func withClock(now func() time.Time) OrchestratorOption {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the engine components together. resources lists the
// syncable tables the pull pass iterates.
func NewOrchestrator(q *queue.Queue, meta *metadata.Store, local LocalStore, rc RemoteClient, sessions session.Source, resources []Resource, opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		queue:     q,
		meta:      meta,
		local:     local,
		remote:    rc,
		sessions:  sessions,
		resources: resources,
		resolvers: make(map[string]*conflict.Resolver, len(resources)),
		interval:  defaultInterval,
		debounce:  defaultDebounce,
		settle:    defaultSettle,
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	for _, r := range resources {
		o.resolvers[r.Table] = conflict.NewResolver(r.StatusAuthority)
	}
	return o
}

// Sync triggers an asynchronous sync pass. It never blocks; if a pass is
// already in flight the trigger is a no-op.
func (o *Orchestrator) Sync() {
	go func() {
		if err := o.RunPass(context.Background()); err != nil && !errors.Is(err, errors.ErrSyncInProgress) {
			logging.Error("sync pass failed", err, nil)
		}
	}()
}

// NotifyMutation should be called after every local write. Bursts of writes
// within the debounce window collapse into a single pass.
func (o *Orchestrator) NotifyMutation() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.debounceTimer != nil {
		o.debounceTimer.Reset(o.debounce)
		return
	}
	o.debounceTimer = time.AfterFunc(o.debounce, func() {
		o.mu.Lock()
		o.debounceTimer = nil
		o.mu.Unlock()
		o.Sync()
	})
}

// OnConnectivityChange reacts to connectivity edges. On restore it waits a
// short settle delay so flapping links do not fire passes into a dead socket.
func (o *Orchestrator) OnConnectivityChange(online bool) {
	if !online {
		return
	}
	logging.Info("connectivity restored, scheduling sync", nil)
	time.AfterFunc(o.settle, o.Sync)
}

// Start runs the periodic sync loop until Stop.
func (o *Orchestrator) Start() {
	o.mu.Lock()
	if o.running {
		o.mu.Unlock()
		return
	}
	o.running = true
	o.mu.Unlock()

	o.wg.Add(1)
	go o.periodicLoop()
	logging.Info("sync orchestrator started", map[string]interface{}{
		"interval": o.interval.String(),
	})
}

// Stop stops the timers and waits for the loop to exit. An in-flight HTTP
// call finishes or times out naturally.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	if !o.running {
		o.mu.Unlock()
		return
	}
	o.running = false
	if o.debounceTimer != nil {
		o.debounceTimer.Stop()
		o.debounceTimer = nil
	}
	o.mu.Unlock()

	close(o.stopCh)
	o.wg.Wait()
	logging.Info("sync orchestrator stopped", nil)
}

func (o *Orchestrator) periodicLoop() {
	defer o.wg.Done()
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			o.Sync()
		case <-o.stopCh:
			return
		}
	}
}

// RunPass executes one synchronous bidirectional pass: push, then pull.
// Returns SYNC_IN_PROGRESS when another pass holds the single-flight guard.
func (o *Orchestrator) RunPass(ctx context.Context) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		return errors.New(errors.ErrSyncInProgress, "sync already in progress")
	}
	defer o.inFlight.Store(false)

	sess, ok := o.sessions.Current()
	if !ok {
		return errors.New(errors.ErrTenantMissing, "no active session, skipping sync")
	}

	pushErr := o.push(ctx, sess)
	pullErr := o.pull(ctx, sess)

	o.mu.Lock()
	o.lastSync = o.now()
	switch {
	case pushErr != nil:
		o.lastError = pushErr.Error()
	case pullErr != nil:
		o.lastError = pullErr.Error()
	default:
		o.lastError = ""
	}
	o.mu.Unlock()

	if pushErr != nil {
		return pushErr
	}
	return pullErr
}

// push drains pending operations in creation order. Operations run
// sequentially so mutations to the same record keep their relative order.
// One failure never aborts the rest of the pass.
func (o *Orchestrator) push(ctx context.Context, sess session.Session) error {
	ops, err := o.queue.Pending(ctx)
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}

	logging.Info("draining sync queue", map[string]interface{}{
		"pending": len(ops),
		"tenant":  sess.TenantID,
	})

	var failed int
	for _, op := range ops {
		if err := o.pushOne(ctx, sess, op); err != nil {
			failed++
		}
	}

	if removed, err := o.queue.CleanupOld(ctx); err != nil {
		logging.Warn("queue cleanup failed", map[string]interface{}{"error": err.Error()})
	} else if removed > 0 {
		logging.Debug("cleaned up synced operations", map[string]interface{}{"removed": removed})
	}

	if failed > 0 {
		return errors.Newf(errors.ErrSyncFailed, "%d of %d operations failed", failed, len(ops))
	}
	return nil
}

func (o *Orchestrator) pushOne(ctx context.Context, sess session.Session, op models.SyncOperation) error {
	if err := o.queue.MarkSyncing(ctx, op.ID); err != nil {
		return err
	}

	res := o.dispatch(ctx, sess, op)
	if !res.Success {
		logging.Warn("operation failed", map[string]interface{}{
			"id":        op.ID,
			"table":     op.TableName,
			"operation": string(op.Operation),
			"kind":      string(res.ErrorKind),
			"error":     res.Message,
		})
		if err := o.queue.MarkFailed(ctx, op.ID); err != nil {
			logging.Error("failed to mark operation failed", err, map[string]interface{}{"id": op.ID})
		}
		return errors.New(res.ErrorKind, res.Message)
	}

	if err := o.queue.MarkSynced(ctx, op.ID, res.Attempts-1); err != nil {
		logging.Error("failed to mark operation synced", err, map[string]interface{}{"id": op.ID})
		return err
	}
	if op.Operation == models.OperationDelete {
		return nil
	}
	if err := o.meta.MarkSynced(ctx, op.TableName, op.RecordID, sess.TenantID, o.now()); err != nil {
		logging.Warn("failed to update record metadata", map[string]interface{}{
			"id":    op.ID,
			"error": err.Error(),
		})
	}
	return nil
}

func (o *Orchestrator) dispatch(ctx context.Context, sess session.Session, op models.SyncOperation) remote.Result {
	switch op.Operation {
	case models.OperationInsert:
		return o.remote.Upload(ctx, sess, op.TableName, op.Payload)
	case models.OperationUpdate:
		return o.remote.Update(ctx, sess, op.TableName, op.RecordID, op.Payload)
	case models.OperationDelete:
		return o.remote.Delete(ctx, sess, op.TableName, op.RecordID)
	default:
		return remote.Result{Success: false, ErrorKind: errors.ErrInvalid, Message: "unknown operation " + string(op.Operation)}
	}
}

// pull downloads each resource's delta since the tenant watermark and applies
// last-write-wins per record. The shared watermark only advances when every
// table succeeded, so a failed table is retried from the same point.
func (o *Orchestrator) pull(ctx context.Context, sess session.Session) error {
	since, _, err := o.meta.LastSyncTime(ctx, sess.TenantID)
	if err != nil {
		return err
	}

	allOK := true
	for _, r := range o.resources {
		if err := o.pullTable(ctx, sess, r, since); err != nil {
			logging.Warn("pull failed for table", map[string]interface{}{
				"table": r.Table,
				"error": err.Error(),
			})
			allOK = false
		}
	}

	if !allOK {
		return errors.New(errors.ErrSyncFailed, "pull pass incomplete, watermark not advanced")
	}
	return o.meta.SetLastSyncTime(ctx, sess.TenantID, o.now())
}

func (o *Orchestrator) pullTable(ctx context.Context, sess session.Session, r Resource, since time.Time) error {
	records, err := o.remote.DownloadDelta(ctx, sess, r.Table, since)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	logging.Debug("applying remote delta", map[string]interface{}{
		"table":   r.Table,
		"records": len(records),
	})

	resolver := o.resolvers[r.Table]
	var failures int
	for _, rec := range records {
		if err := o.applyRemote(ctx, sess, r.Table, resolver, rec); err != nil {
			logging.Warn("failed to apply remote record", map[string]interface{}{
				"table":  r.Table,
				"record": rec.ID,
				"error":  err.Error(),
			})
			failures++
		}
	}
	if failures > 0 {
		return errors.Newf(errors.ErrSyncFailed, "%d of %d records failed to apply", failures, len(records))
	}
	return nil
}

func (o *Orchestrator) applyRemote(ctx context.Context, sess session.Session, table string, resolver *conflict.Resolver, rec models.Record) error {
	if rec.TenantID != sess.TenantID {
		logging.Warn("skipping record from foreign tenant", map[string]interface{}{
			"table":  table,
			"record": rec.ID,
			"tenant": rec.TenantID,
		})
		return nil
	}

	var local conflict.Version
	version, found, err := o.meta.RecordVersion(ctx, table, rec.ID, sess.TenantID)
	if err != nil {
		return err
	}
	if found {
		local.UpdatedAt = version.UpdatedAt
		if localRec, ok, err := o.local.Get(ctx, table, rec.ID, sess.TenantID); err == nil && ok {
			local.Status = localRec.Status
		}
	}

	winner := resolver.Resolve(local, conflict.Version{UpdatedAt: rec.UpdatedAt, Status: rec.Status})
	if winner != conflict.WinnerRemote {
		return nil
	}

	if err := o.local.Upsert(ctx, table, rec); err != nil {
		return err
	}
	return o.meta.MarkSynced(ctx, table, rec.ID, sess.TenantID, rec.UpdatedAt)
}

// InitialSync enqueues every local record of every resource as an INSERT.
// Meant for first connection of an existing local dataset; idempotent on the
// remote side because duplicate uploads resolve as already-exists.
func (o *Orchestrator) InitialSync(ctx context.Context) error {
	sess, ok := o.sessions.Current()
	if !ok {
		return errors.New(errors.ErrTenantMissing, "no active session")
	}

	var enqueued int
	for _, r := range o.resources {
		records, err := o.local.List(ctx, r.Table, sess.TenantID)
		if err != nil {
			logging.Warn("initial sync skipped table", map[string]interface{}{
				"table": r.Table,
				"error": err.Error(),
			})
			continue
		}
		for _, rec := range records {
			var payload map[string]interface{}
			if err := json.Unmarshal(rec.Raw, &payload); err != nil {
				logging.Warn("skipping unparsable local record", map[string]interface{}{
					"table":  r.Table,
					"record": rec.ID,
				})
				continue
			}
			if _, err := o.queue.Enqueue(ctx, sess, r.Table, models.OperationInsert, rec.ID, payload); err != nil {
				logging.Warn("initial sync enqueue failed", map[string]interface{}{
					"table":  r.Table,
					"record": rec.ID,
					"error":  err.Error(),
				})
				continue
			}
			enqueued++
		}
	}

	logging.Info("initial sync enqueued", map[string]interface{}{"operations": enqueued})
	return nil
}

// Status reports the orchestrator state and queue depth.
func (o *Orchestrator) Status(ctx context.Context) (Status, error) {
	o.mu.Lock()
	st := Status{
		InFlight:  o.inFlight.Load(),
		LastSync:  o.lastSync,
		LastError: o.lastError,
	}
	o.mu.Unlock()

	stats, err := o.queue.Stats(ctx)
	if err != nil {
		return st, err
	}
	st.Pending = stats[string(models.StatusPending)]
	st.Failed = stats[string(models.StatusFailed)]
	return st, nil
}
