package cli

import (
	"net/http"
	"os"
	"strings"

	"github.com/niyaskv/offsync/internal/config"
	"github.com/niyaskv/offsync/internal/db"
	"github.com/niyaskv/offsync/internal/errors"
	"github.com/niyaskv/offsync/internal/logging"
	"github.com/niyaskv/offsync/internal/schema"
	"github.com/niyaskv/offsync/internal/session"
	"github.com/niyaskv/offsync/internal/store"
	syncpkg "github.com/niyaskv/offsync/internal/sync"
	"github.com/niyaskv/offsync/internal/sync/connectivity"
	"github.com/niyaskv/offsync/internal/sync/metadata"
	"github.com/niyaskv/offsync/internal/sync/queue"
	"github.com/niyaskv/offsync/internal/sync/remote"
)

// app holds the wired engine components for one CLI invocation.
type app struct {
	cfg          *config.Config
	db           *db.DB
	queue        *queue.Queue
	meta         *metadata.Store
	local        *store.Store
	remote       *remote.Client
	sessions     *session.Holder
	orchestrator *syncpkg.Orchestrator
	monitor      *connectivity.Monitor
}

// buildApp loads config, opens the local database, and wires the engine.
// The session comes from the --token flag or the ACCESS_TOKEN variable.
func buildApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	level := cfg.LogLevel
	if opts.Verbose {
		level = "debug"
	}
	logging.Init(os.Stderr, level)

	database, err := db.Open(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database); err != nil {
		database.Close()
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		db:       database,
		meta:     metadata.NewStore(database),
		local:    store.New(database),
		sessions: session.NewHolder(),
	}
	schemas, err := buildSchemas(opts.Schemas, cfg.Schemas)
	if err != nil {
		database.Close()
		return nil, err
	}
	queueOpts := []queue.Option{
		queue.WithMaxRetries(cfg.MaxQueueRetries),
		queue.WithRetention(cfg.Retention()),
	}
	if schemas != nil {
		queueOpts = append(queueOpts, queue.WithSchemas(schemas))
	}
	a.queue = queue.New(database, queueOpts...)
	a.remote = remote.NewClient(cfg.RemoteURL, cfg.APIKey,
		remote.WithHTTPClient(&http.Client{Timeout: cfg.HTTPTimeout}),
		remote.WithMaxAttempts(cfg.MaxHTTPRetries),
		remote.WithBaseDelay(cfg.RetryBaseDelay),
	)

	token := opts.Token
	if token == "" {
		token = os.Getenv("ACCESS_TOKEN")
	}
	if token != "" {
		sess, err := session.FromToken(token)
		if err != nil {
			database.Close()
			return nil, err
		}
		a.sessions.Set(sess)
	}

	resources := parseResources(opts.Tables, opts.StatusTables)
	a.orchestrator = syncpkg.NewOrchestrator(
		a.queue, a.meta, a.local, a.remote, a.sessions, resources,
		syncpkg.WithInterval(cfg.SyncInterval),
		syncpkg.WithDebounce(cfg.DebounceWindow),
		syncpkg.WithSettleDelay(cfg.SettleDelay),
	)

	probeURL := cfg.ProbeURL
	if probeURL == "" {
		probeURL = cfg.RemoteURL
	}
	a.monitor = connectivity.NewMonitor(probeURL,
		connectivity.WithInterval(cfg.ConnectivityInterval),
		connectivity.WithTimeout(cfg.ProbeTimeout),
	)
	a.monitor.OnChange(a.orchestrator.OnConnectivityChange)

	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// requireSession returns the active session or a tenant-missing error.
func (a *app) requireSession() (session.Session, error) {
	sess, ok := a.sessions.Current()
	if !ok {
		return session.Session{}, errors.New(errors.ErrTenantMissing, "no session: pass --token or set ACCESS_TOKEN")
	}
	return sess, nil
}

// buildSchemas parses the --schemas flag, falling back to the SCHEMAS config
// value. An empty declaration means no registry: payloads are queued as-is.
func buildSchemas(flagValue, cfgValue string) (*schema.Registry, error) {
	decl := flagValue
	if decl == "" {
		decl = cfgValue
	}
	resources, err := schema.ParseDeclarations(decl)
	if err != nil {
		return nil, err
	}
	if len(resources) == 0 {
		return nil, nil
	}
	return schema.NewRegistry(resources...), nil
}

// parseResources turns the --tables and --status-tables flags into the
// resource registry the orchestrator iterates.
func parseResources(tables, statusTables string) []syncpkg.Resource {
	authority := make(map[string]bool)
	for _, t := range splitList(statusTables) {
		authority[t] = true
	}
	var resources []syncpkg.Resource
	for _, t := range splitList(tables) {
		resources = append(resources, syncpkg.Resource{
			Table:           t,
			StatusAuthority: authority[t],
		})
	}
	return resources
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
