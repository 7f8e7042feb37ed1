// Package environment implements the Environment Orchestrator (§4.10),
// the top-level handle that owns the Service Manager, the Event Bus,
// and the per-worker Test Context factory.
package environment

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	"github.com/cuemby/integr8/internal/adapter"
	"github.com/cuemby/integr8/internal/dbmanager"
	"github.com/cuemby/integr8/internal/dbstate"
	"github.com/cuemby/integr8/internal/events"
	"github.com/cuemby/integr8/internal/obslog"
	"github.com/cuemby/integr8/internal/orchestrator"
	"github.com/cuemby/integr8/internal/override"
	"github.com/cuemby/integr8/internal/seed"
	"github.com/cuemby/integr8/internal/spec"
	"github.com/cuemby/integr8/internal/testctx"
	"github.com/rs/zerolog"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// envRunningVar marks process-wide shared-environment mode (§4.10, §6).
const envRunningVar = "ENVIRONMENT_RUNNING"

// Environment is the single top-level holder of lifecycle state.
type Environment struct {
	config spec.Config
	bus    *events.Bus
	sm     *orchestrator.ServiceManager
	logger zerolog.Logger

	shared bool

	overrideAdapter *adapter.Adapter
	overrideMgr     *override.Manager

	mu      sync.Mutex
	workers map[string]*workerState
	dbConns map[string]*sql.DB // one shared *sql.DB per database unit, across workers
}

type workerState struct {
	dbManagers map[string]*dbmanager.Manager
}

// New builds an Environment for config. Shared-environment mode is
// detected from the ENVIRONMENT_RUNNING process env var.
func New(config spec.Config) *Environment {
	bus := events.NewBus()
	a := adapter.New()

	overrideCfg := override.Config{Adapter: a}
	if config.TestMode != nil {
		overrideCfg.ControlPort = config.TestMode.ControlPort
		overrideCfg.OverrideEndpoint = config.TestMode.OverrideEndpoint
	}

	return &Environment{
		config:          config,
		bus:             bus,
		sm:              orchestrator.NewServiceManager(config, bus),
		logger:          obslog.WithComponent("environment"),
		shared:          os.Getenv(envRunningVar) == "true",
		overrideAdapter: a,
		overrideMgr:     override.NewManager(overrideCfg),
		workers:         make(map[string]*workerState),
		dbConns:         make(map[string]*sql.DB),
	}
}

// Adapter returns the reference in-process override adapter so an
// embedding application can register its own collaborator handlers.
func (e *Environment) Adapter() *adapter.Adapter { return e.overrideAdapter }

// Bus returns the shared event bus.
func (e *Environment) Bus() *events.Bus { return e.bus }

// Start runs the Service Manager's start protocol, unless shared-
// environment mode is active, in which case it only records the
// configuration (§4.10).
func (e *Environment) Start(ctx context.Context, fast bool) error {
	if e.shared {
		e.logger.Info().Msg("ENVIRONMENT_RUNNING=true, skipping orchestrator start")
		return nil
	}

	if err := e.sm.Start(ctx, fast); err != nil {
		e.logger.Error().Err(err).Msg("startup failed, running best-effort teardown")
		if _, failures := e.sm.StopWithReport(ctx); len(failures) > 0 {
			for name, ferr := range failures {
				e.logger.Warn().Err(ferr).Str("service", name).Msg("teardown leaked a service after failed startup")
			}
		}
		return err
	}
	return nil
}

// Stop runs the Service Manager's stop protocol and returns a
// structured report of what stopped cleanly versus leaked. It is a
// no-op in shared-environment mode — the caller does not own the
// shared environment's lifecycle.
func (e *Environment) Stop(ctx context.Context) (*TeardownReport, error) {
	if e.shared {
		return &TeardownReport{}, nil
	}

	stopped, failures := e.sm.StopWithReport(ctx)
	report := &TeardownReport{Stopped: stopped}
	for name, err := range failures {
		report.Leaked = append(report.Leaked, TeardownFailure{Service: name, Err: err})
	}

	e.bus.UnsubscribeAll()
	return report, nil
}

// IsReady reports whether every configured unit is running and ready.
// Always true in shared-environment mode (§4.10's detached assumption:
// the shared environment's own test suite already verified readiness).
func (e *Environment) IsReady(ctx context.Context) bool {
	if e.shared {
		return true
	}
	return e.sm.IsReady(ctx)
}

// GetContext returns the per-worker Test Context for workerID, building
// its database façades on first use; the override manager and event
// bus are shared by all workers. In shared-environment mode it returns
// a detached context whose HTTP client targets localhost directly; its
// Override and Bus are nil and its DB map is empty.
func (e *Environment) GetContext(ctx context.Context, workerID string) (*testctx.Context, error) {
	if e.shared {
		return testctx.NewDetached(workerID, testctx.NewHTTPClient(e.sharedBaseURL())), nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ws, ok := e.workers[workerID]
	if !ok {
		built, err := e.buildWorkerState(ctx, workerID)
		if err != nil {
			return nil, err
		}
		e.workers[workerID] = built
		ws = built
	}

	return testctx.New(workerID, testctx.NewHTTPClient(e.serviceBaseURL()), e.overrideMgr, e.bus, ws.dbManagers), nil
}

// sharedBaseURL derives the detached HTTP client's target per §8
// scenario 6: localhost on the configured host port of the first
// container-backed service's first port binding, or the control port,
// defaulting to 3000.
func (e *Environment) sharedBaseURL() string {
	for _, u := range e.config.Services {
		if u.Container != nil {
			for _, p := range u.Container.Ports {
				return fmt.Sprintf("http://localhost:%d", p.Host)
			}
		}
	}
	if e.config.TestMode != nil && e.config.TestMode.ControlPort != 0 {
		return fmt.Sprintf("http://localhost:%d", e.config.TestMode.ControlPort)
	}
	return "http://localhost:3000"
}

func (e *Environment) serviceBaseURL() string {
	return e.sharedBaseURL()
}

// buildWorkerState constructs one dbmanager.Manager per configured
// database unit, scoped to workerID, sharing the underlying *sql.DB
// per unit across workers (only isolation state is worker-scoped).
func (e *Environment) buildWorkerState(ctx context.Context, workerID string) (*workerState, error) {
	ws := &workerState{dbManagers: make(map[string]*dbmanager.Manager)}

	for _, u := range e.config.Databases {
		db, dsn, err := e.connectDatabase(u)
		if err != nil {
			return nil, fmt.Errorf("worker %s: connect database %q: %w", workerID, u.Name, err)
		}

		strategy := dbstate.StrategySchema
		restoreStrategy := seed.RestoreReset
		var seedCfg seed.Config
		if opts := u.Database; opts != nil {
			if opts.Isolation != "" {
				strategy = dbstate.Strategy(opts.Isolation)
			}
			seedCfg = seed.Config{
				Mode:       seed.Mode(opts.SeedMode),
				Command:    opts.SeedCommand,
				WorkingDir: opts.SeedWorkingDir,
				Timeout:    opts.SeedTimeout,
			}
			if opts.RestoreStrategy != "" {
				restoreStrategy = seed.RestoreStrategy(opts.RestoreStrategy)
			}
		}
		seedCfg.WorkerID = workerID
		seedCfg.RestoreStrategy = restoreStrategy
		seedCfg.ConnectionEnv = e.sm.Orchestrator(spec.CategoryDatabase).ConnectionStrings()[u.Name]

		dataDir, err := os.MkdirTemp("", "integr8-dbstate-")
		if err != nil {
			return nil, fmt.Errorf("worker %s: create db state dir for %q: %w", workerID, u.Name, err)
		}
		state, err := dbstate.NewManager(dbstate.Config{
			DB:       db,
			Driver:   driverFor(u.Type),
			Strategy: strategy,
			WorkerID: workerID,
			DataDir:  dataDir,
		})
		if err != nil {
			return nil, fmt.Errorf("worker %s: init db state for %q: %w", workerID, u.Name, err)
		}

		seeder := seed.NewManager(seedCfg)
		ws.dbManagers[u.Name] = dbmanager.New(db, state, seeder, workerID, dsn)
	}

	return ws, nil
}

// connectDatabase opens (or reuses) the shared *sql.DB for unit u and
// returns it alongside the DSN it was opened with.
func (e *Environment) connectDatabase(u spec.Unit) (*sql.DB, string, error) {
	dsn, err := e.dsnFor(u)
	if err != nil {
		return nil, "", err
	}

	if existing, ok := e.dbConns[u.Name]; ok {
		return existing, dsn, nil
	}

	db, err := sql.Open(driverFor(u.Type), dsn)
	if err != nil {
		return nil, "", err
	}
	e.dbConns[u.Name] = db
	return db, dsn, nil
}

// dsnFor reads the database unit's own connection-string contribution
// (§4.3) for the env-var name its container config designates as the
// URL mapping.
func (e *Environment) dsnFor(u spec.Unit) (string, error) {
	if u.Container == nil || u.Container.EnvMapping == nil || u.Container.EnvMapping.URL == "" {
		return "", fmt.Errorf("database %q has no envMapping.url configured", u.Name)
	}
	contrib := e.sm.Orchestrator(spec.CategoryDatabase).ConnectionStrings()[u.Name]
	dsn, ok := contrib[u.Container.EnvMapping.URL]
	if !ok {
		return "", fmt.Errorf("database %q connection string not yet available", u.Name)
	}
	return dsn, nil
}

func driverFor(unitType string) string {
	switch unitType {
	case "postgres", "postgresql":
		return "pgx"
	case "mysql":
		return "mysql"
	default:
		return unitType
	}
}
