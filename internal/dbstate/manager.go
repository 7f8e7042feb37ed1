package dbstate

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/integr8/internal/errs"
	"github.com/cuemby/integr8/internal/obslog"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Manager implements the database isolation primitives over a shared
// *sql.DB handle. One Manager instance is owned by exactly one
// database unit's Database Manager (§4.8); its WorkerID scopes every
// name it mints so that managers sharing the same container never
// collide.
type Manager struct {
	db       *sql.DB
	driver   string // "postgres" or "mysql"
	strategy Strategy
	workerID string
	logger   zerolog.Logger
	registry *registry
	metrics  *metricsRing

	mu  sync.Mutex
	tx  *sql.Tx
}

// Config configures a new Manager.
type Config struct {
	DB       *sql.DB
	Driver   string
	Strategy Strategy
	WorkerID string
	DataDir  string
}

// NewManager opens the registry under cfg.DataDir and returns a ready
// Manager.
func NewManager(cfg Config) (*Manager, error) {
	reg, err := newRegistry(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	return &Manager{
		db:       cfg.DB,
		driver:   cfg.Driver,
		strategy: cfg.Strategy,
		workerID: cfg.WorkerID,
		logger:   obslog.WithComponent("dbstate"),
		registry: reg,
		metrics:  newMetricsRing(),
	}, nil
}

// Strategy returns the unit's configured isolation strategy.
func (m *Manager) Strategy() Strategy { return m.strategy }

// CreateSavepoint acquires a savepoint within the active transaction
// and returns its id. A transaction must already be in progress.
func (m *Manager) CreateSavepoint(ctx context.Context) (string, error) {
	m.mu.Lock()
	tx := m.tx
	m.mu.Unlock()
	if tx == nil {
		return "", errs.DBState("createSavepoint", fmt.Errorf("no transaction in progress"))
	}

	id := fmt.Sprintf("sp_%s_%d_%s", m.workerID, time.Now().UnixNano(), uuid.NewString()[:8])

	err := m.metrics.timed("createSavepoint", m.strategy, m.workerID, func() error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("SAVEPOINT %s", id))
		return err
	})
	if err != nil {
		return "", errs.DBState("createSavepoint", err)
	}

	if err := m.registry.putSavepoint(SavepointRecord{ID: id, CreatedAt: time.Now(), WorkerID: m.workerID}); err != nil {
		m.logger.Warn().Err(err).Msg("savepoint created but registry write failed")
	}
	return id, nil
}

// RollbackToSavepoint rolls back to id and removes its tracking entry.
// Rolling back to an id that was never created is an error.
func (m *Manager) RollbackToSavepoint(ctx context.Context, id string) error {
	m.mu.Lock()
	tx := m.tx
	m.mu.Unlock()
	if tx == nil {
		return errs.DBState("rollbackToSavepoint", fmt.Errorf("no transaction in progress"))
	}

	tracked, err := m.registry.listSavepoints()
	if err != nil {
		return errs.DBState("rollbackToSavepoint", err)
	}
	found := false
	for _, s := range tracked {
		if s.ID == id {
			found = true
			break
		}
	}
	if !found {
		return errs.DBState("rollbackToSavepoint", fmt.Errorf("savepoint %q does not exist", id))
	}

	err = m.metrics.timed("rollbackToSavepoint", m.strategy, m.workerID, func() error {
		_, err := tx.ExecContext(ctx, fmt.Sprintf("ROLLBACK TO SAVEPOINT %s", id))
		return err
	})
	if err != nil {
		return errs.DBState("rollbackToSavepoint", err)
	}

	return m.registry.deleteSavepoint(id)
}

// CreateSchema creates a fresh schema named name, dropping any
// pre-existing schema of the same name first, then materializes every
// base table in "public" with structure, constraints, and defaults
// (but not data).
func (m *Manager) CreateSchema(ctx context.Context, name string) error {
	exists, err := m.registry.hasNamed(bucketSchemas, name)
	if err == nil && exists {
		if err := m.DropSchema(ctx, name); err != nil {
			return err
		}
	}

	err = m.metrics.timed("createSchema", m.strategy, m.workerID, func() error {
		if _, err := m.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA %s", name)); err != nil {
			return err
		}
		return m.copyPublicTablesInto(ctx, name)
	})
	if err != nil {
		return errs.DBState("createSchema", err)
	}

	return m.registry.putNamed(bucketSchemas, NamedRecord{Name: name, CreatedAt: time.Now(), WorkerID: m.workerID})
}

// copyPublicTablesInto materializes every base table of "public" into
// schema, structure and constraints only — no data, per §4.6's tie-break.
func (m *Manager) copyPublicTablesInto(ctx context.Context, schema string) error {
	if m.driver != "postgres" {
		// The LIKE ... INCLUDING ALL construct is Postgres-specific;
		// MySQL schemas are materialized by the caller's seed command.
		return nil
	}

	rows, err := m.db.QueryContext(ctx, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public' AND table_type = 'BASE TABLE'`)
	if err != nil {
		return err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return err
		}
		tables = append(tables, t)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, t := range tables {
		stmt := fmt.Sprintf("CREATE TABLE %s.%s (LIKE public.%s INCLUDING ALL)", schema, t, t)
		if _, err := m.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("copy table %s: %w", t, err)
		}
	}
	return nil
}

// DropSchema drops name and clears its tracking entry.
func (m *Manager) DropSchema(ctx context.Context, name string) error {
	err := m.metrics.timed("dropSchema", m.strategy, m.workerID, func() error {
		_, err := m.db.ExecContext(ctx, fmt.Sprintf("DROP SCHEMA IF EXISTS %s CASCADE", name))
		return err
	})
	if err != nil {
		return errs.DBState("dropSchema", err)
	}
	return m.registry.deleteNamed(bucketSchemas, name)
}

// CopySchema copies the structure of from into a newly created schema
// to. withData requests a data copy, which this core does not perform
// (§9 open question, resolved as structure-only).
func (m *Manager) CopySchema(ctx context.Context, from, to string, withData bool) error {
	if withData {
		return errs.Unsupported("copySchema(withData=true)")
	}
	if err := m.CreateSchema(ctx, to); err != nil {
		return err
	}
	return m.metrics.timed("copySchema", m.strategy, m.workerID, func() error {
		return m.copyPublicTablesInto(ctx, to)
	})
}

// CreateDatabase creates a brand-new database named name, dropping any
// pre-existing database of the same name first.
func (m *Manager) CreateDatabase(ctx context.Context, name string) error {
	exists, err := m.registry.hasNamed(bucketDatabases, name)
	if err == nil && exists {
		if err := m.DropDatabase(ctx, name); err != nil {
			return err
		}
	}

	err = m.metrics.timed("createDatabase", m.strategy, m.workerID, func() error {
		_, err := m.db.ExecContext(ctx, fmt.Sprintf("CREATE DATABASE %s", name))
		return err
	})
	if err != nil {
		return errs.DBState("createDatabase", err)
	}
	return m.registry.putNamed(bucketDatabases, NamedRecord{Name: name, CreatedAt: time.Now(), WorkerID: m.workerID})
}

// DropDatabase drops name and clears its tracking entry.
func (m *Manager) DropDatabase(ctx context.Context, name string) error {
	err := m.metrics.timed("dropDatabase", m.strategy, m.workerID, func() error {
		_, err := m.db.ExecContext(ctx, fmt.Sprintf("DROP DATABASE IF EXISTS %s", name))
		return err
	})
	if err != nil {
		return errs.DBState("dropDatabase", err)
	}
	return m.registry.deleteNamed(bucketDatabases, name)
}

// Tx returns the currently in-flight transaction, or nil.
func (m *Manager) Tx() *sql.Tx {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tx
}

// BeginTransaction starts the manager's single in-flight transaction.
// Starting a second transaction before the first completes is an error.
func (m *Manager) BeginTransaction(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tx != nil {
		return errs.DBState("beginTransaction", fmt.Errorf("a transaction is already in progress"))
	}

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.DBState("beginTransaction", err)
	}
	m.tx = tx
	return nil
}

// CommitTransaction commits the in-flight transaction. Committing with
// no transaction in progress is an error.
func (m *Manager) CommitTransaction() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tx == nil {
		return errs.DBState("commitTransaction", fmt.Errorf("no transaction in progress"))
	}
	err := m.tx.Commit()
	m.tx = nil
	if err != nil {
		return errs.DBState("commitTransaction", err)
	}
	return nil
}

// RollbackTransaction rolls back the in-flight transaction. Rolling
// back with no transaction in progress is an error.
func (m *Manager) RollbackTransaction() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.tx == nil {
		return errs.DBState("rollbackTransaction", fmt.Errorf("no transaction in progress"))
	}
	err := m.tx.Rollback()
	m.tx = nil
	if err != nil {
		return errs.DBState("rollbackTransaction", err)
	}
	return nil
}

// Cleanup drops every schema and database still tracked and clears all
// savepoints and snapshots.
func (m *Manager) Cleanup(ctx context.Context) error {
	schemas, err := m.registry.listNamed(bucketSchemas)
	if err != nil {
		return errs.DBState("cleanup", err)
	}
	for _, s := range schemas {
		if err := m.DropSchema(ctx, s.Name); err != nil {
			m.logger.Warn().Err(err).Str("schema", s.Name).Msg("cleanup failed to drop schema")
		}
	}

	databases, err := m.registry.listNamed(bucketDatabases)
	if err != nil {
		return errs.DBState("cleanup", err)
	}
	for _, d := range databases {
		if err := m.DropDatabase(ctx, d.Name); err != nil {
			m.logger.Warn().Err(err).Str("database", d.Name).Msg("cleanup failed to drop database")
		}
	}

	savepoints, err := m.registry.listSavepoints()
	if err != nil {
		return errs.DBState("cleanup", err)
	}
	for _, sp := range savepoints {
		_ = m.registry.deleteSavepoint(sp.ID)
	}

	snapshots, err := m.registry.listNamed(bucketSnapshots)
	if err != nil {
		return errs.DBState("cleanup", err)
	}
	for _, snap := range snapshots {
		_ = m.registry.deleteNamed(bucketSnapshots, snap.Name)
	}

	return nil
}

// AverageDuration reports the mean duration of the last retained
// samples for operation (across strategies).
func (m *Manager) AverageDuration(operation string) time.Duration {
	return m.metrics.AverageByOperation(operation)
}

// AverageDurationForStrategy reports the mean duration of the last
// retained samples under strategy (across operations).
func (m *Manager) AverageDurationForStrategy(strategy Strategy) time.Duration {
	return m.metrics.AverageByStrategy(strategy)
}

// Close releases the registry handle. It does not close the shared
// *sql.DB, which outlives any one Manager.
func (m *Manager) Close() error {
	return m.registry.close()
}
