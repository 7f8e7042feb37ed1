// Package dbmanager implements the per-worker database façade exposed
// to tests via the environment context (§4.8).
package dbmanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/cuemby/integr8/internal/dbstate"
	"github.com/cuemby/integr8/internal/errs"
	"github.com/cuemby/integr8/internal/seed"
)

// Manager is the public per-test façade over one database unit's
// isolation state and seed manager.
type Manager struct {
	db       *sql.DB
	state    *dbstate.Manager
	seeder   *seed.Manager
	workerID string
	dsn      string
}

// New builds a Manager bound to db/state/seeder for workerID, whose
// owned database's driver connection string is dsn.
func New(db *sql.DB, state *dbstate.Manager, seeder *seed.Manager, workerID, dsn string) *Manager {
	return &Manager{db: db, state: state, seeder: seeder, workerID: workerID, dsn: dsn}
}

// Snapshot captures or establishes an isolation boundary named name,
// dispatching on the unit's configured strategy.
func (m *Manager) Snapshot(ctx context.Context, name string) error {
	switch m.state.Strategy() {
	case dbstate.StrategySavepoint:
		if err := m.state.BeginTransaction(ctx); err != nil {
			return err
		}
		_, err := m.state.CreateSavepoint(ctx)
		return err
	case dbstate.StrategySchema:
		return m.state.CreateSchema(ctx, scopedName(name, m.workerID))
	case dbstate.StrategyDatabase:
		return m.state.CreateDatabase(ctx, scopedName(name, m.workerID))
	case dbstate.StrategySnapshot:
		return m.state.CreateSnapshot(ctx, name, m.dsn)
	default:
		return errs.DBState("snapshot", fmt.Errorf("unknown strategy %q", m.state.Strategy()))
	}
}

// Restore reverses a prior Snapshot call for name under the schema,
// database and snapshot strategies. Under the savepoint strategy it
// rolls nothing back and returns an error, since Snapshot does not
// keep the savepoint id it creates.
func (m *Manager) Restore(ctx context.Context, name string) error {
	switch m.state.Strategy() {
	case dbstate.StrategySavepoint:
		return errs.DBState("restore", fmt.Errorf("savepoint restore requires the savepoint id, use RestoreSavepoint"))
	case dbstate.StrategySchema:
		return m.state.DropSchema(ctx, scopedName(name, m.workerID))
	case dbstate.StrategyDatabase:
		return m.state.DropDatabase(ctx, scopedName(name, m.workerID))
	case dbstate.StrategySnapshot:
		return m.state.RestoreSnapshot(ctx, name, m.dsn)
	default:
		return errs.DBState("restore", fmt.Errorf("unknown strategy %q", m.state.Strategy()))
	}
}

// RestoreSavepoint rolls back to savepoint id. The savepoint strategy's
// Snapshot discards the id it creates, so id has to come from the
// caller's own bookkeeping.
func (m *Manager) RestoreSavepoint(ctx context.Context, id string) error {
	return m.state.RollbackToSavepoint(ctx, id)
}

// Query forwards query and params to the underlying driver. The core
// treats the driver as an injected collaborator (§1 Non-goals) and
// only forwards the call — it does not interpret or cache results.
func (m *Manager) Query(ctx context.Context, query string, params ...any) (*sql.Rows, error) {
	return m.db.QueryContext(ctx, query, params...)
}

// Tx is the handle passed to a Transaction callback. It forwards Query
// to the underlying *sql.Tx so callers can read their own writes.
type Tx struct {
	sqlTx    *sql.Tx
	commit   func() error
	rollback func() error
	done     bool
}

// Query runs query against the transaction's own connection.
func (t *Tx) Query(ctx context.Context, query string, params ...any) (*sql.Rows, error) {
	return t.sqlTx.QueryContext(ctx, query, params...)
}

func (t *Tx) Commit() error {
	if t.done {
		return errs.DBState("commit", fmt.Errorf("transaction already finished"))
	}
	t.done = true
	return t.commit()
}

func (t *Tx) Rollback() error {
	if t.done {
		return errs.DBState("rollback", fmt.Errorf("transaction already finished"))
	}
	t.done = true
	return t.rollback()
}

// Transaction begins a transaction, invokes fn, commits on a nil
// return and rolls back if fn panics or returns an error.
func (m *Manager) Transaction(ctx context.Context, fn func(tx *Tx) error) (err error) {
	if err := m.state.BeginTransaction(ctx); err != nil {
		return err
	}

	tx := &Tx{
		sqlTx:    m.state.Tx(),
		commit:   m.state.CommitTransaction,
		rollback: m.state.RollbackTransaction,
	}

	defer func() {
		if r := recover(); r != nil {
			_ = tx.Rollback()
			panic(r)
		}
	}()

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if !tx.done {
		return tx.Commit()
	}
	return nil
}

// Reset delegates to the state manager's cleanup.
func (m *Manager) Reset(ctx context.Context) error {
	return m.state.Cleanup(ctx)
}

// GetConnectionString returns the driver URL for the owned database.
func (m *Manager) GetConnectionString() string {
	return m.dsn
}

// Seed runs the configured seed operation for the given file/test
// boundary. It applies no restore strategy: the seed config's
// RestoreStrategy is stored but not acted on.
func (m *Manager) Seed(ctx context.Context, tc seed.Context) error {
	return m.seeder.MaybeSeed(ctx, tc)
}

func scopedName(name, workerID string) string {
	return fmt.Sprintf("%s_%s", name, workerID)
}
