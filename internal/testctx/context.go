// Package testctx implements the Test Context / HTTP Client façade
// (§4.12): the object a test file actually interacts with once the
// environment is up.
package testctx

import (
	"context"

	"github.com/cuemby/integr8/internal/dbmanager"
	"github.com/cuemby/integr8/internal/events"
	"github.com/cuemby/integr8/internal/override"
)

// Context is handed to test code by Environment.GetContext. In shared-
// environment mode only HTTP and the Waiter are set; Override and Bus
// are nil and DB is empty (§4.10).
type Context struct {
	WorkerID string
	HTTP     *HTTPClient
	Override *override.Manager
	Bus      *events.Bus
	Waiter   *Waiter

	// DB maps a configured database unit's name to its per-worker
	// façade. Empty in shared-environment mode.
	DB map[string]*dbmanager.Manager

	detached bool
}

// New builds a live Context for workerID.
func New(workerID string, http *HTTPClient, overrideMgr *override.Manager, bus *events.Bus, db map[string]*dbmanager.Manager) *Context {
	return &Context{
		WorkerID: workerID,
		HTTP:     http,
		Override: overrideMgr,
		Bus:      bus,
		Waiter:   DefaultWaiter(),
		DB:       db,
	}
}

// NewDetached builds a shared-environment-mode Context: HTTP and the
// Waiter are live, Override and Bus are nil, and DB is empty.
func NewDetached(workerID string, http *HTTPClient) *Context {
	return &Context{
		WorkerID: workerID,
		HTTP:     http,
		Waiter:   DefaultWaiter(),
		DB:       map[string]*dbmanager.Manager{},
		detached: true,
	}
}

// Database returns the named database unit's per-worker façade, or
// nil if no such unit is configured (or the context is detached).
func (c *Context) Database(name string) *dbmanager.Manager {
	return c.DB[name]
}

// Detached reports whether this context was produced in shared-
// environment mode, where only the HTTP façade and the Waiter are live.
func (c *Context) Detached() bool { return c.detached }

// WaitFor delegates to the embedded Waiter.
func (c *Context) WaitFor(ctx context.Context, condition func() bool, description string) error {
	return c.Waiter.WaitFor(ctx, condition, description)
}
