// Package adapter implements the reference in-process receiver for
// the Runtime Override Protocol (§4.10). The receiver living inside
// the application under test is a contract, not a core
// responsibility, but this package gives Go applications a ready
// implementation of it instead of requiring every user to write one.
package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/cuemby/integr8/internal/obslog"
	"github.com/cuemby/integr8/internal/override"
	"github.com/rs/zerolog"
)

// Handler receives one applied override. Applications register a
// Handler per collaborator type to install the replacement into their
// own DI container or service registry.
type Handler func(ctx context.Context, name string, implementation any) error

// Adapter is a net/http.ServeMux-based receiver exposing
// POST {overrideEndpoint} per spec.md §6's wire contract. It is also a
// valid override.Adapter for in-process delivery, so a test process
// and the application under test can share one without going over HTTP.
type Adapter struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	active   []appliedOverride
	logger   zerolog.Logger
}

type appliedOverride struct {
	typ  string
	name string
}

// New builds an empty Adapter. Register handlers with Register before
// mounting it with Mount or passing it to an override.Manager.
func New() *Adapter {
	return &Adapter{
		handlers: make(map[string]Handler),
		logger:   obslog.WithComponent("adapter"),
	}
}

// Register installs fn as the receiver for overrides of typ. typ
// matches override.Type's string values ("module", "service",
// "repository", "dataSource", "provider", "middleware", "auth").
func (a *Adapter) Register(typ string, fn Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handlers[typ] = fn
}

// ApplyOverride satisfies override.Adapter for in-process delivery.
func (a *Adapter) ApplyOverride(ctx context.Context, typ override.Type, name string, implementation any) error {
	return a.apply(ctx, string(typ), name, implementation)
}

func (a *Adapter) apply(ctx context.Context, typ, name string, implementation any) error {
	a.mu.RLock()
	fn, ok := a.handlers[typ]
	a.mu.RUnlock()

	if !ok {
		return fmt.Errorf("adapter: no handler registered for override type %q", typ)
	}
	if err := fn(ctx, name, implementation); err != nil {
		return fmt.Errorf("adapter: apply override %s:%s: %w", typ, name, err)
	}

	a.mu.Lock()
	a.active = append(a.active, appliedOverride{typ: typ, name: name})
	a.mu.Unlock()
	return nil
}

// ClearOverrides satisfies override.Adapter: it re-invokes every
// registered handler with a nil implementation, signaling "restore
// the original collaborator", then forgets the active set.
func (a *Adapter) ClearOverrides(ctx context.Context) error {
	a.mu.Lock()
	active := a.active
	a.active = nil
	a.mu.Unlock()

	var firstErr error
	for _, o := range active {
		a.mu.RLock()
		fn, ok := a.handlers[o.typ]
		a.mu.RUnlock()
		if !ok {
			continue
		}
		if err := fn(ctx, o.name, nil); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// requestBody is the JSON wire shape of POST {overrideEndpoint}.
type requestBody struct {
	Type           string `json:"type"`
	Name           string `json:"name"`
	Implementation any    `json:"implementation"`
}

// Mount registers the override endpoint on mux at path.
func (a *Adapter) Mount(mux *http.ServeMux, path string) {
	mux.HandleFunc(path, a.serveHTTP)
}

func (a *Adapter) serveHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var body requestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := a.apply(r.Context(), body.Type, body.Name, body.Implementation); err != nil {
		a.logger.Error().Err(err).Str("type", body.Type).Str("name", body.Name).Msg("override apply failed")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
