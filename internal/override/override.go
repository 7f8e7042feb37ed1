// Package override implements the Runtime Override Protocol (§4.9):
// builders that record a collaborator swap and deliver it to the
// application under test, either in-process or over the control HTTP
// channel.
package override

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cuemby/integr8/internal/obslog"
	"github.com/rs/zerolog"
)

// Type is the collaborator category an override addresses.
type Type string

const (
	TypeModule     Type = "module"
	TypeService    Type = "service"
	TypeRepository Type = "repository"
	TypeDataSource Type = "dataSource"
	TypeProvider   Type = "provider"
	TypeMiddleware Type = "middleware"
	TypeAuth       Type = "auth"
)

// Adapter is the in-process delivery target for overrides. An
// application under test registers one instead of relying on the HTTP
// control channel.
type Adapter interface {
	ApplyOverride(ctx context.Context, typ Type, name string, implementation any) error
	ClearOverrides(ctx context.Context) error
}

// Record is a stored override, keyed by "<type>:<name>".
type Record struct {
	Type           Type
	Name           string
	Implementation any
}

// functionValue is the wire shape for a Go func value passed as an
// implementation: the protocol has no portable way to serialize
// behavior, so callers supply its string form directly (§9).
type functionValue struct {
	Type   string `json:"type"`
	Source string `json:"source"`
}

// Config configures a Manager.
type Config struct {
	ControlPort      int
	OverrideEndpoint string // default "/__test__/override"
	Adapter          Adapter
	HTTPClient       *http.Client
}

// Manager is the Override Manager: it records active overrides and
// delivers them to whichever channel is configured.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	records map[string]Record
	tokens  *tokenStore
}

// NewManager builds a Manager. When cfg.OverrideEndpoint is empty it
// defaults to "/__test__/override" per spec.md §6.
func NewManager(cfg Config) *Manager {
	if cfg.OverrideEndpoint == "" {
		cfg.OverrideEndpoint = "/__test__/override"
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 5 * time.Second}
	}
	return &Manager{
		cfg:     cfg,
		logger:  obslog.WithComponent("override"),
		records: make(map[string]Record),
		tokens:  newTokenStore(),
	}
}

// ValidateToken validates a bearer token minted by an auth override
// profile and returns the identity it presents.
func (m *Manager) ValidateToken(token string) (Identity, error) {
	return m.tokens.ValidateToken(token)
}

// RevokeToken invalidates a previously minted auth override token.
func (m *Manager) RevokeToken(token string) {
	m.tokens.RevokeToken(token)
}

func key(typ Type, name string) string { return string(typ) + ":" + name }

// applyOverride records the override and delivers it via the
// in-process adapter when one is registered, else over the control
// HTTP endpoint when a control port is configured. Delivery failures
// are logged, never returned, so a missing adapter cannot fail a test
// that merely wanted to request an override.
func (m *Manager) applyOverride(ctx context.Context, typ Type, name string, implementation any) error {
	m.mu.Lock()
	m.records[key(typ, name)] = Record{Type: typ, Name: name, Implementation: implementation}
	m.mu.Unlock()

	if m.cfg.Adapter != nil {
		if err := m.cfg.Adapter.ApplyOverride(ctx, typ, name, implementation); err != nil {
			m.logger.Warn().Err(err).Str("type", string(typ)).Str("name", name).Msg("in-process override delivery failed")
		}
		return nil
	}

	if m.cfg.ControlPort == 0 {
		return nil
	}

	if err := m.deliverHTTP(ctx, typ, name, implementation); err != nil {
		m.logger.Warn().Err(err).Str("type", string(typ)).Str("name", name).Msg("override delivery failed")
	}
	return nil
}

func (m *Manager) deliverHTTP(ctx context.Context, typ Type, name string, implementation any) error {
	body := map[string]any{
		"type":           string(typ),
		"name":           name,
		"implementation": wireValue(implementation),
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal override body: %w", err)
	}

	url := fmt.Sprintf("http://localhost:%d%s", m.cfg.ControlPort, m.cfg.OverrideEndpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build override request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.cfg.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("override request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("adapter returned %d", resp.StatusCode)
	}
	return nil
}

// wireValue serializes a func value as {type:"function", source:...}
// and passes everything else through unchanged, per §9.
func wireValue(v any) any {
	if fn, ok := v.(FuncSource); ok {
		return functionValue{Type: "function", Source: fn.Source()}
	}
	return v
}

// FuncSource lets a mock implementation provide its own string
// representation for the HTTP wire protocol. In-process adapters
// receive the original callable untouched.
type FuncSource interface {
	Source() string
}

// Clear empties the override map and tears down any active overrides
// via the in-process adapter, if one is registered.
func (m *Manager) Clear(ctx context.Context) error {
	m.mu.Lock()
	m.records = make(map[string]Record)
	m.mu.Unlock()

	if m.cfg.Adapter != nil {
		return m.cfg.Adapter.ClearOverrides(ctx)
	}
	return nil
}

// Active returns a snapshot of the currently recorded overrides.
func (m *Manager) Active() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r)
	}
	return out
}

// Module begins building an override of a named module.
func (m *Manager) Module(name string) *Builder { return &Builder{mgr: m, typ: TypeModule, name: name} }

// Service begins building an override of a named service.
func (m *Manager) Service(name string) *Builder { return &Builder{mgr: m, typ: TypeService, name: name} }

// Repository begins building an override of a named repository.
func (m *Manager) Repository(name string) *Builder {
	return &Builder{mgr: m, typ: TypeRepository, name: name}
}

// DataSource begins building an override of a named data source.
func (m *Manager) DataSource(name string) *Builder {
	return &Builder{mgr: m, typ: TypeDataSource, name: name}
}

// Provider begins building an override of a named provider.
func (m *Manager) Provider(name string) *Builder {
	return &Builder{mgr: m, typ: TypeProvider, name: name}
}

// Middleware begins building an override of a named middleware.
func (m *Manager) Middleware(name string) *Builder {
	return &Builder{mgr: m, typ: TypeMiddleware, name: name}
}

// Auth begins building an auth override, exposing profile helpers in
// addition to the common builder capabilities.
func (m *Manager) Auth(name string) *AuthBuilder {
	return &AuthBuilder{Builder: Builder{mgr: m, typ: TypeAuth, name: name}}
}

// Builder is the common capability set shared by every override type:
// with(value), withMock(fn), withValue(value).
type Builder struct {
	mgr  *Manager
	typ  Type
	name string
}

// With records implementation as-is for this collaborator.
func (b *Builder) With(ctx context.Context, implementation any) error {
	return b.mgr.applyOverride(ctx, b.typ, b.name, implementation)
}

// WithMock records fn as a callable replacement. fn must implement
// FuncSource when HTTP delivery is in play; in-process adapters
// receive it untouched.
func (b *Builder) WithMock(ctx context.Context, fn any) error {
	return b.mgr.applyOverride(ctx, b.typ, b.name, fn)
}

// WithValue records a plain value replacement (no callable behavior).
func (b *Builder) WithValue(ctx context.Context, value any) error {
	return b.mgr.applyOverride(ctx, b.typ, b.name, value)
}
