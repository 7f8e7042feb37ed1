// Package seed implements the seeding strategies (once, per-file,
// per-test, custom). It also names the restore strategies a seed
// config can carry; nothing in the harness applies them.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	"github.com/cuemby/integr8/internal/obslog"
	"github.com/rs/zerolog"
)

// Mode selects when a seed operation actually runs.
type Mode string

const (
	ModeOnce    Mode = "once"
	ModePerFile Mode = "per-file"
	ModePerTest Mode = "per-test"
	ModeCustom  Mode = "custom"
)

// RestoreStrategy names a restore policy for a seed boundary. It is
// carried in Config; neither the seed Manager nor the Database Manager
// acts on it.
type RestoreStrategy string

const (
	RestoreNone     RestoreStrategy = "none"
	RestoreRollback RestoreStrategy = "rollback"
	RestoreReset    RestoreStrategy = "reset"
	RestoreSnapshot RestoreStrategy = "snapshot"
)

// Scenario is one entry of a "custom" seed configuration.
type Scenario struct {
	Name      string
	Condition func(ctx *Context) bool
	Command   string
	Data      []map[string]any
	Snapshot  string // if non-empty, request a snapshot named Snapshot after applying
}

// Context is the information a custom scenario's Condition and a seed
// command's environment may depend on.
type Context struct {
	File string
	Test string
}

// Config configures a Manager.
type Config struct {
	Mode            Mode
	Command         string
	WorkingDir      string
	Timeout         time.Duration
	ConnectionEnv   map[string]string
	WorkerID        string
	Scenarios       []Scenario
	RestoreStrategy RestoreStrategy
}

// Manager tracks seeding state and runs the configured seed operation
// at the right boundary.
type Manager struct {
	cfg    Config
	logger zerolog.Logger

	mu              sync.Mutex
	hasSeededOnce   bool
	seededFiles     map[string]bool
	seededTests     map[string]bool
	currentSnapshot string
}

// NewManager builds a seed Manager.
func NewManager(cfg Config) *Manager {
	return &Manager{
		cfg:         cfg,
		logger:      obslog.WithComponent("seed"),
		seededFiles: make(map[string]bool),
		seededTests: make(map[string]bool),
	}
}

// MaybeSeed runs the configured seed operation if this is the first
// call that should trigger it under the configured Mode; otherwise it
// is a no-op.
func (m *Manager) MaybeSeed(ctx context.Context, tc Context) error {
	m.mu.Lock()
	shouldRun := m.shouldRunLocked(tc)
	m.mu.Unlock()

	if !shouldRun {
		return nil
	}

	switch m.cfg.Mode {
	case ModeCustom:
		return m.runScenarios(ctx, tc)
	default:
		return m.runCommand(ctx, m.cfg.Command)
	}
}

func (m *Manager) shouldRunLocked(tc Context) bool {
	switch m.cfg.Mode {
	case ModeOnce:
		if m.hasSeededOnce {
			return false
		}
		m.hasSeededOnce = true
		return true
	case ModePerFile:
		if m.seededFiles[tc.File] {
			return false
		}
		m.seededFiles[tc.File] = true
		return true
	case ModePerTest:
		key := tc.File + "::" + tc.Test
		if m.seededTests[key] {
			return false
		}
		m.seededTests[key] = true
		return true
	case ModeCustom:
		return true
	default:
		return true
	}
}

func (m *Manager) runScenarios(ctx context.Context, tc Context) error {
	for _, sc := range m.cfg.Scenarios {
		if sc.Condition != nil && !sc.Condition(&tc) {
			continue
		}
		if sc.Command != "" {
			if err := m.runCommand(ctx, sc.Command); err != nil {
				return fmt.Errorf("scenario %q: %w", sc.Name, err)
			}
		}
		if sc.Snapshot != "" {
			m.mu.Lock()
			m.currentSnapshot = sc.Snapshot
			m.mu.Unlock()
		}
	}
	return nil
}

// runCommand executes command as a subprocess with the configured
// timeout, CWD, and environment: process env ∪ connection strings ∪
// {WORKER_ID, NODE_ENV=test}.
func (m *Manager) runCommand(ctx context.Context, command string) error {
	if command == "" {
		return nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, "sh", "-c", command)
	cmd.Dir = m.cfg.WorkingDir
	cmd.Env = buildSeedEnv(m.cfg.ConnectionEnv, m.cfg.WorkerID)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			m.logger.Warn().Str("stderr", stderr.String()).Msg("seed command reported warnings")
		}
		return fmt.Errorf("seed command failed: %w", err)
	}
	if stderr.Len() > 0 {
		m.logger.Warn().Str("stderr", stderr.String()).Msg("seed command reported warnings")
	}
	return nil
}

// CurrentSnapshot returns the snapshot name requested by the last
// applied custom scenario, if any.
func (m *Manager) CurrentSnapshot() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentSnapshot
}
