package dbstate

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cuemby/integr8/internal/errs"
)

// snapshotDir returns (creating if needed) the directory snapshot dump
// files for this manager's worker are kept in.
func (m *Manager) snapshotDir() (string, error) {
	dir := filepath.Join(os.TempDir(), "integr8-snapshots", m.workerID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

func (m *Manager) snapshotPath(name string) (string, error) {
	dir, err := m.snapshotDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name+".sql"), nil
}

// CreateSnapshot captures the current database contents to a dump file
// identified by name, using the engine-native dump tool.
func (m *Manager) CreateSnapshot(ctx context.Context, name, dsn string) error {
	path, err := m.snapshotPath(name)
	if err != nil {
		return errs.DBState("createSnapshot", err)
	}

	err = m.metrics.timed("createSnapshot", m.strategy, m.workerID, func() error {
		return m.dump(ctx, dsn, path)
	})
	if err != nil {
		return errs.DBState("createSnapshot", err)
	}

	return m.registry.putNamed(bucketSnapshots, NamedRecord{Name: name, CreatedAt: time.Now(), WorkerID: m.workerID})
}

// RestoreSnapshot restores a previously captured dump file identified
// by name.
func (m *Manager) RestoreSnapshot(ctx context.Context, name, dsn string) error {
	exists, err := m.registry.hasNamed(bucketSnapshots, name)
	if err != nil {
		return errs.DBState("restoreSnapshot", err)
	}
	if !exists {
		return errs.DBState("restoreSnapshot", fmt.Errorf("snapshot %q does not exist", name))
	}

	path, err := m.snapshotPath(name)
	if err != nil {
		return errs.DBState("restoreSnapshot", err)
	}

	return m.metrics.timed("restoreSnapshot", m.strategy, m.workerID, func() error {
		return m.restore(ctx, dsn, path)
	})
}

func (m *Manager) dump(ctx context.Context, dsn, path string) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer out.Close()

	var cmd *exec.Cmd
	switch m.driver {
	case "postgres":
		cmd = exec.CommandContext(ctx, "pg_dump", dsn)
	case "mysql":
		cmd = exec.CommandContext(ctx, "mysqldump", "--result-file="+path, dsn)
	default:
		return fmt.Errorf("snapshot dump not supported for driver %q", m.driver)
	}
	cmd.Stdout = out
	return cmd.Run()
}

func (m *Manager) restore(ctx context.Context, dsn, path string) error {
	var cmd *exec.Cmd
	switch m.driver {
	case "postgres":
		cmd = exec.CommandContext(ctx, "psql", dsn, "-f", path)
	case "mysql":
		cmd = exec.CommandContext(ctx, "mysql", dsn, "-e", "source "+path)
	default:
		return fmt.Errorf("snapshot restore not supported for driver %q", m.driver)
	}
	return cmd.Run()
}
