package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/cuemby/integr8/internal/errs"
	"github.com/cuemby/integr8/internal/health"
	"github.com/cuemby/integr8/internal/spec"
	"github.com/rs/zerolog"
)

// startGrace is how long a freshly spawned process must survive before
// it is considered started.
const startGrace = 1 * time.Second

// LocalRunner spawns and supervises a single native subprocess.
type LocalRunner struct {
	unit   spec.Unit
	logger zerolog.Logger

	mu        sync.Mutex
	cmd       *exec.Cmd
	stopped   bool
	injected  map[string]string
}

// NewLocalRunner builds a LocalRunner for unit. injectedEnv carries the
// connection-string values propagated from database/messaging units.
func NewLocalRunner(unit spec.Unit, logger zerolog.Logger, injectedEnv map[string]string) *LocalRunner {
	return &LocalRunner{unit: unit, logger: logger, injected: injectedEnv}
}

func (r *LocalRunner) Start(ctx context.Context, fast bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd != nil && r.cmd.Process != nil {
		return nil
	}

	local := r.unit.Local
	fields := strings.Fields(local.Command)
	if len(fields) == 0 {
		return errs.RunnerFailure(r.unit.Name, "start", fmt.Errorf("empty command"))
	}
	args := append(append([]string{}, fields[1:]...), local.Args...)

	cmd := exec.CommandContext(ctx, fields[0], args...)
	cmd.Dir = local.WorkingDir
	cmd.Env = append(os.Environ(), envSlice(EnvMerge(local.Env, r.injected))...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return errs.RunnerFailure(r.unit.Name, "start", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return errs.RunnerFailure(r.unit.Name, "start", err)
	}

	if err := cmd.Start(); err != nil {
		return errs.RunnerFailure(r.unit.Name, "start", err)
	}
	r.cmd = cmd
	r.stopped = false

	level := unitLogLevel(r.unit.Logging)
	go r.captureLogs(stdout, level)
	go r.captureLogs(stderr, spec.LogError)

	if fast {
		return nil
	}

	time.Sleep(startGrace)

	if cmd.ProcessState != nil && cmd.ProcessState.Exited() {
		return errs.RunnerFailure(r.unit.Name, "start", fmt.Errorf("process exited during startup grace period"))
	}
	return nil
}

func (r *LocalRunner) Stop(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cmd == nil || r.cmd.Process == nil || r.stopped {
		return nil
	}

	if err := r.cmd.Process.Signal(syscall.SIGTERM); err != nil {
		r.logger.Warn().Err(err).Msg("SIGTERM failed, process may already be gone")
	}

	exited := make(chan struct{})
	go func() {
		_ = r.cmd.Wait()
		close(exited)
	}()

	for attempt := 0; attempt < 10; attempt++ {
		select {
		case <-exited:
			r.stopped = true
			return nil
		case <-time.After(500 * time.Millisecond):
		}
	}

	if err := r.cmd.Process.Kill(); err != nil {
		r.logger.Warn().Err(err).Msg("SIGKILL failed")
	}
	select {
	case <-exited:
	case <-time.After(1 * time.Second):
	}
	r.stopped = true
	return nil
}

func (r *LocalRunner) IsReady(ctx context.Context) bool {
	r.mu.Lock()
	cmd := r.cmd
	stopped := r.stopped
	r.mu.Unlock()

	if cmd == nil || cmd.Process == nil || stopped {
		return false
	}
	if err := cmd.Process.Signal(syscall.Signal(0)); err != nil {
		return false
	}

	if r.unit.Readiness == nil {
		return true
	}

	checker := localChecker(r.unit)
	return health.Probe(ctx, checker, health.Config{
		Interval: r.unit.Readiness.Interval,
		Timeout:  r.unit.Readiness.Timeout,
		Retries:  r.unit.Readiness.Retries,
	}, r.logger)
}

func (r *LocalRunner) ConnectionStrings() map[string]string { return nil }

func (r *LocalRunner) captureLogs(reader io.Reader, level spec.LogLevel) {
	scanner := bufio.NewScanner(reader)
	for scanner.Scan() {
		line := scanner.Text()
		event := r.logger.Info()
		switch level {
		case spec.LogDebug:
			event = r.logger.Debug()
		case spec.LogWarn:
			event = r.logger.Warn()
		case spec.LogError:
			event = r.logger.Error()
		}
		event.Msg(line)
	}
}

// localChecker builds the readiness checker for a local-process unit.
// The endpoint, if set, is already a complete URL (no port-mapping
// indirection applies to native processes).
func localChecker(unit spec.Unit) health.Checker {
	if unit.Readiness.Endpoint != "" {
		return health.NewHTTPChecker(unit.Readiness.Endpoint)
	}
	return health.NewExecChecker(strings.Fields(unit.Readiness.Command))
}
