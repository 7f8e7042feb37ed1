// Package runner implements the two runner variants — a native
// subprocess runner and a container runner — behind a common
// interface consumed by the category orchestrators.
package runner

import (
	"context"

	"github.com/cuemby/integr8/internal/spec"
)

// Runner owns exactly one process or one container.
type Runner interface {
	// Start launches the unit. When fast is true, readiness is assumed
	// and skipped — used when reconnecting to an already-running
	// environment.
	Start(ctx context.Context, fast bool) error

	// Stop tears the unit down. Idempotent: a no-op if never started
	// or already stopped.
	Stop(ctx context.Context) error

	// IsReady reports whether the unit currently passes its configured
	// readiness check. Returns true immediately if no readiness block
	// is configured.
	IsReady(ctx context.Context) bool

	// ConnectionStrings returns the env-var-name → value map produced
	// by connection-string propagation. Local runners always return
	// nil; only container-backed database/messaging runners populate
	// this after Start.
	ConnectionStrings() map[string]string
}

// EnvMerge composes the effective environment for a unit: process
// environment inherited by the caller, then the unit's declared env,
// then any injected connection-string values — later entries win, and
// by construction keys never collide across categories.
func EnvMerge(base map[string]string, layers ...map[string]string) map[string]string {
	merged := make(map[string]string, len(base))
	for k, v := range base {
		merged[k] = v
	}
	for _, layer := range layers {
		for k, v := range layer {
			merged[k] = v
		}
	}
	return merged
}

// envSlice converts a merged env map to the os/exec-style KEY=VALUE slice.
func envSlice(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k, v := range m {
		out = append(out, k+"="+v)
	}
	return out
}

// unitLogLevel returns l unchanged, or info when l is empty.
func unitLogLevel(l spec.LogLevel) spec.LogLevel {
	if l == "" {
		return spec.LogInfo
	}
	return l
}
