// Package orchestrator implements the per-category orchestrators and
// the service manager that drives them in topological order.
package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/integr8/internal/events"
	"github.com/cuemby/integr8/internal/obslog"
	"github.com/cuemby/integr8/internal/runner"
	"github.com/cuemby/integr8/internal/spec"
	"github.com/rs/zerolog"
)

// CategoryOrchestrator fans out start/stop to the runners of one
// category (service, database, messaging, storage) and tracks their
// live endpoints.
type CategoryOrchestrator struct {
	category spec.Category
	bus      *events.Bus
	logger   zerolog.Logger

	mu      sync.RWMutex
	runners map[string]runner.Runner
}

// NewCategoryOrchestrator builds an orchestrator for one category.
func NewCategoryOrchestrator(category spec.Category, bus *events.Bus) *CategoryOrchestrator {
	return &CategoryOrchestrator{
		category: category,
		bus:      bus,
		logger:   obslog.WithComponent(fmt.Sprintf("orchestrator.%s", category)),
		runners:  make(map[string]runner.Runner),
	}
}

// StartService instantiates a runner for unit (if not already present),
// starts it, and publishes service:started or service:failed.
// connStrings carries the connection strings the service manager
// collects ahead of the call for `service`-category units; only a local
// runner merges them into its environment.
func (o *CategoryOrchestrator) StartService(ctx context.Context, unit spec.Unit, fast bool, connStrings map[string]string) error {
	o.mu.Lock()
	r, exists := o.runners[unit.Name]
	if !exists {
		serviceLogger := obslog.WithService(unit.Name)
		switch unit.ModeOf() {
		case spec.ModeContainer:
			r = runner.NewContainerRunner(unit, serviceLogger)
		default:
			r = runner.NewLocalRunner(unit, serviceLogger, connStrings)
		}
		o.runners[unit.Name] = r
	}
	o.mu.Unlock()

	if err := r.Start(ctx, fast); err != nil {
		o.bus.Publish(events.Event{Topic: events.TopicServiceFailed, ServiceName: unit.Name, Service: &unit, Error: err})
		return err
	}

	o.bus.Publish(events.Event{Topic: events.TopicServiceStarted, ServiceName: unit.Name, Service: &unit})
	return nil
}

// StopService stops the runner for name, if one exists; idempotent.
func (o *CategoryOrchestrator) StopService(ctx context.Context, name string) error {
	o.mu.RLock()
	r, exists := o.runners[name]
	o.mu.RUnlock()

	if !exists {
		o.logger.Debug().Str("service", name).Msg("stop requested for unknown runner, ignoring")
		return nil
	}

	err := r.Stop(ctx)
	if err != nil {
		o.logger.Warn().Err(err).Str("service", name).Msg("stop failed, continuing teardown")
	}
	o.bus.Publish(events.Event{Topic: events.TopicServiceStopped, ServiceName: name})
	return err
}

// IsReady delegates to the named runner's readiness check.
func (o *CategoryOrchestrator) IsReady(ctx context.Context, name string) bool {
	o.mu.RLock()
	r, exists := o.runners[name]
	o.mu.RUnlock()

	if !exists {
		return false
	}
	return r.IsReady(ctx)
}

// ConnectionStrings aggregates the connection-string contributions of
// every runner in this category that has produced one.
func (o *CategoryOrchestrator) ConnectionStrings() map[string]map[string]string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]map[string]string)
	for name, r := range o.runners {
		if cs := r.ConnectionStrings(); cs != nil {
			out[name] = cs
		}
	}
	return out
}
