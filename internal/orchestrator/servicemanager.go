package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/cuemby/integr8/internal/errs"
	"github.com/cuemby/integr8/internal/events"
	"github.com/cuemby/integr8/internal/obslog"
	"github.com/cuemby/integr8/internal/spec"
)

// ServiceManager computes the topological start/stop order across all
// categories and drives the per-category orchestrators.
type ServiceManager struct {
	config spec.Config
	bus    *events.Bus

	orchestrators map[spec.Category]*CategoryOrchestrator

	mu     sync.Mutex
	status map[string]spec.Status
	units  map[string]spec.Unit
}

// NewServiceManager builds a ServiceManager for config, with one
// CategoryOrchestrator per category sharing bus.
func NewServiceManager(config spec.Config, bus *events.Bus) *ServiceManager {
	sm := &ServiceManager{
		config: config,
		bus:    bus,
		orchestrators: map[spec.Category]*CategoryOrchestrator{
			spec.CategoryService:   NewCategoryOrchestrator(spec.CategoryService, bus),
			spec.CategoryDatabase:  NewCategoryOrchestrator(spec.CategoryDatabase, bus),
			spec.CategoryMessaging: NewCategoryOrchestrator(spec.CategoryMessaging, bus),
			spec.CategoryStorage:   NewCategoryOrchestrator(spec.CategoryStorage, bus),
		},
		status: make(map[string]spec.Status),
		units:  make(map[string]spec.Unit),
	}
	for _, u := range config.AllUnits() {
		sm.status[u.Name] = spec.StatusPending
		sm.units[u.Name] = u
	}
	return sm
}

// Orchestrator returns the CategoryOrchestrator for cat, used by the
// database manager and test context to reach a running unit directly.
func (sm *ServiceManager) Orchestrator(cat spec.Category) *CategoryOrchestrator {
	return sm.orchestrators[cat]
}

// Status returns the current status of the named unit.
func (sm *ServiceManager) Status(name string) spec.Status {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.status[name]
}

// IsReady reports whether every configured unit is running and its
// runner reports ready.
func (sm *ServiceManager) IsReady(ctx context.Context) bool {
	for _, u := range sm.config.AllUnits() {
		if sm.Status(u.Name) != spec.StatusRunning {
			return false
		}
		if !sm.orchestrators[u.Category].IsReady(ctx, u.Name) {
			return false
		}
	}
	return true
}

// TopologicalOrder returns all units in dependency order using
// three-color DFS; ties between unrelated units are broken by order of
// appearance in the configuration. Returns a configuration error naming
// an offending node if the dependency graph contains a cycle.
func TopologicalOrder(units []spec.Unit) ([]spec.Unit, error) {
	byName := make(map[string]spec.Unit, len(units))
	for _, u := range units {
		byName[u.Name] = u
	}

	const (
		white = iota // unvisited
		gray         // visiting (on the current DFS stack)
		black        // visited
	)
	color := make(map[string]int, len(units))
	order := make([]spec.Unit, 0, len(units))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		switch color[name] {
		case black:
			return nil
		case gray:
			return errs.Configuration("topological-sort", fmt.Errorf("cycle: %s", cyclePath(path, name)))
		}

		color[name] = gray
		u, ok := byName[name]
		if !ok {
			return errs.Configuration("topological-sort", fmt.Errorf("unit %q depends on unknown unit %q", path[len(path)-1], name))
		}
		for _, dep := range u.DependsOn {
			if err := visit(dep, append(path, name)); err != nil {
				return err
			}
		}
		color[name] = black
		order = append(order, u)
		return nil
	}

	for _, u := range units {
		if color[u.Name] == white {
			if err := visit(u.Name, nil); err != nil {
				return nil, err
			}
		}
	}
	return order, nil
}

func cyclePath(path []string, closing string) string {
	out := ""
	for _, p := range append(path, closing) {
		if out != "" {
			out += " → "
		}
		out += p
	}
	return out
}

// Start runs the full start protocol (§4.5): topological order, then
// per-unit dependency assertion, starting event, orchestrator dispatch,
// and terminal event.
func (sm *ServiceManager) Start(ctx context.Context, fast bool) error {
	order, err := TopologicalOrder(sm.config.AllUnits())
	if err != nil {
		return err
	}

	for _, u := range order {
		if sm.Status(u.Name) == spec.StatusRunning || sm.Status(u.Name) == spec.StatusStarting {
			continue
		}

		for _, dep := range u.DependsOn {
			if sm.Status(dep) != spec.StatusRunning {
				return errs.DependencyNotReady(u.Name, dep)
			}
		}

		sm.setStatus(u.Name, spec.StatusStarting)
		sm.bus.Publish(events.Event{Topic: events.TopicServiceStarting, ServiceName: u.Name, Service: &u})

		orch := sm.orchestrators[u.Category]

		var connStrings map[string]string
		if u.Category == spec.CategoryService {
			connStrings = sm.aggregateConnectionStrings()
		}

		if err := orch.StartService(ctx, u, fast, connStrings); err != nil {
			sm.setStatus(u.Name, spec.StatusFailed)
			return err
		}
		sm.setStatus(u.Name, spec.StatusRunning)
	}
	return nil
}

// Stop runs the stop protocol in reverse topological order.
func (sm *ServiceManager) Stop(ctx context.Context) error {
	_, _ = sm.StopWithReport(ctx)
	return nil
}

// StopWithReport runs the stop protocol in reverse topological order
// and returns which units stopped cleanly versus which reported an
// error while stopping (still marked stopped — a stop failure leaks
// the underlying process/container but never blocks the rest of
// teardown).
func (sm *ServiceManager) StopWithReport(ctx context.Context) (stopped []string, failures map[string]error) {
	order, err := TopologicalOrder(sm.config.AllUnits())
	if err != nil {
		// Tear down whatever we can, even with a malformed graph.
		order = sm.config.AllUnits()
	}

	logger := obslog.WithComponent("servicemanager")
	failures = make(map[string]error)
	for i := len(order) - 1; i >= 0; i-- {
		u := order[i]
		status := sm.Status(u.Name)
		if status == spec.StatusStopped || status == spec.StatusStopping {
			continue
		}

		sm.setStatus(u.Name, spec.StatusStopping)
		sm.bus.Publish(events.Event{Topic: events.TopicServiceStopping, ServiceName: u.Name, Service: &u})

		if err := sm.orchestrators[u.Category].StopService(ctx, u.Name); err != nil {
			logger.Warn().Err(err).Str("service", u.Name).Msg("stop failed, marking stopped anyway")
			failures[u.Name] = err
		} else {
			stopped = append(stopped, u.Name)
		}
		sm.setStatus(u.Name, spec.StatusStopped)
	}
	return stopped, failures
}

func (sm *ServiceManager) setStatus(name string, status spec.Status) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.status[name] = status
}

// aggregateConnectionStrings merges the connection-string contributions
// of every database and messaging unit into one flat env map, ready to
// be injected into a starting service. Keys are taken to be distinct
// (each unit's env-mapping names its own vars); a collision is not
// reported.
func (sm *ServiceManager) aggregateConnectionStrings() map[string]string {
	merged := make(map[string]string)
	for _, perUnit := range sm.orchestrators[spec.CategoryDatabase].ConnectionStrings() {
		for k, v := range perUnit {
			merged[k] = v
		}
	}
	for _, perUnit := range sm.orchestrators[spec.CategoryMessaging].ConnectionStrings() {
		for k, v := range perUnit {
			merged[k] = v
		}
	}
	return merged
}
