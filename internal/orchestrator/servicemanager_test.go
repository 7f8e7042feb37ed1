package orchestrator

import (
	"context"
	"testing"

	"github.com/cuemby/integr8/internal/events"
	"github.com/cuemby/integr8/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sleepUnit(name string, deps ...string) spec.Unit {
	return spec.Unit{
		Name:      name,
		Category:  spec.CategoryService,
		Local:     &spec.LocalBlock{Command: "sleep 5"},
		DependsOn: deps,
	}
}

func TestServiceManagerStartRespectsDependencyOrderAndMarksRunning(t *testing.T) {
	bus := events.NewBus()
	var startedOrder []string
	bus.Subscribe(events.TopicServiceStarted, func(e events.Event) { startedOrder = append(startedOrder, e.ServiceName) })

	cfg := spec.Config{Services: []spec.Unit{
		sleepUnit("app", "db"),
		sleepUnit("db"),
	}}
	sm := NewServiceManager(cfg, bus)

	err := sm.Start(context.Background(), true)
	require.NoError(t, err)
	defer sm.Stop(context.Background())

	assert.Equal(t, spec.StatusRunning, sm.Status("app"))
	assert.Equal(t, spec.StatusRunning, sm.Status("db"))
	assert.Equal(t, []string{"db", "app"}, startedOrder)
}

func TestServiceManagerStartFailsOnCycle(t *testing.T) {
	bus := events.NewBus()
	cfg := spec.Config{Services: []spec.Unit{
		sleepUnit("a", "b"),
		sleepUnit("b", "a"),
	}}
	sm := NewServiceManager(cfg, bus)

	err := sm.Start(context.Background(), true)
	require.Error(t, err)
}

func TestServiceManagerIsReadyFalseUntilStarted(t *testing.T) {
	bus := events.NewBus()
	cfg := spec.Config{Services: []spec.Unit{sleepUnit("app")}}
	sm := NewServiceManager(cfg, bus)

	assert.False(t, sm.IsReady(context.Background()))

	require.NoError(t, sm.Start(context.Background(), true))
	defer sm.Stop(context.Background())

	assert.True(t, sm.IsReady(context.Background()))
}

func TestServiceManagerStopWithReportStopsInReverseOrder(t *testing.T) {
	bus := events.NewBus()
	var stoppedOrder []string
	bus.Subscribe(events.TopicServiceStopping, func(e events.Event) { stoppedOrder = append(stoppedOrder, e.ServiceName) })

	cfg := spec.Config{Services: []spec.Unit{
		sleepUnit("app", "db"),
		sleepUnit("db"),
	}}
	sm := NewServiceManager(cfg, bus)
	require.NoError(t, sm.Start(context.Background(), true))

	stopped, failures := sm.StopWithReport(context.Background())

	assert.Equal(t, []string{"app", "db"}, stoppedOrder)
	assert.ElementsMatch(t, []string{"app", "db"}, stopped)
	assert.Empty(t, failures)
	assert.Equal(t, spec.StatusStopped, sm.Status("app"))
	assert.Equal(t, spec.StatusStopped, sm.Status("db"))
}

func TestServiceManagerStartNeverStartsADependentWhoseDependencyFailed(t *testing.T) {
	bus := events.NewBus()
	cfg := spec.Config{Services: []spec.Unit{
		sleepUnit("app", "db"),
		{Name: "db", Category: spec.CategoryService, Local: &spec.LocalBlock{Command: ""}},
	}}
	sm := NewServiceManager(cfg, bus)

	err := sm.Start(context.Background(), true)
	require.Error(t, err)

	assert.Equal(t, spec.StatusFailed, sm.Status("db"))
	assert.Equal(t, spec.StatusPending, sm.Status("app"))
}

func TestServiceManagerStartIsIdempotent(t *testing.T) {
	bus := events.NewBus()
	cfg := spec.Config{Services: []spec.Unit{sleepUnit("app")}}
	sm := NewServiceManager(cfg, bus)

	require.NoError(t, sm.Start(context.Background(), true))
	defer sm.Stop(context.Background())
	require.NoError(t, sm.Start(context.Background(), true))

	assert.Equal(t, spec.StatusRunning, sm.Status("app"))
}
