package orchestrator

import (
	"context"
	"testing"

	"github.com/cuemby/integr8/internal/events"
	"github.com/cuemby/integr8/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCategoryOrchestratorStartStopLifecycle(t *testing.T) {
	bus := events.NewBus()
	var failed, started, stopped int
	bus.Subscribe(events.TopicServiceStarted, func(events.Event) { started++ })
	bus.Subscribe(events.TopicServiceFailed, func(events.Event) { failed++ })
	bus.Subscribe(events.TopicServiceStopped, func(events.Event) { stopped++ })

	orch := NewCategoryOrchestrator(spec.CategoryService, bus)
	u := spec.Unit{Name: "app", Category: spec.CategoryService, Local: &spec.LocalBlock{Command: "sleep 5"}}

	require.NoError(t, orch.StartService(context.Background(), u, true, nil))
	assert.Equal(t, 1, started)
	assert.Equal(t, 0, failed)
	assert.True(t, orch.IsReady(context.Background(), "app"))

	require.NoError(t, orch.StopService(context.Background(), "app"))
	assert.Equal(t, 1, stopped)
}

func TestCategoryOrchestratorStartPublishesFailedOnBadCommand(t *testing.T) {
	bus := events.NewBus()
	var failed int
	bus.Subscribe(events.TopicServiceFailed, func(events.Event) { failed++ })

	orch := NewCategoryOrchestrator(spec.CategoryService, bus)
	u := spec.Unit{Name: "broken", Category: spec.CategoryService, Local: &spec.LocalBlock{Command: ""}}

	err := orch.StartService(context.Background(), u, true, nil)
	require.Error(t, err)
	assert.Equal(t, 1, failed)
}

func TestCategoryOrchestratorIsReadyFalseForUnknownService(t *testing.T) {
	orch := NewCategoryOrchestrator(spec.CategoryService, events.NewBus())
	assert.False(t, orch.IsReady(context.Background(), "never-started"))
}

func TestCategoryOrchestratorStopUnknownServiceIsNoop(t *testing.T) {
	orch := NewCategoryOrchestrator(spec.CategoryService, events.NewBus())
	assert.NoError(t, orch.StopService(context.Background(), "never-started"))
}

func TestCategoryOrchestratorConnectionStringsOnlyIncludesProducers(t *testing.T) {
	bus := events.NewBus()
	orch := NewCategoryOrchestrator(spec.CategoryService, bus)
	u := spec.Unit{Name: "app", Category: spec.CategoryService, Local: &spec.LocalBlock{Command: "sleep 5"}}
	require.NoError(t, orch.StartService(context.Background(), u, true, nil))
	defer orch.StopService(context.Background(), "app")

	assert.Empty(t, orch.ConnectionStrings())
}
