package environment

import (
	"context"
	"testing"

	"github.com/cuemby/integr8/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDriverForMapsKnownDatabaseTypes(t *testing.T) {
	assert.Equal(t, "pgx", driverFor("postgres"))
	assert.Equal(t, "pgx", driverFor("postgresql"))
	assert.Equal(t, "mysql", driverFor("mysql"))
	assert.Equal(t, "mongodb", driverFor("mongodb"))
}

func TestSharedBaseURLPrefersContainerServicePort(t *testing.T) {
	e := New(spec.Config{
		Services: []spec.Unit{
			{
				Name: "app",
				Container: &spec.ContainerBlock{
					Ports: []spec.PortBinding{{Host: 54321, Container: 3000}},
				},
			},
		},
	})
	assert.Equal(t, "http://localhost:54321", e.sharedBaseURL())
}

func TestSharedBaseURLFallsBackToControlPort(t *testing.T) {
	e := New(spec.Config{
		TestMode: &spec.TestModeConfig{ControlPort: 4000},
	})
	assert.Equal(t, "http://localhost:4000", e.sharedBaseURL())
}

func TestSharedBaseURLDefaultsToPort3000(t *testing.T) {
	e := New(spec.Config{})
	assert.Equal(t, "http://localhost:3000", e.sharedBaseURL())
}

func TestDsnForErrorsWithoutEnvMapping(t *testing.T) {
	e := New(spec.Config{
		Databases: []spec.Unit{{Name: "db", Container: &spec.ContainerBlock{}}},
	})
	_, err := e.dsnFor(spec.Unit{Name: "db", Container: &spec.ContainerBlock{}})
	assert.Error(t, err)
}

func TestDsnForErrorsWhenConnectionStringNotYetAvailable(t *testing.T) {
	e := New(spec.Config{
		Databases: []spec.Unit{{
			Name: "db",
			Container: &spec.ContainerBlock{
				EnvMapping: &spec.EnvMapping{URL: "DATABASE_URL"},
			},
		}},
	})
	_, err := e.dsnFor(spec.Unit{
		Name:      "db",
		Container: &spec.ContainerBlock{EnvMapping: &spec.EnvMapping{URL: "DATABASE_URL"}},
	})
	assert.Error(t, err)
}

func TestSharedModeShortCircuitsStartStopIsReady(t *testing.T) {
	t.Setenv("ENVIRONMENT_RUNNING", "true")
	e := New(spec.Config{Services: []spec.Unit{
		{Name: "app", Local: &spec.LocalBlock{Command: "sleep 5"}},
	}})
	require.True(t, e.shared)

	require.NoError(t, e.Start(context.Background(), false))
	assert.True(t, e.IsReady(context.Background()))

	report, err := e.Stop(context.Background())
	require.NoError(t, err)
	assert.Empty(t, report.Stopped)
	assert.Empty(t, report.Leaked)
}

func TestGetContextInSharedModeReturnsDetachedContext(t *testing.T) {
	t.Setenv("ENVIRONMENT_RUNNING", "true")
	e := New(spec.Config{})

	ctx, err := e.GetContext(context.Background(), "worker-1")
	require.NoError(t, err)
	assert.True(t, ctx.Detached())
}

func TestAdapterAndBusAreExposed(t *testing.T) {
	e := New(spec.Config{})
	assert.NotNil(t, e.Adapter())
	assert.NotNil(t, e.Bus())
}
