package runner

import (
	"context"
	"testing"
	"time"

	"github.com/cuemby/integr8/internal/spec"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalRunnerStartIsReadyStopWithoutReadinessBlock(t *testing.T) {
	unit := spec.Unit{
		Name:  "app",
		Local: &spec.LocalBlock{Command: "sleep 5"},
	}
	r := NewLocalRunner(unit, zerolog.Nop(), nil)

	require.NoError(t, r.Start(context.Background(), true))
	assert.True(t, r.IsReady(context.Background()))

	require.NoError(t, r.Stop(context.Background()))
	assert.False(t, r.IsReady(context.Background()))
}

func TestLocalRunnerStopIsIdempotent(t *testing.T) {
	unit := spec.Unit{Name: "app", Local: &spec.LocalBlock{Command: "sleep 5"}}
	r := NewLocalRunner(unit, zerolog.Nop(), nil)

	require.NoError(t, r.Start(context.Background(), true))
	require.NoError(t, r.Stop(context.Background()))
	assert.NoError(t, r.Stop(context.Background()))
}

func TestLocalRunnerStartEmptyCommandFails(t *testing.T) {
	unit := spec.Unit{Name: "broken", Local: &spec.LocalBlock{Command: ""}}
	r := NewLocalRunner(unit, zerolog.Nop(), nil)

	err := r.Start(context.Background(), true)
	assert.Error(t, err)
}

func TestLocalRunnerFastSkipsGracePeriodSleep(t *testing.T) {
	unit := spec.Unit{Name: "app", Local: &spec.LocalBlock{Command: "sleep 5"}}
	r := NewLocalRunner(unit, zerolog.Nop(), nil)

	start := time.Now()
	require.NoError(t, r.Start(context.Background(), true))
	defer r.Stop(context.Background())

	assert.Less(t, time.Since(start), startGrace)
}

func TestLocalRunnerConnectionStringsAlwaysNil(t *testing.T) {
	unit := spec.Unit{Name: "app", Local: &spec.LocalBlock{Command: "sleep 5"}}
	r := NewLocalRunner(unit, zerolog.Nop(), nil)
	assert.Nil(t, r.ConnectionStrings())
}
