package testctx

import (
	"context"
	"testing"

	"github.com/cuemby/integr8/internal/dbmanager"
	"github.com/cuemby/integr8/internal/events"
	"github.com/cuemby/integr8/internal/override"
	"github.com/stretchr/testify/assert"
)

func TestNewBuildsLiveContextWithDatabaseAccess(t *testing.T) {
	db := map[string]*dbmanager.Manager{}
	ctx := New("worker-1", NewHTTPClient("http://localhost:3000"), override.NewManager(override.Config{}), events.NewBus(), db)

	assert.Equal(t, "worker-1", ctx.WorkerID)
	assert.False(t, ctx.Detached())
	assert.Nil(t, ctx.Database("nonexistent"))
}

func TestNewDetachedOnlyExposesHTTP(t *testing.T) {
	ctx := NewDetached("worker-1", NewHTTPClient("http://localhost:3000"))

	assert.True(t, ctx.Detached())
	assert.Nil(t, ctx.Override)
	assert.Nil(t, ctx.Bus)
	assert.NotNil(t, ctx.HTTP)
}

func TestContextWaitForDelegatesToWaiter(t *testing.T) {
	ctx := NewDetached("worker-1", NewHTTPClient("http://localhost:3000"))
	err := ctx.WaitFor(context.Background(), func() bool { return true }, "noop")
	assert.NoError(t, err)
}
