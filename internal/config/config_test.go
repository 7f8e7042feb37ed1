package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/integr8/internal/spec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
services:
  - name: app
    type: node
    dependsOn: [db]
    local:
      command: "node server.js"
      workingDir: "./app"
      env:
        PORT: "${TEST_APP_PORT}"
    readiness:
      endpoint: "http://localhost:3000/health"
      interval: 500
      timeout: 5000
      retries: 10
databases:
  - name: db
    type: postgres
    container:
      image: "postgres:16"
      ports:
        - host: 0
          container: 5432
      envMapping:
        url: DATABASE_URL
    database:
      isolation: savepoint
      restoreStrategy: rollback
      seedMode: once
      seedTimeout: 2000
testTimeout: 30000
setupTimeout: 60000
testMode:
  controlPort: 4000
  overrideEndpoint: "/__test__/override"
`

func TestLoadExpandsEnvAndMapsFullShape(t *testing.T) {
	t.Setenv("TEST_APP_PORT", "3000")

	dir := t.TempDir()
	path := filepath.Join(dir, "integr8.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Len(t, cfg.Services, 1)
	app := cfg.Services[0]
	assert.Equal(t, spec.CategoryService, app.Category)
	assert.Equal(t, []string{"db"}, app.DependsOn)
	assert.Equal(t, "3000", app.Local.Env["PORT"])
	require.NotNil(t, app.Readiness)
	assert.Equal(t, 500*time.Millisecond, app.Readiness.Interval)
	assert.Equal(t, 10, app.Readiness.Retries)

	require.Len(t, cfg.Databases, 1)
	db := cfg.Databases[0]
	assert.Equal(t, spec.CategoryDatabase, db.Category)
	require.NotNil(t, db.Container)
	assert.Equal(t, "postgres:16", db.Container.Image)
	assert.Equal(t, "DATABASE_URL", db.Container.EnvMapping.URL)
	require.NotNil(t, db.Database)
	assert.Equal(t, "savepoint", db.Database.Isolation)
	assert.Equal(t, 2*time.Second, db.Database.SeedTimeout)

	assert.Equal(t, 30*time.Second, cfg.TestTimeout)
	assert.Equal(t, 60*time.Second, cfg.SetupTimeout)
	require.NotNil(t, cfg.TestMode)
	assert.Equal(t, 4000, cfg.TestMode.ControlPort)
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	assert.Error(t, err)
}

func TestLoadInvalidYAMLReturnsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("services: [: broken"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadUnsetVariableExpandsEmpty(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "integr8.yaml")
	content := "services:\n  - name: app\n    type: node\n    local:\n      command: \"node server.js\"\n      env:\n        PORT: \"${UNSET_TEST_VAR}\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "", cfg.Services[0].Local.Env["PORT"])
}
