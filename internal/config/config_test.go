package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFallsBackToDefaultsWhenFileMissing(t *testing.T) {
	t.Setenv("PG_HOST", "db.internal")
	t.Setenv("PG_PORT", "5432")
	t.Setenv("PG_USER", "timer")
	t.Setenv("PG_DB_NAME", "timers")
	t.Setenv("API_KEY", "secret")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadParsesYAMLAndAppliesEnvOverride(t *testing.T) {
	path := writeFile(t, `
postgres:
  host: file-host
  port: 5432
  user: timer
  db_name: timers
server:
  port: 9090
  api_key: from-file
`)
	t.Setenv("PG_HOST", "env-host")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-host", cfg.Postgres.Host, "env vars must win over file values")
	assert.Equal(t, "from-file", cfg.Server.APIKey)
}

func TestLoadFailsValidationWhenRequiredFieldsMissing(t *testing.T) {
	path := writeFile(t, `postgres:\n  host: x\n`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrideIgnoresInvalidIntValues(t *testing.T) {
	t.Setenv("PG_HOST", "db.internal")
	t.Setenv("PG_USER", "timer")
	t.Setenv("PG_DB_NAME", "timers")
	t.Setenv("API_KEY", "secret")
	t.Setenv("PG_PORT", "not-a-number")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Postgres.Port)
}
