package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
databases:
  - name: db1
    url: "postgres://db1"
  - name: db2
    url: "postgres://db2"
    weight: 3
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Databases[0].EffectiveWeight())
	assert.Equal(t, 3, cfg.Databases[1].EffectiveWeight())
	assert.Equal(t, 5, cfg.Health.IntervalSeconds)
	assert.Equal(t, 500, cfg.Health.TimeoutMillis)
	assert.Equal(t, "command_logs/", cfg.CommandLogDir)
	assert.Equal(t, "round_robin", cfg.Strategy)
}

func TestLoadRejectsDuplicateNames(t *testing.T) {
	path := writeConfig(t, `
databases:
  - name: db1
    url: "postgres://a"
  - name: db1
    url: "postgres://b"
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsUnknownStrategy(t *testing.T) {
	path := writeConfig(t, `
databases:
  - name: db1
    url: "postgres://a"
strategy: bogus
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadRejectsNoDatabases(t *testing.T) {
	path := writeConfig(t, `databases: []`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsWeightBelowOne(t *testing.T) {
	path := writeConfig(t, `
databases:
  - name: db1
    url: "postgres://a"
    weight: 0
`)
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsNegativeWeight(t *testing.T) {
	path := writeConfig(t, `
databases:
  - name: db1
    url: "postgres://a"
    weight: -3
`)
	_, err := Load(path)
	assert.Error(t, err)
}
