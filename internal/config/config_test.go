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
	path := filepath.Join(dir, "critnode.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
node:
  node_id: n1
  tables: [orders]
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7946, cfg.Gossip.BindPort)
	assert.Equal(t, "inproc", cfg.Lock.Backend)
	assert.Equal(t, "static", cfg.Discovery.Backend)
	assert.Equal(t, ":9090", cfg.Metrics.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadRejectsMissingNodeID(t *testing.T) {
	path := writeConfig(t, `
node:
  tables: [orders]
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsRedisBackendWithoutAddr(t *testing.T) {
	path := writeConfig(t, `
node:
  node_id: n1
  tables: [orders]
lock:
  backend: redis
`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	require.Error(t, err)
}
