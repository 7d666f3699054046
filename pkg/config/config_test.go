package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendScylla, cfg.StoreBackend)
	assert.Equal(t, []string{"localhost:9042"}, cfg.ScyllaHosts)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Zero(t, cfg.ProcessID)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("SCYLLA_HOSTS", "db1:9042, db2:9042")
	t.Setenv("PROCESS_ID", "3")
	t.Setenv("WORKER_ID", "7")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMemory, cfg.StoreBackend)
	assert.Equal(t, []string{"db1:9042", "db2:9042"}, cfg.ScyllaHosts)
	assert.Equal(t, int64(3), cfg.ProcessID)
	assert.Equal(t, int64(7), cfg.WorkerID)
}

func TestLoadRejectsBadValues(t *testing.T) {
	t.Setenv("STORE_BACKEND", "papyrus")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("PROCESS_ID", "one")
	_, err := Load()
	assert.Error(t, err)
}
