package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "pagetrack.db", cfg.SQLitePath)
	assert.Equal(t, 30*time.Second, cfg.OpTimeout)
	assert.Equal(t, "pagetrack", cfg.ServiceName)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PAGETRACK_STORE", BackendPostgres)
	t.Setenv("DATABASE_URL", "postgres://pagetrack@localhost:5432/pagetrack")
	t.Setenv("PAGETRACK_OP_TIMEOUT", "5s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, 5*time.Second, cfg.OpTimeout)
}

func TestValidate(t *testing.T) {
	t.Run("postgres requires DATABASE_URL", func(t *testing.T) {
		cfg := Config{Backend: BackendPostgres, OpTimeout: time.Second}
		assert.Error(t, cfg.Validate())
	})

	t.Run("sqlite requires a path", func(t *testing.T) {
		cfg := Config{Backend: BackendSQLite, OpTimeout: time.Second}
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		cfg := Config{Backend: "etcd", OpTimeout: time.Second}
		assert.Error(t, cfg.Validate())
	})

	t.Run("memory needs nothing else", func(t *testing.T) {
		cfg := Config{Backend: BackendMemory, OpTimeout: time.Second}
		assert.NoError(t, cfg.Validate())
	})
}
