package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthSecret)
}

func TestLoadDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "DATABASE_URL", "SQLITE_PATH", "SALE_CACHE_TTL_SECONDS", "LOW_STOCK_THRESHOLD", "SESSION_IDLE_MINUTES")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, 5*time.Minute, cfg.SaleCacheTTL())
	assert.Equal(t, 5, cfg.LowStockThreshold)
	assert.Equal(t, 2*time.Hour, cfg.SessionIdle())
	assert.Equal(t, "memory", cfg.StoreKind())
}

func TestLoadClampsNonPositiveDurations(t *testing.T) {
	t.Setenv("SALE_CACHE_TTL_SECONDS", "0")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "-3")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.SaleCacheTTLSeconds)
	assert.Equal(t, 8*time.Hour, cfg.AccessTokenTTL())
}

func TestLoadRejectsMalformedNumbers(t *testing.T) {
	t.Setenv("REDIS_DB", "zero")

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.Error(t, err)
}

func TestLoadReadsEnvFileWithoutOverridingEnvironment(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("SQLITE_PATH=/tmp/pdv.db\nPORT=9090\n"), 0o600))
	t.Setenv("PORT", "7070")
	unsetEnv(t, "DATABASE_URL", "SQLITE_PATH")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, "/tmp/pdv.db", cfg.SQLitePath)
	assert.Equal(t, "sqlite", cfg.StoreKind())
}

func TestLoadReportsMalformedEnvFile(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), "broken.env")
	require.NoError(t, os.WriteFile(envFile, []byte("NOT-A-KEY=1\n"), 0o600))

	_, err := Load(envFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), envFile)

	_, err = Load(filepath.Join(t.TempDir(), "absent.env"))
	assert.NoError(t, err)
}

// unsetEnv removes keys for the duration of the test. envconfig treats a set
// but empty variable as a value, so clearing with t.Setenv alone is not enough.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}
