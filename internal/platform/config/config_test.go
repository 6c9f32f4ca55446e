package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:5000", cfg.APIBaseURL)
	assert.Equal(t, "http://localhost:5000/api/health", cfg.HealthURL())
	assert.Equal(t, 5*time.Second, cfg.Liveness.Interval)
	assert.Equal(t, "/login", cfg.Teardown.LoginPath)
	assert.Equal(t, StateBackendSQLite, cfg.State.Backend)
	assert.Equal(t, IdentityProviderToken, cfg.Identity.Provider)
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("LIBRARY_API_URL", "https://api.library.test/")
	t.Setenv("LIVENESS_INTERVAL", "10s")
	t.Setenv("STATE_BACKEND", "memory")

	cfg, err := FromEnv()
	require.NoError(t, err)

	assert.Equal(t, "https://api.library.test", cfg.APIBaseURL)
	assert.Equal(t, "https://api.library.test/api/health", cfg.HealthURL())
	assert.Equal(t, 10*time.Second, cfg.Liveness.Interval)
	assert.Equal(t, StateBackendMemory, cfg.State.Backend)
}

func TestFromEnvErrors(t *testing.T) {
	t.Run("unparseable duration", func(t *testing.T) {
		t.Setenv("LIVENESS_INTERVAL", "soon")
		_, err := FromEnv()
		require.Error(t, err)
		assert.True(t, strings.HasPrefix(err.Error(), "parse env:"))
	})

	t.Run("timeout not shorter than interval", func(t *testing.T) {
		t.Setenv("LIVENESS_INTERVAL", "1s")
		t.Setenv("LIVENESS_TIMEOUT", "1s")
		_, err := FromEnv()
		require.ErrorContains(t, err, "LIVENESS_TIMEOUT")
	})

	t.Run("redis backend without url", func(t *testing.T) {
		t.Setenv("STATE_BACKEND", "redis")
		_, err := FromEnv()
		require.ErrorContains(t, err, "REDIS_URL")
	})

	t.Run("relative api url", func(t *testing.T) {
		t.Setenv("LIBRARY_API_URL", "localhost")
		_, err := FromEnv()
		require.ErrorContains(t, err, "LIBRARY_API_URL")
	})
}
