package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grievancebot/services/orchestrator/langpack"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"REDIS_URL", "PORT", "BACKEND_URL", "SESSION_STORE", "LOG_LEVEL", "MAX_RETRIES", "ASK_BACKEND"} {
		t.Setenv(k, "")
	}
}

func TestDefaultsValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 2, cfg.GetRetrier().MaxRetries)
	assert.Equal(t, time.Second, cfg.GetRetrier().Delay)
	assert.Equal(t, 20*time.Second, cfg.GetTimeouts().Query)
	assert.Equal(t, 5*time.Second, cfg.GetTimeouts().Health)
	assert.Equal(t, 30*time.Second, cfg.GetHealthInterval())
	assert.Equal(t, 800*time.Millisecond, cfg.GetFollowUpDelay())
	assert.Equal(t, langpack.English, cfg.GetDefaultLanguage())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend:
  url: http://rag:9000
  ask_backend: true
  timeouts:
    status: 3s
session:
  store: memory
dialogue:
  default_language: mr
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "http://rag:9000", cfg.Backend.URL)
	assert.True(t, cfg.Backend.AskBackend)
	assert.Equal(t, 3*time.Second, cfg.GetTimeouts().Status)
	assert.Equal(t, 20*time.Second, cfg.GetTimeouts().Query, "unset keys keep defaults")
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, langpack.Marathi, cfg.GetDefaultLanguage())
}

func TestLoadRejectsBadYAML(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: [unclosed"), 0o600))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("strings", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("REDIS_URL", "redis://cache:6380/1")
		t.Setenv("PORT", "9090")
		t.Setenv("BACKEND_URL", "http://backend")
		t.Setenv("SESSION_STORE", "memory")
		t.Setenv("LOG_LEVEL", "debug")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.Equal(t, "redis://cache:6380/1", cfg.Redis.URL)
		assert.Equal(t, "9090", cfg.Server.Port)
		assert.Equal(t, "http://backend", cfg.Backend.URL)
		assert.Equal(t, "memory", cfg.Session.Store)
		assert.Equal(t, "debug", cfg.Logging.Level)
	})

	t.Run("numbers and flags", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MAX_RETRIES", "3")
		t.Setenv("ASK_BACKEND", "true")

		cfg := DefaultConfig()
		require.NoError(t, cfg.applyEnvOverrides())
		assert.Equal(t, 3, cfg.Backend.MaxRetries)
		assert.True(t, cfg.Backend.AskBackend)
	})

	t.Run("malformed values", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MAX_RETRIES", "two")
		assert.Error(t, DefaultConfig().applyEnvOverrides())

		t.Setenv("MAX_RETRIES", "")
		t.Setenv("ASK_BACKEND", "maybe")
		assert.Error(t, DefaultConfig().applyEnvOverrides())
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"store", func(c *Config) { c.Session.Store = "etcd" }},
		{"language", func(c *Config) { c.Dialogue.DefaultLanguage = "fr" }},
		{"retries", func(c *Config) { c.Backend.MaxRetries = -1 }},
		{"duration", func(c *Config) { c.Backend.Timeouts.Rating = "ten seconds" }},
		{"log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"backend", func(c *Config) { c.Backend.URL = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
