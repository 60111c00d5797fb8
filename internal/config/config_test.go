package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10*time.Second, cfg.Remote.RequestTimeout)
	assert.Equal(t, 1*time.Second, cfg.Sync.BackoffBase)
	assert.Equal(t, 30*time.Second, cfg.Sync.BackoffCap)
	assert.Equal(t, 10, cfg.Sync.MaxAttempts)
	assert.Equal(t, 3, cfg.Print.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Print.BackoffBase)
	assert.Equal(t, 5*time.Second, cfg.Print.BackoffCap)
	assert.Empty(t, cfg.EventsListenAddr)
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
data_dir: /var/lib/poscore
remote:
  base_url: https://hq.example.com
  request_timeout: 4s
sync:
  workers: 8
  backoff_cap: 45s
print:
  poll_interval: 1s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	// Overridden values take effect.
	assert.Equal(t, "/var/lib/poscore", cfg.DataDir)
	assert.Equal(t, "https://hq.example.com", cfg.Remote.BaseURL)
	assert.Equal(t, 4*time.Second, cfg.Remote.RequestTimeout)
	assert.Equal(t, 8, cfg.Sync.Workers)
	assert.Equal(t, 45*time.Second, cfg.Sync.BackoffCap)
	assert.Equal(t, 1*time.Second, cfg.Print.PollInterval)

	// Untouched values keep their defaults.
	assert.Equal(t, 10, cfg.Sync.MaxAttempts)
	assert.Equal(t, 18*time.Hour, cfg.Recovery.StaleAfter)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  workers: 0\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync.workers")
}

func TestLoadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml::"), 0644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"zero sync attempts", func(c *Config) { c.Sync.MaxAttempts = 0 }},
		{"cap below base", func(c *Config) { c.Sync.BackoffCap = 500 * time.Millisecond }},
		{"zero sync poll", func(c *Config) { c.Sync.PollInterval = 0 }},
		{"zero print workers", func(c *Config) { c.Print.Workers = 0 }},
		{"print cap below base", func(c *Config) { c.Print.BackoffCap = 100 * time.Millisecond }},
		{"zero stale window", func(c *Config) { c.Recovery.StaleAfter = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
