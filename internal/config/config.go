// Package config loads and validates POS core configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the tunable parameters for the store, the queue processors
// and the crash recovery manager. Retry caps and backoff curves are
// deliberately explicit rather than hard-coded in the processors.
type Config struct {
	// DataDir holds the SQLite database and the crash snapshot file.
	DataDir string `yaml:"data_dir"`

	// Remote is the restaurant-management backend.
	Remote RemoteConfig `yaml:"remote"`

	Sync  SyncConfig  `yaml:"sync"`
	Print PrintConfig `yaml:"print"`

	Recovery RecoveryConfig `yaml:"recovery"`

	// EventsListenAddr serves queue-depth/failure events to UI clients.
	// Empty disables the events endpoint.
	EventsListenAddr string `yaml:"events_listen_addr"`
}

// RemoteConfig describes the remote sync endpoint.
type RemoteConfig struct {
	BaseURL        string        `yaml:"base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// EventsURL is the backend websocket used to detect connectivity;
	// empty disables the connectivity monitor.
	EventsURL string `yaml:"events_url"`
}

// SyncConfig tunes the sync queue processor. Sync retries are slow and
// persistent: a high cap with a capped exponential backoff.
type SyncConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Workers      int           `yaml:"workers"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffCap   time.Duration `yaml:"backoff_cap"`
	BatchLimit   int           `yaml:"batch_limit"`
}

// PrintConfig tunes the print job processor. Print retries are fast and
// few: an un-printed kitchen ticket is urgent, and a dead printer does not
// heal from retrying all night.
type PrintConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	Workers      int           `yaml:"workers"`
	MaxAttempts  int           `yaml:"max_attempts"`
	BackoffBase  time.Duration `yaml:"backoff_base"`
	BackoffCap   time.Duration `yaml:"backoff_cap"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	BatchLimit   int           `yaml:"batch_limit"`
}

// RecoveryConfig tunes the crash recovery manager.
type RecoveryConfig struct {
	// StaleAfter marks snapshots older than this as discardable-by-default.
	StaleAfter time.Duration `yaml:"stale_after"`
}

// Default returns the configuration used when no file overrides are given.
func Default() *Config {
	return &Config{
		DataDir: "data",
		Remote: RemoteConfig{
			RequestTimeout: 10 * time.Second,
		},
		Sync: SyncConfig{
			PollInterval: 5 * time.Second,
			Workers:      4,
			MaxAttempts:  10,
			BackoffBase:  1 * time.Second,
			BackoffCap:   30 * time.Second,
			BatchLimit:   100,
		},
		Print: PrintConfig{
			PollInterval: 2 * time.Second,
			Workers:      2,
			MaxAttempts:  3,
			BackoffBase:  500 * time.Millisecond,
			BackoffCap:   5 * time.Second,
			DialTimeout:  10 * time.Second,
			BatchLimit:   20,
		},
		Recovery: RecoveryConfig{
			StaleAfter: 18 * time.Hour,
		},
	}
}

// Load reads a YAML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects configurations the processors cannot run with.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.Sync.Workers < 1 {
		return fmt.Errorf("sync.workers must be at least 1")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	if c.Sync.BackoffBase <= 0 || c.Sync.BackoffCap < c.Sync.BackoffBase {
		return fmt.Errorf("sync backoff curve is invalid: base %v, cap %v", c.Sync.BackoffBase, c.Sync.BackoffCap)
	}
	if c.Sync.PollInterval <= 0 {
		return fmt.Errorf("sync.poll_interval must be positive")
	}
	if c.Print.Workers < 1 {
		return fmt.Errorf("print.workers must be at least 1")
	}
	if c.Print.MaxAttempts < 1 {
		return fmt.Errorf("print.max_attempts must be at least 1")
	}
	if c.Print.BackoffBase <= 0 || c.Print.BackoffCap < c.Print.BackoffBase {
		return fmt.Errorf("print backoff curve is invalid: base %v, cap %v", c.Print.BackoffBase, c.Print.BackoffCap)
	}
	if c.Print.PollInterval <= 0 {
		return fmt.Errorf("print.poll_interval must be positive")
	}
	if c.Recovery.StaleAfter <= 0 {
		return fmt.Errorf("recovery.stale_after must be positive")
	}
	return nil
}
