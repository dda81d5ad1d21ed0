// Package config loads runtime settings for the sync core and desktop host.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendBadger = "badger"
)

// Config holds all runtime settings.
type Config struct {
	DataDir      string `mapstructure:"data_dir"`
	StoreBackend string `mapstructure:"store_backend"`
	LogLevel     string `mapstructure:"log_level"`
	LogFile      string `mapstructure:"log_file"`
	ListenAddr   string `mapstructure:"listen_addr"`

	Sync SyncConfig `mapstructure:"sync"`
}

// SyncConfig holds queue, scheduler and simulator settings.
type SyncConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	DrainDelay    time.Duration `mapstructure:"drain_delay"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	MaxQueueSize  int           `mapstructure:"max_queue_size"` // 0 = unbounded
	MinLatency    time.Duration `mapstructure:"min_latency"`
	MaxLatency    time.Duration `mapstructure:"max_latency"`
	ProbeAddr     string        `mapstructure:"probe_addr"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataDir:      filepath.Join(xdg.DataHome, "utilitybox"),
		StoreBackend: BackendSQLite,
		LogLevel:     "info",
		ListenAddr:   "localhost:8090",
		Sync: SyncConfig{
			Interval:      5 * time.Minute,
			DrainDelay:    1 * time.Second,
			MaxAttempts:   3,
			MinLatency:    500 * time.Millisecond,
			MaxLatency:    1500 * time.Millisecond,
			ProbeInterval: 30 * time.Second,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("data_dir", d.DataDir)
	v.SetDefault("store_backend", d.StoreBackend)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("listen_addr", d.ListenAddr)
	v.SetDefault("sync.interval", d.Sync.Interval)
	v.SetDefault("sync.drain_delay", d.Sync.DrainDelay)
	v.SetDefault("sync.max_attempts", d.Sync.MaxAttempts)
	v.SetDefault("sync.max_queue_size", d.Sync.MaxQueueSize)
	v.SetDefault("sync.min_latency", d.Sync.MinLatency)
	v.SetDefault("sync.max_latency", d.Sync.MaxLatency)
	v.SetDefault("sync.probe_addr", d.Sync.ProbeAddr)
	v.SetDefault("sync.probe_interval", d.Sync.ProbeInterval)
}

// Load reads configuration from path. An empty path searches the XDG config
// directory and the working directory for config.yaml; a missing file yields
// the defaults.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "utilitybox"))
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the settings for internal consistency.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendMemory, BackendSQLite, BackendBadger:
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}
	if c.StoreBackend != BackendMemory && c.DataDir == "" {
		return fmt.Errorf("data_dir is required for the %s backend", c.StoreBackend)
	}
	if c.Sync.Interval <= 0 {
		return fmt.Errorf("sync.interval must be positive")
	}
	if c.Sync.DrainDelay < 0 {
		return fmt.Errorf("sync.drain_delay must not be negative")
	}
	if c.Sync.MaxAttempts < 1 {
		return fmt.Errorf("sync.max_attempts must be at least 1")
	}
	if c.Sync.MaxQueueSize < 0 {
		return fmt.Errorf("sync.max_queue_size must not be negative")
	}
	if c.Sync.ProbeAddr != "" && c.Sync.ProbeInterval <= 0 {
		return fmt.Errorf("sync.probe_interval must be positive when sync.probe_addr is set")
	}
	if c.Sync.MinLatency < 0 || c.Sync.MaxLatency < c.Sync.MinLatency {
		return fmt.Errorf("sync latency range [%s, %s) is invalid", c.Sync.MinLatency, c.Sync.MaxLatency)
	}
	return nil
}
