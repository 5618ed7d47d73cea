package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// Config holds all mfu configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Tracker  TrackerConfig  `toml:"tracker"`
	Log      LogConfig      `toml:"log"`
}

type ServerConfig struct {
	Bind string `toml:"bind" envconfig:"BIND"`
	Port int    `toml:"port" envconfig:"PORT"`
}

type DatabaseConfig struct {
	Path string `toml:"path" envconfig:"DB"`
}

type TrackerConfig struct {
	MaxResults int `toml:"max_results" envconfig:"MAX_RESULTS"`
	// MaintenanceInterval is how often the server runs decay and prune on
	// its own, e.g. "24h". Zero disables the timer.
	MaintenanceInterval Duration `toml:"maintenance_interval" envconfig:"MAINTENANCE_INTERVAL"`
}

type LogConfig struct {
	Level string `toml:"level" envconfig:"LOG_LEVEL"` // "debug", "info", "warn", "error"
}

// Duration is a time.Duration that reads as a string ("24h") from TOML and
// the environment.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 37778,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Tracker: TrackerConfig{
			MaxResults:          10,
			MaintenanceInterval: Duration{24 * time.Hour},
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// DefaultPath returns the default config file path: ~/.mfu/config.toml
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".mfu", "config.toml"), nil
}

// Load returns Default() overlaid with the TOML file at path and then with
// MFU_* environment variables. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides cfg from MFU_* environment variables (MFU_PORT,
// MFU_DB, MFU_LOG_LEVEL, ...).
func ApplyEnv(cfg *Config) error {
	for _, section := range []any{&cfg.Server, &cfg.Database, &cfg.Tracker, &cfg.Log} {
		if err := envconfig.Process("mfu", section); err != nil {
			return fmt.Errorf("env config: %w", err)
		}
	}
	return nil
}

// Validate checks ranges that would make the tracker misbehave.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Tracker.MaxResults <= 0 {
		return fmt.Errorf("invalid tracker max_results %d", c.Tracker.MaxResults)
	}
	if c.Tracker.MaintenanceInterval.Duration < 0 {
		return fmt.Errorf("invalid tracker maintenance_interval %s", c.Tracker.MaintenanceInterval)
	}
	return nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}
