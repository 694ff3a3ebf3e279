package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/hochfrequenz/scenario-sim/internal/autoplay"
	"github.com/hochfrequenz/scenario-sim/internal/domain"
	"github.com/hochfrequenz/scenario-sim/internal/timeline"
)

// Storage backends
const (
	StorageSQLite = "sqlite"
	StorageMemory = "memory"
)

// Config holds all application configuration
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Simulation SimulationConfig `toml:"simulation"`
	Autoplay   AutoplayConfig   `toml:"autoplay"`
	Web        WebConfig        `toml:"web"`
	Log        LogConfig        `toml:"log"`
}

// GeneralConfig holds general settings
type GeneralConfig struct {
	DatabasePath string `toml:"database_path"`
	Storage      string `toml:"storage"`
}

// SimulationConfig holds clock and content settings
type SimulationConfig struct {
	StartDate    string `toml:"start_date"`
	Rollback     string `toml:"rollback"`
	CatalogPath  string `toml:"catalog_path"`
	NarrativeDir string `toml:"narrative_dir"`
	SeedDays     int    `toml:"seed_days"`
}

// AutoplayConfig holds the real-time driver settings
type AutoplayConfig struct {
	Enabled     bool   `toml:"enabled"`
	Cron        string `toml:"cron"`
	DaysPerStep int    `toml:"days_per_step"`
}

// WebConfig holds web UI settings
type WebConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		General: GeneralConfig{
			DatabasePath: filepath.Join(home, ".scenario-sim", "sim.db"),
			Storage:      StorageSQLite,
		},
		Simulation: SimulationConfig{
			StartDate: "2025-01-01",
			Rollback:  string(timeline.RollbackPurge),
			SeedDays:  90,
		},
		Autoplay: AutoplayConfig{
			Enabled:     false,
			Cron:        "@every 1m",
			DaysPerStep: 1,
		},
		Web: WebConfig{
			Port: 8080,
			Host: "127.0.0.1",
		},
		Log: LogConfig{
			Format: "text",
			Level:  "info",
		},
	}
}

// Load reads configuration from a TOML file, falling back to defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	// Expand paths
	cfg.General.DatabasePath = ExpandPath(cfg.General.DatabasePath)
	cfg.Simulation.CatalogPath = ExpandPath(cfg.Simulation.CatalogPath)
	cfg.Simulation.NarrativeDir = ExpandPath(cfg.Simulation.NarrativeDir)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks values that would otherwise fail at startup
func (c *Config) Validate() error {
	switch c.General.Storage {
	case StorageSQLite, StorageMemory:
	default:
		return fmt.Errorf("general.storage must be %q or %q, got %q", StorageSQLite, StorageMemory, c.General.Storage)
	}
	if c.General.Storage == StorageSQLite && c.General.DatabasePath == "" {
		return fmt.Errorf("general.database_path is required for sqlite storage")
	}
	if _, err := c.Start(); err != nil {
		return err
	}
	if _, err := timeline.ParseRollbackPolicy(c.Simulation.Rollback); err != nil {
		return fmt.Errorf("simulation.rollback: %w", err)
	}
	if c.Autoplay.Enabled {
		ap := c.AutoplayRunner()
		if err := ap.Validate(); err != nil {
			return err
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	return nil
}

// Start returns the configured start date, or nil to resume from the store's
// active branch with today as the fallback
func (c *Config) Start() (*domain.Date, error) {
	if c.Simulation.StartDate == "" {
		return nil, nil
	}
	d, err := domain.ParseDate(c.Simulation.StartDate)
	if err != nil {
		return nil, fmt.Errorf("simulation.start_date: %w", err)
	}
	return &d, nil
}

// RollbackPolicy returns the parsed rollback policy
func (c *Config) RollbackPolicy() timeline.RollbackPolicy {
	p, _ := timeline.ParseRollbackPolicy(c.Simulation.Rollback)
	return p
}

// AutoplayRunner returns the runner settings
func (c *Config) AutoplayRunner() autoplay.Config {
	return autoplay.Config{Cron: c.Autoplay.Cron, DaysPerStep: c.Autoplay.DaysPerStep}
}

// Addr returns the web listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}

// ExpandPath expands ~ to the user's home directory
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// DefaultConfigPath returns the default config file location
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "scenario-sim", "config.toml")
}
