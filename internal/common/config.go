package common

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Service    ServiceConfig    `toml:"service"`
	Store      StoreConfig      `toml:"store"`
	Poller     PollerConfig     `toml:"poller"`
	Server     ServerConfig     `toml:"server"`
	Storage    StorageConfig    `toml:"storage"`
	History    HistoryConfig    `toml:"history"`
	Structures StructuresConfig `toml:"structures"`
	Logging    LoggingConfig    `toml:"logging"`
}

// ServiceConfig points at the remote detection service.
type ServiceConfig struct {
	BaseURL     string  `toml:"base_url" validate:"required,url"`
	APIPath     string  `toml:"api_path"`
	Timeout     string  `toml:"timeout" validate:"required"`   // e.g. "30s" - mandatory request timeout
	RateLimit   float64 `toml:"rate_limit" validate:"gte=0"`   // requests per second, 0 disables limiting
	DataLimitMB int     `toml:"data_limit_mb" validate:"gt=0"` // max encoded create request size
}

// StoreConfig locates the local job records.
type StoreConfig struct {
	Dir string `toml:"dir" validate:"required"` // one subdirectory per job id
}

// PollerConfig holds the background poller timers. Durations are Go duration strings.
type PollerConfig struct {
	RestartChecks   string `toml:"restart_checks"`
	ServerDown      string `toml:"server_down"`
	NoJobs          string `toml:"no_jobs"`
	BetweenJobs     string `toml:"between_jobs"`
	WaitStatus      string `toml:"wait_status"`
	RevalidateEvery int    `toml:"revalidate_every" validate:"gt=0"` // passes between forced re-fetches of completed jobs
}

type ServerConfig struct {
	Port           int      `toml:"port" validate:"gte=0,lte=65535"`
	Host           string   `toml:"host"`
	AllowedOrigins []string `toml:"allowed_origins"` // cross-origin pages allowed to call the API; empty is same-origin only
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

// HistoryConfig controls how long notification history is kept.
type HistoryConfig struct {
	Retention     string `toml:"retention"`      // e.g. "24h"
	PruneSchedule string `toml:"prune_schedule"` // cron spec, e.g. "@every 1h"
}

// StructuresConfig is the directory of named molecular structures served by the structure host.
type StructuresConfig struct {
	Dir string `toml:"dir"`
}

type LoggingConfig struct {
	Level  string   `toml:"level"`  // "debug", "info", "warn", "error"
	Output []string `toml:"output"` // "stdout", "file"
}

// NewDefaultConfig creates a configuration with default values
func NewDefaultConfig() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}

	return &Config{
		Service: ServiceConfig{
			BaseURL:     "http://kvfinder-web.cnpem.br",
			APIPath:     "/api",
			Timeout:     "30s",
			RateLimit:   5,
			DataLimitMB: 5,
		},
		Store: StoreConfig{
			Dir: filepath.Join(home, ".KVFinder-web"),
		},
		Poller: PollerConfig{
			RestartChecks:   "5s",
			ServerDown:      "60s",
			NoJobs:          "5s",
			BetweenJobs:     "2s",
			WaitStatus:      "5s",
			RevalidateEvery: 500,
		},
		Server: ServerConfig{
			Port: 8090,
			Host: "localhost",
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		History: HistoryConfig{
			Retention:     "24h", // jobs expire on the service after one day
			PruneSchedule: "@every 1h",
		},
		Structures: StructuresConfig{
			Dir: "./structures",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout"},
		},
	}
}

// LoadFromFiles loads configuration with priority: default -> file1 -> file2 -> ... -> .env -> env
// Later files override earlier files. CLI flags are applied afterwards by ApplyFlagOverrides.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	// .env never overrides variables already set in the process environment
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies CAVITAS_* environment variable overrides to config
func applyEnvOverrides(config *Config) {
	// Service configuration
	if v := os.Getenv("CAVITAS_SERVICE_URL"); v != "" {
		config.Service.BaseURL = v
	}
	if v := os.Getenv("CAVITAS_SERVICE_API_PATH"); v != "" {
		config.Service.APIPath = v
	}
	if v := os.Getenv("CAVITAS_SERVICE_TIMEOUT"); v != "" {
		config.Service.Timeout = v
	}
	if v := os.Getenv("CAVITAS_SERVICE_RATE_LIMIT"); v != "" {
		if r, err := strconv.ParseFloat(v, 64); err == nil {
			config.Service.RateLimit = r
		}
	}

	if v := os.Getenv("CAVITAS_STORE_DIR"); v != "" {
		config.Store.Dir = v
	}

	// Server configuration
	if port := os.Getenv("CAVITAS_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("CAVITAS_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if badgerPath := os.Getenv("CAVITAS_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if v := os.Getenv("CAVITAS_STRUCTURES_DIR"); v != "" {
		config.Structures.Dir = v
	}

	// Logging configuration
	if level := os.Getenv("CAVITAS_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("CAVITAS_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config
func ApplyFlagOverrides(config *Config, port int, host string, serviceURL string) {
	// Command-line flags have highest priority
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
	if serviceURL != "" {
		config.Service.BaseURL = serviceURL
	}
}

// Validate checks field constraints and that every duration and schedule parses.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	durations := map[string]string{
		"service.timeout":       c.Service.Timeout,
		"poller.restart_checks": c.Poller.RestartChecks,
		"poller.server_down":    c.Poller.ServerDown,
		"poller.no_jobs":        c.Poller.NoJobs,
		"poller.between_jobs":   c.Poller.BetweenJobs,
		"poller.wait_status":    c.Poller.WaitStatus,
		"history.retention":     c.History.Retention,
	}
	for key, value := range durations {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid configuration: %s: %w", key, err)
		}
	}

	if _, err := cron.ParseStandard(c.History.PruneSchedule); err != nil {
		return fmt.Errorf("invalid configuration: history.prune_schedule: %w", err)
	}

	return nil
}

// Duration parses a validated duration string, falling back to def when empty or malformed.
func Duration(value string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// ServiceTimeout is the mandatory per-request timeout for the detection service.
func (c *Config) ServiceTimeout() time.Duration {
	return Duration(c.Service.Timeout, 30*time.Second)
}

// DataLimitBytes is the largest create request the client will send.
func (c *Config) DataLimitBytes() int64 {
	return int64(c.Service.DataLimitMB) * 1024 * 1024
}
