package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir    string `toml:"data_dir"`
	DanmakuDir string `toml:"danmaku_dir"`
	ImageDir   string `toml:"image_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	APIToken   string `toml:"api_token"`
}

// Database selects the catalog backend.
type Database struct {
	Driver string `toml:"driver"`
	DSN    string `toml:"dsn"`
}

// Gateway contains settings for the scraper/metadata gateway that backs the
// HTTP provider adapters.
type Gateway struct {
	BaseURL           string  `toml:"base_url"`
	APIKey            string  `toml:"api_key"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	UserAgent         string  `toml:"user_agent"`
}

// RateLimit configures the per-provider fixed-window call budget.
type RateLimit struct {
	WindowSeconds int            `toml:"window_seconds"`
	DefaultLimit  int            `toml:"default_limit"`
	Providers     map[string]int `toml:"providers"`
}

// Tasks contains job runner tuning.
type Tasks struct {
	MaxConcurrent            int `toml:"max_concurrent"`
	BulkPacingMS             int `toml:"bulk_pacing_ms"`
	DeleteRetryAttempts      int `toml:"delete_retry_attempts"`
	DeleteRetryBaseMS        int `toml:"delete_retry_base_ms"`
	HeartbeatInterval        int `toml:"heartbeat_interval"`
	HistoryRetentionDays     int `toml:"history_retention_days"`
	MaintenanceIntervalHours int `toml:"maintenance_interval_hours"`
}

// Provider toggles a scraper and sets its rank in multi-provider search.
type Provider struct {
	Enabled      bool `toml:"enabled"`
	DisplayOrder int  `toml:"display_order"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	OnSuccess      bool   `toml:"on_success"`
	OnFailure      bool   `toml:"on_failure"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for danmu.
//
// Configuration sections by subsystem:
//   - Paths: data, track-file, poster and log directories plus the API bind address
//   - Database: catalog driver (sqlite or postgres) and DSN
//   - Gateway: scraper/metadata gateway connection
//   - RateLimit: per-provider call budgets
//   - Tasks: worker pool, pacing, delete retries and history retention
//   - Providers: enabled scrapers and their display order
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths               `toml:"paths"`
	Database      Database            `toml:"database"`
	Gateway       Gateway             `toml:"gateway"`
	RateLimit     RateLimit           `toml:"rate_limit"`
	Tasks         Tasks               `toml:"tasks"`
	Providers     map[string]Provider `toml:"providers"`
	Notifications Notifications       `toml:"notifications"`
	Logging       Logging             `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}
	loadDotEnv(resolvedPath)

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv loads .env files from the working directory and next to the
// config file. Existing environment variables always win.
func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append(candidates, filepath.Join(filepath.Dir(configPath), ".env"))
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("danmu.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.DanmakuDir, c.Paths.ImageDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// LockPath is the single-instance lock file held by the daemon.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.DataDir, "danmud.lock")
}

// PIDPath is where a running daemon records its process id.
func (c *Config) PIDPath() string {
	return filepath.Join(c.Paths.DataDir, "danmud.pid")
}

// LogPath is the daemon log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.Paths.LogDir, "danmud.log")
}

// RateWindow returns the rate-limit window as a duration.
func (c *Config) RateWindow() time.Duration {
	return time.Duration(c.RateLimit.WindowSeconds) * time.Second
}

// BulkPacing returns the delay inserted between items of bulk jobs.
func (c *Config) BulkPacing() time.Duration {
	return time.Duration(c.Tasks.BulkPacingMS) * time.Millisecond
}

// DeleteRetryBase returns the first backoff used when a deletion hits lock contention.
func (c *Config) DeleteRetryBase() time.Duration {
	return time.Duration(c.Tasks.DeleteRetryBaseMS) * time.Millisecond
}

// GatewayTimeout returns the per-request timeout for gateway calls.
func (c *Config) GatewayTimeout() time.Duration {
	return time.Duration(c.Gateway.TimeoutSeconds) * time.Second
}

// EnabledProviders returns enabled provider names sorted by display order, then name.
func (c *Config) EnabledProviders() []string {
	names := make([]string, 0, len(c.Providers))
	for name, p := range c.Providers {
		if p.Enabled {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		oi, oj := c.Providers[names[i]].DisplayOrder, c.Providers[names[j]].DisplayOrder
		if oi != oj {
			return oi < oj
		}
		return names[i] < names[j]
	})
	return names
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
