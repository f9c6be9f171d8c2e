package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeDatabase()
	c.normalizeGateway()
	c.normalizeRateLimit()
	c.normalizeTasks()
	c.normalizeProviders()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.DanmakuDir) == "" {
		c.Paths.DanmakuDir = filepath.Join(c.Paths.DataDir, "danmaku")
	}
	if c.Paths.DanmakuDir, err = expandPath(c.Paths.DanmakuDir); err != nil {
		return fmt.Errorf("paths.danmaku_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.ImageDir) == "" {
		c.Paths.ImageDir = filepath.Join(c.Paths.DataDir, "images")
	}
	if c.Paths.ImageDir, err = expandPath(c.Paths.ImageDir); err != nil {
		return fmt.Errorf("paths.image_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if value, ok := os.LookupEnv("DANMU_API_TOKEN"); ok && strings.TrimSpace(c.Paths.APIToken) == "" {
		c.Paths.APIToken = strings.TrimSpace(value)
	}
	return nil
}

func (c *Config) normalizeDatabase() {
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
	switch c.Database.Driver {
	case "", "sqlite3":
		c.Database.Driver = defaultDatabaseDriver
	case "postgresql", "pgx":
		c.Database.Driver = "postgres"
	}
	if value, ok := os.LookupEnv("DANMU_DATABASE_DSN"); ok && strings.TrimSpace(c.Database.DSN) == "" {
		c.Database.DSN = strings.TrimSpace(value)
	}
	c.Database.DSN = strings.TrimSpace(c.Database.DSN)
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = filepath.Join(c.Paths.DataDir, "danmu.db")
	}
}

func (c *Config) normalizeGateway() {
	c.Gateway.BaseURL = strings.TrimRight(strings.TrimSpace(c.Gateway.BaseURL), "/")
	if c.Gateway.BaseURL == "" {
		if value, ok := os.LookupEnv("DANMU_GATEWAY_URL"); ok {
			c.Gateway.BaseURL = strings.TrimRight(strings.TrimSpace(value), "/")
		}
	}
	if strings.TrimSpace(c.Gateway.APIKey) == "" {
		if value, ok := os.LookupEnv("DANMU_GATEWAY_API_KEY"); ok {
			c.Gateway.APIKey = strings.TrimSpace(value)
		}
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		c.Gateway.TimeoutSeconds = defaultGatewayTimeoutSeconds
	}
	if c.Gateway.RequestsPerSecond <= 0 {
		c.Gateway.RequestsPerSecond = defaultGatewayRequestsPerSecond
	}
	if strings.TrimSpace(c.Gateway.UserAgent) == "" {
		c.Gateway.UserAgent = defaultGatewayUserAgent
	}
}

func (c *Config) normalizeRateLimit() {
	if c.RateLimit.WindowSeconds <= 0 {
		c.RateLimit.WindowSeconds = defaultRateWindowSeconds
	}
	normalized := make(map[string]int, len(c.RateLimit.Providers))
	for name, limit := range c.RateLimit.Providers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		normalized[key] = limit
	}
	c.RateLimit.Providers = normalized
}

func (c *Config) normalizeTasks() {
	if c.Tasks.MaxConcurrent <= 0 {
		c.Tasks.MaxConcurrent = defaultMaxConcurrent
	}
	if c.Tasks.BulkPacingMS < 0 {
		c.Tasks.BulkPacingMS = 0
	}
	if c.Tasks.DeleteRetryAttempts <= 0 {
		c.Tasks.DeleteRetryAttempts = defaultDeleteRetryAttempts
	}
	if c.Tasks.DeleteRetryBaseMS <= 0 {
		c.Tasks.DeleteRetryBaseMS = defaultDeleteRetryBaseMS
	}
	if c.Tasks.HeartbeatInterval <= 0 {
		c.Tasks.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Tasks.HistoryRetentionDays <= 0 {
		c.Tasks.HistoryRetentionDays = defaultHistoryRetentionDays
	}
	if c.Tasks.MaintenanceIntervalHours < 0 {
		c.Tasks.MaintenanceIntervalHours = 0
	}
}

func (c *Config) normalizeProviders() {
	normalized := make(map[string]Provider, len(c.Providers))
	for name, p := range c.Providers {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			continue
		}
		normalized[key] = p
	}
	c.Providers = normalized
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("DANMU_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
