package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateGateway(); err != nil {
		return err
	}
	if err := c.validateRateLimit(); err != nil {
		return err
	}
	if err := c.validateTasks(); err != nil {
		return err
	}
	if err := c.validateProviders(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "sqlite":
		return nil
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("database.dsn is required when database.driver is postgres (or set DANMU_DATABASE_DSN)")
		}
		return nil
	default:
		return fmt.Errorf("database.driver: unsupported value %q (expected sqlite or postgres)", c.Database.Driver)
	}
}

func (c *Config) validateGateway() error {
	if c.Gateway.BaseURL == "" {
		return nil
	}
	parsed, err := url.Parse(c.Gateway.BaseURL)
	if err != nil {
		return fmt.Errorf("gateway.base_url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("gateway.base_url must use http or https, got %q", c.Gateway.BaseURL)
	}
	if parsed.Host == "" {
		return fmt.Errorf("gateway.base_url is missing a host: %q", c.Gateway.BaseURL)
	}
	return nil
}

func (c *Config) validateRateLimit() error {
	if c.RateLimit.DefaultLimit < 0 {
		return errors.New("rate_limit.default_limit must be >= 0 (0 disables the limit)")
	}
	for name, limit := range c.RateLimit.Providers {
		if limit < 0 {
			return fmt.Errorf("rate_limit.providers.%s must be >= 0", name)
		}
	}
	return nil
}

func (c *Config) validateTasks() error {
	if c.Tasks.MaxConcurrent > 32 {
		return errors.New("tasks.max_concurrent must be <= 32")
	}
	if c.Tasks.DeleteRetryAttempts > 10 {
		return errors.New("tasks.delete_retry_attempts must be <= 10")
	}
	return nil
}

func (c *Config) validateProviders() error {
	for name, p := range c.Providers {
		if p.DisplayOrder < 0 {
			return fmt.Errorf("providers.%s.display_order must be >= 0", name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
