// Package config loads, normalizes, and validates danmu configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads optional .env files, and honours
// environment fallbacks such as DANMU_DATABASE_DSN. The Config type
// centralizes every knob the daemon and CLI need, so data directories, the
// catalog database, gateway credentials and rate budgets are discovered in one
// pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
