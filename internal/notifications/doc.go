// Package notifications delivers job events via pluggable notifiers.
//
// The default implementation publishes to ntfy using the topic configured in
// config.toml and gracefully degrades to a no-op when notifications are
// disabled. Events cover terminal job transitions plus a test event for the
// CLI so callers emit consistent messages without duplicating HTTP glue.
//
// The workflow manager depends only on the Service interface.
package notifications
