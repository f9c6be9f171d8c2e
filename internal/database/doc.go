// Package database opens the catalog connection and hides dialect differences
// between the embedded SQLite default and an optional PostgreSQL server.
//
// Open applies the per-dialect migrations embedded under migrations/ and
// returns a DB whose query helpers rewrite "?" placeholders for the active
// dialect. Stores in internal/catalog and internal/queue share one DB.
//
// WithRelaxedIntegrity runs a transaction with foreign-key enforcement
// suspended on a dedicated connection and always restores enforcement before
// the connection is returned to the pool. IsLockContention recognises busy and
// deadlock failures from either driver so callers can retry.
package database
