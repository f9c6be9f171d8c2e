// Package queue persists background jobs and their lifecycle history.
//
// The Store owns the jobs table: creation on submission, progress updates
// written by a running job's reporter, terminal transitions, heartbeat
// stamping, recovery of rows orphaned by a previous process, and pruning of
// old history. Semantics such as uniqueness and outcome classification live in
// internal/workflow; this package only records what the manager decides.
//
// Treat Status as the single source of truth for job states; when you add a
// state, update allStatuses and the active set together.
package queue
