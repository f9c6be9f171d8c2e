// Package api defines the job-control HTTP surface and its wire-format types.
//
// # Key Types
//
// Job: transport representation of a queued, running or finished job with
// its progress, result and timestamps.
//
// WorkflowStatus: manager running state, worker count, active jobs and queue
// counts.
//
// DaemonStatus: aggregated runtime information (pid, lock path, database
// dialect, workflow state).
//
// SubmitRequest: the POST /api/jobs body, a job kind plus its raw JSON
// parameters.
//
// # Routes
//
// NewRouter builds a chi router mounting GET /api/status, GET /api/jobs,
// GET /api/jobs/{id}, DELETE /api/jobs/{id}, POST /api/jobs and
// POST /api/notifications/test. Every request gets an X-Request-ID (generated
// when the caller did not send one) that is also placed on the request
// context. A configured token enables bearer authentication.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds in
// UTC. Errors are returned as {"error": ..., "hint": ...}; duplicate
// submissions answer 409 and carry the job that holds the unique key.
package api
