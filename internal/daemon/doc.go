// Package daemon coordinates the long-running danmu process.
//
// It wires configuration, the job store, the workflow manager and the task
// service into a single lifecycle with flock-based locking to prevent multiple
// instances. The daemon serves the job-control HTTP API, schedules periodic
// database maintenance and answers notification tests.
//
// Keep orchestration logic here: job bodies live in the tasks and importer
// packages while the daemon focuses on startup, shutdown and high level
// coordination.
package daemon
