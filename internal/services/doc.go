// Package services defines shared error markers and context helpers consumed
// by the job runner, the import pipeline and the HTTP adapters.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, job kinds, and correlation
//     identifiers for logging and tracing.
//   - Structured error markers plus the Wrap helper so job failures carry a
//     consistent component/operation trail and an operator hint.
//
// Use these helpers when wiring new job logic so operational behaviour (error
// handling, observability, retries) stays uniform across the daemon.
package services
