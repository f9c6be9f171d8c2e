// Package workflow runs background jobs and owns their lifecycle.
//
// Callers describe a job with a Spec and hand it to Manager.Submit. The
// manager rejects the submission when another job with the same unique key is
// still pending, running or paused; otherwise it records a pending row and
// schedules the job on a bounded worker pool. A running job reports progress
// through its Reporter and ends by returning an Outcome built with Success or
// Failure. The manager persists the terminal transition, logs failures with
// hints, recovers panics and publishes job notifications.
//
// States move pending -> running -> (paused <-> running) -> success | failed.
// Paused is only entered while a job waits out a provider rate limit.
// Cancellation is cooperative: the job's context is cancelled and the job
// observes it at its next suspension point.
//
// On Start, jobs left active by a previous process are failed, and a
// heartbeat loop stamps running jobs so operators can spot stalls.
package workflow
