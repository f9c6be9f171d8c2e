// Package ratelimit tracks per-provider call budgets shared by every running
// job.
//
// The Limiter uses a fixed window per provider: once a provider has consumed
// its limit inside the current window, Check fails with an ExceededError
// carrying the time left until the window resets. Check and Increment are
// separate so callers only spend budget on calls that actually returned data.
//
// The package also hosts the context-aware sleep and transient-error helpers
// used by jobs that back off and retry.
package ratelimit
