// Package preflight provides readiness checks for the filesystem paths and
// external services danmu depends on.
//
// These checks run in two contexts:
//   - The daemon runs them once at startup and logs every failure as a
//     warning so a misconfigured directory or an unreachable gateway shows up
//     before the first import job fails.
//   - GET /api/status (and therefore "danmu status") runs them on demand and
//     reports each result next to the queue counters.
//
// Checks never return errors; a failed check is a Result with Passed=false
// and a human-readable Detail.
package preflight
