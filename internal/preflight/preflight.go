package preflight

import (
	"context"
	"time"

	"danmu/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// Targets are the live services RunAll pings. Nil targets are reported as
// not configured.
type Targets struct {
	Database Pinger
	Gateway  Pinger
}

// RunAll executes every applicable preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config, targets Targets) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Data directory", cfg.Paths.DataDir),
		CheckDirectoryAccess("Danmaku directory", cfg.Paths.DanmakuDir),
	}
	// Poster caching is optional.
	if cfg.Paths.ImageDir != "" {
		results = append(results, CheckDirectoryAccess("Image directory", cfg.Paths.ImageDir))
	}
	results = append(results,
		CheckReachable(ctx, "Database", targets.Database, 2*time.Second),
		CheckReachable(ctx, "Gateway", targets.Gateway, gatewayCheckTimeout(cfg)),
	)
	return results
}

// gatewayCheckTimeout keeps a status request well inside the API client's deadline.
func gatewayCheckTimeout(cfg *config.Config) time.Duration {
	const ceiling = 5 * time.Second
	if t := cfg.GatewayTimeout(); t > 0 && t < ceiling {
		return t
	}
	return ceiling
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed {
			failed = append(failed, r)
		}
	}
	return failed
}
