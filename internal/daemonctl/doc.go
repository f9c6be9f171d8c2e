// Package daemonctl starts and stops a background danmu daemon on behalf of
// the CLI. Liveness is judged by the daemon's HTTP status endpoint; the pid
// file written by the daemon is the fallback when a forced kill is needed.
package daemonctl
