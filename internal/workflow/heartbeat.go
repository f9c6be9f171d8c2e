package workflow

import (
	"context"
	"log/slog"
	"time"

	"danmu/internal/logging"
	"danmu/internal/queue"
)

// HeartbeatMonitor stamps running jobs so operators can spot stalled work.
type HeartbeatMonitor struct {
	store    *queue.Store
	logger   *slog.Logger
	interval time.Duration
}

// NewHeartbeatMonitor constructs a monitor with the given stamp interval.
func NewHeartbeatMonitor(store *queue.Store, logger *slog.Logger, interval time.Duration) *HeartbeatMonitor {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &HeartbeatMonitor{store: store, logger: logger, interval: interval}
}

// Run blocks until ctx is cancelled, stamping the ids returned by active on
// every tick.
func (h *HeartbeatMonitor) Run(ctx context.Context, active func() []int64) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids := active()
			if len(ids) == 0 {
				continue
			}
			if err := h.store.Heartbeat(ctx, ids...); err != nil && ctx.Err() == nil {
				logging.WarnWithContext(h.logger, "heartbeat update failed", "heartbeat_update_failed",
					logging.Error(err),
					logging.Int("jobs", len(ids)),
					logging.String(logging.FieldErrorHint, "check catalog database access"),
					logging.String(logging.FieldImpact, "job heartbeats may look stale"),
				)
			}
		}
	}
}
