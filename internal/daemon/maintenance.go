package daemon

import (
	"context"
	"errors"
	"time"

	"danmu/internal/config"
	"danmu/internal/logging"
	"danmu/internal/tasks"
	"danmu/internal/workflow"
)

func maintenanceInterval(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Tasks.MaintenanceIntervalHours) * time.Hour
}

// runMaintenance queues a database maintenance job every interval until ctx
// ends. A non-positive interval disables the schedule.
func (d *Daemon) runMaintenance(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.submitMaintenance(ctx)
		}
	}
}

func (d *Daemon) submitMaintenance(ctx context.Context) {
	job, err := d.tasks.Submit(ctx, tasks.KindDatabaseMaintenance, nil)
	switch {
	case err == nil:
		d.logger.Info("scheduled maintenance queued",
			logging.String(logging.FieldEventType, "maintenance_scheduled"),
			logging.Int64(logging.FieldJobID, job.ID),
		)
	case errors.Is(err, workflow.ErrDuplicateJob):
		d.logger.Debug("maintenance already queued", logging.Error(err))
	case ctx.Err() != nil:
		// shutting down
	default:
		logging.WarnWithContext(d.logger, "scheduled maintenance not queued", "maintenance_schedule_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "job history is not pruned until the next tick"),
		)
	}
}
