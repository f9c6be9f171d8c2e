package workflow

import (
	"context"

	"danmu/internal/queue"
)

type reporter struct {
	store *queue.Store
	jobID int64
}

// Report persists progress even after the job context is cancelled so the
// last message before shutdown is kept.
func (r *reporter) Report(ctx context.Context, update Update) error {
	status := queue.StatusRunning
	if update.Status == queue.StatusPaused {
		status = queue.StatusPaused
	}
	return r.store.UpdateProgress(context.WithoutCancel(ctx), r.jobID, queue.Progress{
		Percent: update.Percent,
		Message: update.Message,
		Status:  status,
	})
}
