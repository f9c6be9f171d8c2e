package workflow

import (
	"context"
	"errors"
	"time"

	"danmu/internal/logging"
	"danmu/internal/notifications"
	"danmu/internal/queue"
	"danmu/internal/services"
)

// finish records the terminal status and releases the job's unique key.
func (m *Manager) finish(ctx context.Context, job *queue.Job, outcome Outcome) {
	logger := logging.WithContext(ctx, m.logger)
	persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	status := queue.StatusFailed
	message := outcome.Message()
	errMsg := message
	if outcome.Succeeded() {
		status = queue.StatusSuccess
		errMsg = ""
	}

	if err := m.store.Finish(persistCtx, job.ID, status, message, errMsg); err != nil {
		logging.ErrorWithContext(logger, "failed to persist job result", "job_finish_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
		)
	}

	m.mu.Lock()
	if entry := m.active[job.ID]; entry != nil {
		entry.cancel()
		delete(m.active, job.ID)
	}
	m.mu.Unlock()

	payload := notifications.Payload{
		"title": job.Title,
		"kind":  job.Kind,
		"jobID": job.ID,
	}
	event := notifications.EventJobSucceeded
	if outcome.Succeeded() {
		payload["message"] = message
		logger.Info("job succeeded",
			logging.String("result", message),
			logging.String(logging.FieldEventType, "job_succeeded"),
		)
	} else {
		event = notifications.EventJobFailed
		payload["error"] = message
		err := outcome.Err()
		if errors.Is(err, ErrCancelled) || errors.Is(err, errShutdown) {
			logger.Info("job cancelled",
				logging.String("reason", message),
				logging.String(logging.FieldEventType, "job_cancelled"),
			)
		} else {
			logging.ErrorWithContext(logger, "job failed", "job_failed",
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
			)
		}
	}
	if err := m.notifier.Publish(persistCtx, event, payload); err != nil {
		logging.WarnWithContext(logger, "job notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ntfy topic configuration"),
			logging.String(logging.FieldImpact, "job result was recorded but not pushed"),
		)
	}
}
