package api

import (
	"time"

	"danmu/internal/queue"
	"danmu/internal/workflow"
)

// FromJob converts a queue record to its API representation.
func FromJob(job *queue.Job) Job {
	if job == nil {
		return Job{}
	}
	message := job.Message
	if message == "" && job.Status.IsTerminal() {
		message = job.Result
	}
	return Job{
		ID:        job.ID,
		Kind:      job.Kind,
		Title:     job.Title,
		UniqueKey: job.UniqueKey,
		Status:    string(job.Status),
		Progress: JobProgress{
			Percent: job.Progress,
			Message: message,
		},
		Result:        job.Result,
		Error:         job.Error,
		CorrelationID: job.CorrelationID,
		CreatedAt:     formatTime(job.CreatedAt),
		UpdatedAt:     formatTime(job.UpdatedAt),
		StartedAt:     formatOptionalTime(job.StartedAt),
		FinishedAt:    formatOptionalTime(job.FinishedAt),
		LastHeartbeat: formatOptionalTime(job.LastHeartbeat),
	}
}

// FromJobs converts a slice of queue records into API DTOs.
func FromJobs(jobs []queue.Job) []Job {
	out := make([]Job, 0, len(jobs))
	for i := range jobs {
		out = append(out, FromJob(&jobs[i]))
	}
	return out
}

// FromStatusSummary converts the workflow snapshot. Every known status is
// present in QueueStats, zero when no job has it.
func FromStatusSummary(summary workflow.StatusSummary) WorkflowStatus {
	stats := make(map[string]int, len(queue.AllStatuses()))
	for _, status := range queue.AllStatuses() {
		stats[string(status)] = summary.QueueCounts.Counts[status]
	}
	active := summary.ActiveJobs
	if active == nil {
		active = []int64{}
	}
	return WorkflowStatus{
		Running:    summary.Running,
		Workers:    summary.Workers,
		ActiveJobs: active,
		QueueStats: stats,
	}
}

// ParseTime reads a timestamp produced by this package.
func ParseTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(dateTimeFormat, value)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}

func formatOptionalTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return formatTime(*t)
}
