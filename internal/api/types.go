package api

import "encoding/json"

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Job describes a job in a transport-friendly format.
type Job struct {
	ID            int64       `json:"id"`
	Kind          string      `json:"kind"`
	Title         string      `json:"title"`
	UniqueKey     string      `json:"uniqueKey,omitempty"`
	Status        string      `json:"status"`
	Progress      JobProgress `json:"progress"`
	Result        string      `json:"result,omitempty"`
	Error         string      `json:"error,omitempty"`
	CorrelationID string      `json:"correlationId,omitempty"`
	CreatedAt     string      `json:"createdAt,omitempty"`
	UpdatedAt     string      `json:"updatedAt,omitempty"`
	StartedAt     string      `json:"startedAt,omitempty"`
	FinishedAt    string      `json:"finishedAt,omitempty"`
	LastHeartbeat string      `json:"lastHeartbeat,omitempty"`
}

// JobProgress captures the latest progress report of a job.
type JobProgress struct {
	Percent float64 `json:"percent"`
	Message string  `json:"message"`
}

// WorkflowStatus summarizes workflow execution state.
type WorkflowStatus struct {
	Running    bool           `json:"running"`
	Workers    int            `json:"workers"`
	ActiveJobs []int64        `json:"activeJobs"`
	QueueStats map[string]int `json:"queueStats"`
}

// DaemonStatus aggregates daemon runtime information for API consumers.
type DaemonStatus struct {
	Running      bool           `json:"running"`
	PID          int            `json:"pid"`
	LockFilePath string         `json:"lockFilePath"`
	Database     string         `json:"database"`
	Providers    []string       `json:"providers"`
	Workflow     WorkflowStatus `json:"workflow"`
	Checks       []Check        `json:"checks"`
}

// Check is the outcome of one readiness check.
type Check struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// SubmitRequest is the body of POST /api/jobs.
type SubmitRequest struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// JobResponse wraps a single job.
type JobResponse struct {
	Job Job `json:"job"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
	Job   *Job   `json:"job,omitempty"`
}

// NotificationResponse reports the outcome of a test notification.
type NotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
