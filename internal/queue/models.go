package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a job.
type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
)

// InterruptedReason is recorded on jobs left unfinished by a previous process.
const InterruptedReason = "interrupted by daemon restart"

var allStatuses = []Status{
	StatusPending,
	StatusRunning,
	StatusPaused,
	StatusSuccess,
	StatusFailed,
}

var activeStatuses = []Status{StatusPending, StatusRunning, StatusPaused}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParseStatus normalizes a user supplied status string.
func ParseStatus(value string) (Status, bool) {
	candidate := Status(strings.ToLower(strings.TrimSpace(value)))
	for _, status := range allStatuses {
		if status == candidate {
			return status, true
		}
	}
	return "", false
}

// IsTerminal reports whether no further transitions follow.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusFailed
}

// IsActive reports whether a job in this status blocks its unique key.
func (s Status) IsActive() bool {
	return !s.IsTerminal() && s != ""
}

// Job is one unit of orchestrated background work.
type Job struct {
	ID            int64      `json:"id"`
	UniqueKey     string     `json:"unique_key,omitempty"`
	Kind          string     `json:"kind"`
	Title         string     `json:"title"`
	Status        Status     `json:"status"`
	Progress      float64    `json:"progress"`
	Message       string     `json:"message,omitempty"`
	Result        string     `json:"result,omitempty"`
	Error         string     `json:"error,omitempty"`
	CorrelationID string     `json:"correlation_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	LastHeartbeat *time.Time `json:"last_heartbeat,omitempty"`
}

// NewJob describes a job to insert.
type NewJob struct {
	UniqueKey     string
	Kind          string
	Title         string
	CorrelationID string
}

// Progress is a reporter update persisted on a running job.
type Progress struct {
	Percent float64
	Message string
	Status  Status
}

// Filter narrows List results.
type Filter struct {
	Statuses []Status
	Kind     string
	Limit    int
}

// Summary counts jobs by status.
type Summary struct {
	Total   int            `json:"total"`
	Counts  map[Status]int `json:"counts"`
	Active  int            `json:"active"`
	Failed  int            `json:"failed"`
	Success int            `json:"success"`
}
