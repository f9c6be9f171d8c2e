package workflow

import (
	"context"
	"time"

	"danmu/internal/queue"
)

// StatusSummary describes the manager state and queue counts.
type StatusSummary struct {
	Running     bool
	Workers     int
	ActiveJobs  []int64
	QueueCounts queue.Summary
}

// Status returns a snapshot of the manager and its queue.
func (m *Manager) Status(ctx context.Context) (StatusSummary, error) {
	m.mu.RLock()
	summary := StatusSummary{
		Running:    m.running,
		Workers:    cap(m.slots),
		ActiveJobs: make([]int64, 0, len(m.active)),
	}
	for id := range m.active {
		summary.ActiveJobs = append(summary.ActiveJobs, id)
	}
	m.mu.RUnlock()

	counts, err := m.store.Summary(ctx)
	if err != nil {
		return summary, err
	}
	summary.QueueCounts = counts
	return summary, nil
}

// Await polls the job until it reaches a terminal status or ctx ends.
func (m *Manager) Await(ctx context.Context, id int64) (*queue.Job, error) {
	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		job, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status.IsTerminal() && !m.isActive(id) {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (m *Manager) isActive(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.active[id]
	return ok
}
