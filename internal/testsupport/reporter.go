package testsupport

import (
	"context"
	"sync"

	"danmu/internal/queue"
	"danmu/internal/workflow"
)

// RecordingReporter keeps every progress update in memory.
type RecordingReporter struct {
	mu      sync.Mutex
	updates []workflow.Update
}

func (r *RecordingReporter) Report(_ context.Context, update workflow.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, update)
	return nil
}

// Updates returns a copy of the recorded updates.
func (r *RecordingReporter) Updates() []workflow.Update {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]workflow.Update(nil), r.updates...)
}

// Paused counts updates that reported the paused status.
func (r *RecordingReporter) Paused() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, u := range r.updates {
		if u.Status == queue.StatusPaused {
			n++
		}
	}
	return n
}

// Run invokes fn with a fresh RecordingReporter.
func Run(ctx context.Context, fn workflow.Func) (workflow.Outcome, *RecordingReporter) {
	r := &RecordingReporter{}
	return fn(ctx, r), r
}
