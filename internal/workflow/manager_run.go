package workflow

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/google/uuid"

	"danmu/internal/logging"
	"danmu/internal/queue"
	"danmu/internal/services"
)

// Start recovers jobs orphaned by a previous process and begins accepting
// work.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	m.mu.Unlock()

	recovered, err := m.store.FailInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recover interrupted jobs: %w", err)
	}
	if recovered > 0 {
		logging.WarnWithContext(m.logger, "failed jobs left over from a previous run", "jobs_recovered",
			logging.Int64("count", recovered),
			logging.String(logging.FieldErrorHint, "resubmit the affected jobs"),
			logging.String(logging.FieldImpact, "interrupted jobs were marked failed"),
		)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	runCtx, cancel := context.WithCancel(ctx)
	m.baseCtx = runCtx
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.heartbeat.Run(runCtx, m.runningJobIDs)
	}()
	m.logger.Info("workflow manager started", logging.Int("workers", cap(m.slots)))
	return nil
}

// Stop cancels every active job and waits for workers to exit.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.logger.Info("workflow manager stopped")
}

// Submit records a pending job and schedules it. A submission whose unique key
// is held by an active job returns a *DuplicateJobError.
func (m *Manager) Submit(ctx context.Context, spec Spec) (*queue.Job, error) {
	if spec.Run == nil {
		return nil, services.Wrap(services.ErrValidation, "workflow", "submit", "job has no body", nil)
	}
	m.mu.RLock()
	running, baseCtx := m.running, m.baseCtx
	m.mu.RUnlock()
	if !running {
		return nil, ErrNotRunning
	}

	m.submitMu.Lock()
	job, existing, err := m.store.CreateUnique(ctx, queue.NewJob{
		UniqueKey:     strings.TrimSpace(spec.UniqueKey),
		Kind:          spec.Kind,
		Title:         spec.Title,
		CorrelationID: uuid.NewString(),
	})
	if err != nil {
		m.submitMu.Unlock()
		return nil, err
	}
	if existing != nil {
		m.submitMu.Unlock()
		return existing, &DuplicateJobError{UniqueKey: existing.UniqueKey, ExistingID: existing.ID}
	}

	jobCtx, cancel := context.WithCancel(baseCtx)
	jobCtx = services.WithJobID(jobCtx, job.ID)
	jobCtx = services.WithJobKind(jobCtx, job.Kind)
	jobCtx = services.WithRequestID(jobCtx, job.CorrelationID)

	m.mu.Lock()
	if !m.running {
		// Stop won the race after the row was created.
		m.mu.Unlock()
		m.submitMu.Unlock()
		cancel()
		if err := m.store.Finish(context.WithoutCancel(ctx), job.ID, queue.StatusFailed, "", "workflow stopped before the job started"); err != nil {
			m.logger.Debug("failed to close orphaned submission", logging.Int64(logging.FieldJobID, job.ID), logging.Error(err))
		}
		return nil, ErrNotRunning
	}
	m.active[job.ID] = &activeJob{kind: job.Kind, cancel: cancel}
	m.wg.Add(1)
	m.mu.Unlock()
	m.submitMu.Unlock()

	logger := logging.WithContext(jobCtx, m.logger)
	logger.Info("job submitted",
		logging.String("title", job.Title),
		logging.String("unique_key", job.UniqueKey),
		logging.String(logging.FieldEventType, "job_submitted"),
	)
	go m.execute(jobCtx, job, spec.Run)
	return job, nil
}

// Cancel requests cancellation of a pending, running or paused job.
func (m *Manager) Cancel(id int64) error {
	m.mu.Lock()
	entry, ok := m.active[id]
	if ok {
		entry.cancelled = true
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: #%d", ErrJobNotActive, id)
	}
	entry.cancel()
	return nil
}

func (m *Manager) execute(ctx context.Context, job *queue.Job, run Func) {
	defer m.wg.Done()
	logger := logging.WithContext(ctx, m.logger)

	select {
	case m.slots <- struct{}{}:
	case <-ctx.Done():
		m.finish(ctx, job, Failure(m.interruption(job.ID)))
		return
	}
	defer func() { <-m.slots }()

	if ctx.Err() != nil {
		m.finish(ctx, job, Failure(m.interruption(job.ID)))
		return
	}
	if err := m.store.MarkRunning(ctx, job.ID); err != nil {
		logging.ErrorWithContext(logger, "failed to mark job running", "job_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check catalog database access"),
		)
		m.finish(ctx, job, Failure(err))
		return
	}
	m.mu.Lock()
	if entry := m.active[job.ID]; entry != nil {
		entry.started = true
	}
	m.mu.Unlock()
	logger.Info("job started", logging.String(logging.FieldEventType, "job_started"))

	outcome := m.invoke(ctx, job, run)
	if !outcome.Succeeded() && ctx.Err() != nil {
		outcome = Failure(m.interruption(job.ID))
	}
	m.finish(ctx, job, outcome)
}

// invoke runs the job body, converting panics into failures.
func (m *Manager) invoke(ctx context.Context, job *queue.Job, run Func) (outcome Outcome) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logging.ErrorWithContext(logging.WithContext(ctx, m.logger), "job panicked", "job_panic",
				logging.Any("panic", recovered),
				logging.String("stack", string(debug.Stack())),
				logging.String(logging.FieldErrorHint, "report this as a bug with the daemon log"),
			)
			outcome = Failure(fmt.Errorf("job panicked: %v", recovered))
		}
	}()
	return run(ctx, &reporter{store: m.store, jobID: job.ID})
}

func (m *Manager) interruption(id int64) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if entry := m.active[id]; entry != nil && entry.cancelled {
		return ErrCancelled
	}
	return errShutdown
}

func (m *Manager) runningJobIDs() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]int64, 0, len(m.active))
	for id, entry := range m.active {
		if entry.started {
			ids = append(ids, id)
		}
	}
	return ids
}
