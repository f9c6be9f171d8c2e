package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"danmu/internal/database"
	"danmu/internal/services"
)

// Store manages job persistence.
type Store struct {
	db *database.DB
}

// New wraps an open database.
func New(db *database.DB) *Store {
	return &Store{db: db}
}

const jobColumns = "id, unique_key, kind, title, status, progress, message, result, error, correlation_id, created_at, updated_at, started_at, finished_at, last_heartbeat"

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job          Job
		uniqueKey    sql.NullString
		status       string
		createdRaw   string
		updatedRaw   string
		startedRaw   sql.NullString
		finishedRaw  sql.NullString
		heartbeatRaw sql.NullString
	)
	if err := scanner.Scan(
		&job.ID,
		&uniqueKey,
		&job.Kind,
		&job.Title,
		&status,
		&job.Progress,
		&job.Message,
		&job.Result,
		&job.Error,
		&job.CorrelationID,
		&createdRaw,
		&updatedRaw,
		&startedRaw,
		&finishedRaw,
		&heartbeatRaw,
	); err != nil {
		return nil, err
	}
	job.UniqueKey = uniqueKey.String
	job.Status = Status(status)
	if created, err := database.ParseTimestamp(createdRaw); err == nil {
		job.CreatedAt = created
	}
	if updated, err := database.ParseTimestamp(updatedRaw); err == nil {
		job.UpdatedAt = updated
	}
	job.StartedAt = optionalTime(startedRaw)
	job.FinishedAt = optionalTime(finishedRaw)
	job.LastHeartbeat = optionalTime(heartbeatRaw)
	return &job, nil
}

func optionalTime(raw sql.NullString) *time.Time {
	if !raw.Valid {
		return nil
	}
	t, err := database.ParseTimestamp(raw.String)
	if err != nil {
		return nil
	}
	return &t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func (s *Store) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := database.RetryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// CreateUnique inserts a pending job unless another job with the same unique
// key is still active, in which case that job is returned as existing and no
// row is written. Jobs without a unique key are always inserted.
func (s *Store) CreateUnique(ctx context.Context, spec NewJob) (created *Job, existing *Job, err error) {
	kind := strings.TrimSpace(spec.Kind)
	if kind == "" {
		return nil, nil, services.Wrap(services.ErrValidation, "queue", "create job", "kind is required", nil)
	}
	err = database.RetryOnBusy(ctx, func() error {
		created, existing = nil, nil
		return s.db.WithTx(ctx, func(tx *database.Tx) error {
			if spec.UniqueKey != "" {
				found, err := findActive(ctx, tx, spec.UniqueKey)
				if err != nil {
					return err
				}
				if found != nil {
					existing = found
					return nil
				}
			}
			now := database.Timestamp(time.Now())
			row := tx.QueryRowContext(ctx,
				`INSERT INTO jobs (unique_key, kind, title, status, progress, message, correlation_id, created_at, updated_at)
                VALUES (?, ?, ?, ?, 0, '', ?, ?, ?) RETURNING `+jobColumns,
				nullableString(spec.UniqueKey), kind, strings.TrimSpace(spec.Title), StatusPending, spec.CorrelationID, now, now,
			)
			job, err := scanJob(row)
			if err != nil {
				return fmt.Errorf("insert job: %w", err)
			}
			created = job
			return nil
		})
	})
	return created, existing, err
}

func findActive(ctx context.Context, q database.Querier, key string) (*Job, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+jobColumns+" FROM jobs WHERE unique_key = ? AND status IN (?, ?, ?) ORDER BY id LIMIT 1",
		key, activeStatuses[0], activeStatuses[1], activeStatuses[2],
	)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find active job %q: %w", key, err)
	}
	return job, nil
}

// FindActiveByKey returns the active job holding key, or nil.
func (s *Store) FindActiveByKey(ctx context.Context, key string) (*Job, error) {
	return findActive(ctx, s.db, key)
}

// Get loads a job by id.
func (s *Store) Get(ctx context.Context, id int64) (*Job, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, services.Wrap(services.ErrNotFound, "queue", "get job", fmt.Sprintf("job %d not found", id), nil)
	}
	if err != nil {
		return nil, fmt.Errorf("get job %d: %w", id, err)
	}
	return job, nil
}

// List returns jobs newest first.
func (s *Store) List(ctx context.Context, filter Filter) ([]Job, error) {
	query := "SELECT " + jobColumns + " FROM jobs"
	var (
		where []string
		args  []any
	)
	if len(filter.Statuses) > 0 {
		where = append(where, "status IN ("+database.Placeholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, status)
		}
	}
	if kind := strings.TrimSpace(filter.Kind); kind != "" {
		where = append(where, "kind = ?")
		args = append(args, kind)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id DESC"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()
	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// MarkRunning moves a pending job to running.
func (s *Store) MarkRunning(ctx context.Context, id int64) error {
	now := database.Timestamp(time.Now())
	if _, err := s.exec(ctx,
		`UPDATE jobs SET status = ?, started_at = COALESCE(started_at, ?), last_heartbeat = ?, updated_at = ?
        WHERE id = ? AND status = ?`,
		StatusRunning, now, now, now, id, StatusPending,
	); err != nil {
		return fmt.Errorf("mark job %d running: %w", id, err)
	}
	return nil
}

// UpdateProgress records a reporter update. Terminal jobs are left untouched.
func (s *Store) UpdateProgress(ctx context.Context, id int64, p Progress) error {
	status := p.Status
	if status != StatusPaused {
		status = StatusRunning
	}
	if _, err := s.exec(ctx,
		`UPDATE jobs SET status = ?, progress = ?, message = ?, updated_at = ?
        WHERE id = ? AND status IN (?, ?, ?)`,
		status, clampPercent(p.Percent), p.Message, database.Timestamp(time.Now()),
		id, StatusPending, StatusRunning, StatusPaused,
	); err != nil {
		return fmt.Errorf("update job %d progress: %w", id, err)
	}
	return nil
}

// Finish records the terminal transition.
func (s *Store) Finish(ctx context.Context, id int64, status Status, message, errMsg string) error {
	if !status.IsTerminal() {
		return fmt.Errorf("finish job %d: %q is not a terminal status", id, status)
	}
	now := database.Timestamp(time.Now())
	progressExpr := "progress"
	if status == StatusSuccess {
		progressExpr = "100"
	}
	if _, err := s.exec(ctx,
		`UPDATE jobs SET status = ?, progress = `+progressExpr+`, message = ?, result = ?, error = ?, finished_at = ?, updated_at = ?
        WHERE id = ?`,
		status, message, resultFor(status, message), errMsg, now, now, id,
	); err != nil {
		return fmt.Errorf("finish job %d: %w", id, err)
	}
	return nil
}

func resultFor(status Status, message string) string {
	if status == StatusSuccess {
		return message
	}
	return ""
}

// Heartbeat stamps last_heartbeat on the given running jobs.
func (s *Store) Heartbeat(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	now := database.Timestamp(time.Now())
	args := make([]any, 0, len(ids)+2)
	args = append(args, now, now)
	for _, id := range ids {
		args = append(args, id)
	}
	if _, err := s.exec(ctx,
		"UPDATE jobs SET last_heartbeat = ?, updated_at = ? WHERE id IN ("+database.Placeholders(len(ids))+")",
		args...,
	); err != nil {
		return fmt.Errorf("update heartbeat: %w", err)
	}
	return nil
}

// FailInterrupted fails every job a previous process left active.
func (s *Store) FailInterrupted(ctx context.Context) (int64, error) {
	now := database.Timestamp(time.Now())
	res, err := s.exec(ctx,
		`UPDATE jobs SET status = ?, message = ?, error = ?, finished_at = ?, updated_at = ?
        WHERE status IN (?, ?, ?)`,
		StatusFailed, InterruptedReason, InterruptedReason, now, now,
		StatusPending, StatusRunning, StatusPaused,
	)
	if err != nil {
		return 0, fmt.Errorf("fail interrupted jobs: %w", err)
	}
	return res.RowsAffected()
}

// PruneFinished deletes terminal jobs that finished before cutoff.
func (s *Store) PruneFinished(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.exec(ctx,
		"DELETE FROM jobs WHERE status IN (?, ?) AND finished_at IS NOT NULL AND finished_at < ?",
		StatusSuccess, StatusFailed, database.Timestamp(cutoff),
	)
	if err != nil {
		return 0, fmt.Errorf("prune jobs: %w", err)
	}
	return res.RowsAffected()
}

// Summary counts jobs by status.
func (s *Store) Summary(ctx context.Context) (Summary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM jobs GROUP BY status")
	if err != nil {
		return Summary{}, fmt.Errorf("job summary: %w", err)
	}
	defer rows.Close()

	summary := Summary{Counts: make(map[Status]int)}
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return Summary{}, err
		}
		st := Status(status)
		summary.Counts[st] = count
		summary.Total += count
		switch {
		case st == StatusSuccess:
			summary.Success += count
		case st == StatusFailed:
			summary.Failed += count
		case st.IsActive():
			summary.Active += count
		}
	}
	return summary, rows.Err()
}

func clampPercent(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 100:
		return 100
	default:
		return value
	}
}
