package api

import (
	"context"

	"danmu/internal/queue"
)

// JobReader abstracts the job-history queries needed by the API.
type JobReader interface {
	List(ctx context.Context, filter queue.Filter) ([]queue.Job, error)
	Get(ctx context.Context, id int64) (*queue.Job, error)
}

// JobService exposes read-only job operations returning API DTOs.
type JobService struct {
	store JobReader
}

// NewJobService constructs a JobService around the provided reader.
func NewJobService(store JobReader) *JobService {
	if store == nil {
		return nil
	}
	return &JobService{store: store}
}

// List returns jobs newest first, filtered by status and kind.
func (s *JobService) List(ctx context.Context, filter queue.Filter) ([]Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	jobs, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return FromJobs(jobs), nil
}

// Describe fetches a single job.
func (s *JobService) Describe(ctx context.Context, id int64) (*Job, error) {
	if s == nil || s.store == nil {
		return nil, nil
	}
	job, err := s.store.Get(ctx, id)
	if err != nil || job == nil {
		return nil, err
	}
	dto := FromJob(job)
	return &dto, nil
}
