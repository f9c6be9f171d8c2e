package tasks

import (
	"context"
	"fmt"
	"time"

	"danmu/internal/logging"
	"danmu/internal/workflow"
)

const defaultRetentionDays = 3

// Maintenance prunes finished job history past the retention window and
// then optimizes the database.
func (s *Service) Maintenance() workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		days := s.cfg.Tasks.HistoryRetentionDays
		if days <= 0 {
			days = defaultRetentionDays
		}
		cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)

		s.report(ctx, r, 10, "pruning job history")
		pruned, err := s.jobs.PruneFinished(ctx, cutoff)
		if err != nil {
			return workflow.Failure(fmt.Errorf("prune job history: %w", err))
		}
		s.logger.Info("pruned job history",
			logging.Int64("pruned", pruned),
			logging.Int("retention_days", days),
		)

		s.report(ctx, r, 50, "optimizing database")
		if err := s.catalog.Optimize(ctx); err != nil {
			return workflow.Failure(fmt.Errorf("optimize database: %w", err))
		}
		return workflow.Success(fmt.Sprintf("pruned %d jobs older than %d days; database optimized", pruned, days))
	}
}
