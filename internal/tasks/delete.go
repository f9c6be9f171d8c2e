package tasks

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	"danmu/internal/database"
	"danmu/internal/logging"
	"danmu/internal/ratelimit"
	"danmu/internal/services"
	"danmu/internal/workflow"
)

// DeleteAnime removes a work, its sources, episodes and track files. A work
// that is already gone is a success.
func (s *Service) DeleteAnime(workID int64) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		s.report(ctx, r, 0, "starting deletion")
		work, err := s.catalog.GetWork(ctx, workID)
		if errors.Is(err, services.ErrNotFound) {
			return workflow.Success(fmt.Sprintf("work %d not found, nothing to delete", workID))
		}
		if err != nil {
			return workflow.Failure(err)
		}

		s.report(ctx, r, 30, "removing track files")
		if err := s.tracks.RemoveWork(workID); err != nil {
			return workflow.Failure(err)
		}
		s.report(ctx, r, 60, "deleting catalog rows")
		err = s.withLockRetry(ctx, r, 60, fmt.Sprintf("work %d", workID), func() error {
			_, err := s.catalog.DeleteWork(ctx, workID)
			return err
		})
		if err != nil {
			return workflow.Failure(err)
		}
		return workflow.Success(fmt.Sprintf("deleted %q", work.Title))
	}
}

// DeleteSource removes one source with its episodes and their track files.
func (s *Service) DeleteSource(sourceID int64) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		s.report(ctx, r, 0, "starting deletion")
		deleted, err := s.deleteSource(ctx, r, 0, sourceID)
		if err != nil {
			return workflow.Failure(err)
		}
		if !deleted {
			return workflow.Success(fmt.Sprintf("source %d not found, nothing to delete", sourceID))
		}
		return workflow.Success(fmt.Sprintf("deleted source %d", sourceID))
	}
}

// DeleteEpisode removes one episode and its track file.
func (s *Service) DeleteEpisode(episodeID int64) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		s.report(ctx, r, 0, "starting deletion")
		deleted, err := s.deleteEpisode(ctx, r, 0, episodeID)
		if err != nil {
			return workflow.Failure(err)
		}
		if !deleted {
			return workflow.Success(fmt.Sprintf("episode %d not found, nothing to delete", episodeID))
		}
		return workflow.Success(fmt.Sprintf("deleted episode %d", episodeID))
	}
}

// DeleteBulkEpisodes deletes episodes one at a time, each in its own
// transaction. When an item exhausts its lock retries the batch stops;
// items deleted before it stay deleted.
func (s *Service) DeleteBulkEpisodes(ids []int64) workflow.Func {
	return s.bulkDelete("episode", ids, s.deleteEpisode)
}

// DeleteBulkSources is DeleteBulkEpisodes for sources.
func (s *Service) DeleteBulkSources(ids []int64) workflow.Func {
	return s.bulkDelete("source", ids, s.deleteSource)
}

type deleteFunc func(ctx context.Context, r workflow.Reporter, percent float64, id int64) (bool, error)

func (s *Service) bulkDelete(noun string, ids []int64, del deleteFunc) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		total := len(ids)
		s.report(ctx, r, 5, fmt.Sprintf("preparing to delete %d %ss", total, noun))
		pacer := rate.NewLimiter(rate.Every(s.cfg.BulkPacing()), 1)
		deleted := 0
		for i, id := range ids {
			if err := pacer.Wait(ctx); err != nil {
				return workflow.Failure(err)
			}
			percent := 5 + float64(i+1)*90/float64(total)
			s.report(ctx, r, percent, fmt.Sprintf("deleting %s %d (%d/%d)", noun, id, i+1, total))
			ok, err := del(ctx, r, percent, id)
			if err != nil {
				return workflow.Failure(fmt.Errorf("%s %d (%d of %d): %w; %d deleted before abort", noun, id, i+1, total, err, deleted))
			}
			if ok {
				deleted++
			}
		}
		return workflow.Success(fmt.Sprintf("bulk delete finished: %d processed, %d deleted", total, deleted))
	}
}

func (s *Service) deleteSource(ctx context.Context, r workflow.Reporter, percent float64, sourceID int64) (bool, error) {
	if _, err := s.catalog.GetSource(ctx, sourceID); err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	episodes, err := s.catalog.ListEpisodes(ctx, sourceID)
	if err != nil {
		return false, err
	}
	for _, ep := range episodes {
		if err := s.tracks.Remove(ep.TrackPath); err != nil {
			return false, err
		}
	}
	var deleted bool
	err = s.withLockRetry(ctx, r, percent, fmt.Sprintf("source %d", sourceID), func() error {
		var err error
		deleted, err = s.catalog.DeleteSource(ctx, sourceID)
		return err
	})
	return deleted, err
}

func (s *Service) deleteEpisode(ctx context.Context, r workflow.Reporter, percent float64, episodeID int64) (bool, error) {
	ep, err := s.catalog.GetEpisode(ctx, episodeID)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if err := s.tracks.Remove(ep.TrackPath); err != nil {
		return false, err
	}
	var deleted bool
	err = s.withLockRetry(ctx, r, percent, fmt.Sprintf("episode %d", episodeID), func() error {
		var err error
		deleted, err = s.catalog.DeleteEpisode(ctx, episodeID)
		return err
	})
	return deleted, err
}

// withLockRetry runs op until it succeeds, fails with something other than
// lock contention, or uses up the configured attempts. Waits double from
// the configured base.
func (s *Service) withLockRetry(ctx context.Context, r workflow.Reporter, percent float64, what string, op func() error) error {
	attempts := s.cfg.Tasks.DeleteRetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	logger := logging.WithContext(ctx, s.logger)
	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil || !database.IsLockContention(err) {
			return err
		}
		if attempt+1 >= attempts {
			logging.ErrorWithContext(logger, "delete gave up on locked database", "delete_lock_exhausted",
				logging.String("target", what),
				logging.Int("attempts", attempts),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(services.ErrLockContention)),
			)
			return services.Wrap(services.ErrLockContention, "tasks", "delete "+what,
				fmt.Sprintf("database still locked after %d attempts", attempts), err)
		}
		wait := ratelimit.Backoff(s.cfg.DeleteRetryBase(), attempt)
		logging.WarnWithContext(logger, "database locked during delete; retrying", "delete_lock_retry",
			logging.String("target", what),
			logging.Int("attempt", attempt+1),
			logging.Duration("wait", wait),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "another job holds the catalog lock"),
			logging.String(logging.FieldImpact, "delete delayed"),
		)
		s.report(ctx, r, percent, fmt.Sprintf("database busy, retrying %s in %s (attempt %d/%d)", what, wait, attempt+2, attempts))
		if err := s.sleep(ctx, wait); err != nil {
			return err
		}
	}
}
