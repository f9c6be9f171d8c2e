package tasks

import (
	"context"
	"fmt"

	"danmu/internal/workflow"
)

// ReorderEpisodes renumbers a source's episodes to 1..N and rekeys them to
// their episode identities, moving track files along.
func (s *Service) ReorderEpisodes(sourceID int64) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		s.report(ctx, r, 0, "loading episode list")
		result, err := s.catalog.ReorderSource(ctx, sourceID, s.tracks)
		if err != nil {
			return workflow.Failure(err)
		}
		switch {
		case result.Total == 0:
			return workflow.Success("no episodes found, nothing to reorder")
		case result.Migrated == 0:
			return workflow.Success("episode order and ids already correct")
		}
		return workflow.Success(fmt.Sprintf("reorder complete: migrated %d of %d episodes", result.Migrated, result.Total))
	}
}
