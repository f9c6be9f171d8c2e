package importer

import (
	"context"
	"errors"
	"fmt"

	"danmu/internal/catalog"
	"danmu/internal/logging"
	"danmu/internal/metadata"
	"danmu/internal/provider"
	"danmu/internal/workflow"
)

var errRefreshEmpty = errors.New("no episodes returned; existing data kept")

// FullRefresh relists a source and re-imports every episode in place. When
// the listing is empty the provider (or the metadata resolver) may supply a
// replacement media id; if the listing stays empty nothing is touched.
func (im *Importer) FullRefresh(sourceID int64) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		logger := logging.WithContext(ctx, im.logger)
		src, work, prov, err := im.loadSource(ctx, sourceID)
		if err != nil {
			return workflow.Failure(err)
		}

		im.report(ctx, r, 10, "fetching episode list", "")
		episodes, err := prov.ListEpisodes(ctx, src.MediaID, nil, work.Type)
		if err != nil {
			return workflow.Failure(fmt.Errorf("list episodes: %w", err))
		}
		if len(episodes) == 0 {
			newID, err := im.findNewMediaID(ctx, prov, metadata.SourceInfo{
				Provider: src.Provider,
				MediaID:  src.MediaID,
				Title:    work.Title,
				Season:   work.Season,
				Type:     work.Type,
				Year:     derefInt(work.Year),
			})
			if err != nil {
				logging.WarnWithContext(logger, "media id recovery failed", "media_id_recovery_failed",
					logging.Error(err),
					logging.Int64("source_id", src.ID),
					logging.String(logging.FieldErrorHint, "re-import the work from a search result"),
					logging.String(logging.FieldImpact, "the source keeps its current media id"),
				)
			}
			if newID != "" && newID != src.MediaID {
				if err := im.catalog.UpdateSourceMediaID(ctx, src.ID, newID); err != nil {
					return workflow.Failure(err)
				}
				logger.Info("source media id replaced",
					logging.Int64("source_id", src.ID),
					logging.String("old_media_id", src.MediaID),
					logging.String("new_media_id", newID),
				)
				episodes, err = prov.ListEpisodes(ctx, newID, nil, work.Type)
				if err != nil {
					return workflow.Failure(fmt.Errorf("list episodes: %w", err))
				}
			}
		}
		if len(episodes) == 0 {
			return workflow.Failure(errRefreshEmpty)
		}

		items := make([]item, len(episodes))
		for i, ep := range episodes {
			items[i] = item{episode: ep}
		}
		t := &tally{}
		if err := im.importEpisodes(ctx, r, target{workID: work.ID, sourceID: src.ID, provider: prov}, items, t); err != nil {
			return workflow.Failure(err)
		}
		return workflow.Success(t.summary())
	}
}

// IncrementalRefresh imports episode nextIndex of an existing source.
func (im *Importer) IncrementalRefresh(sourceID int64, nextIndex int) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		src, work, _, err := im.loadSource(ctx, sourceID)
		if err != nil {
			return workflow.Failure(err)
		}
		req := requestForWork(work, src)
		req.EpisodeIndex = &nextIndex
		return im.runImport(ctx, r, req, nil, true)
	}
}

// RefreshEpisode refetches one episode's track.
func (im *Importer) RefreshEpisode(episodeID int64) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		ep, err := im.catalog.GetEpisode(ctx, episodeID)
		if err != nil {
			return workflow.Failure(err)
		}
		_, work, prov, err := im.loadSource(ctx, ep.SourceID)
		if err != nil {
			return workflow.Failure(err)
		}

		im.report(ctx, r, 10, fmt.Sprintf("fetching episode %d", ep.Index), "")
		comments, err := im.fetch(ctx, r, prov, ep.ProviderEpisodeID, 10, 80, ep.Index)
		if err != nil {
			return workflow.Failure(fmt.Errorf("fetch episode %d: %w", ep.Index, err))
		}
		if len(comments) == 0 {
			if err := im.catalog.TouchEpisode(ctx, ep.ID, im.now()); err != nil {
				return workflow.Failure(err)
			}
			return workflow.Success(fmt.Sprintf("no comments found for episode %d", ep.Index))
		}

		im.report(ctx, r, 90, "saving comments", "")
		web, err := im.tracks.Write(work.ID, ep.ID, comments)
		if err != nil {
			return workflow.Failure(err)
		}
		if err := im.catalog.UpdateEpisodeFetch(ctx, ep.ID, len(comments), web, im.now()); err != nil {
			return workflow.Failure(err)
		}
		im.limiter.Increment(prov.Name())
		return workflow.Success(fmt.Sprintf("refreshed episode %d with %d comments", ep.Index, len(comments)))
	}
}

func (im *Importer) loadSource(ctx context.Context, sourceID int64) (*catalog.Source, *catalog.Work, provider.Provider, error) {
	src, err := im.catalog.GetSource(ctx, sourceID)
	if err != nil {
		return nil, nil, nil, err
	}
	work, err := im.catalog.GetWork(ctx, src.WorkID)
	if err != nil {
		return nil, nil, nil, err
	}
	prov, err := im.registry.Get(src.Provider)
	if err != nil {
		return nil, nil, nil, err
	}
	return src, work, prov, nil
}

func (im *Importer) findNewMediaID(ctx context.Context, prov provider.Provider, info metadata.SourceInfo) (string, error) {
	if finder, ok := prov.(provider.MediaIDFinder); ok {
		id, err := finder.FindNewMediaID(ctx, info)
		if err != nil || id != "" {
			return id, err
		}
	}
	return im.metadata.FindNewMediaID(ctx, info)
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
