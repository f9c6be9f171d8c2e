package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"danmu/internal/catalog"
	"danmu/internal/keyword"
	"danmu/internal/logging"
	"danmu/internal/provider"
	"danmu/internal/services"
	"danmu/internal/workflow"
)

// GenericImport lists a provider's episodes for req.MediaID and imports
// them. When the provider lists nothing, the metadata resolver's failover
// source is asked exactly once.
func (im *Importer) GenericImport(req Request) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		return im.runImport(ctx, r, req, nil, true)
	}
}

// EditedImport imports a caller-supplied episode list without listing or
// failover.
func (im *Importer) EditedImport(req Request, episodes []provider.Episode) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		if len(episodes) == 0 {
			return workflow.Failure(services.Wrap(services.ErrValidation, "importer", "edited import", "episode list is empty", nil))
		}
		return im.runImport(ctx, r, req, episodes, false)
	}
}

func (im *Importer) runImport(ctx context.Context, r workflow.Reporter, req Request, edited []provider.Episode, list bool) workflow.Outcome {
	logger := logging.WithContext(ctx, im.logger)
	parsed := keyword.Parse(req.Title)
	title := parsed.Title
	if title == "" {
		title = strings.TrimSpace(req.Title)
	}
	season := parsed.SeasonOr(req.Season)
	if season <= 0 {
		season = 1
	}
	mediaType := catalog.NormalizeType(req.Type)

	prov, err := im.registry.Get(req.Provider)
	if err != nil {
		return workflow.Failure(err)
	}

	var items []item
	if list {
		im.report(ctx, r, 10, "fetching episode list", "")
		episodes, err := prov.ListEpisodes(ctx, req.MediaID, req.EpisodeIndex, mediaType)
		if err != nil {
			return workflow.Failure(fmt.Errorf("list episodes: %w", err))
		}
		episodes = filterTarget(episodes, req.EpisodeIndex)
		for _, ep := range episodes {
			items = append(items, item{episode: ep})
		}
		if len(items) == 0 {
			failover, err := im.failover(ctx, title, season, req.EpisodeIndex)
			if err != nil {
				return workflow.Failure(err)
			}
			items = failover
		}
	} else {
		for _, ep := range edited {
			items = append(items, item{episode: ep})
		}
	}

	if mediaType == catalog.TypeMovie && len(items) > 1 {
		items = items[:1]
	}

	t := &tally{}
	meta := req.workMetadata()
	if req.ImageURL != "" && im.images != nil {
		local, err := im.images.Download(ctx, req.ImageURL, prov.Name())
		if err != nil {
			t.posterFailed = true
			logging.WarnWithContext(logger, "poster download failed", "poster_download_failed",
				logging.Error(err),
				logging.String("image_url", req.ImageURL),
				logging.String(logging.FieldErrorHint, "the poster can be fetched again on the next import"),
				logging.String(logging.FieldImpact, "work is stored without a local poster"),
			)
		} else {
			meta.LocalImagePath = local
		}
	}

	var tgt target
	tgt.provider = prov
	err = im.catalog.InTx(ctx, func(store *catalog.Store) error {
		workID, err := store.GetOrCreateWork(ctx, title, season, mediaType, meta)
		if err != nil {
			return err
		}
		if err := store.UpdateWorkMetadataIfEmpty(ctx, workID, meta); err != nil {
			return err
		}
		sourceID, err := store.LinkSource(ctx, workID, prov.Name(), req.MediaID)
		if err != nil {
			return err
		}
		tgt.workID, tgt.sourceID = workID, sourceID
		return nil
	})
	if err != nil {
		return workflow.Failure(fmt.Errorf("prepare catalog: %w", err))
	}

	if err := im.importEpisodes(ctx, r, tgt, items, t); err != nil {
		return workflow.Failure(err)
	}
	logger.Info("import finished",
		logging.String(logging.FieldProvider, prov.Name()),
		logging.String("media_id", req.MediaID),
		logging.Int("imported", len(t.imported)),
		logging.Int("failed", t.failed),
		logging.String(logging.FieldEventType, "import_finished"),
	)
	return workflow.Success(t.summary())
}

// failover asks the metadata resolver once for the target episode.
func (im *Importer) failover(ctx context.Context, title string, season int, targetIndex *int) ([]item, error) {
	index := 1
	if targetIndex != nil {
		index = *targetIndex
	}
	comments, err := im.metadata.FailoverComments(ctx, title, season, index)
	if err != nil {
		logging.WarnWithContext(logging.WithContext(ctx, im.logger), "failover lookup failed", "failover_failed",
			logging.Error(err),
			logging.String("title", title),
			logging.String(logging.FieldErrorHint, "check the metadata gateway"),
			logging.String(logging.FieldImpact, "no episodes could be imported"),
		)
	}
	if err != nil || len(comments) == 0 {
		if targetIndex != nil {
			return nil, fmt.Errorf("no episodes found for episode %d", *targetIndex)
		}
		return nil, errors.New("no episodes found")
	}
	return []item{{
		episode: provider.Episode{
			Index:             index,
			Title:             fmt.Sprintf("Episode %d", index),
			ProviderEpisodeID: "failover",
		},
		comments:  comments,
		preloaded: true,
	}}, nil
}

func filterTarget(episodes []provider.Episode, targetIndex *int) []provider.Episode {
	if targetIndex == nil {
		return episodes
	}
	filtered := episodes[:0:0]
	for _, ep := range episodes {
		if ep.Index == *targetIndex {
			filtered = append(filtered, ep)
		}
	}
	return filtered
}
