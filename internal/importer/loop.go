package importer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"danmu/internal/catalog"
	"danmu/internal/danmaku"
	"danmu/internal/logging"
	"danmu/internal/provider"
	"danmu/internal/queue"
	"danmu/internal/ratelimit"
	"danmu/internal/services"
	"danmu/internal/workflow"
)

// item is one episode queued for the loop. Preloaded comments skip the
// provider fetch.
type item struct {
	episode   provider.Episode
	comments  []danmaku.Comment
	preloaded bool
}

// target is where fetched episodes land.
type target struct {
	workID   int64
	sourceID int64
	provider provider.Provider
}

// tally accumulates the loop result for the summary.
type tally struct {
	imported     []int
	added        int
	failed       int
	empty        int
	posterFailed bool
}

func (t tally) summary() string {
	parts := make([]string, 0, 3)
	if len(t.imported) == 0 {
		parts = append(parts, "no new comments were found for any episode")
	} else {
		parts = append(parts, fmt.Sprintf("imported episodes %s, added %d comments",
			danmaku.FormatRanges(t.imported), t.added))
	}
	if t.failed > 0 {
		parts = append(parts, fmt.Sprintf("%d episodes failed", t.failed))
	}
	if t.posterFailed {
		parts = append(parts, "poster download failed")
	}
	return strings.Join(parts, "; ")
}

// importEpisodes runs the per-episode loop over progress 10..95. Only
// cancellation and a vanished catalog row abort it.
func (im *Importer) importEpisodes(ctx context.Context, r workflow.Reporter, tgt target, items []item, t *tally) error {
	logger := logging.WithContext(ctx, im.logger)
	total := len(items)
	slice := 85.0 / float64(total)
	for i, it := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		ep := it.episode
		if ep.Index < 1 {
			t.failed++
			logging.WarnWithContext(logger, "provider returned an episode without a usable index", "episode_index_invalid",
				logging.EpisodeAttrs(tgt.provider.Name(), ep.Index,
					logging.String(logging.FieldErrorHint, "report the listing to the gateway maintainers"),
					logging.String(logging.FieldImpact, "episode skipped"),
				)...,
			)
			continue
		}
		base := 10 + float64(i)*85/float64(total)
		im.report(ctx, r, base, fmt.Sprintf("fetching episode %d (%d/%d)", ep.Index, i+1, total), "")

		comments := it.comments
		if !it.preloaded {
			var err error
			comments, err = im.fetch(ctx, r, tgt.provider, ep.ProviderEpisodeID, base, slice, ep.Index)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				t.failed++
				im.logFetchFailure(ctx, tgt.provider.Name(), ep.Index, err)
				continue
			}
		}
		if len(comments) == 0 {
			t.empty++
			logger.Info("episode has no comments", logging.Args(logging.EpisodeAttrs(tgt.provider.Name(), ep.Index)...)...)
			continue
		}
		if !it.preloaded {
			im.limiter.Increment(tgt.provider.Name())
		}

		if _, err := im.persist(ctx, tgt, ep, comments); err != nil {
			if errors.Is(err, services.ErrNotFound) {
				return err
			}
			t.failed++
			logging.ErrorWithContext(logger, "failed to store episode", "episode_store_failed",
				logging.Error(err),
				logging.Int(logging.FieldEpisodeIndex, ep.Index),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
			)
			continue
		}
		t.imported = append(t.imported, ep.Index)
		t.added += len(comments)
	}
	return nil
}

// fetch checks the rate budget, pausing and retrying while it is exhausted,
// then fetches the episode's comments.
func (im *Importer) fetch(ctx context.Context, r workflow.Reporter, p provider.Provider, episodeID string, base, slice float64, index int) ([]danmaku.Comment, error) {
	if err := im.awaitBudget(ctx, r, p.Name(), base); err != nil {
		return nil, err
	}
	message := fmt.Sprintf("fetching episode %d", index)
	return p.FetchComments(ctx, episodeID, func(percent float64) {
		im.report(ctx, r, base+percent/100*slice, message, "")
	})
}

// awaitBudget blocks until the provider's window has room. The job shows as
// paused while it waits.
func (im *Importer) awaitBudget(ctx context.Context, r workflow.Reporter, providerName string, percent float64) error {
	for {
		err := im.limiter.Check(providerName)
		if err == nil {
			return nil
		}
		var exceeded *ratelimit.ExceededError
		if !errors.As(err, &exceeded) {
			return err
		}
		logging.WarnWithContext(logging.WithContext(ctx, im.logger), "provider rate limit reached", "rate_limited",
			logging.String(logging.FieldProvider, providerName),
			logging.Duration("retry_after", exceeded.RetryAfter),
			logging.String(logging.FieldErrorHint, "raise rate_limit.providers for this provider if the budget is too small"),
			logging.String(logging.FieldImpact, "the job is paused until the window resets"),
		)
		im.report(ctx, r, percent,
			fmt.Sprintf("rate limited by %s, retrying in %ds", providerName, exceeded.RetryAfterSeconds()),
			queue.StatusPaused)
		if err := im.sleep(ctx, exceeded.RetryAfter); err != nil {
			return err
		}
		im.report(ctx, r, percent, "resuming after rate limit", queue.StatusRunning)
	}
}

// persist writes the track and catalog rows for one episode in a single
// transaction and returns the episode id.
func (im *Importer) persist(ctx context.Context, tgt target, ep provider.Episode, comments []danmaku.Comment) (int64, error) {
	var episodeID int64
	err := im.catalog.InTx(ctx, func(store *catalog.Store) error {
		id, err := store.CreateEpisodeIfAbsent(ctx, catalog.NewEpisode{
			SourceID:          tgt.sourceID,
			Index:             ep.Index,
			Title:             episodeTitle(ep),
			SourceURL:         ep.URL,
			ProviderEpisodeID: ep.ProviderEpisodeID,
		})
		if err != nil {
			return err
		}
		web, err := im.tracks.Write(tgt.workID, id, comments)
		if err != nil {
			return err
		}
		if err := store.UpdateEpisodeFetch(ctx, id, len(comments), web, im.now()); err != nil {
			return err
		}
		episodeID = id
		return nil
	})
	return episodeID, err
}

func (im *Importer) report(ctx context.Context, r workflow.Reporter, percent float64, message string, status queue.Status) {
	if err := r.Report(ctx, workflow.Update{Percent: percent, Message: message, Status: status}); err != nil {
		im.logger.Debug("progress update failed", logging.Error(err))
	}
}

func (im *Importer) logFetchFailure(ctx context.Context, providerName string, index int, err error) {
	logger := logging.WithContext(ctx, im.logger)
	if isTransport(err) {
		logging.WarnWithContext(logger, "network error while fetching episode", "episode_network_error",
			logging.EpisodeAttrs(providerName, index,
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check gateway connectivity; refresh the episode later"),
				logging.String(logging.FieldImpact, "episode skipped"),
			)...,
		)
		return
	}
	logging.WarnWithContext(logger, "unexpected error while fetching episode", "episode_fetch_failed",
		logging.EpisodeAttrs(providerName, index,
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
			logging.String(logging.FieldImpact, "episode skipped"),
		)...,
	)
}

func isTransport(err error) bool {
	return errors.Is(err, provider.ErrTransport) ||
		errors.Is(err, services.ErrTransient) ||
		ratelimit.IsNetworkError(err)
}

func episodeTitle(ep provider.Episode) string {
	if title := strings.TrimSpace(ep.Title); title != "" {
		return title
	}
	return fmt.Sprintf("Episode %d", ep.Index)
}
