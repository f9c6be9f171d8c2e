package tasks

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"danmu/internal/catalog"
	"danmu/internal/importer"
	"danmu/internal/keyword"
	"danmu/internal/logging"
	"danmu/internal/provider"
	"danmu/internal/services"
	"danmu/internal/textutil"
	"danmu/internal/workflow"
)

// unrankedOrder places providers without a display order after every
// ranked one.
const unrankedOrder = 999

// AutoSearchAndImport resolves a metadata id (or a free text keyword) to a
// title, picks a provider source for it and queues a generic import.
// Works already in the library reuse their favourite or best ranked source;
// otherwise every enabled searcher is queried and the best match wins.
func (s *Service) AutoSearchAndImport(p AutoImportParams) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		logger := logging.WithContext(ctx, s.logger)
		s.report(ctx, r, 5, fmt.Sprintf("starting auto import: %s %s", p.Provider, p.ID))

		req := importer.Request{Title: p.ID, Type: p.Type, EpisodeIndex: p.Episode}
		aliases := []string{p.ID}
		season := 0
		if p.Season != nil {
			season = *p.Season
		}

		if p.Provider == KeywordSearch {
			parsed := keyword.Parse(p.ID)
			if parsed.Title != "" {
				req.Title = parsed.Title
				aliases = append(aliases, parsed.Title)
			}
			if season == 0 {
				season = parsed.Season
			}
			if req.EpisodeIndex == nil && parsed.Episode > 0 {
				ep := parsed.Episode
				req.EpisodeIndex = &ep
			}
		} else {
			s.report(ctx, r, 10, fmt.Sprintf("fetching metadata from %s", p.Provider))
			details, err := s.metadata.Details(ctx, p.Provider, p.ID, p.Type)
			if err != nil {
				logging.WarnWithContext(logger, "metadata lookup failed; searching with the raw id", "auto_import_metadata_failed",
					logging.String(logging.FieldProvider, p.Provider),
					logging.String("item_id", p.ID),
					logging.Error(err),
					logging.String(logging.FieldErrorHint, services.Hint(err)),
					logging.String(logging.FieldImpact, "search may miss aliases"),
				)
			}
			if details != nil {
				if details.Title != "" {
					req.Title = details.Title
				}
				if details.Type != "" {
					req.Type = details.Type
				}
				if season == 0 {
					season = details.Season
				}
				req.ImageURL = details.ImageURL
				req.TMDBID = details.TMDBID
				req.IMDBID = details.IMDBID
				req.TVDBID = details.TVDBID
				req.DoubanID = details.DoubanID
				req.BangumiID = details.BangumiID
				req.EpisodeGroupID = details.EpisodeGroupID
				if details.Year > 0 {
					year := details.Year
					req.Year = &year
				}
				aliases = append(aliases, details.Title)
				aliases = append(aliases, details.Aliases...)

				extra, err := s.metadata.SearchAliases(ctx, req.Title)
				if err != nil {
					logger.Debug("alias enrichment failed", logging.Error(err))
				}
				aliases = append(aliases, extra...)
			}
		}
		if season <= 0 {
			season = 1
		}
		req.Season = season
		req.Type = catalog.NormalizeType(req.Type)

		settings, err := s.catalog.ProviderSettings(ctx)
		if err != nil {
			return workflow.Failure(err)
		}

		s.report(ctx, r, 20, "checking library")
		work, err := s.catalog.FindWork(ctx, req.Title, season)
		if err != nil {
			return workflow.Failure(err)
		}
		if work != nil {
			src, err := s.preferredSource(ctx, work.ID, settings)
			if err != nil {
				return workflow.Failure(err)
			}
			if src != nil {
				s.report(ctx, r, 30, fmt.Sprintf("already in library, using source %s", src.Provider))
				req.Provider = src.Provider
				req.MediaID = src.MediaID
				if req.Year == nil {
					req.Year = work.Year
				}
				return s.submitImport(ctx, req, "already in library")
			}
		}

		s.report(ctx, r, 40, "searching providers")
		matches := s.search(ctx, req.Title, req.EpisodeIndex, aliases, settings)
		if len(matches) == 0 {
			return workflow.Failure(services.Wrap(services.ErrNotFound, "tasks", "auto import",
				fmt.Sprintf("no provider matched %s", req.Title), nil))
		}
		rankMatches(matches, req.Title, req.Type, settings)
		best := matches[0]

		s.report(ctx, r, 80, fmt.Sprintf("best match: %s from %s", best.Title, best.Provider))
		req.Provider = best.Provider
		req.MediaID = best.MediaID
		if req.Year == nil && best.Year > 0 {
			year := best.Year
			req.Year = &year
		}
		if req.ImageURL == "" {
			req.ImageURL = best.ImageURL
		}
		return s.submitImport(ctx, req, "best match")
	}
}

// preferredSource returns the work's favourite source, or else its source
// from the provider with the lowest display order.
func (s *Service) preferredSource(ctx context.Context, workID int64, settings []catalog.ProviderSetting) (*catalog.Source, error) {
	fav, err := s.catalog.FindFavoritedSource(ctx, workID)
	if err != nil || fav != nil {
		return fav, err
	}
	sources, err := s.catalog.SourcesForWork(ctx, workID)
	if err != nil || len(sources) == 0 {
		return nil, err
	}
	sort.SliceStable(sources, func(i, j int) bool {
		return displayOrder(settings, sources[i].Provider) < displayOrder(settings, sources[j].Provider)
	})
	return &sources[0], nil
}

func (s *Service) search(ctx context.Context, title string, episode *int, aliases []string, settings []catalog.ProviderSetting) []provider.SearchResult {
	logger := logging.WithContext(ctx, s.logger)
	var matches []provider.SearchResult
	raw := 0
	for _, p := range s.registry.Ordered(settings) {
		searcher, ok := p.(provider.Searcher)
		if !ok {
			continue
		}
		results, err := searcher.Search(ctx, title, episode)
		if err != nil {
			logging.WarnWithContext(logger, "provider search failed", "provider_search_failed",
				logging.String(logging.FieldProvider, p.Name()),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, services.Hint(err)),
				logging.String(logging.FieldImpact, "provider skipped"),
			)
			continue
		}
		raw += len(results)
		for _, res := range results {
			if res.Provider == "" {
				res.Provider = p.Name()
			}
			if keyword.MatchesAlias(res.Title, aliases) {
				matches = append(matches, res)
			}
		}
	}
	logger.Info("provider search finished",
		logging.String("title", title),
		logging.Int("results", raw),
		logging.Int("matched", len(matches)),
	)
	return matches
}

// rankMatches orders matches by media type agreement, then title
// similarity, then provider display order.
func rankMatches(matches []provider.SearchResult, title, mediaType string, settings []catalog.ProviderSetting) {
	type scored struct {
		result     provider.SearchResult
		typeMatch  bool
		similarity float64
		order      int
	}
	list := make([]scored, len(matches))
	for i, m := range matches {
		list[i] = scored{
			result:     m,
			typeMatch:  catalog.NormalizeType(m.Type) == mediaType,
			similarity: textutil.TitleSimilarity(title, m.Title),
			order:      displayOrder(settings, m.Provider),
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		x, y := list[i], list[j]
		if x.typeMatch != y.typeMatch {
			return x.typeMatch
		}
		if x.similarity != y.similarity {
			return x.similarity > y.similarity
		}
		return x.order < y.order
	})
	for i, item := range list {
		matches[i] = item.result
	}
}

func displayOrder(settings []catalog.ProviderSetting, name string) int {
	if rank := provider.Rank(settings, name); rank >= 0 {
		return rank
	}
	return unrankedOrder
}

func (s *Service) submitImport(ctx context.Context, req importer.Request, reason string) workflow.Outcome {
	if s.manager == nil {
		return workflow.Failure(services.Wrap(services.ErrConfiguration, "tasks", "auto import", "no job manager configured", nil))
	}
	job, err := s.manager.Submit(ctx, s.genericImportSpec(req))
	var dup *workflow.DuplicateJobError
	if errors.As(err, &dup) {
		return workflow.Success(fmt.Sprintf("%s: import of %q from %s already queued as job #%d", reason, req.Title, req.Provider, dup.ExistingID))
	}
	if err != nil {
		return workflow.Failure(err)
	}
	return workflow.Success(fmt.Sprintf("%s: queued import job #%d for %q from %s", reason, job.ID, req.Title, req.Provider))
}
