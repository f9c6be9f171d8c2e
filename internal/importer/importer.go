package importer

import (
	"context"
	"log/slog"
	"time"

	"danmu/internal/catalog"
	"danmu/internal/imagecache"
	"danmu/internal/logging"
	"danmu/internal/metadata"
	"danmu/internal/provider"
	"danmu/internal/ratelimit"
	"danmu/internal/trackstore"
)

// Deps are the collaborators shared by every import job.
type Deps struct {
	Catalog  *catalog.Store
	Tracks   *trackstore.Store
	Registry *provider.Registry
	Metadata metadata.Resolver
	Images   imagecache.Downloader
	Limiter  *ratelimit.Limiter
	Logger   *slog.Logger
}

// Importer builds import job bodies.
type Importer struct {
	catalog  *catalog.Store
	tracks   *trackstore.Store
	registry *provider.Registry
	metadata metadata.Resolver
	images   imagecache.Downloader
	limiter  *ratelimit.Limiter
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// Option configures an Importer.
type Option func(*Importer)

// WithClock overrides the fetch timestamp source.
func WithClock(now func() time.Time) Option {
	return func(im *Importer) {
		if now != nil {
			im.now = now
		}
	}
}

// WithSleeper overrides how rate-limit backoffs wait.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(im *Importer) {
		if sleep != nil {
			im.sleep = sleep
		}
	}
}

// New constructs an Importer. A nil Metadata resolver knows nothing and a
// nil Limiter allows every call.
func New(deps Deps, opts ...Option) *Importer {
	im := &Importer{
		catalog:  deps.Catalog,
		tracks:   deps.Tracks,
		registry: deps.Registry,
		metadata: deps.Metadata,
		images:   deps.Images,
		limiter:  deps.Limiter,
		logger:   logging.NewComponentLogger(deps.Logger, "importer"),
		now:      time.Now,
		sleep:    ratelimit.SleepWithContext,
	}
	if im.metadata == nil {
		im.metadata = metadata.Noop{}
	}
	if im.limiter == nil {
		im.limiter = ratelimit.New(time.Hour, 0)
	}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Request describes a generic import.
type Request struct {
	Provider       string `json:"provider"`
	MediaID        string `json:"media_id"`
	Title          string `json:"title"`
	Type           string `json:"type"`
	Season         int    `json:"season"`
	EpisodeIndex   *int   `json:"episode_index,omitempty"`
	ImageURL       string `json:"image_url,omitempty"`
	DoubanID       string `json:"douban_id,omitempty"`
	TMDBID         string `json:"tmdb_id,omitempty"`
	IMDBID         string `json:"imdb_id,omitempty"`
	TVDBID         string `json:"tvdb_id,omitempty"`
	BangumiID      string `json:"bangumi_id,omitempty"`
	EpisodeGroupID string `json:"episode_group_id,omitempty"`
	Year           *int   `json:"year,omitempty"`
}

func (r Request) workMetadata() catalog.WorkMetadata {
	return catalog.WorkMetadata{
		ImageURL:       r.ImageURL,
		Year:           r.Year,
		TMDBID:         r.TMDBID,
		IMDBID:         r.IMDBID,
		TVDBID:         r.TVDBID,
		DoubanID:       r.DoubanID,
		BangumiID:      r.BangumiID,
		EpisodeGroupID: r.EpisodeGroupID,
	}
}

// requestForWork rebuilds an import request from a stored source.
func requestForWork(work *catalog.Work, src *catalog.Source) Request {
	return Request{
		Provider:       src.Provider,
		MediaID:        src.MediaID,
		Title:          work.Title,
		Type:           work.Type,
		Season:         work.Season,
		ImageURL:       work.ImageURL,
		DoubanID:       work.DoubanID,
		TMDBID:         work.TMDBID,
		IMDBID:         work.IMDBID,
		TVDBID:         work.TVDBID,
		BangumiID:      work.BangumiID,
		EpisodeGroupID: work.EpisodeGroupID,
		Year:           work.Year,
	}
}
