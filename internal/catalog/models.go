package catalog

import (
	"strings"
	"time"
)

// Media types stored on works.
const (
	TypeTVSeries = "tv_series"
	TypeMovie    = "movie"
	TypeOVA      = "ova"
	TypeOther    = "other"
)

// NormalizeType maps free-form media types onto the stored set.
func NormalizeType(value string) string {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case TypeMovie, "film":
		return TypeMovie
	case TypeOVA:
		return TypeOVA
	case TypeTVSeries, "tv", "series", "anime", "":
		return TypeTVSeries
	default:
		return TypeOther
	}
}

// Work is a catalogued show or movie.
type Work struct {
	ID             int64     `json:"id"`
	Title          string    `json:"title"`
	Season         int       `json:"season"`
	Type           string    `json:"type"`
	ImageURL       string    `json:"image_url,omitempty"`
	LocalImagePath string    `json:"local_image_path,omitempty"`
	EpisodeCount   *int      `json:"episode_count,omitempty"`
	Year           *int      `json:"year,omitempty"`
	TMDBID         string    `json:"tmdb_id,omitempty"`
	IMDBID         string    `json:"imdb_id,omitempty"`
	TVDBID         string    `json:"tvdb_id,omitempty"`
	DoubanID       string    `json:"douban_id,omitempty"`
	BangumiID      string    `json:"bangumi_id,omitempty"`
	EpisodeGroupID string    `json:"episode_group_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// WorkMetadata carries the optional fields filled on a work only while the
// stored value is still empty.
type WorkMetadata struct {
	ImageURL       string
	LocalImagePath string
	EpisodeCount   *int
	Year           *int
	TMDBID         string
	IMDBID         string
	TVDBID         string
	DoubanID       string
	BangumiID      string
	EpisodeGroupID string
}

// Source binds a provider media id to a work.
type Source struct {
	ID                 int64     `json:"id"`
	WorkID             int64     `json:"work_id"`
	Provider           string    `json:"provider"`
	MediaID            string    `json:"media_id"`
	IsFavorited        bool      `json:"is_favorited"`
	IncrementalRefresh bool      `json:"incremental_refresh"`
	CreatedAt          time.Time `json:"created_at"`
}

// Episode is one fetched episode of a source.
type Episode struct {
	ID                int64      `json:"id"`
	SourceID          int64      `json:"source_id"`
	Index             int        `json:"index"`
	Title             string     `json:"title"`
	SourceURL         string     `json:"source_url,omitempty"`
	ProviderEpisodeID string     `json:"provider_episode_id,omitempty"`
	TrackPath         string     `json:"track_path,omitempty"`
	CommentCount      int        `json:"comment_count"`
	FetchedAt         *time.Time `json:"fetched_at,omitempty"`
}

// NewEpisode describes an episode row to create.
type NewEpisode struct {
	SourceID          int64
	Index             int
	Title             string
	SourceURL         string
	ProviderEpisodeID string
}

// ProviderSetting ranks and toggles a provider.
type ProviderSetting struct {
	Provider     string `json:"provider"`
	DisplayOrder int    `json:"display_order"`
	Enabled      bool   `json:"enabled"`
}

// Stats counts catalog rows.
type Stats struct {
	Works    int `json:"works"`
	Sources  int `json:"sources"`
	Episodes int `json:"episodes"`
}
