// Package metadata defines the metadata collaborator used by import jobs:
// external-id details, alias lookup, failover comment sources and media id
// recovery for sources whose listing went empty.
package metadata

import (
	"context"

	"danmu/internal/danmaku"
)

// Details describes a show or movie as known to a metadata provider.
type Details struct {
	Provider       string   `json:"provider"`
	ItemID         string   `json:"item_id"`
	Title          string   `json:"title"`
	Type           string   `json:"type"`
	Season         int      `json:"season"`
	Year           int      `json:"year,omitempty"`
	ImageURL       string   `json:"image_url,omitempty"`
	EpisodeCount   int      `json:"episode_count,omitempty"`
	Aliases        []string `json:"aliases,omitempty"`
	TMDBID         string   `json:"tmdb_id,omitempty"`
	IMDBID         string   `json:"imdb_id,omitempty"`
	TVDBID         string   `json:"tvdb_id,omitempty"`
	DoubanID       string   `json:"douban_id,omitempty"`
	BangumiID      string   `json:"bangumi_id,omitempty"`
	EpisodeGroupID string   `json:"episode_group_id,omitempty"`
}

// SourceInfo identifies a source whose media id needs to be recovered.
type SourceInfo struct {
	Provider string `json:"provider"`
	MediaID  string `json:"media_id"`
	Title    string `json:"title"`
	Season   int    `json:"season"`
	Type     string `json:"type"`
	Year     int    `json:"year,omitempty"`
}

// Resolver is the metadata collaborator consumed by import jobs.
type Resolver interface {
	Details(ctx context.Context, provider, itemID, mediaType string) (*Details, error)
	SearchAliases(ctx context.Context, title string) ([]string, error)
	// FailoverComments returns comments for an episode from the resolver's
	// own sources. An empty result means no failover source had the episode.
	FailoverComments(ctx context.Context, title string, season, episode int) ([]danmaku.Comment, error)
	// FindNewMediaID returns a replacement media id, or "" when none is known.
	FindNewMediaID(ctx context.Context, info SourceInfo) (string, error)
}

// Noop is a Resolver that knows nothing.
type Noop struct{}

func (Noop) Details(context.Context, string, string, string) (*Details, error) { return nil, nil }

func (Noop) SearchAliases(context.Context, string) ([]string, error) { return nil, nil }

func (Noop) FailoverComments(context.Context, string, int, int) ([]danmaku.Comment, error) {
	return nil, nil
}

func (Noop) FindNewMediaID(context.Context, SourceInfo) (string, error) { return "", nil }
