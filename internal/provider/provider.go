package provider

import (
	"context"
	"errors"

	"danmu/internal/danmaku"
	"danmu/internal/metadata"
)

var (
	// ErrUnknownProvider is returned by Registry.Get for unregistered names.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrTransport marks network-level failures talking to a provider.
	ErrTransport = errors.New("provider transport failure")
)

// Episode is one playable entry listed by a provider.
type Episode struct {
	Index             int    `json:"index"`
	Title             string `json:"title"`
	ProviderEpisodeID string `json:"provider_episode_id"`
	URL               string `json:"url,omitempty"`
}

// SearchResult is one keyword search hit.
type SearchResult struct {
	Provider     string `json:"provider"`
	MediaID      string `json:"media_id"`
	Title        string `json:"title"`
	Type         string `json:"type"`
	Season       int    `json:"season"`
	Year         int    `json:"year,omitempty"`
	ImageURL     string `json:"image_url,omitempty"`
	EpisodeCount int    `json:"episode_count,omitempty"`
}

// ProgressFunc receives fetch progress in percent.
type ProgressFunc func(percent float64)

// Provider lists episodes and fetches comment tracks.
type Provider interface {
	Name() string
	// ListEpisodes returns the episodes of mediaID. When target is set the
	// provider may narrow the listing to that index.
	ListEpisodes(ctx context.Context, mediaID string, target *int, mediaType string) ([]Episode, error)
	FetchComments(ctx context.Context, providerEpisodeID string, progress ProgressFunc) ([]danmaku.Comment, error)
}

// URLResolver imports a single episode from a page URL.
type URLResolver interface {
	ResolveURL(ctx context.Context, url string) (string, error)
	FormatIDForComments(id string) string
}

// TitleResolver reads an episode title from a page URL.
type TitleResolver interface {
	TitleFromURL(ctx context.Context, url string) (string, error)
}

// Searcher finds media by keyword.
type Searcher interface {
	Search(ctx context.Context, keyword string, episode *int) ([]SearchResult, error)
}

// MediaIDFinder recovers a replacement media id for a source whose listing
// went empty.
type MediaIDFinder interface {
	FindNewMediaID(ctx context.Context, info metadata.SourceInfo) (string, error)
}

// Report invokes progress when it is non-nil.
func (f ProgressFunc) Report(percent float64) {
	if f != nil {
		f(percent)
	}
}
