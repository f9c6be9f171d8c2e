package gateway

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"danmu/internal/danmaku"
	"danmu/internal/metadata"
	"danmu/internal/provider"
	"danmu/internal/services"
)

// Provider is a scraper exposed through the gateway. It implements every
// optional capability; the gateway answers 501 for the ones a scraper lacks.
type Provider struct {
	client *Client
	name   string
}

var (
	_ provider.Provider      = (*Provider)(nil)
	_ provider.URLResolver   = (*Provider)(nil)
	_ provider.TitleResolver = (*Provider)(nil)
	_ provider.Searcher      = (*Provider)(nil)
	_ provider.MediaIDFinder = (*Provider)(nil)
)

// NewProvider binds a scraper name to the client.
func NewProvider(client *Client, name string) *Provider {
	return &Provider{client: client, name: strings.ToLower(strings.TrimSpace(name))}
}

// Providers builds one adapter per name.
func Providers(client *Client, names []string) []provider.Provider {
	out := make([]provider.Provider, 0, len(names))
	for _, name := range names {
		out = append(out, NewProvider(client, name))
	}
	return out
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) path(parts ...string) string {
	escaped := make([]string, 0, len(parts)+2)
	escaped = append(escaped, "/providers", url.PathEscape(p.name))
	for _, part := range parts {
		escaped = append(escaped, url.PathEscape(part))
	}
	return strings.Join(escaped, "/")
}

type episodesResponse struct {
	Episodes []provider.Episode `json:"episodes"`
}

// ListEpisodes lists the episodes of mediaID.
func (p *Provider) ListEpisodes(ctx context.Context, mediaID string, target *int, mediaType string) ([]provider.Episode, error) {
	query := map[string]string{}
	if target != nil {
		query["episode"] = strconv.Itoa(*target)
	}
	if mediaType != "" {
		query["type"] = mediaType
	}
	var out episodesResponse
	if err := p.client.do(ctx, "list episodes", call{
		method: http.MethodGet,
		path:   p.path("media", mediaID, "episodes"),
		query:  query,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	return out.Episodes, nil
}

type wireComment struct {
	P string `json:"p"`
	M string `json:"m"`
}

type commentsResponse struct {
	Count    int           `json:"count"`
	Comments []wireComment `json:"comments"`
}

// FetchComments downloads the track for one provider episode id. The gateway
// answers in one response, so progress jumps from 0 to 100.
func (p *Provider) FetchComments(ctx context.Context, providerEpisodeID string, progress provider.ProgressFunc) ([]danmaku.Comment, error) {
	progress.Report(0)
	var out commentsResponse
	if err := p.client.do(ctx, "fetch comments", call{
		method: http.MethodGet,
		path:   p.path("episodes", providerEpisodeID, "comments"),
		out:    &out,
	}); err != nil {
		return nil, err
	}
	comments := make([]danmaku.Comment, 0, len(out.Comments))
	for _, c := range out.Comments {
		comments = append(comments, danmaku.FromPacked(c.P, danmaku.CleanText(c.M)))
	}
	progress.Report(100)
	return comments, nil
}

type resolveRequest struct {
	URL string `json:"url"`
}

type resolveResponse struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// ResolveURL maps a page URL onto the provider's episode id.
func (p *Provider) ResolveURL(ctx context.Context, pageURL string) (string, error) {
	var out resolveResponse
	if err := p.client.do(ctx, "resolve url", call{
		method: http.MethodPost,
		path:   p.path("resolve"),
		body:   resolveRequest{URL: strings.TrimSpace(pageURL)},
		out:    &out,
	}); err != nil {
		return "", err
	}
	id := strings.TrimSpace(out.ID)
	if id == "" {
		return "", services.Wrap(services.ErrNotFound, "gateway", "resolve url", "no episode id for "+pageURL, nil)
	}
	return id, nil
}

// FormatIDForComments turns a resolved id into the id FetchComments expects.
// Gateway ids are already in that form.
func (p *Provider) FormatIDForComments(id string) string {
	return strings.TrimSpace(id)
}

// TitleFromURL reads the episode title of a page URL.
func (p *Provider) TitleFromURL(ctx context.Context, pageURL string) (string, error) {
	var out resolveResponse
	if err := p.client.do(ctx, "title from url", call{
		method: http.MethodPost,
		path:   p.path("resolve"),
		body:   resolveRequest{URL: strings.TrimSpace(pageURL)},
		out:    &out,
	}); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Title), nil
}

type searchResponse struct {
	Results []provider.SearchResult `json:"results"`
}

// Search finds media by keyword.
func (p *Provider) Search(ctx context.Context, keyword string, episode *int) ([]provider.SearchResult, error) {
	query := map[string]string{"keyword": strings.TrimSpace(keyword)}
	if episode != nil {
		query["episode"] = strconv.Itoa(*episode)
	}
	var out searchResponse
	if err := p.client.do(ctx, "search", call{
		method: http.MethodGet,
		path:   p.path("search"),
		query:  query,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	for i := range out.Results {
		if out.Results[i].Provider == "" {
			out.Results[i].Provider = p.name
		}
	}
	return out.Results, nil
}

type mediaIDResponse struct {
	MediaID string `json:"media_id"`
}

// FindNewMediaID asks the scraper for a replacement media id.
func (p *Provider) FindNewMediaID(ctx context.Context, info metadata.SourceInfo) (string, error) {
	var out mediaIDResponse
	if err := p.client.do(ctx, "find media id", call{
		method: http.MethodPost,
		path:   p.path("media-id"),
		body:   info,
		out:    &out,
	}); err != nil {
		return "", err
	}
	return strings.TrimSpace(out.MediaID), nil
}
