package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"danmu/internal/danmaku"
	"danmu/internal/metadata"
	"danmu/internal/services"
)

// Metadata implements metadata.Resolver against the gateway.
type Metadata struct {
	client *Client
}

var _ metadata.Resolver = (*Metadata)(nil)

// NewMetadata wraps client.
func NewMetadata(client *Client) *Metadata {
	return &Metadata{client: client}
}

// Details looks up an item by the metadata provider's id.
func (m *Metadata) Details(ctx context.Context, provider, itemID, mediaType string) (*metadata.Details, error) {
	var out metadata.Details
	query := map[string]string{}
	if mediaType != "" {
		query["type"] = mediaType
	}
	if err := m.client.do(ctx, "metadata details", call{
		method: http.MethodGet,
		path:   "/metadata/" + url.PathEscape(provider) + "/" + url.PathEscape(itemID),
		query:  query,
		out:    &out,
	}); err != nil {
		return nil, err
	}
	if out.Provider == "" {
		out.Provider = provider
	}
	if out.ItemID == "" {
		out.ItemID = itemID
	}
	return &out, nil
}

type aliasResponse struct {
	Aliases []string `json:"aliases"`
}

// SearchAliases returns alternative titles. Unknown titles yield no aliases.
func (m *Metadata) SearchAliases(ctx context.Context, title string) ([]string, error) {
	var out aliasResponse
	err := m.client.do(ctx, "search aliases", call{
		method: http.MethodGet,
		path:   "/metadata/aliases",
		query:  map[string]string{"title": strings.TrimSpace(title)},
		out:    &out,
	})
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return out.Aliases, nil
}

// FailoverComments asks the metadata side for comments of one episode. A 404
// means no failover source had the episode.
func (m *Metadata) FailoverComments(ctx context.Context, title string, season, episode int) ([]danmaku.Comment, error) {
	var out commentsResponse
	err := m.client.do(ctx, "failover comments", call{
		method: http.MethodGet,
		path:   "/metadata/failover",
		query: map[string]string{
			"title":   strings.TrimSpace(title),
			"season":  strconv.Itoa(season),
			"episode": strconv.Itoa(episode),
		},
		out: &out,
	})
	if errors.Is(err, services.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	comments := make([]danmaku.Comment, 0, len(out.Comments))
	for _, c := range out.Comments {
		comments = append(comments, danmaku.FromPacked(c.P, danmaku.CleanText(c.M)))
	}
	return comments, nil
}

// FindNewMediaID asks the metadata side for a replacement media id.
func (m *Metadata) FindNewMediaID(ctx context.Context, info metadata.SourceInfo) (string, error) {
	var out mediaIDResponse
	err := m.client.do(ctx, "find media id", call{
		method: http.MethodPost,
		path:   "/metadata/media-id",
		body:   info,
		out:    &out,
	})
	if errors.Is(err, services.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.MediaID), nil
}
