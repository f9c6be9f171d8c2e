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
	"danmu/internal/services"
	"danmu/internal/workflow"
)

// CustomProvider is the provider name of sources whose tracks are uploaded
// by hand rather than fetched.
const CustomProvider = "custom"

var errURLImportUnsupported = services.Wrap(services.ErrUnsupported, "importer", "manual import", "provider does not support URL import", nil)

// ManualItem is one episode of a manual import. Custom sources take Content
// (XML, or the line-oriented text format); other providers take URL.
type ManualItem struct {
	Index   int    `json:"index"`
	Title   string `json:"title,omitempty"`
	URL     string `json:"url,omitempty"`
	Content string `json:"content,omitempty"`
}

// ManualImport imports a single episode into an existing source.
func (im *Importer) ManualImport(sourceID int64, it ManualItem) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		src, err := im.catalog.GetSource(ctx, sourceID)
		if err != nil {
			return workflow.Failure(err)
		}
		count, err := im.manualOne(ctx, r, src, it, 10, 80)
		if err != nil {
			return workflow.Failure(err)
		}
		return workflow.Success(fmt.Sprintf("imported episode %d with %d comments", it.Index, count))
	}
}

// BatchManualImport runs ManualImport for every item. Rate limits pause the
// current item; other failures are counted and the batch moves on.
func (im *Importer) BatchManualImport(sourceID int64, items []ManualItem) workflow.Func {
	return func(ctx context.Context, r workflow.Reporter) workflow.Outcome {
		if len(items) == 0 {
			return workflow.Failure(services.Wrap(services.ErrValidation, "importer", "batch manual import", "no items to import", nil))
		}
		src, err := im.catalog.GetSource(ctx, sourceID)
		if err != nil {
			return workflow.Failure(err)
		}
		logger := logging.WithContext(ctx, im.logger)
		total := len(items)
		slice := 85.0 / float64(total)
		imported, failed := 0, 0
		for i, it := range items {
			if err := ctx.Err(); err != nil {
				return workflow.Failure(err)
			}
			base := 10 + float64(i)*85/float64(total)
			im.report(ctx, r, base, fmt.Sprintf("importing episode %d (%d/%d)", it.Index, i+1, total), "")
			if _, err := im.manualOne(ctx, r, src, it, base, slice); err != nil {
				if ctx.Err() != nil {
					return workflow.Failure(ctx.Err())
				}
				failed++
				logging.WarnWithContext(logger, "manual import item failed", "manual_import_item_failed",
					logging.Error(err),
					logging.Int(logging.FieldEpisodeIndex, it.Index),
					logging.String(logging.FieldErrorHint, services.Hint(err)),
					logging.String(logging.FieldImpact, "item skipped"),
				)
				continue
			}
			imported++
		}
		message := fmt.Sprintf("imported %d of %d", imported, total)
		if failed > 0 {
			message += fmt.Sprintf("; %d failed", failed)
		}
		return workflow.Success(message)
	}
}

// manualOne imports one item and returns the stored comment count.
func (im *Importer) manualOne(ctx context.Context, r workflow.Reporter, src *catalog.Source, it ManualItem, base, slice float64) (int, error) {
	if it.Index <= 0 {
		return 0, services.Wrap(services.ErrValidation, "importer", "manual import", "episode index must be positive", nil)
	}
	ep := provider.Episode{Index: it.Index, Title: strings.TrimSpace(it.Title), URL: strings.TrimSpace(it.URL)}

	var (
		comments []danmaku.Comment
		prov     provider.Provider
		err      error
	)
	if src.Provider == CustomProvider {
		comments, err = parseUpload(it.Content)
		if err != nil {
			return 0, err
		}
		ep.ProviderEpisodeID = CustomProvider
		prov = customProvider{}
	} else {
		prov, err = im.registry.Get(src.Provider)
		if err != nil {
			return 0, err
		}
		resolver, ok := prov.(provider.URLResolver)
		if !ok {
			return 0, errURLImportUnsupported
		}
		if ep.URL == "" {
			return 0, services.Wrap(services.ErrValidation, "importer", "manual import", "url is required", nil)
		}
		id, err := resolver.ResolveURL(ctx, ep.URL)
		if err != nil {
			return 0, fmt.Errorf("resolve %s: %w", ep.URL, err)
		}
		ep.ProviderEpisodeID = resolver.FormatIDForComments(id)
		if ep.Title == "" {
			if titles, ok := prov.(provider.TitleResolver); ok {
				if title, err := titles.TitleFromURL(ctx, ep.URL); err == nil {
					ep.Title = strings.TrimSpace(title)
				}
			}
		}
		comments, err = im.fetch(ctx, r, prov, ep.ProviderEpisodeID, base, slice, it.Index)
		if err != nil {
			return 0, err
		}
		if len(comments) == 0 {
			return 0, fmt.Errorf("no comments found at %s", ep.URL)
		}
	}

	if _, err := im.persist(ctx, target{workID: src.WorkID, sourceID: src.ID, provider: prov}, ep, comments); err != nil {
		return 0, err
	}
	if src.Provider != CustomProvider {
		im.limiter.Increment(prov.Name())
	}
	return len(comments), nil
}

// parseUpload accepts an XML document or the text format. Text is converted
// to XML first so both paths share one parser.
func parseUpload(content string) ([]danmaku.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, services.Wrap(services.ErrValidation, "importer", "manual import", "content is required", nil)
	}
	if !danmaku.LooksLikeXML(content) {
		content = string(danmaku.ConvertText(content))
	}
	comments, err := danmaku.ParseXMLString(content)
	if len(comments) == 0 {
		if err == nil {
			err = errors.New("document contains no comments")
		}
		return nil, services.Wrap(services.ErrValidation, "importer", "manual import", "content has no usable comments", err)
	}
	return comments, nil
}

// customProvider stands in for uploads in the shared persistence path.
type customProvider struct{}

func (customProvider) Name() string { return CustomProvider }

func (customProvider) ListEpisodes(context.Context, string, *int, string) ([]provider.Episode, error) {
	return nil, nil
}

func (customProvider) FetchComments(context.Context, string, provider.ProgressFunc) ([]danmaku.Comment, error) {
	return nil, nil
}
