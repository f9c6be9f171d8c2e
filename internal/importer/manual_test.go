package importer_test

import (
	"context"
	"errors"
	"testing"

	"danmu/internal/danmaku"
	"danmu/internal/importer"
	"danmu/internal/services"
	"danmu/internal/testsupport"
)

func TestManualImportFromURL(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	_, sourceID := testsupport.SeedSource(t, h.stores.Catalog, "Show", "bilibili", "ss1")
	h.provider.SetURL("https://v.example/7", "raw7", "Seventh")
	h.provider.SetComments("cid:raw7", testsupport.Comments(3)...)

	outcome, _ := testsupport.Run(ctx, h.importer.ManualImport(sourceID, importer.ManualItem{Index: 7, URL: "https://v.example/7"}))
	if outcome.Message() != "imported episode 7 with 3 comments" {
		t.Fatalf("unexpected outcome %q err=%v", outcome.Message(), outcome.Err())
	}
	ep, err := h.stores.Catalog.FindEpisode(ctx, sourceID, 7)
	if err != nil || ep == nil {
		t.Fatalf("expected episode stored, err=%v", err)
	}
	if ep.Title != "Seventh" || ep.ProviderEpisodeID != "cid:raw7" || ep.SourceURL != "https://v.example/7" {
		t.Fatalf("unexpected episode %+v", ep)
	}
}

func TestManualImportRequiresURLResolver(t *testing.T) {
	h := newHarness(t, 0)
	_, sourceID := testsupport.SeedSource(t, h.stores.Catalog, "Show", "plain", "p1")

	outcome, _ := testsupport.Run(context.Background(), h.importer.ManualImport(sourceID, importer.ManualItem{Index: 1, URL: "https://x"}))
	if !errors.Is(outcome.Err(), services.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", outcome.Err())
	}
}

func TestManualImportCustomContent(t *testing.T) {
	h := newHarness(t, 0)
	ctx := context.Background()
	_, sourceID := testsupport.SeedSource(t, h.stores.Catalog, "Show", "custom", "upload")

	text := "1.5,1,25,16777215 | hello\n2,1,25,255 | world\nbroken line"
	outcome, _ := testsupport.Run(ctx, h.importer.ManualImport(sourceID, importer.ManualItem{Index: 1, Content: text}))
	if outcome.Message() != "imported episode 1 with 2 comments" {
		t.Fatalf("unexpected outcome %q err=%v", outcome.Message(), outcome.Err())
	}
	ep, _ := h.stores.Catalog.FindEpisode(ctx, sourceID, 1)
	stored, err := h.stores.Tracks.Read(ep.TrackPath)
	if err != nil || len(stored) != 2 || stored[0].Text != "hello" {
		t.Fatalf("unexpected stored comments %+v err=%v", stored, err)
	}

	xml := string(danmaku.Document(testsupport.Comments(4)))
	outcome, _ = testsupport.Run(ctx, h.importer.ManualImport(sourceID, importer.ManualItem{Index: 2, Content: xml}))
	if outcome.Message() != "imported episode 2 with 4 comments" {
		t.Fatalf("unexpected outcome %q err=%v", outcome.Message(), outcome.Err())
	}

	empty, _ := testsupport.Run(ctx, h.importer.ManualImport(sourceID, importer.ManualItem{Index: 3, Content: "no pipes here"}))
	if !errors.Is(empty.Err(), services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", empty.Err())
	}
	if len(h.limiter.Snapshot()) != 0 {
		t.Fatalf("uploads must not consume provider budget")
	}
}

func TestBatchManualImportCountsFailures(t *testing.T) {
	h := newHarness(t, 1)
	_, sourceID := testsupport.SeedSource(t, h.stores.Catalog, "Show", "bilibili", "ss1")
	h.provider.SetURL("https://v/1", "a", "")
	h.provider.SetURL("https://v/2", "b", "")
	h.provider.SetComments("cid:a", testsupport.Comments(1)...)
	h.provider.SetComments("cid:b", testsupport.Comments(1)...)

	outcome, rep := testsupport.Run(context.Background(), h.importer.BatchManualImport(sourceID, []importer.ManualItem{
		{Index: 1, URL: "https://v/1"},
		{Index: 2, URL: "https://v/unknown"},
		{Index: 3, URL: "https://v/2"},
	}))
	if outcome.Message() != "imported 2 of 3; 1 failed" {
		t.Fatalf("unexpected summary %q", outcome.Message())
	}
	if rep.Paused() != 1 {
		t.Fatalf("expected the third item to wait out the rate limit, got %d pauses", rep.Paused())
	}
}
