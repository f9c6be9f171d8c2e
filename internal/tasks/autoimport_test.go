package tasks_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"danmu/internal/catalog"
	"danmu/internal/metadata"
	"danmu/internal/provider"
	"danmu/internal/services"
	"danmu/internal/tasks"
	"danmu/internal/testsupport"
)

func TestAutoImportPicksBestSearchMatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	if err := h.stores.Catalog.SyncProviderSettings(ctx, []catalog.ProviderSetting{
		{Provider: "bilibili", DisplayOrder: 2, Enabled: true},
		{Provider: "tencent", DisplayOrder: 1, Enabled: true},
	}); err != nil {
		t.Fatalf("SyncProviderSettings: %v", err)
	}
	h.meta.DetailsByID = map[string]*metadata.Details{
		"1001": {Title: "Frieren", Type: "tv_series", Season: 1, Aliases: []string{"Sousou no Frieren"}, TMDBID: "1001"},
	}
	h.bilibili.SetSearchResults(
		provider.SearchResult{MediaID: "ss1", Title: "Frieren", Type: "tv_series"},
		provider.SearchResult{MediaID: "ss-unrelated", Title: "Dungeon Meshi", Type: "tv_series"},
	)
	h.tencent.SetSearchResults(
		provider.SearchResult{MediaID: "mv1", Title: "Frieren", Type: "movie"},
		provider.SearchResult{MediaID: "v1", Title: "Frieren", Type: "tv_series"},
	)

	outcome, _ := testsupport.Run(ctx, h.service.AutoSearchAndImport(tasks.AutoImportParams{Provider: "tmdb", ID: "1001"}))
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %q", outcome.Message())
	}
	specs := h.submitter.submitted()
	if len(specs) != 1 {
		t.Fatalf("expected one nested import, got %d", len(specs))
	}
	// Same type and similarity on both providers; tencent ranks first.
	if specs[0].UniqueKey != "import-tencent-v1" {
		t.Fatalf("unexpected nested key %q", specs[0].UniqueKey)
	}
	if specs[0].Kind != string(tasks.KindGenericImport) {
		t.Fatalf("unexpected nested kind %q", specs[0].Kind)
	}
}

func TestAutoImportReusesFavouriteSource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	workID, _ := testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")
	fav, err := h.stores.Catalog.LinkSource(ctx, workID, "tencent", "v1")
	if err != nil {
		t.Fatalf("LinkSource: %v", err)
	}
	if err := h.stores.Catalog.SetFavorite(ctx, fav); err != nil {
		t.Fatalf("SetFavorite: %v", err)
	}

	outcome, _ := testsupport.Run(ctx, h.service.AutoSearchAndImport(tasks.AutoImportParams{Provider: tasks.KeywordSearch, ID: "Frieren"}))
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %q", outcome.Message())
	}
	specs := h.submitter.submitted()
	if len(specs) != 1 || specs[0].UniqueKey != "import-tencent-v1" {
		t.Fatalf("expected favourite source import, got %+v", specs)
	}
	if !strings.Contains(outcome.Message(), "already in library") {
		t.Fatalf("unexpected message %q", outcome.Message())
	}
}

func TestAutoImportExistingWorkUsesRankedSource(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	workID, _ := testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")
	if _, err := h.stores.Catalog.LinkSource(ctx, workID, "tencent", "v1"); err != nil {
		t.Fatalf("LinkSource: %v", err)
	}
	if err := h.stores.Catalog.SyncProviderSettings(ctx, []catalog.ProviderSetting{
		{Provider: "tencent", DisplayOrder: 1, Enabled: true},
	}); err != nil {
		t.Fatalf("SyncProviderSettings: %v", err)
	}

	testsupport.Run(ctx, h.service.AutoSearchAndImport(tasks.AutoImportParams{Provider: tasks.KeywordSearch, ID: "Frieren"}))
	specs := h.submitter.submitted()
	if len(specs) != 1 || specs[0].UniqueKey != "import-tencent-v1" {
		t.Fatalf("expected ranked source import, got %+v", specs)
	}
}

func TestAutoImportDuplicateNestedJobSucceeds(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")
	h.submitter.held["import-bilibili-ss1"] = 42

	outcome, _ := testsupport.Run(ctx, h.service.AutoSearchAndImport(tasks.AutoImportParams{Provider: tasks.KeywordSearch, ID: "Frieren"}))
	if !outcome.Succeeded() || !strings.Contains(outcome.Message(), "job #42") {
		t.Fatalf("unexpected outcome %q", outcome.Message())
	}
}

func TestAutoImportNoMatchFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.bilibili.SetSearchResults(provider.SearchResult{MediaID: "x", Title: "Something Else"})

	outcome, _ := testsupport.Run(ctx, h.service.AutoSearchAndImport(tasks.AutoImportParams{Provider: tasks.KeywordSearch, ID: "Frieren"}))
	if outcome.Succeeded() {
		t.Fatalf("expected failure")
	}
	if !strings.Contains(outcome.Message(), "no provider matched Frieren") {
		t.Fatalf("unexpected message %q", outcome.Message())
	}
	if !errors.Is(outcome.Err(), services.ErrNotFound) {
		t.Fatalf("expected not found marker, got %v", outcome.Err())
	}
	if len(h.submitter.submitted()) != 0 {
		t.Fatalf("nothing should be queued")
	}
}
