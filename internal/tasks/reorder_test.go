package tasks_test

import (
	"context"
	"errors"
	"testing"

	"danmu/internal/catalog"
	"danmu/internal/episodeid"
	"danmu/internal/services"
	"danmu/internal/testsupport"
)

func TestReorderEpisodesRenumbersAndIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	workID, sourceID := testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")
	h.seedEpisode(t, workID, sourceID, 2)
	h.seedEpisode(t, workID, sourceID, 5)
	if _, err := h.stores.Catalog.CreateEpisodeIfAbsent(ctx, catalog.NewEpisode{SourceID: sourceID, Index: 9, Title: "no file"}); err != nil {
		t.Fatalf("CreateEpisodeIfAbsent: %v", err)
	}

	outcome, _ := testsupport.Run(ctx, h.service.ReorderEpisodes(sourceID))
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %q", outcome.Message())
	}
	if outcome.Message() != "reorder complete: migrated 3 of 3 episodes" {
		t.Fatalf("unexpected message %q", outcome.Message())
	}

	eps, err := h.stores.Catalog.ListEpisodes(ctx, sourceID)
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	for i, ep := range eps {
		want, err := episodeid.Encode(workID, 1, i+1)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		if ep.Index != i+1 || ep.ID != want {
			t.Fatalf("episode %d: got index %d id %d, want %d/%d", i, ep.Index, ep.ID, i+1, want)
		}
		if ep.TrackPath != "" {
			if ep.TrackPath != episodeid.TrackPath(workID, ep.ID) {
				t.Fatalf("track path %q not moved to identity", ep.TrackPath)
			}
			if !h.trackExists(t, ep.TrackPath) {
				t.Fatalf("track %s missing after move", ep.TrackPath)
			}
		}
	}

	again, _ := testsupport.Run(ctx, h.service.ReorderEpisodes(sourceID))
	if again.Message() != "episode order and ids already correct" {
		t.Fatalf("expected no-op second run, got %q", again.Message())
	}
}

func TestReorderEpisodesEmptyAndMissing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, sourceID := testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")

	outcome, _ := testsupport.Run(ctx, h.service.ReorderEpisodes(sourceID))
	if !outcome.Succeeded() || outcome.Message() != "no episodes found, nothing to reorder" {
		t.Fatalf("unexpected outcome %q", outcome.Message())
	}

	missing, _ := testsupport.Run(ctx, h.service.ReorderEpisodes(9999))
	if missing.Succeeded() || !errors.Is(missing.Err(), services.ErrNotFound) {
		t.Fatalf("expected not found failure, got %v", missing.Err())
	}
}
