package tasks_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"danmu/internal/config"
	"danmu/internal/services"
	"danmu/internal/testsupport"
)

func TestDeleteAnimeRemovesRowsAndTracks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	workID, sourceID := testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")
	epID, path := h.seedEpisode(t, workID, sourceID, 1)

	outcome, _ := testsupport.Run(ctx, h.service.DeleteAnime(workID))
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %q", outcome.Message())
	}
	if _, err := h.stores.Catalog.GetWork(ctx, workID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected work gone, got %v", err)
	}
	if _, err := h.stores.Catalog.GetEpisode(ctx, epID); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected cascaded episode delete, got %v", err)
	}
	if h.trackExists(t, path) {
		t.Fatalf("expected track %s removed", path)
	}
}

func TestDeleteMissingRowsSucceed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for name, fn := range map[string]func() string{
		"work": func() string {
			o, _ := testsupport.Run(ctx, h.service.DeleteAnime(404))
			if !o.Succeeded() {
				t.Fatalf("work: %q", o.Message())
			}
			return o.Message()
		},
		"source": func() string {
			o, _ := testsupport.Run(ctx, h.service.DeleteSource(404))
			if !o.Succeeded() {
				t.Fatalf("source: %q", o.Message())
			}
			return o.Message()
		},
		"episode": func() string {
			o, _ := testsupport.Run(ctx, h.service.DeleteEpisode(404))
			if !o.Succeeded() {
				t.Fatalf("episode: %q", o.Message())
			}
			return o.Message()
		},
	} {
		if msg := fn(); !strings.Contains(msg, "nothing to delete") {
			t.Fatalf("%s: unexpected message %q", name, msg)
		}
	}
}

func TestDeleteSourceRemovesEpisodeTracks(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	workID, sourceID := testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")
	_, p1 := h.seedEpisode(t, workID, sourceID, 1)
	_, p2 := h.seedEpisode(t, workID, sourceID, 2)

	outcome, _ := testsupport.Run(ctx, h.service.DeleteSource(sourceID))
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %q", outcome.Message())
	}
	if h.trackExists(t, p1) || h.trackExists(t, p2) {
		t.Fatalf("expected track files removed")
	}
	if _, err := h.stores.Catalog.GetWork(ctx, workID); err != nil {
		t.Fatalf("work should survive source deletion: %v", err)
	}
}

func TestDeleteEpisodeRetriesLockContention(t *testing.T) {
	h := newHarness(t, testsupport.WithConfig(func(c *config.Config) {
		c.Tasks.DeleteRetryBaseMS = 2000
	}))
	ctx := context.Background()
	workID, sourceID := testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")
	epID, _ := h.seedEpisode(t, workID, sourceID, 1)
	h.catalog.failures[epID] = 2

	outcome, rec := testsupport.Run(ctx, h.service.DeleteEpisode(epID))
	if !outcome.Succeeded() {
		t.Fatalf("expected success after retries, got %q", outcome.Message())
	}
	if got := h.catalog.attemptsFor(epID); got != 3 {
		t.Fatalf("expected 3 attempts, got %d", got)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(h.sleeps) != len(want) || h.sleeps[0] != want[0] || h.sleeps[1] != want[1] {
		t.Fatalf("unexpected backoff %v", h.sleeps)
	}
	retries := 0
	for _, u := range rec.Updates() {
		if strings.Contains(u.Message, "database busy") {
			retries++
		}
	}
	if retries != 2 {
		t.Fatalf("expected 2 retry updates, got %d", retries)
	}
}

func TestDeleteAnimeFailsWhenLockPersists(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	workID, _ := testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")
	h.catalog.failures[workID] = 10

	outcome, _ := testsupport.Run(ctx, h.service.DeleteAnime(workID))
	if outcome.Succeeded() {
		t.Fatalf("expected failure")
	}
	if !errors.Is(outcome.Err(), services.ErrLockContention) {
		t.Fatalf("expected lock contention, got %v", outcome.Err())
	}
	if got := h.catalog.attemptsFor(workID); got != h.cfg.Tasks.DeleteRetryAttempts {
		t.Fatalf("expected %d attempts, got %d", h.cfg.Tasks.DeleteRetryAttempts, got)
	}
	if _, err := h.stores.Catalog.GetWork(ctx, workID); err != nil {
		t.Fatalf("work should remain: %v", err)
	}
}

func TestBulkDeleteEpisodesRecoversFromContention(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	workID, sourceID := testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")
	var ids []int64
	for i := 1; i <= 4; i++ {
		id, _ := h.seedEpisode(t, workID, sourceID, i)
		ids = append(ids, id)
	}
	h.catalog.failures[ids[2]] = 1

	outcome, _ := testsupport.Run(ctx, h.service.DeleteBulkEpisodes(append(ids, 999)))
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %q", outcome.Message())
	}
	if outcome.Message() != "bulk delete finished: 5 processed, 4 deleted" {
		t.Fatalf("unexpected message %q", outcome.Message())
	}
	if got := h.catalog.attemptsFor(ids[2]); got != 2 {
		t.Fatalf("expected item 3 retried once, got %d attempts", got)
	}
	left, err := h.stores.Catalog.ListEpisodes(ctx, sourceID)
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(left) != 0 {
		t.Fatalf("expected all episodes deleted, %d left", len(left))
	}
}

func TestBulkDeleteEpisodesAbortKeepsEarlierDeletes(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	workID, sourceID := testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")
	var ids []int64
	for i := 1; i <= 4; i++ {
		id, _ := h.seedEpisode(t, workID, sourceID, i)
		ids = append(ids, id)
	}
	h.catalog.failures[ids[2]] = 100

	outcome, _ := testsupport.Run(ctx, h.service.DeleteBulkEpisodes(ids))
	if outcome.Succeeded() {
		t.Fatalf("expected abort")
	}
	if !errors.Is(outcome.Err(), services.ErrLockContention) {
		t.Fatalf("expected lock contention, got %v", outcome.Err())
	}
	if !strings.Contains(outcome.Message(), "2 deleted before abort") {
		t.Fatalf("unexpected message %q", outcome.Message())
	}
	if len(h.sleeps) != h.cfg.Tasks.DeleteRetryAttempts-1 {
		t.Fatalf("expected %d backoffs, got %v", h.cfg.Tasks.DeleteRetryAttempts-1, h.sleeps)
	}
	for i := 1; i < len(h.sleeps); i++ {
		if h.sleeps[i] <= h.sleeps[i-1] {
			t.Fatalf("expected increasing backoff, got %v", h.sleeps)
		}
	}

	left, err := h.stores.Catalog.ListEpisodes(ctx, sourceID)
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(left) != 2 || left[0].ID != ids[2] || left[1].ID != ids[3] {
		t.Fatalf("expected items 3 and 4 to remain, got %+v", left)
	}
	if h.catalog.attemptsFor(ids[3]) != 0 {
		t.Fatalf("item after the abort must not be attempted")
	}
}

func TestBulkDeleteSources(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	workID, s1 := testsupport.SeedSource(t, h.stores.Catalog, "Frieren", "bilibili", "ss1")
	s2, err := h.stores.Catalog.LinkSource(ctx, workID, "tencent", "v1")
	if err != nil {
		t.Fatalf("LinkSource: %v", err)
	}
	_, path := h.seedEpisode(t, workID, s2, 1)

	outcome, _ := testsupport.Run(ctx, h.service.DeleteBulkSources([]int64{s1, s2}))
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %q", outcome.Message())
	}
	sources, err := h.stores.Catalog.SourcesForWork(ctx, workID)
	if err != nil {
		t.Fatalf("SourcesForWork: %v", err)
	}
	if len(sources) != 0 {
		t.Fatalf("expected no sources, got %+v", sources)
	}
	if h.trackExists(t, path) {
		t.Fatalf("expected track removed")
	}
}
