package importer_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"danmu/internal/episodeid"
	"danmu/internal/importer"
	"danmu/internal/provider"
	"danmu/internal/services"
	"danmu/internal/testsupport"
	"danmu/internal/workflow"
)

func TestGenericImportStoresEpisodes(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.SetEpisodes("ss1", episodes(1, 2, 3, 5)...)
	h.provider.SetComments(epID(1), testsupport.Comments(3)...)
	h.provider.SetComments(epID(2), testsupport.Comments(2)...)
	h.provider.SetComments(epID(3), testsupport.Comments(1)...)
	h.provider.FailFetch(epID(5), fmt.Errorf("gateway: %w", provider.ErrTransport))

	ctx := context.Background()
	outcome, rep := testsupport.Run(ctx, h.importer.GenericImport(importer.Request{
		Provider: "bilibili",
		MediaID:  "ss1",
		Title:    "Frieren 第二季",
		Type:     "tv_series",
		Season:   1,
		ImageURL: "https://img.example/p.jpg",
		TMDBID:   "209867",
	}))
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %v", outcome.Err())
	}
	if got, want := outcome.Message(), "imported episodes 1-3, added 6 comments; 1 episodes failed"; got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}

	work, err := h.stores.Catalog.FindWork(ctx, "Frieren", 2)
	if err != nil || work == nil {
		t.Fatalf("expected work parsed with season 2, got %+v err=%v", work, err)
	}
	if work.TMDBID != "209867" || work.LocalImagePath != "/images/bilibili/poster.jpg" {
		t.Fatalf("expected metadata filled, got %+v", work)
	}
	sources, err := h.stores.Catalog.SourcesForWork(ctx, work.ID)
	if err != nil || len(sources) != 1 {
		t.Fatalf("expected one source, got %+v err=%v", sources, err)
	}
	eps, err := h.stores.Catalog.ListEpisodes(ctx, sources[0].ID)
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(eps) != 3 {
		t.Fatalf("expected 3 stored episodes, got %d", len(eps))
	}
	first := eps[0]
	if first.ID != episodeid.MustEncode(work.ID, 1, 1) || first.CommentCount != 3 || first.FetchedAt == nil {
		t.Fatalf("unexpected first episode %+v", first)
	}
	if first.Title != "Episode 1" {
		t.Fatalf("expected default title, got %q", first.Title)
	}
	stored, err := h.stores.Tracks.Read(first.TrackPath)
	if err != nil || len(stored) != 3 {
		t.Fatalf("expected 3 comments on disk, got %d err=%v", len(stored), err)
	}

	for _, u := range rep.Updates() {
		if u.Percent < 10 || u.Percent > 95 {
			t.Fatalf("progress %v outside 10..95", u.Percent)
		}
	}
	if usage := h.limiter.Snapshot(); len(usage) != 1 || usage[0].Count != 3 {
		t.Fatalf("expected 3 budget units consumed, got %+v", usage)
	}
}

func TestGenericImportFiltersTargetEpisode(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.SetEpisodes("ss1", episodes(1, 2, 3)...)
	h.provider.SetComments(epID(2), testsupport.Comments(4)...)

	outcome, _ := testsupport.Run(context.Background(), h.importer.GenericImport(importer.Request{
		Provider: "bilibili", MediaID: "ss1", Title: "Show", EpisodeIndex: intPtr(2),
	}))
	if !outcome.Succeeded() || outcome.Message() != "imported episodes 2, added 4 comments" {
		t.Fatalf("unexpected outcome %q err=%v", outcome.Message(), outcome.Err())
	}
	if fetches := h.provider.Fetches(); len(fetches) != 1 || fetches[0] != epID(2) {
		t.Fatalf("expected only the target fetched, got %v", fetches)
	}
}

func TestGenericImportFailoverCalledOnce(t *testing.T) {
	h := newHarness(t, 0)
	h.meta.Failover = testsupport.Comments(5)

	outcome, _ := testsupport.Run(context.Background(), h.importer.GenericImport(importer.Request{
		Provider: "bilibili", MediaID: "empty", Title: "Show", EpisodeIndex: intPtr(4),
	}))
	if !outcome.Succeeded() {
		t.Fatalf("expected failover success, got %v", outcome.Err())
	}
	if h.meta.FailoverCalls() != 1 {
		t.Fatalf("expected exactly one failover call, got %d", h.meta.FailoverCalls())
	}
	if outcome.Message() != "imported episodes 4, added 5 comments" {
		t.Fatalf("unexpected summary %q", outcome.Message())
	}
	work, _ := h.stores.Catalog.FindWork(context.Background(), "Show", 1)
	sources, _ := h.stores.Catalog.SourcesForWork(context.Background(), work.ID)
	ep, err := h.stores.Catalog.FindEpisode(context.Background(), sources[0].ID, 4)
	if err != nil || ep == nil || ep.ProviderEpisodeID != "failover" || ep.Title != "Episode 4" {
		t.Fatalf("expected synthesized failover episode, got %+v err=%v", ep, err)
	}
	if len(h.limiter.Snapshot()) != 0 {
		t.Fatalf("failover comments must not consume provider budget")
	}
}

func TestGenericImportFailoverMissFails(t *testing.T) {
	h := newHarness(t, 0)

	outcome, _ := testsupport.Run(context.Background(), h.importer.GenericImport(importer.Request{
		Provider: "bilibili", MediaID: "empty", Title: "Show", EpisodeIndex: intPtr(7),
	}))
	if outcome.Succeeded() || outcome.Message() != "no episodes found for episode 7" {
		t.Fatalf("unexpected outcome %q", outcome.Message())
	}
	if h.meta.FailoverCalls() != 1 {
		t.Fatalf("expected exactly one failover call, got %d", h.meta.FailoverCalls())
	}

	outcome, _ = testsupport.Run(context.Background(), h.importer.GenericImport(importer.Request{
		Provider: "bilibili", MediaID: "empty", Title: "Show",
	}))
	if outcome.Message() != "no episodes found" {
		t.Fatalf("unexpected outcome %q", outcome.Message())
	}
	if works, _ := h.stores.Catalog.ListWorks(context.Background()); len(works) != 0 {
		t.Fatalf("failed import must not create works, got %d", len(works))
	}
}

func TestGenericImportMovieKeepsFirstEpisode(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.SetEpisodes("m1", episodes(1, 2)...)
	h.provider.SetComments(epID(1), testsupport.Comments(1)...)
	h.provider.SetComments(epID(2), testsupport.Comments(1)...)

	outcome, _ := testsupport.Run(context.Background(), h.importer.GenericImport(importer.Request{
		Provider: "bilibili", MediaID: "m1", Title: "Film", Type: "movie",
	}))
	if outcome.Message() != "imported episodes 1, added 1 comments" {
		t.Fatalf("unexpected summary %q", outcome.Message())
	}
}

func TestGenericImportPausesOnRateLimit(t *testing.T) {
	h := newHarness(t, 1)
	h.provider.SetEpisodes("ss1", episodes(1, 2)...)
	h.provider.SetComments(epID(1), testsupport.Comments(1)...)
	h.provider.SetComments(epID(2), testsupport.Comments(2)...)

	outcome, rep := testsupport.Run(context.Background(), h.importer.GenericImport(importer.Request{
		Provider: "bilibili", MediaID: "ss1", Title: "Show",
	}))
	if outcome.Message() != "imported episodes 1-2, added 3 comments" {
		t.Fatalf("unexpected summary %q", outcome.Message())
	}
	if rep.Paused() != 1 || len(h.sleeps) != 1 {
		t.Fatalf("expected one pause, got paused=%d sleeps=%v", rep.Paused(), h.sleeps)
	}
	if h.sleeps[0] <= 0 {
		t.Fatalf("expected positive backoff, got %v", h.sleeps[0])
	}
	if fetches := h.provider.Fetches(); len(fetches) != 2 {
		t.Fatalf("expected the limited episode to be retried once, got %v", fetches)
	}
}

func TestGenericImportCountsEmptyAndUnknownFailures(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.SetEpisodes("ss1", episodes(1, 2, 3)...)
	h.provider.FailFetch(epID(2), errors.New("parser exploded"))
	h.provider.SetComments(epID(3), testsupport.Comments(1)...)
	h.images.Err = errors.New("boom")

	outcome, _ := testsupport.Run(context.Background(), h.importer.GenericImport(importer.Request{
		Provider: "bilibili", MediaID: "ss1", Title: "Show", ImageURL: "https://img/x.jpg",
	}))
	want := "imported episodes 3, added 1 comments; 1 episodes failed; poster download failed"
	if outcome.Message() != want {
		t.Fatalf("summary = %q, want %q", outcome.Message(), want)
	}
}

func TestGenericImportNothingNew(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.SetEpisodes("ss1", episodes(1)...)

	outcome, _ := testsupport.Run(context.Background(), h.importer.GenericImport(importer.Request{
		Provider: "bilibili", MediaID: "ss1", Title: "Show",
	}))
	if !outcome.Succeeded() || outcome.Message() != "no new comments were found for any episode" {
		t.Fatalf("unexpected outcome %q", outcome.Message())
	}
}

func TestGenericImportCancelledBetweenEpisodes(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.SetEpisodes("ss1", episodes(1, 2)...)
	h.provider.SetComments(epID(1), testsupport.Comments(1)...)

	ctx, cancel := context.WithCancel(context.Background())
	fn := h.importer.GenericImport(importer.Request{Provider: "bilibili", MediaID: "ss1", Title: "Show"})
	outcome := fn(ctx, cancelAfterFirstFetch{cancel: cancel})
	if outcome.Succeeded() || !errors.Is(outcome.Err(), context.Canceled) {
		t.Fatalf("expected cancellation, got %q", outcome.Message())
	}
	if fetches := h.provider.Fetches(); len(fetches) != 1 {
		t.Fatalf("expected the loop to stop after one fetch, got %v", fetches)
	}
}

func TestGenericImportUnknownProvider(t *testing.T) {
	h := newHarness(t, 0)
	outcome, _ := testsupport.Run(context.Background(), h.importer.GenericImport(importer.Request{
		Provider: "nope", MediaID: "x", Title: "Show",
	}))
	if !errors.Is(outcome.Err(), provider.ErrUnknownProvider) {
		t.Fatalf("expected unknown provider, got %v", outcome.Err())
	}
}

func TestEditedImportUsesSuppliedList(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.SetComments("custom-a", testsupport.Comments(2)...)

	outcome, _ := testsupport.Run(context.Background(), h.importer.EditedImport(
		importer.Request{Provider: "bilibili", MediaID: "ss9", Title: "Show"},
		[]provider.Episode{{Index: 9, Title: "Nine", ProviderEpisodeID: "custom-a"}},
	))
	if outcome.Message() != "imported episodes 9, added 2 comments" {
		t.Fatalf("unexpected summary %q", outcome.Message())
	}
	if h.provider.ListCalls() != 0 || h.meta.FailoverCalls() != 0 {
		t.Fatalf("edited import must not list or fail over")
	}

	empty, _ := testsupport.Run(context.Background(), h.importer.EditedImport(importer.Request{Provider: "bilibili"}, nil))
	if !errors.Is(empty.Err(), services.ErrValidation) {
		t.Fatalf("expected validation error for empty list, got %v", empty.Err())
	}
}

type cancelAfterFirstFetch struct {
	cancel context.CancelFunc
}

// Report cancels the job once the first episode's fetch reports progress.
func (c cancelAfterFirstFetch) Report(_ context.Context, u workflow.Update) error {
	if u.Message == "fetching episode 1" {
		c.cancel()
	}
	return nil
}

func TestGenericImportSkipsEpisodesBelowIndexOne(t *testing.T) {
	h := newHarness(t, 0)
	h.provider.SetEpisodes("ss1", episodes(0, 1, 2)...)
	for _, index := range []int{0, 1, 2} {
		h.provider.SetComments(epID(index), testsupport.Comments(1)...)
	}

	ctx := context.Background()
	outcome, _ := testsupport.Run(ctx, h.importer.GenericImport(importer.Request{
		Provider: "bilibili",
		MediaID:  "ss1",
		Title:    "Dungeon Meshi",
		Type:     "tv_series",
		Season:   1,
	}))
	if !outcome.Succeeded() {
		t.Fatalf("expected success, got %v", outcome.Err())
	}
	if got, want := outcome.Message(), "imported episodes 1-2, added 2 comments; 1 episodes failed"; got != want {
		t.Fatalf("summary = %q, want %q", got, want)
	}
	work, err := h.stores.Catalog.FindWork(ctx, "Dungeon Meshi", 1)
	if err != nil || work == nil {
		t.Fatalf("FindWork: %+v err=%v", work, err)
	}
	sources, err := h.stores.Catalog.SourcesForWork(ctx, work.ID)
	if err != nil || len(sources) != 1 {
		t.Fatalf("expected one source, got %+v err=%v", sources, err)
	}
	eps, err := h.stores.Catalog.ListEpisodes(ctx, sources[0].ID)
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(eps) != 2 || eps[0].Index != 1 {
		t.Fatalf("expected episodes 1 and 2 only, got %+v", eps)
	}
}
