package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"danmu/internal/queue"
	"danmu/internal/services"
	"danmu/internal/testsupport"
)

func newStore(t *testing.T) *queue.Store {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	return testsupport.MustOpenStores(t, cfg).Jobs
}

func TestCreateUniqueRejectsActiveDuplicates(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	first, existing, err := store.CreateUnique(ctx, queue.NewJob{UniqueKey: "reorder-source-1", Kind: "reorder_episodes", Title: "Reorder"})
	if err != nil || existing != nil || first == nil {
		t.Fatalf("CreateUnique: job=%+v existing=%+v err=%v", first, existing, err)
	}
	if first.Status != queue.StatusPending || first.UniqueKey != "reorder-source-1" {
		t.Fatalf("unexpected job %+v", first)
	}

	dup, existing, err := store.CreateUnique(ctx, queue.NewJob{UniqueKey: "reorder-source-1", Kind: "reorder_episodes"})
	if err != nil {
		t.Fatalf("CreateUnique duplicate: %v", err)
	}
	if dup != nil || existing == nil || existing.ID != first.ID {
		t.Fatalf("expected duplicate to resolve to %d, got created=%+v existing=%+v", first.ID, dup, existing)
	}

	if err := store.Finish(ctx, first.ID, queue.StatusFailed, "boom", "boom"); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	again, existing, err := store.CreateUnique(ctx, queue.NewJob{UniqueKey: "reorder-source-1", Kind: "reorder_episodes"})
	if err != nil || existing != nil || again == nil {
		t.Fatalf("expected resubmission after terminal state, got job=%+v existing=%+v err=%v", again, existing, err)
	}

	if _, _, err := store.CreateUnique(ctx, queue.NewJob{}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for empty kind, got %v", err)
	}
}

func TestJobsWithoutKeyAreNeverDuplicates(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		job, existing, err := store.CreateUnique(ctx, queue.NewJob{Kind: "import"})
		if err != nil || job == nil || existing != nil {
			t.Fatalf("CreateUnique #%d: job=%+v existing=%+v err=%v", i, job, existing, err)
		}
	}
}

func TestLifecycleTransitions(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	job, _, err := store.CreateUnique(ctx, queue.NewJob{Kind: "import", Title: "Import"})
	if err != nil {
		t.Fatalf("CreateUnique: %v", err)
	}

	if err := store.MarkRunning(ctx, job.ID); err != nil {
		t.Fatalf("MarkRunning: %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, queue.Progress{Percent: 140, Message: "waiting", Status: queue.StatusPaused}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	got, err := store.Get(ctx, job.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != queue.StatusPaused || got.Progress != 100 || got.Message != "waiting" || got.StartedAt == nil {
		t.Fatalf("unexpected paused job %+v", got)
	}

	if err := store.UpdateProgress(ctx, job.ID, queue.Progress{Percent: 40, Message: "resumed"}); err != nil {
		t.Fatalf("UpdateProgress: %v", err)
	}
	if err := store.Finish(ctx, job.ID, queue.StatusSuccess, "done", ""); err != nil {
		t.Fatalf("Finish: %v", err)
	}
	if err := store.UpdateProgress(ctx, job.ID, queue.Progress{Percent: 10, Message: "late"}); err != nil {
		t.Fatalf("late UpdateProgress: %v", err)
	}
	got, _ = store.Get(ctx, job.ID)
	if got.Status != queue.StatusSuccess || got.Progress != 100 || got.Result != "done" || got.FinishedAt == nil {
		t.Fatalf("unexpected finished job %+v", got)
	}

	if err := store.Finish(ctx, job.ID, queue.StatusRunning, "", ""); err == nil {
		t.Fatal("expected error finishing with a non-terminal status")
	}
	if _, err := store.Get(ctx, 9999); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestFailInterruptedAndPrune(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	pending, _, _ := store.CreateUnique(ctx, queue.NewJob{Kind: "a"})
	running, _, _ := store.CreateUnique(ctx, queue.NewJob{Kind: "b"})
	done, _, _ := store.CreateUnique(ctx, queue.NewJob{Kind: "c"})
	_ = store.MarkRunning(ctx, running.ID)
	_ = store.Finish(ctx, done.ID, queue.StatusSuccess, "ok", "")

	count, err := store.FailInterrupted(ctx)
	if err != nil {
		t.Fatalf("FailInterrupted: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 interrupted jobs, got %d", count)
	}
	for _, id := range []int64{pending.ID, running.ID} {
		job, _ := store.Get(ctx, id)
		if job.Status != queue.StatusFailed || job.Message != queue.InterruptedReason {
			t.Fatalf("unexpected interrupted job %+v", job)
		}
	}

	pruned, err := store.PruneFinished(ctx, time.Now().Add(-time.Hour))
	if err != nil || pruned != 0 {
		t.Fatalf("expected nothing pruned yet, got %d err=%v", pruned, err)
	}
	pruned, err = store.PruneFinished(ctx, time.Now().Add(time.Hour))
	if err != nil || pruned != 3 {
		t.Fatalf("expected 3 pruned, got %d err=%v", pruned, err)
	}
}

func TestListAndSummary(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	a, _, _ := store.CreateUnique(ctx, queue.NewJob{Kind: "import"})
	b, _, _ := store.CreateUnique(ctx, queue.NewJob{Kind: "delete_episode"})
	_ = store.Finish(ctx, a.ID, queue.StatusFailed, "x", "x")

	failed, err := store.List(ctx, queue.Filter{Statuses: []queue.Status{queue.StatusFailed}})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(failed) != 1 || failed[0].ID != a.ID {
		t.Fatalf("unexpected failed list %+v", failed)
	}
	all, _ := store.List(ctx, queue.Filter{})
	if len(all) != 2 || all[0].ID != b.ID {
		t.Fatalf("expected newest first, got %+v", all)
	}

	summary, err := store.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.Total != 2 || summary.Failed != 1 || summary.Active != 1 {
		t.Fatalf("unexpected summary %+v", summary)
	}

	if err := store.Heartbeat(ctx, b.ID); err != nil {
		t.Fatalf("Heartbeat: %v", err)
	}
	got, _ := store.Get(ctx, b.ID)
	if got.LastHeartbeat == nil {
		t.Fatal("expected heartbeat recorded")
	}
}

func TestParseStatus(t *testing.T) {
	if status, ok := queue.ParseStatus(" Paused "); !ok || status != queue.StatusPaused {
		t.Fatalf("unexpected parse result %q %v", status, ok)
	}
	if _, ok := queue.ParseStatus("review"); ok {
		t.Fatal("expected unknown status rejected")
	}
	if !queue.StatusPaused.IsActive() || queue.StatusSuccess.IsActive() {
		t.Fatal("unexpected activity classification")
	}
}
