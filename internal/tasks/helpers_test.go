package tasks_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"danmu/internal/catalog"
	"danmu/internal/config"
	"danmu/internal/importer"
	"danmu/internal/logging"
	"danmu/internal/provider"
	"danmu/internal/queue"
	"danmu/internal/services"
	"danmu/internal/tasks"
	"danmu/internal/testsupport"
	"danmu/internal/workflow"
)

// fakeSubmitter records nested submissions instead of running them.
type fakeSubmitter struct {
	mu     sync.Mutex
	specs  []workflow.Spec
	nextID int64
	held   map[string]int64
}

func (f *fakeSubmitter) Submit(_ context.Context, spec workflow.Spec) (*queue.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if id, ok := f.held[spec.UniqueKey]; ok {
		return &queue.Job{ID: id}, &workflow.DuplicateJobError{UniqueKey: spec.UniqueKey, ExistingID: id}
	}
	f.nextID++
	f.specs = append(f.specs, spec)
	return &queue.Job{ID: f.nextID, Kind: spec.Kind, Title: spec.Title}, nil
}

func (f *fakeSubmitter) submitted() []workflow.Spec {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]workflow.Spec(nil), f.specs...)
}

// lockyCatalog fails deletes with lock contention a set number of times per id.
type lockyCatalog struct {
	*catalog.Store
	mu       sync.Mutex
	failures map[int64]int
	attempts map[int64]int
}

func newLockyCatalog(store *catalog.Store) *lockyCatalog {
	return &lockyCatalog{Store: store, failures: map[int64]int{}, attempts: map[int64]int{}}
}

func (c *lockyCatalog) contend(id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attempts[id]++
	if c.failures[id] > 0 {
		c.failures[id]--
		return services.Wrap(services.ErrLockContention, "catalog", "delete", "database is locked", nil)
	}
	return nil
}

func (c *lockyCatalog) DeleteEpisode(ctx context.Context, id int64) (bool, error) {
	if err := c.contend(id); err != nil {
		return false, err
	}
	return c.Store.DeleteEpisode(ctx, id)
}

func (c *lockyCatalog) DeleteSource(ctx context.Context, id int64) (bool, error) {
	if err := c.contend(id); err != nil {
		return false, err
	}
	return c.Store.DeleteSource(ctx, id)
}

func (c *lockyCatalog) DeleteWork(ctx context.Context, id int64) (bool, error) {
	if err := c.contend(id); err != nil {
		return false, err
	}
	return c.Store.DeleteWork(ctx, id)
}

func (c *lockyCatalog) attemptsFor(id int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts[id]
}

type harness struct {
	cfg       *config.Config
	stores    testsupport.Stores
	catalog   *lockyCatalog
	bilibili  *testsupport.FakeURLProvider
	tencent   *testsupport.FakeURLProvider
	meta      *testsupport.FakeMetadata
	submitter *fakeSubmitter
	service   *tasks.Service
	sleeps    []time.Duration
	now       time.Time
}

func newHarness(t *testing.T, opts ...testsupport.ConfigOption) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t, opts...)
	stores := testsupport.MustOpenStores(t, cfg)
	h := &harness{
		cfg:       cfg,
		stores:    stores,
		catalog:   newLockyCatalog(stores.Catalog),
		bilibili:  testsupport.NewFakeURLProvider("bilibili"),
		tencent:   testsupport.NewFakeURLProvider("tencent"),
		meta:      &testsupport.FakeMetadata{},
		submitter: &fakeSubmitter{held: map[string]int64{}},
		now:       time.Now(),
	}
	registry := provider.NewRegistry(h.bilibili, h.tencent)
	imp := importer.New(importer.Deps{
		Catalog:  stores.Catalog,
		Tracks:   stores.Tracks,
		Registry: registry,
		Metadata: h.meta,
		Images:   &testsupport.FakeDownloader{},
		Logger:   logging.NewNop(),
	})
	h.service = tasks.NewService(tasks.Deps{
		Config:   cfg,
		Manager:  h.submitter,
		Importer: imp,
		Catalog:  h.catalog,
		Jobs:     stores.Jobs,
		Tracks:   stores.Tracks,
		Registry: registry,
		Metadata: h.meta,
		Logger:   logging.NewNop(),
	},
		tasks.WithClock(func() time.Time { return h.now }),
		tasks.WithSleeper(func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return ctx.Err()
		}),
	)
	return h
}

// seedEpisode stores an episode with a written track file and returns its
// id and web path.
func (h *harness) seedEpisode(t *testing.T, workID, sourceID int64, index int) (int64, string) {
	t.Helper()
	ctx := context.Background()
	id, err := h.stores.Catalog.CreateEpisodeIfAbsent(ctx, catalog.NewEpisode{SourceID: sourceID, Index: index, Title: "ep"})
	if err != nil {
		t.Fatalf("CreateEpisodeIfAbsent: %v", err)
	}
	path, err := h.stores.Tracks.Write(workID, id, testsupport.Comments(3))
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := h.stores.Catalog.UpdateEpisodeFetch(ctx, id, 3, path, time.Now()); err != nil {
		t.Fatalf("UpdateEpisodeFetch: %v", err)
	}
	return id, path
}

func (h *harness) trackExists(t *testing.T, webPath string) bool {
	t.Helper()
	if _, err := h.stores.Tracks.Read(webPath); err != nil {
		return false
	}
	return true
}

func intPtr(v int) *int { return &v }
