package importer_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"danmu/internal/importer"
	"danmu/internal/logging"
	"danmu/internal/provider"
	"danmu/internal/ratelimit"
	"danmu/internal/testsupport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	return nil
}

type harness struct {
	stores   testsupport.Stores
	provider *testsupport.FakeURLProvider
	plain    *testsupport.FakeProvider
	meta     *testsupport.FakeMetadata
	images   *testsupport.FakeDownloader
	limiter  *ratelimit.Limiter
	clock    *fakeClock
	importer *importer.Importer
	sleeps   []time.Duration
}

func newHarness(t *testing.T, limit int) *harness {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	h := &harness{
		stores:   testsupport.MustOpenStores(t, cfg),
		provider: testsupport.NewFakeURLProvider("bilibili"),
		plain:    testsupport.NewFakeProvider("plain"),
		meta:     &testsupport.FakeMetadata{},
		images:   &testsupport.FakeDownloader{},
		clock:    &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	h.limiter = ratelimit.New(time.Hour, limit, ratelimit.WithClock(h.clock.Now))
	h.importer = importer.New(importer.Deps{
		Catalog:  h.stores.Catalog,
		Tracks:   h.stores.Tracks,
		Registry: provider.NewRegistry(h.provider, h.plain),
		Metadata: h.meta,
		Images:   h.images,
		Limiter:  h.limiter,
		Logger:   logging.NewNop(),
	},
		importer.WithClock(h.clock.Now),
		importer.WithSleeper(func(ctx context.Context, d time.Duration) error {
			h.sleeps = append(h.sleeps, d)
			return h.clock.Sleep(ctx, d)
		}),
	)
	return h
}

func episodes(indices ...int) []provider.Episode {
	out := make([]provider.Episode, len(indices))
	for i, idx := range indices {
		out[i] = provider.Episode{Index: idx, Title: "", ProviderEpisodeID: epID(idx)}
	}
	return out
}

func epID(index int) string {
	return "ep" + string(rune('0'+index/10)) + string(rune('0'+index%10))
}

func intPtr(v int) *int { return &v }
