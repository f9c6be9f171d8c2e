package testsupport

import (
	"context"
	"testing"

	"danmu/internal/catalog"
	"danmu/internal/config"
	"danmu/internal/database"
	"danmu/internal/queue"
	"danmu/internal/trackstore"
)

// MustOpenDatabase opens the configured database for tests and registers cleanup.
func MustOpenDatabase(t testing.TB, cfg *config.Config) *database.DB {
	t.Helper()

	db, err := database.Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("database.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

// Stores bundles the persistence layers a job needs.
type Stores struct {
	DB      *database.DB
	Catalog *catalog.Store
	Jobs    *queue.Store
	Tracks  *trackstore.Store
}

// MustOpenStores opens the database and wraps it with every store.
func MustOpenStores(t testing.TB, cfg *config.Config) Stores {
	t.Helper()
	db := MustOpenDatabase(t, cfg)
	return Stores{
		DB:      db,
		Catalog: catalog.New(db),
		Jobs:    queue.New(db),
		Tracks:  trackstore.New(cfg.Paths.DanmakuDir),
	}
}

// SeedSource creates a work with one linked source and returns their ids.
func SeedSource(t testing.TB, store *catalog.Store, title, provider, mediaID string) (int64, int64) {
	t.Helper()
	ctx := context.Background()
	workID, err := store.GetOrCreateWork(ctx, title, 1, catalog.TypeTVSeries, catalog.WorkMetadata{})
	if err != nil {
		t.Fatalf("GetOrCreateWork: %v", err)
	}
	sourceID, err := store.LinkSource(ctx, workID, provider, mediaID)
	if err != nil {
		t.Fatalf("LinkSource: %v", err)
	}
	return workID, sourceID
}
