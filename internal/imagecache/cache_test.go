package imagecache_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"danmu/internal/imagecache"
	"danmu/internal/services"
)

func TestDownloadCachesByURL(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer server.Close()

	dir := t.TempDir()
	cache := imagecache.New(dir, time.Second, nil)
	url := server.URL + "/poster"

	web, err := cache.Download(context.Background(), url, "Bilibili")
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if !strings.HasPrefix(web, "/images/bilibili/") || !strings.HasSuffix(web, ".png") {
		t.Fatalf("unexpected web path %q", web)
	}
	data, err := os.ReadFile(filepath.Join(dir, "bilibili", filepath.Base(web)))
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("expected stored image, got %q err=%v", data, err)
	}

	again, err := cache.Download(context.Background(), url, "bilibili")
	if err != nil || again != web {
		t.Fatalf("second Download = %q, %v", again, err)
	}
	if hits.Load() != 1 {
		t.Fatalf("expected one request, got %d", hits.Load())
	}

	reloaded := imagecache.New(dir, time.Second, nil)
	if entry, ok := reloaded.Lookup(url); !ok || entry.WebPath != web {
		t.Fatalf("expected index to persist, got %+v ok=%v", entry, ok)
	}
}

func TestDownloadFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	cache := imagecache.New(t.TempDir(), time.Second, nil)
	if _, err := cache.Download(context.Background(), server.URL, "x"); !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external error, got %v", err)
	}
	if _, err := cache.Download(context.Background(), " ", "x"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
