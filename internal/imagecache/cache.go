package imagecache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"danmu/internal/fileutil"
	"danmu/internal/logging"
	"danmu/internal/services"
)

// WebPrefix is the web path prefix of cached posters.
const WebPrefix = "/images/"

const indexName = "index.json"

// Downloader stores a remote image locally and returns its web path.
type Downloader interface {
	Download(ctx context.Context, url, provider string) (string, error)
}

// Entry records one cached poster.
type Entry struct {
	URL      string    `json:"url"`
	Provider string    `json:"provider"`
	WebPath  string    `json:"web_path"`
	CachedAt time.Time `json:"cached_at"`
}

// Cache downloads posters once and remembers where they went.
type Cache struct {
	dir     string
	http    *resty.Client
	logger  *slog.Logger
	mu      sync.Mutex
	entries map[string]Entry
}

var _ Downloader = (*Cache)(nil)

// New creates a cache rooted at dir. A broken index is logged and ignored.
func New(dir string, timeout time.Duration, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "imagecache")
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Cache{
		dir:     dir,
		http:    resty.New().SetTimeout(timeout),
		logger:  logger,
		entries: make(map[string]Entry),
	}
	if err := c.load(); err != nil {
		logging.WarnWithContext(logger, "failed to load image index", "imagecache_load_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "the index will be rebuilt as posters are downloaded"),
			logging.String(logging.FieldImpact, "posters may be downloaded again"),
		)
	}
	return c
}

// Download fetches url unless it is already cached and returns the web path
// of the local copy.
func (c *Cache) Download(ctx context.Context, url, provider string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", services.Wrap(services.ErrValidation, "imagecache", "download", "image url is empty", nil)
	}
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		provider = "unknown"
	}

	c.mu.Lock()
	entry, ok := c.entries[url]
	c.mu.Unlock()
	if ok {
		if _, err := os.Stat(c.filePath(entry.WebPath)); err == nil {
			return entry.WebPath, nil
		}
	}

	resp, err := c.http.R().SetContext(ctx).Get(url)
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "imagecache", "download", url, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return "", services.Wrap(services.ErrExternalTool, "imagecache", "download",
			fmt.Sprintf("%s returned %d", url, resp.StatusCode()), nil)
	}
	body := resp.Body()
	if len(body) == 0 {
		return "", services.Wrap(services.ErrExternalTool, "imagecache", "download", url+" returned an empty body", nil)
	}

	name := hashName(url) + extension(url, resp.Header().Get("Content-Type"))
	webPath := WebPrefix + provider + "/" + name
	if err := fileutil.WriteFileAtomic(c.filePath(webPath), body, 0o644); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[url] = Entry{URL: url, Provider: provider, WebPath: webPath, CachedAt: time.Now().UTC()}
	if err := c.save(); err != nil {
		return "", fmt.Errorf("persist image index: %w", err)
	}
	c.logger.Debug("cached poster",
		logging.String("url", url),
		logging.String("web_path", webPath),
		logging.Int("bytes", len(body)),
	)
	return webPath, nil
}

// Lookup returns the cached entry for url.
func (c *Cache) Lookup(url string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[strings.TrimSpace(url)]
	return entry, ok
}

func (c *Cache) filePath(webPath string) string {
	rel := strings.TrimPrefix(path.Clean(webPath), WebPrefix)
	return filepath.Join(c.dir, filepath.FromSlash(rel))
}

func hashName(url string) string {
	sum := sha1.Sum([]byte(url))
	return hex.EncodeToString(sum[:])
}

func extension(url, contentType string) string {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "image/jpeg":
			return ".jpg"
		case "image/png":
			return ".png"
		case "image/webp":
			return ".webp"
		case "image/gif":
			return ".gif"
		}
	}
	clean := url
	if i := strings.IndexAny(clean, "?#"); i >= 0 {
		clean = clean[:i]
	}
	if ext := strings.ToLower(path.Ext(clean)); ext != "" && len(ext) <= 5 {
		return ext
	}
	return ".jpg"
}

func (c *Cache) load() error {
	data, err := os.ReadFile(filepath.Join(c.dir, indexName))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read image index: %w", err)
	}
	if len(data) == 0 {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("parse image index: %w", err)
	}
	for _, entry := range entries {
		if strings.TrimSpace(entry.URL) != "" {
			c.entries[entry.URL] = entry
		}
	}
	return nil
}

func (c *Cache) save() error {
	entries := make([]Entry, 0, len(c.entries))
	for _, entry := range c.entries {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].URL < entries[j].URL
	})
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal image index: %w", err)
	}
	return fileutil.WriteFileAtomic(filepath.Join(c.dir, indexName), data, 0o644)
}
