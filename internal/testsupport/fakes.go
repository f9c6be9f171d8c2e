package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"danmu/internal/danmaku"
	"danmu/internal/metadata"
	"danmu/internal/provider"
)

// FakeProvider is an in-memory provider. Comments and errors are keyed by
// provider episode id.
type FakeProvider struct {
	ProviderName string

	mu        sync.Mutex
	episodes  map[string][]provider.Episode
	comments  map[string][]danmaku.Comment
	errs      map[string][]error
	listCalls int
	fetches   []string
}

// NewFakeProvider returns an empty fake registered under name.
func NewFakeProvider(name string) *FakeProvider {
	return &FakeProvider{
		ProviderName: name,
		episodes:     make(map[string][]provider.Episode),
		comments:     make(map[string][]danmaku.Comment),
		errs:         make(map[string][]error),
	}
}

// SetEpisodes sets the listing returned for mediaID.
func (f *FakeProvider) SetEpisodes(mediaID string, episodes ...provider.Episode) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.episodes[mediaID] = episodes
}

// SetComments sets the comments returned for an episode id.
func (f *FakeProvider) SetComments(episodeID string, comments ...danmaku.Comment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[episodeID] = comments
}

// FailFetch queues errors returned by successive fetches of episodeID before
// the comments are served.
func (f *FakeProvider) FailFetch(episodeID string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[episodeID] = append(f.errs[episodeID], errs...)
}

// Fetches lists the episode ids fetched so far.
func (f *FakeProvider) Fetches() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.fetches...)
}

// ListCalls counts ListEpisodes calls.
func (f *FakeProvider) ListCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func (f *FakeProvider) Name() string { return f.ProviderName }

// ListEpisodes returns the stored listing, ignoring target so callers must
// filter themselves.
func (f *FakeProvider) ListEpisodes(_ context.Context, mediaID string, _ *int, _ string) ([]provider.Episode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	return append([]provider.Episode(nil), f.episodes[mediaID]...), nil
}

func (f *FakeProvider) FetchComments(_ context.Context, episodeID string, progress provider.ProgressFunc) ([]danmaku.Comment, error) {
	f.mu.Lock()
	f.fetches = append(f.fetches, episodeID)
	if queued := f.errs[episodeID]; len(queued) > 0 {
		err := queued[0]
		f.errs[episodeID] = queued[1:]
		f.mu.Unlock()
		return nil, err
	}
	comments := append([]danmaku.Comment(nil), f.comments[episodeID]...)
	f.mu.Unlock()
	progress.Report(50)
	progress.Report(100)
	return comments, nil
}

// FakeURLProvider adds URL import, title lookup, search and media id
// recovery to FakeProvider.
type FakeURLProvider struct {
	*FakeProvider

	mu       sync.Mutex
	urls     map[string]string
	titles   map[string]string
	results  []provider.SearchResult
	mediaIDs map[string]string
}

// NewFakeURLProvider returns a fake with every optional capability.
func NewFakeURLProvider(name string) *FakeURLProvider {
	return &FakeURLProvider{
		FakeProvider: NewFakeProvider(name),
		urls:         make(map[string]string),
		titles:       make(map[string]string),
		mediaIDs:     make(map[string]string),
	}
}

// SetURL maps a page URL onto an episode id and title.
func (f *FakeURLProvider) SetURL(url, episodeID, title string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls[url] = episodeID
	f.titles[url] = title
}

// SetSearchResults sets the results of every search.
func (f *FakeURLProvider) SetSearchResults(results ...provider.SearchResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = results
}

// SetReplacementMediaID makes FindNewMediaID map oldID onto newID.
func (f *FakeURLProvider) SetReplacementMediaID(oldID, newID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mediaIDs[oldID] = newID
}

func (f *FakeURLProvider) ResolveURL(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.urls[url]
	if !ok {
		return "", fmt.Errorf("unknown url %q", url)
	}
	return id, nil
}

func (f *FakeURLProvider) FormatIDForComments(id string) string {
	return "cid:" + strings.TrimPrefix(id, "cid:")
}

func (f *FakeURLProvider) TitleFromURL(_ context.Context, url string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.titles[url], nil
}

func (f *FakeURLProvider) Search(context.Context, string, *int) ([]provider.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]provider.SearchResult, len(f.results))
	for i, r := range f.results {
		if r.Provider == "" {
			r.Provider = f.ProviderName
		}
		out[i] = r
	}
	return out, nil
}

func (f *FakeURLProvider) FindNewMediaID(_ context.Context, info metadata.SourceInfo) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mediaIDs[info.MediaID], nil
}

// FakeMetadata is an in-memory metadata.Resolver that counts failover calls.
type FakeMetadata struct {
	mu            sync.Mutex
	Failover      []danmaku.Comment
	FailoverErr   error
	DetailsByID   map[string]*metadata.Details
	Aliases       []string
	failoverCalls int
}

// FailoverCalls counts FailoverComments calls.
func (m *FakeMetadata) FailoverCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failoverCalls
}

func (m *FakeMetadata) Details(_ context.Context, _, itemID, _ string) (*metadata.Details, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.DetailsByID[itemID]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, fmt.Errorf("no details for %q", itemID)
}

func (m *FakeMetadata) SearchAliases(context.Context, string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Aliases...), nil
}

func (m *FakeMetadata) FailoverComments(context.Context, string, int, int) ([]danmaku.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failoverCalls++
	return append([]danmaku.Comment(nil), m.Failover...), m.FailoverErr
}

func (m *FakeMetadata) FindNewMediaID(context.Context, metadata.SourceInfo) (string, error) {
	return "", nil
}

// FakeDownloader records poster downloads. Err, when set, fails every call.
type FakeDownloader struct {
	mu    sync.Mutex
	Err   error
	calls []string
}

func (d *FakeDownloader) Download(_ context.Context, url, provider string) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, url)
	if d.Err != nil {
		return "", d.Err
	}
	return "/images/" + provider + "/poster.jpg", nil
}

// Calls lists the URLs requested so far.
func (d *FakeDownloader) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.calls...)
}

// Comments builds n simple comments for tests.
func Comments(n int) []danmaku.Comment {
	out := make([]danmaku.Comment, n)
	for i := range out {
		out[i] = danmaku.Comment{Time: float64(i), Mode: 1, Size: 25, Color: 16777215, Text: fmt.Sprintf("c%d", i)}
	}
	return out
}
