package ratelimit

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"danmu/internal/config"
)

// ErrRateLimited matches every ExceededError via errors.Is.
var ErrRateLimited = errors.New("rate limited")

// ExceededError reports that a provider has no budget left in the current window.
type ExceededError struct {
	Provider   string
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("provider %s rate limited, retry after %ds", e.Provider, e.RetryAfterSeconds())
}

func (e *ExceededError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds rounds the wait up to whole seconds (never below 1).
func (e *ExceededError) RetryAfterSeconds() int {
	secs := int(math.Ceil(e.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// Usage is a point-in-time view of one provider's budget.
type Usage struct {
	Provider string    `json:"provider"`
	Count    int       `json:"count"`
	Limit    int       `json:"limit"`
	ResetsAt time.Time `json:"resets_at"`
}

type window struct {
	start time.Time
	count int
}

// Limiter is a process-wide, mutex-guarded fixed-window budget per provider.
type Limiter struct {
	mu           sync.Mutex
	window       time.Duration
	defaultLimit int
	limits       map[string]int
	windows      map[string]*window
	now          func() time.Time
}

// Option customizes a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		if now != nil {
			l.now = now
		}
	}
}

// WithLimit sets the limit for one provider.
func WithLimit(provider string, limit int) Option {
	return func(l *Limiter) {
		l.limits[normalize(provider)] = limit
	}
}

// New constructs a Limiter. A limit of zero or less means unlimited.
func New(windowSize time.Duration, defaultLimit int, opts ...Option) *Limiter {
	if windowSize <= 0 {
		windowSize = time.Hour
	}
	l := &Limiter{
		window:       windowSize,
		defaultLimit: defaultLimit,
		limits:       make(map[string]int),
		windows:      make(map[string]*window),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewFromConfig builds a Limiter from the [rate_limit] section.
func NewFromConfig(cfg *config.Config, opts ...Option) *Limiter {
	if cfg == nil {
		return New(time.Hour, 0, opts...)
	}
	base := make([]Option, 0, len(cfg.RateLimit.Providers)+len(opts))
	for name, limit := range cfg.RateLimit.Providers {
		base = append(base, WithLimit(name, limit))
	}
	return New(cfg.RateWindow(), cfg.RateLimit.DefaultLimit, append(base, opts...)...)
}

// Check fails with *ExceededError when provider has used up its window.
func (l *Limiter) Check(provider string) error {
	key := normalize(provider)
	l.mu.Lock()
	defer l.mu.Unlock()

	limit := l.limitFor(key)
	if limit <= 0 {
		return nil
	}
	w := l.current(key)
	if w == nil || w.count < limit {
		return nil
	}
	retry := w.start.Add(l.window).Sub(l.now())
	if retry <= 0 {
		retry = time.Second
	}
	return &ExceededError{Provider: key, RetryAfter: retry}
}

// Increment records one consumed call, opening a window when none is active.
func (l *Limiter) Increment(provider string) {
	key := normalize(provider)
	l.mu.Lock()
	defer l.mu.Unlock()

	w := l.current(key)
	if w == nil {
		w = &window{start: l.now()}
		l.windows[key] = w
	}
	w.count++
}

// Snapshot returns usage for every provider with an active window.
func (l *Limiter) Snapshot() []Usage {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Usage, 0, len(l.windows))
	for key := range l.windows {
		w := l.current(key)
		if w == nil {
			continue
		}
		out = append(out, Usage{
			Provider: key,
			Count:    w.count,
			Limit:    l.limitFor(key),
			ResetsAt: w.start.Add(l.window),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// current returns the active window for key, dropping it once expired.
// Callers must hold l.mu.
func (l *Limiter) current(key string) *window {
	w, ok := l.windows[key]
	if !ok {
		return nil
	}
	if !l.now().Before(w.start.Add(l.window)) {
		delete(l.windows, key)
		return nil
	}
	return w
}

func (l *Limiter) limitFor(key string) int {
	if limit, ok := l.limits[key]; ok {
		return limit
	}
	return l.defaultLimit
}

func normalize(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}
