package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"danmu/internal/catalog"
)

// Registry maps provider names onto implementations.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry registers the given providers by name.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{providers: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds or replaces a provider.
func (r *Registry) Register(p Provider) {
	if p == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[normalize(p.Name())] = p
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}
	return p, nil
}

// Names lists registered provider names alphabetically.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Ordered returns the enabled registered providers sorted by display order.
// Providers without a setting are treated as enabled and ranked last.
func (r *Registry) Ordered(settings []catalog.ProviderSetting) []Provider {
	byName := make(map[string]catalog.ProviderSetting, len(settings))
	for _, s := range settings {
		byName[normalize(s.Provider)] = s
	}
	type ranked struct {
		p     Provider
		order int
		name  string
	}
	r.mu.RLock()
	list := make([]ranked, 0, len(r.providers))
	for name, p := range r.providers {
		order := int(^uint(0) >> 1)
		if s, ok := byName[name]; ok {
			if !s.Enabled {
				continue
			}
			order = s.DisplayOrder
		}
		list = append(list, ranked{p: p, order: order, name: name})
	}
	r.mu.RUnlock()
	sort.Slice(list, func(i, j int) bool {
		if list[i].order != list[j].order {
			return list[i].order < list[j].order
		}
		return list[i].name < list[j].name
	})
	out := make([]Provider, len(list))
	for i, item := range list {
		out[i] = item.p
	}
	return out
}

// Rank returns the display order of name, or -1 when it has no setting.
func Rank(settings []catalog.ProviderSetting, name string) int {
	for _, s := range settings {
		if normalize(s.Provider) == normalize(name) {
			return s.DisplayOrder
		}
	}
	return -1
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
