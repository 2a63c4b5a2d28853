package harvest

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps harvester ids to implementations.
type Registry struct {
	mu         sync.RWMutex
	harvesters map[string]Harvester
}

// NewRegistry returns a registry holding hs.
func NewRegistry(hs ...Harvester) (*Registry, error) {
	r := &Registry{harvesters: make(map[string]Harvester, len(hs))}
	for _, h := range hs {
		if err := r.Register(h); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds h. Ids must be unique and non-empty.
func (r *Registry) Register(h Harvester) error {
	if h == nil {
		return fmt.Errorf("register harvester: nil harvester")
	}
	id := strings.TrimSpace(h.Info().ID)
	if id == "" {
		return fmt.Errorf("register harvester: empty id")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.harvesters[id]; exists {
		return fmt.Errorf("register harvester %q: duplicate id", id)
	}
	r.harvesters[id] = h
	return nil
}

// Lookup returns the harvester registered under id.
func (r *Registry) Lookup(id string) (Harvester, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.harvesters[strings.TrimSpace(id)]
	return h, ok
}

// List returns the metadata of every registered harvester sorted by category then id.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Info, 0, len(r.harvesters))
	for _, h := range r.harvesters {
		out = append(out, h.Info())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Enabled returns the ids of enabled harvesters in List order.
func (r *Registry) Enabled() []string {
	var ids []string
	for _, info := range r.List() {
		if info.Enabled {
			ids = append(ids, info.ID)
		}
	}
	return ids
}
