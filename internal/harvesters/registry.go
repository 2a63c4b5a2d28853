package harvesters

import (
	"fmt"
	"strings"

	"github.com/JakeFAU/entity-harvester/internal/extract"
	"github.com/JakeFAU/entity-harvester/internal/fetcher"
	"github.com/JakeFAU/entity-harvester/internal/harvest"
)

// Build creates a registry with one PageHarvester per catalog source. When
// enabled is non-empty it replaces the catalog's enabled flags; unknown ids
// in enabled are an error.
func Build(
	cat Catalog,
	f fetcher.Fetcher,
	strategy *extract.Strategy,
	enabled []string,
	opts ...Option,
) (*harvest.Registry, error) {
	if f == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	override := make(map[string]bool, len(enabled))
	for _, id := range enabled {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := cat.Lookup(id); !ok {
			return nil, fmt.Errorf("enabled harvester %q is not in the catalog", id)
		}
		override[id] = true
	}
	registry, err := harvest.NewRegistry()
	if err != nil {
		return nil, err
	}
	for _, src := range cat.Sources {
		if len(override) > 0 {
			src.Enabled = override[src.ID]
		}
		if err := registry.Register(NewPageHarvester(src, f, strategy, opts...)); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
