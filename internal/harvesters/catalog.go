// Package harvesters provides the page-based harvesters described by a YAML
// source catalog. The built-in catalog is embedded; a file may replace it.
package harvesters

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/entity-harvester/internal/entity"
	"github.com/JakeFAU/entity-harvester/internal/extract"
)

//go:embed catalog.yaml
var builtinCatalog []byte

// Page is one search page of a source.
type Page struct {
	Site string `yaml:"site" json:"site"`
	// URL may contain {query} or {query_path}.
	URL       string                `yaml:"url" json:"url"`
	Render    bool                  `yaml:"render,omitempty" json:"render,omitempty"`
	Selectors []extract.SelectorSet `yaml:"selectors" json:"selectors"`
}

// Source describes a harvester backed by one or more search pages.
type Source struct {
	ID          string          `yaml:"id" json:"id"`
	Name        string          `yaml:"name" json:"name"`
	Description string          `yaml:"description" json:"description"`
	Category    entity.Category `yaml:"category" json:"category"`
	Enabled     bool            `yaml:"enabled" json:"enabled"`
	QuerySuffix string          `yaml:"query_suffix,omitempty" json:"query_suffix,omitempty"`
	// ItemsField names the record field holding extracted items.
	ItemsField string `yaml:"items_field" json:"items_field"`
	Pages      []Page `yaml:"pages" json:"pages"`
}

// Catalog is the set of configured sources.
type Catalog struct {
	Sources []Source `yaml:"sources" json:"sources"`
}

// Builtin returns the embedded catalog.
func Builtin() (Catalog, error) {
	return ParseCatalog(builtinCatalog)
}

// LoadCatalog reads a catalog file. An empty path yields the built-in catalog.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return Builtin()
	}
	data, err := os.ReadFile(path) //nolint:gosec // operator-supplied catalog path
	if err != nil {
		return Catalog{}, fmt.Errorf("read catalog %s: %w", path, err)
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog %s: %w", path, err)
	}
	return cat, nil
}

// ParseCatalog decodes and validates YAML catalog data. Unknown keys are rejected.
func ParseCatalog(data []byte) (Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil && !errors.Is(err, io.EOF) {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return Catalog{}, err
	}
	return cat, nil
}

// Validate checks every source.
func (c Catalog) Validate() error {
	if len(c.Sources) == 0 {
		return fmt.Errorf("catalog has no sources")
	}
	seen := make(map[string]struct{}, len(c.Sources))
	for _, src := range c.Sources {
		if err := src.Validate(); err != nil {
			return err
		}
		if _, dup := seen[src.ID]; dup {
			return fmt.Errorf("duplicate source id %q", src.ID)
		}
		seen[src.ID] = struct{}{}
	}
	return nil
}

// Validate checks the source's identity, category and pages.
func (s Source) Validate() error {
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("source id is required")
	}
	if !s.Category.Valid() || s.Category == entity.CategoryRaw {
		return fmt.Errorf("source %q: invalid category %q", s.ID, s.Category)
	}
	if strings.TrimSpace(s.ItemsField) == "" {
		return fmt.Errorf("source %q: items_field is required", s.ID)
	}
	if len(s.Pages) == 0 {
		return fmt.Errorf("source %q has no pages", s.ID)
	}
	sites := make(map[string]struct{}, len(s.Pages))
	for _, p := range s.Pages {
		if strings.TrimSpace(p.Site) == "" {
			return fmt.Errorf("source %q: page site is required", s.ID)
		}
		if _, dup := sites[p.Site]; dup {
			return fmt.Errorf("source %q: duplicate site %q", s.ID, p.Site)
		}
		sites[p.Site] = struct{}{}
		u, err := url.Parse(p.Address("probe"))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("source %q site %q: invalid url %q", s.ID, p.Site, p.URL)
		}
		for _, set := range p.Selectors {
			if err := set.Validate(); err != nil {
				return fmt.Errorf("source %q site %q: %w", s.ID, p.Site, err)
			}
		}
	}
	return nil
}

// Query builds the search terms for an entity.
func (s Source) Query(entityName string) string {
	q := strings.Join(strings.Fields(entityName), " ")
	if s.QuerySuffix != "" {
		q += " " + s.QuerySuffix
	}
	return q
}

// Address expands the page URL template with query.
func (p Page) Address(query string) string {
	r := strings.NewReplacer(
		"{query}", url.QueryEscape(query),
		"{query_path}", url.PathEscape(query),
	)
	return r.Replace(p.URL)
}

// Lookup returns the source with id.
func (c Catalog) Lookup(id string) (Source, bool) {
	for _, src := range c.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return Source{}, false
}
