package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// FieldRule maps one output field to a locator.
//
// Selector is a CSS selector. It may carry a "::text" or "::attr(name)" suffix
// instead of setting Attr. Without either, the element text is used.
type FieldRule struct {
	Name     string `yaml:"name" json:"name"`
	Selector string `yaml:"selector" json:"selector"`
	Attr     string `yaml:"attr,omitempty" json:"attr,omitempty"`
	// All collects every match instead of the first one.
	All bool `yaml:"all,omitempty" json:"all,omitempty"`
	// Link resolves the value against the base URL even when Attr is not href or src.
	Link bool `yaml:"link,omitempty" json:"link,omitempty"`
}

// SelectorSet is an ordered, named group of field rules for one source template.
type SelectorSet struct {
	Name string `yaml:"name" json:"name"`
	// BaseURL resolves relative links. The page URL is used when empty.
	BaseURL string `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	// Item, when set, scopes every field to each matching container and yields a list of items.
	Item   string      `yaml:"item,omitempty" json:"item,omitempty"`
	Fields []FieldRule `yaml:"fields" json:"fields"`
	// Required lists the fields of which at least one must be non-empty. Empty means any field.
	Required []string `yaml:"required,omitempty" json:"required,omitempty"`
}

// Validate checks the set for missing names and selectors.
func (s SelectorSet) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("selector set name is required")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("selector set %q has no fields", s.Name)
	}
	names := make(map[string]struct{}, len(s.Fields))
	for i, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("selector set %q field %d has no name", s.Name, i)
		}
		if _, err := parseLocator(f); err != nil {
			return fmt.Errorf("selector set %q field %q: %w", s.Name, f.Name, err)
		}
		names[f.Name] = struct{}{}
	}
	for _, req := range s.Required {
		if _, ok := names[req]; !ok {
			return fmt.Errorf("selector set %q requires unknown field %q", s.Name, req)
		}
	}
	return nil
}

type locator struct {
	css  string
	attr string
}

var attrSuffix = regexp.MustCompile(`::attr\(\s*([^)\s]+)\s*\)$`)

func parseLocator(rule FieldRule) (locator, error) {
	sel := strings.TrimSpace(rule.Selector)
	loc := locator{attr: strings.TrimSpace(rule.Attr)}
	switch {
	case strings.HasSuffix(sel, "::text"):
		sel = strings.TrimSpace(strings.TrimSuffix(sel, "::text"))
	case attrSuffix.MatchString(sel):
		m := attrSuffix.FindStringSubmatch(sel)
		if loc.attr == "" {
			loc.attr = m[1]
		}
		sel = strings.TrimSpace(sel[:len(sel)-len(m[0])])
	}
	if sel == "" {
		return locator{}, fmt.Errorf("empty selector")
	}
	loc.css = sel
	return loc, nil
}

func (l locator) isLink(rule FieldRule) bool {
	if rule.Link {
		return true
	}
	switch strings.ToLower(l.attr) {
	case "href", "src":
		return true
	default:
		return false
	}
}
