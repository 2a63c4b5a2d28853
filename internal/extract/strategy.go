// Package extract pulls structured fields out of fetched pages using ordered
// candidate selector sets, falling back to generic link harvesting when no
// candidate matches the markup.
package extract

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

// Mode tags how a Result was produced.
type Mode string

// Extraction modes.
const (
	ModeMatched  Mode = "matched"
	ModeFallback Mode = "fallback"
	ModeEmpty    Mode = "empty"
)

// Defaults for the fallback pass.
const (
	DefaultMinLinkText      = 20
	DefaultMaxFallbackLinks = 20
)

// Result is the outcome of one extraction.
//
// Page-level sets fill Fields with a string per field (or []string for All
// rules). Item sets and the fallback fill Items. Empty values are omitted.
type Result struct {
	Mode       Mode             `json:"mode"`
	MatchedSet string           `json:"matched_set,omitempty"`
	Fields     map[string]any   `json:"fields,omitempty"`
	Items      []map[string]any `json:"items,omitempty"`
}

// Empty reports whether nothing was extracted.
func (r Result) Empty() bool {
	return r.Mode == ModeEmpty
}

// Config tunes the fallback pass.
type Config struct {
	MinLinkText      int
	MaxFallbackLinks int
}

// Strategy runs candidate selector sets against page content. It holds no
// mutable state and is safe for concurrent use.
type Strategy struct {
	minLinkText int
	maxLinks    int
}

// New creates a Strategy.
func New(cfg Config) *Strategy {
	if cfg.MinLinkText <= 0 {
		cfg.MinLinkText = DefaultMinLinkText
	}
	if cfg.MaxFallbackLinks <= 0 {
		cfg.MaxFallbackLinks = DefaultMaxFallbackLinks
	}
	return &Strategy{minLinkText: cfg.MinLinkText, maxLinks: cfg.MaxFallbackLinks}
}

// Extract returns the fields of the first candidate that satisfies its
// required fields, or the fallback links, or an empty result. pageURL is the
// address content was fetched from; it resolves relative links and identifies
// links back to the page's own host. Extract never fails.
func (s *Strategy) Extract(content []byte, pageURL string, candidates []SelectorSet) Result {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return Result{Mode: ModeEmpty}
	}
	for _, set := range candidates {
		if res, ok := s.apply(doc, pageURL, set); ok {
			return res
		}
	}
	return s.fallback(doc, pageURL)
}

func (s *Strategy) apply(doc *goquery.Document, pageURL string, set SelectorSet) (Result, bool) {
	rules, ok := compile(set)
	if !ok {
		return Result{}, false
	}
	base := set.BaseURL
	if base == "" {
		base = pageURL
	}

	if set.Item == "" {
		fields := resolveAll(doc.Selection, rules, base)
		if !satisfies(fields, set.Required) {
			return Result{}, false
		}
		return Result{Mode: ModeMatched, MatchedSet: set.Name, Fields: fields}, true
	}

	var items []map[string]any
	doc.Find(set.Item).Each(func(_ int, item *goquery.Selection) {
		fields := resolveAll(item, rules, base)
		if satisfies(fields, set.Required) {
			items = append(items, fields)
		}
	})
	if len(items) == 0 {
		return Result{}, false
	}
	return Result{Mode: ModeMatched, MatchedSet: set.Name, Items: items}, true
}

type compiledRule struct {
	rule FieldRule
	loc  locator
}

func compile(set SelectorSet) ([]compiledRule, bool) {
	rules := make([]compiledRule, 0, len(set.Fields))
	for _, f := range set.Fields {
		loc, err := parseLocator(f)
		if err != nil {
			continue
		}
		rules = append(rules, compiledRule{rule: f, loc: loc})
	}
	return rules, len(rules) > 0
}

func resolveAll(scope *goquery.Selection, rules []compiledRule, base string) map[string]any {
	fields := make(map[string]any, len(rules))
	for _, r := range rules {
		if v, ok := r.resolve(scope, base); ok {
			fields[r.rule.Name] = v
		}
	}
	return fields
}

func (r compiledRule) resolve(scope *goquery.Selection, base string) (any, bool) {
	matches := scope.Find(r.loc.css)
	if !r.rule.All {
		var value string
		matches.EachWithBreak(func(_ int, node *goquery.Selection) bool {
			v, present := r.value(node, base)
			if !present {
				return true
			}
			value = v
			return false
		})
		return value, value != ""
	}

	var values []string
	seen := make(map[string]struct{})
	matches.Each(func(_ int, node *goquery.Selection) {
		v, _ := r.value(node, base)
		if v == "" {
			return
		}
		if _, dup := seen[v]; dup {
			return
		}
		seen[v] = struct{}{}
		values = append(values, v)
	})
	return values, len(values) > 0
}

// value reads one node. present is false when the node lacks the requested
// attribute, so the next match is tried; a present but blank value still wins.
func (r compiledRule) value(node *goquery.Selection, base string) (string, bool) {
	var raw string
	if r.loc.attr != "" {
		v, exists := node.Attr(r.loc.attr)
		if !exists {
			return "", false
		}
		raw = v
	} else {
		raw = node.Text()
	}
	v := CleanText(raw)
	if v != "" && r.loc.isLink(r.rule) {
		if strings.HasPrefix(strings.ToLower(v), "javascript:") {
			return "", true
		}
		v = Absolute(base, v)
	}
	return v, true
}

func satisfies(fields map[string]any, required []string) bool {
	if len(required) == 0 {
		return len(fields) > 0
	}
	for _, name := range required {
		if _, ok := fields[name]; ok {
			return true
		}
	}
	return false
}

func (s *Strategy) fallback(doc *goquery.Document, pageURL string) Result {
	pageHost := Domain(pageURL)
	seen := make(map[string]struct{})
	var items []map[string]any
	doc.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		text := CleanText(a.Text())
		if utf8.RuneCountInString(text) <= s.minLinkText {
			return true
		}
		href, _ := a.Attr("href")
		link := Absolute(pageURL, href)
		if link == "" || !strings.HasPrefix(link, "http") {
			return true
		}
		if pageHost != "" && Domain(link) == pageHost {
			return true
		}
		if _, dup := seen[link]; dup {
			return true
		}
		seen[link] = struct{}{}
		items = append(items, map[string]any{"title": text, "url": link})
		return len(items) < s.maxLinks
	})
	if len(items) == 0 {
		return Result{Mode: ModeEmpty}
	}
	return Result{Mode: ModeFallback, Items: items}
}
