// Package entity normalizes business names into storage keys and defines the
// fixed set of data categories harvested for each entity.
package entity

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Category identifies the kind of harvested data and selects the storage subdirectory.
type Category string

// Supported categories.
const (
	CategoryNews     Category = "news"
	CategorySocial   Category = "social"
	CategoryGov      Category = "gov"
	CategoryIndustry Category = "industry"
	CategoryDocument Category = "document"
	CategoryRaw      Category = "raw"
)

var categories = []Category{
	CategoryNews,
	CategorySocial,
	CategoryGov,
	CategoryIndustry,
	CategoryDocument,
	CategoryRaw,
}

// Categories returns every known category in display order.
func Categories() []Category {
	return append([]Category(nil), categories...)
}

// EntityCategories returns the categories stored under an entity, which excludes raw captures.
func EntityCategories() []Category {
	out := make([]Category, 0, len(categories)-1)
	for _, c := range categories {
		if c != CategoryRaw {
			out = append(out, c)
		}
	}
	return out
}

// ParseCategory validates a category name.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", fmt.Errorf("unknown category %q", raw)
	}
	return c, nil
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range categories {
		if c == known {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (c Category) String() string {
	return string(c)
}

var (
	latinSuffix = regexp.MustCompile(
		`\s+(limited|ltd|llc|inc|corporation|corp|co|company|group|holdings|hk)$`,
	)
	cjkSuffix = regexp.MustCompile(`(有限公司|集团|控股|香港)$`)
)

// Normalize converts a raw business name into its entity key.
//
// The key is NFKC-normalized, case-folded, stripped of punctuation and legal
// suffixes, and whitespace-collapsed. Suffixes are removed repeatedly but the
// last remaining token is kept. The pipeline runs to a fixed point, so
// Normalize(Normalize(x)) == Normalize(x).
func Normalize(name string) string {
	s := name
	for {
		next := normalizeOnce(s)
		if next == s {
			return s
		}
		s = next
	}
}

func normalizeOnce(s string) string {
	s = norm.NFKC.String(s)
	s = strings.ToLower(cases.Fold().String(s))
	s = stripPunctuation(s)
	s = norm.NFKC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	for {
		next := trimSuffix(s)
		if next == s {
			return s
		}
		s = next
	}
}

func trimSuffix(s string) string {
	if loc := latinSuffix.FindStringIndex(s); loc != nil {
		return strings.TrimSpace(s[:loc[0]])
	}
	if loc := cjkSuffix.FindStringIndex(s); loc != nil && loc[0] > 0 {
		return strings.TrimSpace(s[:loc[0]])
	}
	return s
}

// stripPunctuation keeps letters, digits, marks, underscores and whitespace.
func stripPunctuation(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r), r == '_':
			return r
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
}

// Same reports whether two raw names resolve to the same entity key.
func Same(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
