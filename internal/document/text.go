package document

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/JakeFAU/entity-harvester/internal/extract"
)

const (
	maxFileBytes = 10 << 20
	previewRunes = 1000
)

var (
	companyPattern = regexp.MustCompile(`(?:[A-Z][A-Za-z&]*\s+)+(?:Limited|Ltd|LLC|Inc|Corporation|Corp)\b\.?`)
	contactPattern = regexp.MustCompile(`(?i)(?:tel|phone|contact)[.\s:]+(\+?[0-9][0-9 \-]{5,}[0-9])`)
	addressPattern = regexp.MustCompile(`(?i)(?:address|registered office|location)[.\s]*:\s*([^\r\n]+)`)
	projectPattern = regexp.MustCompile(`(?i)project[.\s]*:\s*([A-Za-z0-9 ]+)`)
	amountPattern  = regexp.MustCompile(`(?i)(?:HK\$|US\$|USD|HKD|CNY|RMB)\s?\d{1,3}(?:,\d{3})*(?:\.\d+)?(?:\s?(?:million|billion))?`)
)

// TextExtractor scans plain text for company facts.
type TextExtractor struct{}

// Extract implements Extractor.
func (TextExtractor) Extract(ctx context.Context, path string) (Fields, error) {
	data, err := readLimited(ctx, path)
	if err != nil {
		return Fields{}, err
	}
	if !utf8.Valid(data) {
		return Fields{}, &ExtractError{Path: path, Kind: KindParse, Err: fmt.Errorf("file is not valid UTF-8")}
	}
	text := string(data)
	f := Scan(text)
	f.FileType = TypeText
	f.Filename = filepath.Base(path)
	f.Preview = preview(text)
	return f, nil
}

// Scan extracts company names, contacts, addresses, projects and amounts from text.
func Scan(text string) Fields {
	return Fields{
		CompanyNames: matches(companyPattern, text, 0),
		Contacts:     matches(contactPattern, text, 1),
		Addresses:    matches(addressPattern, text, 1),
		Projects:     matches(projectPattern, text, 1),
		Amounts:      matches(amountPattern, text, 0),
		Tables:       []Table{},
	}
}

func matches(re *regexp.Regexp, text string, group int) []string {
	out := []string{}
	seen := make(map[string]struct{})
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		v := extract.CleanText(m[group])
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func preview(text string) string {
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	runes := []rune(text)
	return string(runes[:previewRunes]) + "..."
}

func readLimited(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // caller-supplied upload path
	if err != nil {
		return nil, &ExtractError{Path: path, Kind: KindRead, Err: err}
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(io.LimitReader(f, maxFileBytes+1))
	if err != nil {
		return nil, &ExtractError{Path: path, Kind: KindRead, Err: err}
	}
	if len(data) > maxFileBytes {
		return nil, &ExtractError{Path: path, Kind: KindRead, Err: fmt.Errorf("file exceeds %d bytes", maxFileBytes)}
	}
	return data, nil
}

// headerKind maps a CSV column header to the field its cells feed.
func headerKind(header string) string {
	h := strings.ToLower(header)
	switch {
	case strings.Contains(h, "company") || strings.Contains(h, "contractor") || h == "name":
		return "company"
	case strings.Contains(h, "contact") || strings.Contains(h, "phone") || strings.Contains(h, "tel"):
		return "contact"
	case strings.Contains(h, "address"):
		return "address"
	case strings.Contains(h, "project"):
		return "project"
	default:
		return ""
	}
}
