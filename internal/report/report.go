// Package report renders harvest batches for people: a Markdown summary with
// one section per result, or indented JSON for scripts.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/JakeFAU/entity-harvester/internal/entity"
	"github.com/JakeFAU/entity-harvester/internal/harvest"
)

// Batch is one orchestrator run for an entity.
type Batch struct {
	Entity    string           `json:"entity"`
	Generated time.Time        `json:"generated"`
	Results   []harvest.Result `json:"results"`
}

// Counts returns the number of succeeded and failed results.
func (b Batch) Counts() (succeeded, failed int) {
	for _, r := range b.Results {
		if r.Status == harvest.StatusSucceeded {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// Renderer names how a category's records are presented.
type Renderer string

// Renderers.
const (
	RendererArticles Renderer = "articles"
	RendererTable    Renderer = "table"
	RendererProfile  Renderer = "profile"
	RendererFields   Renderer = "fields"
)

var renderers = map[entity.Category]Renderer{
	entity.CategoryNews:     RendererArticles,
	entity.CategoryGov:      RendererTable,
	entity.CategoryIndustry: RendererTable,
	entity.CategorySocial:   RendererProfile,
	entity.CategoryDocument: RendererFields,
}

// RendererFor returns the renderer for category. Unknown categories render as tables.
func RendererFor(category entity.Category) Renderer {
	if r, ok := renderers[category]; ok {
		return r
	}
	return RendererTable
}

// Writer outputs a batch.
type Writer interface {
	Write(b Batch) error
}

// Output formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// NewWriter returns the writer for format.
func NewWriter(format string, out io.Writer) (Writer, error) {
	switch format {
	case FormatJSON, "":
		return JSONWriter{out: out}, nil
	case FormatMarkdown, "md":
		return NewMarkdownWriter(out), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// JSONWriter writes the batch as indented JSON.
type JSONWriter struct {
	out io.Writer
}

// Write implements Writer.
func (w JSONWriter) Write(b Batch) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(b); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
