// Package document extracts company facts from uploaded files. Files are
// routed by extension; PDF and spreadsheet parsing are not available and
// report KindUnsupported.
package document

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
)

// Kind classifies an extraction failure.
type Kind string

// Failure kinds.
const (
	KindUnsupported Kind = "unsupported"
	KindRead        Kind = "read"
	KindParse       Kind = "parse"
)

// ExtractError reports why a file could not be extracted.
type ExtractError struct {
	Path string
	Kind Kind
	Err  error
}

func (e *ExtractError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("extract %s: %s", e.Path, e.Kind)
	}
	return fmt.Sprintf("extract %s: %s: %v", e.Path, e.Kind, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// Table is a tabular block found in a document.
type Table struct {
	Name    string     `json:"name"`
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Fields are the facts extracted from one document.
type Fields struct {
	FileType     string   `json:"file_type"`
	Filename     string   `json:"filename"`
	CompanyNames []string `json:"company_names"`
	Contacts     []string `json:"contacts"`
	Addresses    []string `json:"addresses"`
	Projects     []string `json:"projects"`
	Amounts      []string `json:"amounts"`
	Tables       []Table  `json:"tables"`
	Preview      string   `json:"preview,omitempty"`
}

// Document converts f into a storable record.
func (f Fields) Document() artifact.Document {
	tables := make([]any, 0, len(f.Tables))
	for _, t := range f.Tables {
		rows := make([]any, 0, len(t.Rows))
		for _, r := range t.Rows {
			rows = append(rows, toAny(r))
		}
		tables = append(tables, map[string]any{"name": t.Name, "columns": toAny(t.Columns), "rows": rows})
	}
	doc := artifact.Document{
		"source":        "document_upload",
		"file_type":     f.FileType,
		"filename":      f.Filename,
		"company_names": toAny(f.CompanyNames),
		"contacts":      toAny(f.Contacts),
		"addresses":     toAny(f.Addresses),
		"projects":      toAny(f.Projects),
		"amounts":       toAny(f.Amounts),
		"tables":        tables,
	}
	if f.Preview != "" {
		doc["preview"] = f.Preview
	}
	return doc
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

// Extractor turns a file into Fields.
type Extractor interface {
	Extract(ctx context.Context, path string) (Fields, error)
}

// File types.
const (
	TypePDF     = "pdf"
	TypeExcel   = "excel"
	TypeText    = "text"
	TypeUnknown = "unknown"
)

var extensions = map[string]string{
	".pdf":  TypePDF,
	".xlsx": TypeExcel,
	".xls":  TypeExcel,
	".csv":  TypeExcel,
	".txt":  TypeText,
	".md":   TypeText,
	".json": TypeText,
}

// TypeOf returns the file type implied by path's extension.
func TypeOf(path string) string {
	if t, ok := extensions[strings.ToLower(filepath.Ext(path))]; ok {
		return t
	}
	return TypeUnknown
}

// Router dispatches by extension.
type Router struct {
	byExt map[string]Extractor
}

var _ Extractor = (*Router)(nil)

// NewRouter returns a Router with the built-in extractors: text for .txt,
// .md and .json, CSV for .csv, and unsupported stubs for PDF and Excel.
func NewRouter() *Router {
	text := TextExtractor{}
	return &Router{byExt: map[string]Extractor{
		".txt":  text,
		".md":   text,
		".json": text,
		".csv":  CSVExtractor{},
		".pdf":  Unsupported{FileType: TypePDF},
		".xlsx": Unsupported{FileType: TypeExcel},
		".xls":  Unsupported{FileType: TypeExcel},
	}}
}

// Register sets the extractor for an extension such as ".pdf".
func (r *Router) Register(ext string, x Extractor) {
	r.byExt[strings.ToLower(ext)] = x
}

// Extract implements Extractor.
func (r *Router) Extract(ctx context.Context, path string) (Fields, error) {
	x, ok := r.byExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return Fields{}, &ExtractError{Path: path, Kind: KindUnsupported}
	}
	return x.Extract(ctx, path)
}

// Unsupported rejects every file of its type.
type Unsupported struct {
	FileType string
}

// Extract implements Extractor.
func (u Unsupported) Extract(_ context.Context, path string) (Fields, error) {
	return Fields{}, &ExtractError{Path: path, Kind: KindUnsupported, Err: fmt.Errorf("no %s parser available", u.FileType)}
}
