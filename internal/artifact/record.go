package artifact

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/JakeFAU/entity-harvester/internal/entity"
)

// Format identifies how an artifact is serialized; it doubles as the file extension.
type Format string

// Supported artifact formats.
const (
	FormatJSON   Format = "json"
	FormatCSV    Format = "csv"
	FormatText   Format = "txt"
	FormatBinary Format = "bin"
)

// ContentType returns the MIME type used when committing the artifact.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/json"
	case FormatCSV:
		return "text/csv"
	case FormatText:
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

// Record is a structured artifact payload: a Document or a *Table.
type Record interface {
	Format() Format
	Encode() ([]byte, error)
}

// Document is a key/value tree stored as indented JSON.
type Document map[string]any

// Format implements Record.
func (Document) Format() Format { return FormatJSON }

// Encode implements Record.
func (d Document) Encode() ([]byte, error) {
	if d == nil {
		d = Document{}
	}
	data, err := json.MarshalIndent(map[string]any(d), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), nil
}

// Table is a tabular record stored as CSV with a header row.
type Table struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
}

// Format implements Record.
func (*Table) Format() Format { return FormatCSV }

// Encode implements Record.
func (t *Table) Encode() ([]byte, error) {
	if t == nil || len(t.Columns) == 0 {
		return nil, fmt.Errorf("encode csv: table has no columns")
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(t.Columns); err != nil {
		return nil, fmt.Errorf("encode csv header: %w", err)
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return nil, fmt.Errorf("encode csv row %d: has %d cells, want %d", i, len(row), len(t.Columns))
		}
	}
	if err := w.WriteAll(t.Rows); err != nil {
		return nil, fmt.Errorf("encode csv rows: %w", err)
	}
	return buf.Bytes(), nil
}

// Artifact is a stored record. Artifacts are immutable once written.
type Artifact struct {
	ID       string          `json:"id"`
	Entity   string          `json:"entity"`
	Category entity.Category `json:"category"`
	Version  string          `json:"version"`
	Format   Format          `json:"format"`
	Record   Record          `json:"record"`
}

func decode(name string, data []byte) (Record, string, error) {
	ext := path.Ext(name)
	version := strings.TrimSuffix(name, ext)
	switch Format(strings.TrimPrefix(ext, ".")) {
	case FormatJSON:
		doc, err := decodeDocument(data)
		if err != nil {
			return nil, "", err
		}
		return doc, version, nil
	case FormatCSV:
		rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
		if err != nil {
			return nil, "", fmt.Errorf("decode csv: %w", err)
		}
		if len(rows) == 0 {
			return nil, "", fmt.Errorf("decode csv: missing header")
		}
		table := &Table{Columns: rows[0]}
		if len(rows) > 1 {
			table.Rows = rows[1:]
		}
		return table, version, nil
	default:
		return nil, "", fmt.Errorf("unsupported artifact extension %q", ext)
	}
}

// decodeDocument keeps numbers as json.Number so integers beyond 2^53
// survive a save and load.
func decodeDocument(data []byte) (Document, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc Document
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	if doc == nil {
		return nil, fmt.Errorf("decode json: not an object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode json: trailing data after object")
	}
	return doc, nil
}

// encodeList stores a raw list capture as a JSON array.
func encodeList(v any) ([]byte, Format, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("encode json: %w", err)
	}
	return append(data, '\n'), FormatJSON, nil
}

// encodeRaw picks the raw-capture format from the dynamic type of data.
func encodeRaw(data any) ([]byte, Format, error) {
	switch v := data.(type) {
	case string:
		return []byte(v), FormatText, nil
	case []byte:
		return append([]byte(nil), v...), FormatBinary, nil
	case Record:
		encoded, err := v.Encode()
		if err != nil {
			return nil, "", err
		}
		return encoded, v.Format(), nil
	case map[string]any:
		return encodeRaw(Document(v))
	case Table:
		return encodeRaw(&v)
	case []any, []map[string]any, []Document, []string:
		return encodeList(v)
	default:
		return nil, "", fmt.Errorf("%w: %T", ErrUnsupportedRecord, data)
	}
}
