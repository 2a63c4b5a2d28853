package document

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/entity-harvester/internal/extract"
)

// CSVExtractor reads a CSV export as one table and collects company facts
// from columns whose headers name them.
type CSVExtractor struct{}

// Extract implements Extractor.
func (CSVExtractor) Extract(ctx context.Context, path string) (Fields, error) {
	data, err := readLimited(ctx, path)
	if err != nil {
		return Fields{}, err
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return Fields{}, &ExtractError{Path: path, Kind: KindParse, Err: errors.New("empty csv")}
	}
	if err != nil {
		return Fields{}, &ExtractError{Path: path, Kind: KindParse, Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}

	table := Table{Name: strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)), Columns: header, Rows: [][]string{}}
	buckets := map[string]*[]string{}
	f := Fields{
		FileType:     TypeExcel,
		Filename:     filepath.Base(path),
		CompanyNames: []string{},
		Contacts:     []string{},
		Addresses:    []string{},
		Projects:     []string{},
		Amounts:      []string{},
	}
	buckets["company"] = &f.CompanyNames
	buckets["contact"] = &f.Contacts
	buckets["address"] = &f.Addresses
	buckets["project"] = &f.Projects
	seen := map[string]struct{}{}

	var text strings.Builder
	for {
		row, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return Fields{}, &ExtractError{Path: path, Kind: KindParse, Err: err}
		}
		table.Rows = append(table.Rows, row)
		for i, cell := range row {
			text.WriteString(cell)
			text.WriteByte('\n')
			if i >= len(header) {
				continue
			}
			dst, ok := buckets[headerKind(header[i])]
			v := extract.CleanText(cell)
			if !ok || v == "" {
				continue
			}
			key := headerKind(header[i]) + "\x00" + v
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			*dst = append(*dst, v)
		}
	}
	f.Amounts = Scan(text.String()).Amounts
	f.Tables = []Table{table}
	return f, nil
}
