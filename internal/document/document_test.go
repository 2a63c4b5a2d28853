package document

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenderNotice = `Tender award notice
Contract awarded to RiverChain Engineering Limited for the harbour works.
Joint venture partner: Kowloon Piling Co Ltd.
Registered Office: 18 Harbour Road, Wan Chai, Hong Kong
Tel: +852 2345 6789
Project: Tseung Kwan O Cross Bay Link
Contract sum HK$ 1,250 million, retention USD 3,000,000.
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestTypeOf(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"report.PDF":  TypePDF,
		"sheet.xlsx":  TypeExcel,
		"old.xls":     TypeExcel,
		"export.csv":  TypeExcel,
		"notes.txt":   TypeText,
		"readme.md":   TypeText,
		"photo.jpg":   TypeUnknown,
		"no_ext_file": TypeUnknown,
	}
	for name, want := range cases {
		assert.Equal(t, want, TypeOf(name), name)
	}
}

func TestTextExtractorFindsFacts(t *testing.T) {
	t.Parallel()

	path := writeFile(t, "notice.txt", tenderNotice)
	f, err := NewRouter().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, TypeText, f.FileType)
	assert.Equal(t, "notice.txt", f.Filename)
	assert.Contains(t, f.CompanyNames, "RiverChain Engineering Limited")
	assert.Contains(t, f.CompanyNames, "Kowloon Piling Co Ltd.")
	assert.Equal(t, []string{"18 Harbour Road, Wan Chai, Hong Kong"}, f.Addresses)
	assert.Equal(t, []string{"+852 2345 6789"}, f.Contacts)
	assert.Equal(t, []string{"Tseung Kwan O Cross Bay Link"}, f.Projects)
	assert.Equal(t, []string{"HK$ 1,250 million", "USD 3,000,000"}, f.Amounts)
	assert.Equal(t, tenderNotice, f.Preview)
	assert.Empty(t, f.Tables)
}

func TestCSVExtractorReadsTable(t *testing.T) {
	t.Parallel()

	content := "Company Name,Contact Phone,Address,Contract Value\n" +
		"RiverChain Ltd,+852 2345 6789,18 Harbour Road,HK$ 120 million\n" +
		"RiverChain Ltd,+852 2345 6789,18 Harbour Road,HK$ 80 million\n" +
		"Kowloon Piling,,9 Canton Road,\n"
	path := writeFile(t, "contractors.csv", content)

	f, err := NewRouter().Extract(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, TypeExcel, f.FileType)
	assert.Equal(t, []string{"RiverChain Ltd", "Kowloon Piling"}, f.CompanyNames)
	assert.Equal(t, []string{"+852 2345 6789"}, f.Contacts)
	assert.Equal(t, []string{"18 Harbour Road", "9 Canton Road"}, f.Addresses)
	assert.Equal(t, []string{"HK$ 120 million", "HK$ 80 million"}, f.Amounts)
	require.Len(t, f.Tables, 1)
	assert.Equal(t, "contractors", f.Tables[0].Name)
	assert.Equal(t, []string{"Company Name", "Contact Phone", "Address", "Contract Value"}, f.Tables[0].Columns)
	assert.Len(t, f.Tables[0].Rows, 3)
}

func TestExtractErrors(t *testing.T) {
	t.Parallel()

	router := NewRouter()
	ctx := context.Background()

	cases := []struct {
		name string
		path string
		want Kind
	}{
		{name: "pdf stub", path: writeFile(t, "annual.pdf", "%PDF-1.7"), want: KindUnsupported},
		{name: "excel stub", path: writeFile(t, "book.xlsx", "PK"), want: KindUnsupported},
		{name: "unknown extension", path: writeFile(t, "photo.jpg", "x"), want: KindUnsupported},
		{name: "missing file", path: filepath.Join(t.TempDir(), "gone.txt"), want: KindRead},
		{name: "empty csv", path: writeFile(t, "empty.csv", ""), want: KindParse},
		{name: "invalid utf8", path: writeFile(t, "bad.txt", "\xff\xfe\xfd"), want: KindParse},
	}
	for _, tc := range cases {
		_, err := router.Extract(ctx, tc.path)
		var extractErr *ExtractError
		require.ErrorAs(t, err, &extractErr, tc.name)
		assert.Equal(t, tc.want, extractErr.Kind, tc.name)
		assert.Equal(t, tc.path, extractErr.Path, tc.name)
	}
}

func TestFieldsDocument(t *testing.T) {
	t.Parallel()

	f := Fields{
		FileType:     TypeExcel,
		Filename:     "contractors.csv",
		CompanyNames: []string{"RiverChain Ltd"},
		Tables:       []Table{{Name: "contractors", Columns: []string{"a"}, Rows: [][]string{{"1"}}}},
	}
	doc := f.Document()
	assert.Equal(t, "document_upload", doc["source"])
	assert.Equal(t, []any{"RiverChain Ltd"}, doc["company_names"])
	assert.Equal(t, []any{}, doc["contacts"])
	tables, ok := doc["tables"].([]any)
	require.True(t, ok)
	require.Len(t, tables, 1)

	_, err := doc.Encode()
	require.NoError(t, err)
}

func TestPreviewTruncates(t *testing.T) {
	t.Parallel()

	long := make([]rune, previewRunes+10)
	for i := range long {
		long[i] = '港'
	}
	got := preview(string(long))
	assert.Equal(t, previewRunes+3, len([]rune(got)))
}
