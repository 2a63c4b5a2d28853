package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"

	"github.com/JakeFAU/entity-harvester/internal/artifact"
	"github.com/JakeFAU/entity-harvester/internal/entity"
	"github.com/JakeFAU/entity-harvester/internal/harvest"
)

const (
	maxListedItems = 10
	maxCellRunes   = 60
)

// MarkdownWriter renders a batch as GitHub-flavoured Markdown.
type MarkdownWriter struct {
	out io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter.
func NewMarkdownWriter(out io.Writer) *MarkdownWriter {
	return &MarkdownWriter{out: out}
}

// Write implements Writer.
func (w *MarkdownWriter) Write(b Batch) error {
	md := markdown.NewMarkdown(w.out)
	w.writeHeader(md, b)
	w.writeSummary(md, b)
	for _, r := range b.Results {
		w.writeResult(md, r)
	}
	if err := md.Build(); err != nil {
		return fmt.Errorf("write markdown report: %w", err)
	}
	return nil
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, b Batch) {
	succeeded, failed := b.Counts()
	md.H1("Harvest Report: " + b.Entity)
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Entity", b.Entity},
			{"Generated", b.Generated.Format("2006-01-02 15:04:05 MST")},
			{"Harvesters", strconv.Itoa(len(b.Results))},
			{"Succeeded", strconv.Itoa(succeeded)},
			{"Failed", strconv.Itoa(failed)},
		},
	})
	md.PlainText("")
	if failed > 0 {
		md.Warningf("%d of %d harvesters failed.", failed, len(b.Results))
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeSummary(md *markdown.Markdown, b Batch) {
	md.H2("Results")
	md.PlainText("")
	rows := make([][]string, 0, len(b.Results))
	for _, r := range b.Results {
		duration, errText := "-", "-"
		if r.Metadata != nil {
			duration = r.Metadata.Duration.Round(time.Millisecond).String()
		}
		if r.Error != nil {
			errText = string(r.Error.Kind) + ": " + truncate(r.Error.Message, maxCellRunes)
		}
		rows = append(rows, []string{
			r.HarvesterID,
			orDash(r.Category),
			string(r.Status),
			duration,
			strconv.Itoa(len(r.Artifacts)),
			escapeCell(errText),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Harvester", "Category", "Status", "Duration", "Artifacts", "Error"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeResult(md *markdown.Markdown, r harvest.Result) {
	if r.Status != harvest.StatusSucceeded {
		return
	}
	md.H3(r.HarvesterID)
	md.PlainText("")
	items := recordItems(r.Record)
	if len(items) == 0 && RendererFor(entity.Category(r.Category)) != RendererFields {
		md.PlainText("Nothing found.")
		md.PlainText("")
		return
	}
	switch RendererFor(entity.Category(r.Category)) {
	case RendererArticles, RendererProfile:
		md.BulletList(itemLines(items)...)
	case RendererFields:
		md.Table(fieldsTable(r.Record))
	default:
		md.Table(itemsTable(items))
	}
	md.PlainText("")
	if len(items) > maxListedItems {
		md.PlainTextf("*%d more not shown.*", len(items)-maxListedItems)
		md.PlainText("")
	}
}

// recordItems returns the first list of objects in the record, by sorted key.
func recordItems(doc artifact.Document) []map[string]any {
	keys := make([]string, 0, len(doc))
	for k := range doc {
		if k != "pages" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		list, ok := doc[k].([]any)
		if !ok || len(list) == 0 {
			continue
		}
		var items []map[string]any
		for _, v := range list {
			if m, ok := v.(map[string]any); ok {
				items = append(items, m)
			}
		}
		if len(items) > 0 {
			return items
		}
	}
	return nil
}

func itemLines(items []map[string]any) []string {
	lines := make([]string, 0, maxListedItems)
	for i, item := range items {
		if i == maxListedItems {
			break
		}
		title := firstString(item, "title", "name", "company_name", "filing_type")
		if title == "" {
			title = "(untitled)"
		}
		line := title
		if u := firstString(item, "url"); u != "" {
			line = fmt.Sprintf("[%s](%s)", escapeLinkText(title), u)
		}
		if site := firstString(item, "site"); site != "" {
			line += " (" + site + ")"
		}
		lines = append(lines, line)
	}
	return lines
}

func itemsTable(items []map[string]any) markdown.TableSet {
	colSet := map[string]struct{}{}
	for _, item := range items {
		for k, v := range item {
			if _, ok := v.(string); ok {
				colSet[k] = struct{}{}
			}
		}
	}
	cols := make([]string, 0, len(colSet))
	for k := range colSet {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	var rows [][]string
	for i, item := range items {
		if i == maxListedItems {
			break
		}
		row := make([]string, len(cols))
		for j, c := range cols {
			row[j] = escapeCell(truncate(firstString(item, c), maxCellRunes))
		}
		rows = append(rows, row)
	}
	return markdown.TableSet{Header: cols, Rows: rows}
}

func fieldsTable(doc artifact.Document) markdown.TableSet {
	var rows [][]string
	for _, k := range []string{"company_names", "contacts", "addresses", "projects", "amounts"} {
		list, _ := doc[k].([]any)
		vals := make([]string, 0, len(list))
		for _, v := range list {
			if s, ok := v.(string); ok {
				vals = append(vals, s)
			}
		}
		rows = append(rows, []string{k, escapeCell(truncate(orDash(strings.Join(vals, "; ")), maxCellRunes*2))})
	}
	return markdown.TableSet{Header: []string{"Field", "Values"}, Rows: rows}
}

func firstString(item map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := item[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func escapeCell(s string) string {
	return strings.ReplaceAll(strings.ReplaceAll(s, "|", `\|`), "\n", " ")
}

func escapeLinkText(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// WriteHarvesters renders the harvester registry as a Markdown table.
func WriteHarvesters(out io.Writer, infos []harvest.Info) error {
	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		enabled := "no"
		if info.Enabled {
			enabled = "yes"
		}
		rows = append(rows, []string{
			info.ID,
			escapeCell(info.Name),
			string(info.Category),
			enabled,
			escapeCell(truncate(info.Description, maxCellRunes)),
		})
	}
	md := markdown.NewMarkdown(out)
	md.Table(markdown.TableSet{
		Header: []string{"ID", "Name", "Category", "Enabled", "Description"},
		Rows:   rows,
	})
	if err := md.Build(); err != nil {
		return fmt.Errorf("write harvester table: %w", err)
	}
	return nil
}
