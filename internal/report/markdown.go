// Package report renders a finished crawl as a Markdown document.
package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/littlesearch/littlesearch/internal/crawler"
)

// Crawl is the input of a report
type Crawl struct {
	StartURL     string
	Interrupted  bool
	Stats        crawler.CrawlStats
	Pages        []*crawler.Page
	BlockedHosts []string
	Errors       []crawler.CrawlError
}

// MarkdownWriter outputs crawl reports in Markdown format
type MarkdownWriter struct {
	output io.Writer
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{output: output}
}

// Write renders the full report
func (w *MarkdownWriter) Write(c *Crawl) error {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, c)
	w.writeErrors(md, c)
	w.writeBlockedHosts(md, c)
	w.writePages(md, c)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by LittleSearch at %s*", time.Now().UTC().Format(time.RFC3339))

	if err := md.Build(); err != nil {
		return fmt.Errorf("failed to write markdown report: %w", err)
	}
	return nil
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, c *Crawl) {
	md.H1("Crawl Report")
	md.PlainText("")

	status := "Complete"
	if c.Interrupted {
		status = "Interrupted (partial results)"
	}

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Start URL", "`" + c.StartURL + "`"},
			{"Started", c.Stats.StartTime.UTC().Format("2006-01-02 15:04:05 MST")},
			{"Duration", c.Stats.Duration.Round(time.Millisecond).String()},
			{"Status", status},
			{"Pages Stored", strconv.Itoa(c.Stats.PagesStored)},
			{"URLs Visited", strconv.Itoa(c.Stats.Visited)},
			{"Still Pending", strconv.Itoa(c.Stats.Pending)},
			{"Blocked Hosts", strconv.Itoa(len(c.BlockedHosts))},
			{"Errors", strconv.Itoa(len(c.Errors))},
		},
	})
	md.PlainText("")

	if c.Interrupted {
		md.Warningf("The crawl was interrupted; %d URL(s) were never fetched.", c.Stats.Pending)
		md.PlainText("")
	}
}

func (w *MarkdownWriter) writeErrors(md *markdown.Markdown, c *Crawl) {
	md.H2("Errors")
	md.PlainText("")

	if len(c.Errors) == 0 {
		md.Tip("No fetch errors were recorded.")
		md.PlainText("")
		return
	}

	counts := make(map[string]int)
	for _, e := range c.Errors {
		counts[e.ErrorType]++
	}
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)

	rows := make([][]string, 0, len(types))
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle("Errors by Type"),
		piechart.WithShowData(true),
	)
	for _, t := range types {
		rows = append(rows, []string{"`" + t + "`", strconv.Itoa(counts[t])})
		chart.LabelAndIntValue(t, uint64(counts[t]))
	}

	md.Table(markdown.TableSet{
		Header: []string{"Type", "Count"},
		Rows:   rows,
	})
	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

func (w *MarkdownWriter) writeBlockedHosts(md *markdown.Markdown, c *Crawl) {
	if len(c.BlockedHosts) == 0 {
		return
	}

	md.H2("Blocked Hosts")
	md.PlainText("")
	md.Note("These hosts refused connections or answered 403 and were not contacted again.")
	md.PlainText("")
	md.BulletList(c.BlockedHosts...)
	md.PlainText("")
}

func (w *MarkdownWriter) writePages(md *markdown.Markdown, c *Crawl) {
	md.H2("Pages")
	md.PlainText("")

	if len(c.Pages) == 0 {
		md.PlainText("No pages were stored.")
		md.PlainText("")
		return
	}

	rows := make([][]string, len(c.Pages))
	for i, p := range c.Pages {
		title := p.Title
		if title == "" {
			title = "-"
		}
		rows[i] = []string{
			escapeCell(p.URL),
			escapeCell(truncateString(title, 60)),
			strconv.Itoa(p.StatusCode),
			strconv.Itoa(len(p.Links)),
			formatMillis(p.TTFB),
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"URL", "Title", "Status", "Links", "TTFB"},
		Rows:   rows,
	})
	md.PlainText("")
}

func formatMillis(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return strconv.FormatInt(d.Milliseconds(), 10) + " ms"
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

// truncateString truncates a string to maxLen runes with ellipsis
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
