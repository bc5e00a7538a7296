// package formatter renders run summaries, warehouse statistics, and prune
// reports to various output formats (styled terminal text, CSV, Markdown).
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/desertthunder/spotlake/internal/pipeline"
	"github.com/desertthunder/spotlake/internal/warehouse"
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	labelStyle   = lipgloss.NewStyle().Faint(true)
	successStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#1DB954"))
	partialStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("11"))
	failedStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func statusStyle(status pipeline.Status) lipgloss.Style {
	switch status {
	case pipeline.StatusSucceeded:
		return successStyle
	case pipeline.StatusPartial:
		return partialStyle
	default:
		return failedStyle
	}
}

// entityOrder returns the summary's entities in warehouse load order.
// Unknown entities are appended at the end.
func entityOrder(counts map[string]*pipeline.EntityCount) []string {
	ordered := make([]string, 0, len(counts))
	seen := make(map[string]bool, len(counts))
	for _, table := range warehouse.AllTables {
		if _, ok := counts[table.Name]; ok {
			ordered = append(ordered, table.Name)
			seen[table.Name] = true
		}
	}
	for name := range counts {
		if !seen[name] {
			ordered = append(ordered, name)
		}
	}
	return ordered
}

// RenderSummary renders a run summary as styled terminal output.
func RenderSummary(summary *pipeline.Summary) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Sync run " + summary.RunID))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Status: "))
	b.WriteString(statusStyle(summary.Status).Render(string(summary.Status)))
	b.WriteString("\n")
	b.WriteString(labelStyle.Render("Duration: "))
	b.WriteString(summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond).String())
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("%-22s %10s %10s %10s %10s\n", "entity", "extracted", "rejected", "inserted", "updated"))
	for _, entity := range entityOrder(summary.Counts) {
		c := summary.Counts[entity]
		b.WriteString(fmt.Sprintf("%-22s %10d %10d %10d %10d\n",
			entity, c.Extracted, c.Rejected, c.Inserted, c.Updated))
	}

	if len(summary.Errors) > 0 {
		b.WriteString("\n")
		b.WriteString(failedStyle.Render(fmt.Sprintf("%d error(s):", len(summary.Errors))))
		b.WriteString("\n")
		for _, e := range summary.Errors {
			b.WriteString(errorStyle.Render(fmt.Sprintf("  %s [%s]: %s", e.Entity, e.Stage, e.Message)))
			b.WriteString("\n")
		}
	}

	return b.String()
}

// SummaryToText converts a run summary to plain text without styling.
func SummaryToText(summary *pipeline.Summary) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Run: %s\n", summary.RunID))
	buf.WriteString(fmt.Sprintf("Status: %s\n", summary.Status))
	buf.WriteString(fmt.Sprintf("Started: %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 MST")))
	buf.WriteString(fmt.Sprintf("Finished: %s\n\n", summary.FinishedAt.Format("2006-01-02 15:04:05 MST")))

	for _, entity := range entityOrder(summary.Counts) {
		c := summary.Counts[entity]
		buf.WriteString(fmt.Sprintf("%s: extracted=%d rejected=%d inserted=%d updated=%d\n",
			entity, c.Extracted, c.Rejected, c.Inserted, c.Updated))
	}

	for _, e := range summary.Errors {
		buf.WriteString(fmt.Sprintf("error: %s [%s]: %s\n", e.Entity, e.Stage, e.Message))
	}

	return buf.Bytes()
}

// SummaryToCSV converts a run summary's entity counts to CSV with columns:
// Entity, Extracted, Rejected, Inserted, Updated
func SummaryToCSV(summary *pipeline.Summary) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Entity", "Extracted", "Rejected", "Inserted", "Updated"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, entity := range entityOrder(summary.Counts) {
		c := summary.Counts[entity]
		record := []string{
			entity,
			strconv.Itoa(c.Extracted),
			strconv.Itoa(c.Rejected),
			strconv.Itoa(c.Inserted),
			strconv.Itoa(c.Updated),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// SummaryToMarkdown converts a run summary to a Markdown report.
func SummaryToMarkdown(summary *pipeline.Summary) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("# Sync run %s\n\n", summary.RunID))
	buf.WriteString(fmt.Sprintf("**Status**: %s\n", summary.Status))
	buf.WriteString(fmt.Sprintf("**Started**: %s\n", summary.StartedAt.Format("2006-01-02 15:04:05 MST")))
	buf.WriteString(fmt.Sprintf("**Finished**: %s\n\n", summary.FinishedAt.Format("2006-01-02 15:04:05 MST")))

	buf.WriteString("| Entity | Extracted | Rejected | Inserted | Updated |\n")
	buf.WriteString("| --- | --- | --- | --- | --- |\n")
	for _, entity := range entityOrder(summary.Counts) {
		c := summary.Counts[entity]
		buf.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d |\n",
			entity, c.Extracted, c.Rejected, c.Inserted, c.Updated))
	}

	if len(summary.Errors) > 0 {
		buf.WriteString("\n## Errors\n\n")
		for _, e := range summary.Errors {
			buf.WriteString(fmt.Sprintf("- %s [%s]: %s\n", e.Entity, e.Stage, e.Message))
		}
	}

	return buf.Bytes()
}

// StatsToText renders warehouse table statistics as aligned plain text, in
// load order.
func StatsToText(stats map[string]*warehouse.TableStats) []byte {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("%-22s %12s %14s\n", "table", "rows", "bytes"))
	for _, table := range warehouse.AllTables {
		s, ok := stats[table.Name]
		if !ok {
			continue
		}
		buf.WriteString(fmt.Sprintf("%-22s %12d %14d\n", table.Name, s.Rows, s.Bytes))
	}

	return buf.Bytes()
}

// PruneToText renders retention prune results as plain text.
func PruneToText(results []warehouse.PruneResult) []byte {
	var buf bytes.Buffer

	if len(results) == 0 {
		buf.WriteString("Nothing to prune.\n")
		return buf.Bytes()
	}

	for _, r := range results {
		buf.WriteString(fmt.Sprintf("%s: deleted %d row(s) older than %s\n",
			r.Table, r.Deleted, r.Cutoff.Format("2006-01-02")))
	}

	return buf.Bytes()
}
