// package formatter renders resolution reports to various formats (CSV, Markdown, plain text)
package formatter

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"

	"github.com/desertthunder/trackmatch/internal/shared"
	"github.com/desertthunder/trackmatch/internal/tasks"
)

// ExportToCSV converts a batch result to CSV with one row per input
// query: Position, Status, Title, Artist, Album, Backend ID, Matched Title,
// Matched Artist, Score, Provenance
func ExportToCSV(result *tasks.BatchResult) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Position", "Status", "Title", "Artist", "Album", "Backend ID", "Matched Title", "Matched Artist", "Score", "Provenance"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for i, res := range result.Resolutions {
		record := []string{
			strconv.Itoa(i),
			res.Status.String(),
			res.Query.Title,
			res.Query.Artist,
			res.Query.Album,
			"", "", "", "", "",
		}
		if res.Candidate != nil {
			record[5] = res.Candidate.BackendID
			record[6] = res.Candidate.Title
			record[7] = res.Candidate.Artist
			record[8] = strconv.FormatFloat(res.Candidate.Score, 'f', 2, 64)
			record[9] = res.Candidate.Provenance.String()
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

// ExportToMarkdown converts a batch result to a Markdown report with a
// summary section and a per-query listing.
func ExportToMarkdown(result *tasks.BatchResult, title string) ([]byte, error) {
	var buf bytes.Buffer

	if title == "" {
		title = "Resolution Report"
	}
	buf.WriteString(fmt.Sprintf("# %s\n\n", title))

	buf.WriteString(fmt.Sprintf("**Queries**: %d\n", len(result.Resolutions)))
	buf.WriteString(fmt.Sprintf("**Resolved**: %d (%d from cache)\n", result.Resolved+result.CacheHits, result.CacheHits))
	buf.WriteString(fmt.Sprintf("**Pending review**: %d\n", len(result.Pending)))
	buf.WriteString(fmt.Sprintf("**Not found**: %d\n", result.NotFound))
	if result.Failed > 0 {
		buf.WriteString(fmt.Sprintf("**Failed**: %d\n", result.Failed))
	}
	buf.WriteString("\n## Tracks\n\n")

	for i, res := range result.Resolutions {
		line := fmt.Sprintf("%d. %s", i+1, res.Query.Display())
		if res.Candidate != nil {
			line += fmt.Sprintf(" → %s - %s (%.2f, %s)",
				res.Candidate.Title, res.Candidate.Artist, res.Candidate.Score, res.Candidate.Provenance)
			if res.Candidate.DurationSecs > 0 {
				line += fmt.Sprintf(" [%s]", shared.FormatDuration(res.Candidate.DurationSecs))
			}
		} else {
			line += fmt.Sprintf(" — %s", res.Status)
		}
		buf.WriteString(line + "\n")
	}

	return buf.Bytes(), nil
}

// ExportToText converts a batch result to a plain text report.
func ExportToText(result *tasks.BatchResult) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteString(fmt.Sprintf("Queries: %d\n", len(result.Resolutions)))
	buf.WriteString(fmt.Sprintf("Resolved: %d\n", result.Resolved+result.CacheHits))
	buf.WriteString(fmt.Sprintf("Pending review: %d\n", len(result.Pending)))
	buf.WriteString(fmt.Sprintf("Not found: %d\n\n", result.NotFound))

	for i, res := range result.Resolutions {
		if res.Candidate != nil {
			buf.WriteString(fmt.Sprintf("%d. %s -> %s [%s]\n", i+1, res.Query.Display(), res.Candidate.BackendID, res.Status))
		} else {
			buf.WriteString(fmt.Sprintf("%d. %s [%s]\n", i+1, res.Query.Display(), res.Status))
		}
	}

	return buf.Bytes(), nil
}

// summary is the JSON sidecar written next to CSV exports.
type summary struct {
	Total    int `json:"total"`
	Resolved int `json:"resolved"`
	Cached   int `json:"cached"`
	Pending  int `json:"pending"`
	NotFound int `json:"not_found"`
	Failed   int `json:"failed"`
}

// ToSummaryJSON generates a JSON representation of the batch counts.
func ToSummaryJSON(result *tasks.BatchResult) ([]byte, error) {
	return shared.MarshalJSON(summary{
		Total:    len(result.Resolutions),
		Resolved: result.Resolved,
		Cached:   result.CacheHits,
		Pending:  len(result.Pending),
		NotFound: result.NotFound,
		Failed:   result.Failed,
	}, true)
}

// CSVExportResult contains the paths of files created by WriteCSVExport
type CSVExportResult struct {
	ResolutionsFile string
	SummaryFile     string
}

// WriteCSVExport exports a batch result to CSV with an accompanying
// summary JSON file: {base}_resolutions.csv and {base}_summary.json
func WriteCSVExport(result *tasks.BatchResult, baseFilepath string) (*CSVExportResult, error) {
	if baseFilepath == "" {
		baseFilepath = "resolutions"
	}

	csvData, err := ExportToCSV(result)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CSV: %w", err)
	}

	resolutionsFile := baseFilepath + "_resolutions.csv"
	if err := os.WriteFile(resolutionsFile, csvData, 0644); err != nil {
		return nil, fmt.Errorf("failed to write CSV file: %w", err)
	}

	summaryJSON, err := ToSummaryJSON(result)
	if err != nil {
		return nil, fmt.Errorf("failed to generate summary JSON: %w", err)
	}

	summaryFile := baseFilepath + "_summary.json"
	if err := os.WriteFile(summaryFile, summaryJSON, 0644); err != nil {
		return nil, fmt.Errorf("failed to write summary file: %w", err)
	}

	return &CSVExportResult{
		ResolutionsFile: resolutionsFile,
		SummaryFile:     summaryFile,
	}, nil
}

// WriteMarkdownExport exports a batch result to a Markdown report file.
//
// Defaults to report.md as the filename.
func WriteMarkdownExport(result *tasks.BatchResult, filepath, title string) (string, error) {
	if filepath == "" {
		filepath = "report.md"
	}

	mdData, err := ExportToMarkdown(result, title)
	if err != nil {
		return "", fmt.Errorf("failed to generate Markdown: %w", err)
	}

	if err := os.WriteFile(filepath, mdData, 0644); err != nil {
		return "", fmt.Errorf("failed to write Markdown file: %w", err)
	}

	return filepath, nil
}

// WriteTextExport exports a batch result to plain text.
//
// Defaults to resolutions.txt as the filename.
func WriteTextExport(result *tasks.BatchResult, filepath string) (string, error) {
	if filepath == "" {
		filepath = "resolutions.txt"
	}

	textData, err := ExportToText(result)
	if err != nil {
		return "", fmt.Errorf("failed to generate text: %w", err)
	}

	if err := os.WriteFile(filepath, textData, 0644); err != nil {
		return "", fmt.Errorf("failed to write text file: %w", err)
	}

	return filepath, nil
}
