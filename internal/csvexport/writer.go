package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fondos/internal/domain"
)

// UTF-8 BOM bytes for Excel compatibility on Windows.
var BOM = []byte{0xEF, 0xBB, 0xBF}

// columns defines the issues report header row.
var columns = []string{
	"Row",
	"Column",
	"Value",
	"Kind",
	"Message",
}

// Writer wraps csv.Writer for exporting data-quality issues as CSV.
type Writer struct {
	csv *csv.Writer
}

// NewWriter creates a Writer that writes CSV to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{csv: csv.NewWriter(w)}
}

// WriteHeader writes the header row.
func (w *Writer) WriteHeader() error {
	return w.csv.Write(columns)
}

// WriteIssues writes one row per issue.
func (w *Writer) WriteIssues(issues []domain.Issue) error {
	for i := range issues {
		if err := w.csv.Write(issueToRow(&issues[i])); err != nil {
			return err
		}
	}
	return nil
}

// Flush flushes the underlying csv.Writer buffer.
func (w *Writer) Flush() {
	w.csv.Flush()
}

// Error returns any error from the underlying csv.Writer.
func (w *Writer) Error() error {
	return w.csv.Error()
}

// WriteReport writes a complete report: BOM, header and every issue.
func WriteReport(out io.Writer, issues []domain.Issue) error {
	if _, err := out.Write(BOM); err != nil {
		return fmt.Errorf("writing BOM: %w", err)
	}
	w := NewWriter(out)
	if err := w.WriteHeader(); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if err := w.WriteIssues(issues); err != nil {
		return fmt.Errorf("writing issues: %w", err)
	}
	w.Flush()
	return w.Error()
}

func issueToRow(issue *domain.Issue) []string {
	row := make([]string, len(columns))
	if issue.Row > 0 {
		row[0] = strconv.Itoa(issue.Row)
	}
	row[1] = issue.Column
	row[2] = issue.Value
	row[3] = string(issue.Kind)
	row[4] = issue.Message
	return row
}

// nonAlphanumeric matches characters that are not alphanumeric, hyphen, or underscore.
var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// multiUnderscore matches consecutive underscores.
var multiUnderscore = regexp.MustCompile(`_{2,}`)

// SanitizeFilename cleans a name for use as a file or object name. Replaces
// non-alphanumeric chars (except - _) with _, collapses consecutive
// underscores, and truncates to 100 chars.
func SanitizeFilename(name string) string {
	s := nonAlphanumeric.ReplaceAllString(name, "_")
	s = multiUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > 100 {
		s = s[:100]
	}
	return s
}

// BuildFilename returns the report name for a source workbook.
// Format: {sanitized_workbook_name}_issues_{YYYYMMDD-HHMMSS}.csv
func BuildFilename(source string, at time.Time) string {
	base := filepath.Base(source)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	sanitized := SanitizeFilename(base)
	if sanitized == "" {
		sanitized = "import"
	}
	return fmt.Sprintf("%s_issues_%s.csv", sanitized, at.UTC().Format("20060102-150405"))
}
