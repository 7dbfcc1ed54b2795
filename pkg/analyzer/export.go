package analyzer

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

// Exporter writes trace summaries in one output format.
type Exporter interface {
	Export(ctx context.Context, summaries []TraceSummary, w io.Writer) error
}

// NewExporter returns the exporter for format ("json" or "csv").
func NewExporter(format string) (Exporter, error) {
	switch format {
	case "json":
		return NewJSONExporter(true), nil
	case "csv":
		return NewCSVExporter(true), nil
	}
	return nil, fmt.Errorf("unsupported export format %q", format)
}

// JSONExporter writes summaries as a JSON array.
type JSONExporter struct {
	// Pretty enables indentation.
	Pretty bool
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// Export writes summaries to w. An empty set is written as [].
func (e *JSONExporter) Export(ctx context.Context, summaries []TraceSummary, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if summaries == nil {
		summaries = []TraceSummary{}
	}

	var data []byte
	var err error
	if e.Pretty {
		data, err = json.MarshalIndent(summaries, "", "  ")
	} else {
		data, err = json.Marshal(summaries)
	}
	if err != nil {
		return &ExportError{Format: "json", Count: len(summaries), Cause: err}
	}

	data = append(data, '\n')
	if _, err := w.Write(data); err != nil {
		return &ExportError{Format: "json", Count: len(summaries), Cause: err}
	}
	return nil
}

// CSVExporter writes one row per summary.
type CSVExporter struct {
	// IncludeHeader writes a header row first.
	IncludeHeader bool
}

// NewCSVExporter creates a CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{IncludeHeader: includeHeader}
}

var csvHeader = []string{
	"rank", "trace_id", "duration_ms", "span_count", "root_count",
	"dominant_span", "dominant_duration_ms", "settled",
}

// Export writes summaries to w.
func (e *CSVExporter) Export(ctx context.Context, summaries []TraceSummary, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return &ExportError{Format: "csv", Count: len(summaries), Cause: err}
		}
	}

	for i, ts := range summaries {
		if err := ctx.Err(); err != nil {
			return err
		}
		row := []string{
			strconv.Itoa(i + 1),
			ts.TraceID,
			strconv.FormatFloat(ts.DurationMS, 'f', 3, 64),
			strconv.Itoa(ts.SpanCount),
			strconv.Itoa(ts.RootCount),
			ts.DominantSpan,
			strconv.FormatFloat(ts.DominantMS, 'f', 3, 64),
			strconv.FormatBool(ts.Settled),
		}
		if err := writer.Write(row); err != nil {
			return &ExportError{Format: "csv", Count: len(summaries), Cause: err}
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return &ExportError{Format: "csv", Count: len(summaries), Cause: err}
	}
	return nil
}
