package export

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Dataset is a header row plus records keyed by header. Missing keys render as empty cells.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
}

var errNoHeaders = errors.New("dataset has no headers")

// CSVExporter writes datasets as RFC 4180 CSV. Cells that a spreadsheet would evaluate as a formula
// are prefixed with a single quote, since complaint titles are free text from reporters.
type CSVExporter struct {
	// ExcelBOM prepends a UTF-8 byte order mark so Excel detects the encoding.
	ExcelBOM bool
}

func NewCSVExporter() *CSVExporter {
	return &CSVExporter{}
}

func (e *CSVExporter) ContentType() string { return "text/csv; charset=utf-8" }

func (e *CSVExporter) Extension() string { return "csv" }

// Render buffers the CSV output. The title has no place in CSV and is ignored.
func (e *CSVExporter) Render(data Dataset, _ string) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.Write(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Write streams data to w.
func (e *CSVExporter) Write(w io.Writer, data Dataset) error {
	if len(data.Headers) == 0 {
		return fmt.Errorf("csv: %w", errNoHeaders)
	}
	if e.ExcelBOM {
		if _, err := io.WriteString(w, "\ufeff"); err != nil {
			return fmt.Errorf("csv: write bom: %w", err)
		}
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(data.Headers); err != nil {
		return fmt.Errorf("csv: write header: %w", err)
	}
	record := make([]string, len(data.Headers))
	for n, row := range data.Rows {
		for i, h := range data.Headers {
			record[i] = neutralise(row[h])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("csv: write row %d: %w", n+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("csv: flush: %w", err)
	}
	return nil
}

func neutralise(cell string) string {
	if cell == "" {
		return cell
	}
	switch cell[0] {
	case '=', '+', '@', '\t', '\r':
		return "'" + cell
	case '-':
		if _, err := strconv.ParseFloat(strings.TrimSpace(cell), 64); err == nil {
			return cell
		}
		return "'" + cell
	}
	return cell
}
