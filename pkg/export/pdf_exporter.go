package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfUsableWidth = 277.0 // A4 landscape minus 10mm margins
	pdfRowHeight   = 6.0
	pdfBottom      = 14.0
	pdfCellChars   = 48
)

// PDFExporter lays a dataset out as a landscape table with a repeated header row and numbered pages.
// ColumnWeights widens selected columns relative to the default weight of 1.
type PDFExporter struct {
	ColumnWeights map[string]float64
	now           func() time.Time
}

func NewPDFExporter() *PDFExporter {
	return &PDFExporter{now: time.Now}
}

func (e *PDFExporter) ContentType() string { return "application/pdf" }

func (e *PDFExporter) Extension() string { return "pdf" }

// Render draws title, when given, above the table.
func (e *PDFExporter) Render(data Dataset, title string) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf: %w", errNoHeaders)
	}
	widths := e.widths(data.Headers)
	generated := e.now().UTC().Format("2006-01-02 15:04 MST")

	doc := gofpdf.New("L", "mm", "A4", "")
	tr := doc.UnicodeTranslatorFromDescriptor("")
	doc.SetMargins(10, 12, 10)
	doc.SetAutoPageBreak(false, pdfBottom)
	doc.AliasNbPages("")
	doc.SetFooterFunc(func() {
		doc.SetY(-10)
		doc.SetFont("Arial", "I", 7)
		doc.CellFormat(0, 5, fmt.Sprintf("Generated %s  |  Page %d of {nb}", generated, doc.PageNo()), "", 0, "R", false, 0, "")
	})

	header := func() {
		doc.SetFont("Arial", "B", 8)
		doc.SetFillColor(44, 62, 80)
		doc.SetTextColor(255, 255, 255)
		for i, h := range data.Headers {
			doc.CellFormat(widths[i], 7, tr(h), "1", 0, "C", true, 0, "")
		}
		doc.Ln(-1)
		doc.SetFont("Arial", "", 7)
		doc.SetTextColor(0, 0, 0)
		doc.SetFillColor(242, 244, 246)
	}

	doc.AddPage()
	if title != "" {
		doc.SetFont("Arial", "B", 13)
		doc.CellFormat(0, 9, tr(title), "", 1, "L", false, 0, "")
		doc.SetFont("Arial", "", 8)
		doc.CellFormat(0, 5, fmt.Sprintf("%d rows", len(data.Rows)), "", 1, "L", false, 0, "")
		doc.Ln(2)
	}
	header()

	_, pageHeight := doc.GetPageSize()
	for n, row := range data.Rows {
		if doc.GetY()+pdfRowHeight > pageHeight-pdfBottom {
			doc.AddPage()
			header()
		}
		for i, h := range data.Headers {
			doc.CellFormat(widths[i], pdfRowHeight, tr(truncate(row[h], pdfCellChars)), "1", 0, "", n%2 == 1, 0, "")
		}
		doc.Ln(-1)
	}

	var buf bytes.Buffer
	if err := doc.Output(&buf); err != nil {
		return nil, fmt.Errorf("pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *PDFExporter) widths(headers []string) []float64 {
	weights := make([]float64, len(headers))
	var total float64
	for i, h := range headers {
		w := 1.0
		if custom, ok := e.ColumnWeights[h]; ok && custom > 0 {
			w = custom
		}
		weights[i] = w
		total += w
	}
	for i := range weights {
		weights[i] = pdfUsableWidth * weights[i] / total
	}
	return weights
}

func truncate(value string, max int) string {
	runes := []rune(value)
	if len(runes) <= max {
		return value
	}
	return string(runes[:max-1]) + "…"
}
