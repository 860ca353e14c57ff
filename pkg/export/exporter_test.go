package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func slaDataset() Dataset {
	return Dataset{
		Headers: []string{"code", "status", "ack_overdue"},
		Rows: []map[string]string{
			{"code": "CMP-2024-1001", "status": "NEW", "ack_overdue": "true"},
			{"code": "CMP-2024-1002", "status": "RESOLVED"},
		},
	}
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(slaDataset(), "ignored")
	require.NoError(t, err)
	assert.Equal(t, "code,status,ack_overdue\nCMP-2024-1001,NEW,true\nCMP-2024-1002,RESOLVED,\n", string(out))
}

func TestCSVExporterRequiresHeaders(t *testing.T) {
	_, err := NewCSVExporter().Render(Dataset{}, "")
	require.ErrorIs(t, err, errNoHeaders)
}

func TestCSVExporterNeutralisesFormulas(t *testing.T) {
	data := Dataset{
		Headers: []string{"title", "delta"},
		Rows: []map[string]string{
			{"title": "=HYPERLINK(\"http://x\")", "delta": "-2.5"},
			{"title": "@SUM(A1)", "delta": "-bad"},
			{"title": "Leaking tap, room 204", "delta": "3"},
		},
	}
	out, err := NewCSVExporter().Render(data, "")
	require.NoError(t, err)
	assert.Equal(t, "title,delta\n"+
		"\"'=HYPERLINK(\"\"http://x\"\")\",-2.5\n"+
		"'@SUM(A1),'-bad\n"+
		"\"Leaking tap, room 204\",3\n", string(out))
}

func TestCSVExporterWritesBOM(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, (&CSVExporter{ExcelBOM: true}).Write(&buf, slaDataset()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("\xef\xbb\xbfcode,status")))
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(slaDataset(), "SLA compliance")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefghi…", truncate("abcdefghijklmnop", 10))
}

func TestPDFColumnWeights(t *testing.T) {
	e := NewPDFExporter()
	e.ColumnWeights = map[string]float64{"title": 3}

	widths := e.widths([]string{"code", "title", "status"})
	assert.InDelta(t, pdfUsableWidth/5, widths[0], 1e-9)
	assert.InDelta(t, 3*pdfUsableWidth/5, widths[1], 1e-9)
	assert.InDelta(t, pdfUsableWidth, widths[0]+widths[1]+widths[2], 1e-9)
}

func TestPDFExporterPaginatesLongReports(t *testing.T) {
	data := Dataset{Headers: []string{"code", "title"}}
	for i := 0; i < 200; i++ {
		data.Rows = append(data.Rows, map[string]string{"code": "CMP-2024-1001", "title": "Broken heater in lecture hall"})
	}
	out, err := NewPDFExporter().Render(data, "SLA compliance")
	require.NoError(t, err)
	assert.True(t, bytes.Contains(out, []byte("/Type /Page")))
}
