package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
	"github.com/noah-isme/campus-complaints-api/pkg/export"
)

const (
	reportFormatCSV = "csv"
	reportFormatPDF = "pdf"
	reportTitle     = "SLA compliance"
)

var slaReportHeaders = []string{
	"code", "title", "status", "priority", "created_at",
	"acknowledge_due_at", "resolve_due_at", "resolved_at",
	"resolved_on_time", "ack_escalated", "resolve_escalated",
}

type slaReportSource interface {
	SLAReport(ctx context.Context, from, to *time.Time) ([]dto.SLAReportRow, error)
}

type reportRenderer interface {
	ContentType() string
	Extension() string
	Render(data export.Dataset, title string) ([]byte, error)
}

// ReportService renders the SLA compliance export.
type ReportService struct {
	source    slaReportSource
	renderers map[string]reportRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService wires the CSV and PDF renderers.
func NewReportService(source slaReportSource, logger *zap.Logger) *ReportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{
		source: source,
		renderers: map[string]reportRenderer{
			reportFormatCSV: export.NewCSVExporter(),
			reportFormatPDF: slaPDFExporter(),
		},
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SLAReport renders complaints created in [From, To) with their deadlines and escalation flags.
func (s *ReportService) SLAReport(ctx context.Context, filter dto.SLAReportFilter) (*dto.ReportFile, error) {
	format := strings.ToLower(strings.TrimSpace(filter.Format))
	if format == "" {
		format = reportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported report format %q", filter.Format))
	}
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "to must be after from")
	}

	rows, err := s.source.SLAReport(ctx, filter.From, filter.To)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load SLA report")
	}

	payload, err := renderer.Render(slaDataset(rows), reportTitle)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to render SLA report")
	}
	s.logger.Info("sla report rendered", zap.String("format", format), zap.Int("rows", len(rows)))

	return &dto.ReportFile{
		Filename:    fmt.Sprintf("sla-report-%s.%s", s.now().Format("20060102-150405"), renderer.Extension()),
		ContentType: renderer.ContentType(),
		Data:        payload,
	}, nil
}

func slaPDFExporter() *export.PDFExporter {
	e := export.NewPDFExporter()
	e.ColumnWeights = map[string]float64{"title": 3, "created_at": 1.4, "acknowledge_due_at": 1.4, "resolve_due_at": 1.4, "resolved_at": 1.4}
	return e
}

func slaDataset(rows []dto.SLAReportRow) export.Dataset {
	data := export.Dataset{Headers: slaReportHeaders, Rows: make([]map[string]string, 0, len(rows))}
	for _, row := range rows {
		data.Rows = append(data.Rows, map[string]string{
			"code":               row.Code,
			"title":              row.Title,
			"status":             string(row.Status),
			"priority":           string(row.Priority),
			"created_at":         formatReportTime(&row.CreatedAt),
			"acknowledge_due_at": formatReportTime(row.AcknowledgeDueAt),
			"resolve_due_at":     formatReportTime(row.ResolveDueAt),
			"resolved_at":        formatReportTime(row.ResolvedAt),
			"resolved_on_time":   resolvedOnTime(row),
			"ack_escalated":      fmt.Sprintf("%t", row.AckEscalated),
			"resolve_escalated":  fmt.Sprintf("%t", row.ResolveEscalated),
		})
	}
	return data
}

// resolvedOnTime is blank while the complaint is unresolved or has no deadline.
func resolvedOnTime(row dto.SLAReportRow) string {
	if row.ResolvedAt == nil || row.ResolveDueAt == nil {
		return ""
	}
	return fmt.Sprintf("%t", !row.ResolvedAt.After(*row.ResolveDueAt))
}

func formatReportTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
