package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/campus-complaints-api/internal/dto"
	"github.com/noah-isme/campus-complaints-api/pkg/response"
)

type slaReporter interface {
	SLAReport(ctx context.Context, filter dto.SLAReportFilter) (*dto.ReportFile, error)
}

// ReportHandler exposes reporting endpoints.
type ReportHandler struct {
	reports slaReporter
}

// NewReportHandler constructs handler.
func NewReportHandler(reports slaReporter) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// SLAReport godoc
// @Summary SLA compliance report
// @Description Downloads one row per complaint with deadlines, outcome and escalations
// @Tags Reports
// @Produce text/csv
// @Produce application/pdf
// @Param from query string false "Created on or after (YYYY-MM-DD or RFC3339)"
// @Param to query string false "Created before (YYYY-MM-DD or RFC3339)"
// @Param format query string false "csv (default) or pdf"
// @Success 200 {file} file
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /admin/reports/sla [get]
func (h *ReportHandler) SLAReport(c *gin.Context) {
	from, err := queryDate(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := queryDate(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.reports.SLAReport(c.Request.Context(), dto.SLAReportFilter{From: from, To: to, Format: c.Query("format")})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.File(c, file.Filename, file.ContentType, file.Data)
}
