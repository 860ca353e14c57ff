package dto

import (
	"time"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

// SLAReportFilter bounds the compliance report by creation date.
type SLAReportFilter struct {
	From   *time.Time
	To     *time.Time
	Format string
}

// SLAReportRow is one complaint line of the compliance report.
type SLAReportRow struct {
	Code             string                 `db:"code"`
	Title            string                 `db:"title"`
	Status           models.ComplaintStatus `db:"status"`
	Priority         models.Priority        `db:"priority"`
	CreatedAt        time.Time              `db:"created_at"`
	AcknowledgeDueAt *time.Time             `db:"acknowledge_due_at"`
	ResolveDueAt     *time.Time             `db:"resolve_due_at"`
	ResolvedAt       *time.Time             `db:"resolved_at"`
	AckEscalated     bool                   `db:"ack_escalated"`
	ResolveEscalated bool                   `db:"resolve_escalated"`
}

// ReportFile is a rendered report ready for download.
type ReportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}
