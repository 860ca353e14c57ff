package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

type slaRuleReader interface {
	FindActiveByPriority(ctx context.Context, priority models.Priority) (*models.SLARule, error)
}

// SLAService computes acknowledge/resolve deadlines and answers overdue questions.
type SLAService struct {
	rules slaRuleReader
	now   func() time.Time
}

// NewSLAService constructs the calculator. A nil clock uses the wall clock.
func NewSLAService(rules slaRuleReader, now func() time.Time) *SLAService {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &SLAService{rules: rules, now: now}
}

// ApplyInitialSLA sets both deadlines from the active rule for the complaint's priority, measured from
// the complaint's creation time (or now for unsaved complaints).
func (s *SLAService) ApplyInitialSLA(ctx context.Context, complaint *models.Complaint) error {
	rule, err := s.rules.FindActiveByPriority(ctx, complaint.Priority)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no active SLA rule for priority %s", complaint.Priority))
		}
		return appErrors.Internal(err, "failed to load SLA rule")
	}
	base := complaint.CreatedAt
	if base.IsZero() {
		base = s.now()
	}
	ack := base.Add(time.Duration(rule.AcknowledgeWithinMinutes) * time.Minute)
	resolve := base.Add(time.Duration(rule.ResolveWithinMinutes) * time.Minute)
	complaint.AcknowledgeDueAt = &ack
	complaint.ResolveDueAt = &resolve
	return nil
}

// IsAcknowledgeOverdue holds only for unacknowledged complaints past their acknowledge deadline.
func (s *SLAService) IsAcknowledgeOverdue(complaint *models.Complaint, now time.Time) bool {
	if complaint.AcknowledgeDueAt == nil {
		return false
	}
	if complaint.Status != models.StatusNew && complaint.Status != models.StatusReopened {
		return false
	}
	return now.After(*complaint.AcknowledgeDueAt)
}

// IsResolveOverdue holds for open complaints past their resolve deadline.
func (s *SLAService) IsResolveOverdue(complaint *models.Complaint, now time.Time) bool {
	if complaint.ResolveDueAt == nil {
		return false
	}
	if complaint.Status == models.StatusResolved || complaint.Status == models.StatusClosed {
		return false
	}
	return now.After(*complaint.ResolveDueAt)
}

// Now exposes the injected clock.
func (s *SLAService) Now() time.Time {
	return s.now()
}
