package service

import (
	"context"
	"strings"

	"github.com/noah-isme/campus-complaints-api/internal/models"
	"github.com/noah-isme/campus-complaints-api/internal/repository"
	appErrors "github.com/noah-isme/campus-complaints-api/pkg/errors"
)

type timelineReader interface {
	ListByComplaint(ctx context.Context, complaintID string) ([]models.TimelineEvent, error)
}

// TimelineService appends and lists complaint history entries.
type TimelineService struct {
	repo timelineReader
}

// NewTimelineService constructs the service.
func NewTimelineService(repo timelineReader) *TimelineService {
	return &TimelineService{repo: repo}
}

// Record appends an entry inside the caller's complaint transaction. Blank values are stored as NULL;
// a nil actor marks a system action.
func (s *TimelineService) Record(ctx context.Context, tx repository.ComplaintTx, complaintID string, eventType models.TimelineEventType, oldValue, newValue string, actorID *string, detail string) error {
	event := &models.TimelineEvent{
		ComplaintID: complaintID,
		EventType:   eventType,
		OldValue:    optional(oldValue),
		NewValue:    optional(newValue),
		ActorID:     actorID,
		Detail:      optional(detail),
	}
	if err := tx.AppendTimeline(ctx, event); err != nil {
		return appErrors.Internal(err, "failed to record timeline event")
	}
	return nil
}

// List returns the complaint's history oldest first.
func (s *TimelineService) List(ctx context.Context, complaintID string) ([]models.TimelineEvent, error) {
	events, err := s.repo.ListByComplaint(ctx, complaintID)
	if err != nil {
		return nil, appErrors.Internal(err, "failed to load timeline")
	}
	return events, nil
}

func optional(v string) *string {
	v = strings.TrimSpace(v)
	if v == "" {
		return nil
	}
	return &v
}
