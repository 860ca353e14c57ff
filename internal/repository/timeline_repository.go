package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

// TimelineRepository reads the append-only complaint history.
type TimelineRepository struct {
	db *sqlx.DB
}

// NewTimelineRepository constructs the repository.
func NewTimelineRepository(db *sqlx.DB) *TimelineRepository {
	return &TimelineRepository{db: db}
}

// Append writes a single event outside of a complaint transaction.
func (r *TimelineRepository) Append(ctx context.Context, event *models.TimelineEvent) error {
	return insertTimeline(ctx, r.db, event, time.Now().UTC())
}

// ListByComplaint returns events in insertion order.
func (r *TimelineRepository) ListByComplaint(ctx context.Context, complaintID string) ([]models.TimelineEvent, error) {
	const query = `SELECT id, complaint_id, event_type, old_value, new_value, actor_id, detail, created_at, seq
FROM complaint_timeline WHERE complaint_id = $1 ORDER BY created_at ASC, seq ASC`
	var events []models.TimelineEvent
	if err := r.db.SelectContext(ctx, &events, query, complaintID); err != nil {
		return nil, fmt.Errorf("list timeline: %w", err)
	}
	return events, nil
}
