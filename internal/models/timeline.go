package models

import "time"

// TimelineEventType classifies timeline entries.
type TimelineEventType string

const (
	TimelineCreated             TimelineEventType = "CREATED"
	TimelineUpdated             TimelineEventType = "UPDATED"
	TimelineMessageAdded        TimelineEventType = "MESSAGE_ADDED"
	TimelineAttachmentAdded     TimelineEventType = "ATTACHMENT_ADDED"
	TimelineReopened            TimelineEventType = "REOPENED"
	TimelineFeedbackAdded       TimelineEventType = "FEEDBACK_ADDED"
	TimelineAssigned            TimelineEventType = "ASSIGNED"
	TimelineStatusChanged       TimelineEventType = "STATUS_CHANGED"
	TimelineEscalated           TimelineEventType = "ESCALATED"
	TimelineResolved            TimelineEventType = "RESOLVED"
	TimelineReviewApproved      TimelineEventType = "REVIEW_APPROVED"
	TimelineClosed              TimelineEventType = "CLOSED"
	TimelineCategoryChanged     TimelineEventType = "CATEGORY_CHANGED"
	TimelinePriorityChanged     TimelineEventType = "PRIORITY_CHANGED"
	TimelinePredictionCompleted TimelineEventType = "PREDICTION_COMPLETED"
	TimelinePredictionFailed    TimelineEventType = "PREDICTION_FAILED"
	TimelineReviewRequired      TimelineEventType = "REVIEW_REQUIRED"
)

// TimelineEvent is an append-only history entry. ActorID is nil for system actions.
type TimelineEvent struct {
	ID          string            `db:"id" json:"id"`
	ComplaintID string            `db:"complaint_id" json:"complaint_id"`
	EventType   TimelineEventType `db:"event_type" json:"event_type"`
	OldValue    *string           `db:"old_value" json:"old_value,omitempty"`
	NewValue    *string           `db:"new_value" json:"new_value,omitempty"`
	ActorID     *string           `db:"actor_id" json:"actor_id,omitempty"`
	Detail      *string           `db:"detail" json:"detail,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	Seq         int64             `db:"seq" json:"-"`
}
