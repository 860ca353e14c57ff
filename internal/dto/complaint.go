package dto

import (
	"time"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

// CreateComplaintRequest is the POST /complaints payload.
type CreateComplaintRequest struct {
	Title              string   `json:"title" validate:"required,max=200"`
	Description        string   `json:"description" validate:"required,max=5000"`
	Hostel             *string  `json:"hostel,omitempty" validate:"omitempty,max=120"`
	Building           string   `json:"building" validate:"required,max=120"`
	Room               string   `json:"room" validate:"required,max=60"`
	PreferredVisitSlot *string  `json:"preferred_visit_slot,omitempty" validate:"omitempty,max=120"`
	Anonymous          bool     `json:"anonymous"`
	AttachmentIDs      []string `json:"attachment_ids,omitempty" validate:"omitempty,max=10,dive,uuid"`
}

// UpdateComplaintRequest patches complaint details. Nil fields are left untouched.
type UpdateComplaintRequest struct {
	Title              *string `json:"title,omitempty" validate:"omitempty,max=200"`
	Description        *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	Hostel             *string `json:"hostel,omitempty" validate:"omitempty,max=120"`
	Building           *string `json:"building,omitempty" validate:"omitempty,max=120"`
	Room               *string `json:"room,omitempty" validate:"omitempty,max=60"`
	PreferredVisitSlot *string `json:"preferred_visit_slot,omitempty" validate:"omitempty,max=120"`
	Anonymous          *bool   `json:"anonymous,omitempty"`
	RerunPrediction    *bool   `json:"rerun_prediction,omitempty"`
}

// AddMessageRequest posts a message or staff note.
type AddMessageRequest struct {
	Message  string `json:"message" validate:"required,max=5000"`
	Internal bool   `json:"internal"`
}

// ReopenRequest reopens a resolved or closed complaint.
type ReopenRequest struct {
	Reason string `json:"reason" validate:"max=1000"`
}

// FeedbackRequest rates a resolved complaint.
type FeedbackRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"max=2000"`
}

// ComplaintDetail is the full view of a complaint.
type ComplaintDetail struct {
	models.Complaint
	Timeline         []models.TimelineEvent    `json:"timeline"`
	Escalations      []models.Escalation       `json:"escalations"`
	Messages         []models.ComplaintMessage `json:"messages"`
	Attachments      []models.Attachment       `json:"attachments"`
	LatestPrediction *models.PredictionRecord  `json:"latest_prediction,omitempty"`
}

// ComplaintSummary is a list row.
type ComplaintSummary struct {
	ID              string                 `db:"id" json:"id"`
	Code            string                 `db:"code" json:"code"`
	Title           string                 `db:"title" json:"title"`
	Status          models.ComplaintStatus `db:"status" json:"status"`
	Priority        models.Priority        `db:"priority" json:"priority"`
	NeedsReview     bool                   `db:"needs_review" json:"needs_review"`
	ReviewReason    *string                `db:"review_reason" json:"review_reason,omitempty"`
	PrimaryCategory *string                `db:"primary_category" json:"primary_category,omitempty"`
	OwnerUserID     *string                `db:"owner_user_id" json:"owner_user_id,omitempty"`
	ResolveDueAt    *time.Time             `db:"resolve_due_at" json:"resolve_due_at,omitempty"`
	CreatedAt       time.Time              `db:"created_at" json:"created_at"`
}

// UploadAttachmentsResponse reports stored files and whether a prediction rerun was queued.
type UploadAttachmentsResponse struct {
	Attachments      []models.Attachment `json:"attachments"`
	PredictionQueued bool                `json:"prediction_queued"`
}
