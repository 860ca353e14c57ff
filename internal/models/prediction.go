package models

import (
	"encoding/json"
	"time"
)

// PredictionRecord audits one classifier call, successful or not.
type PredictionRecord struct {
	ID                string          `db:"id" json:"id"`
	ComplaintID       string          `db:"complaint_id" json:"complaint_id"`
	Success           bool            `db:"success" json:"success"`
	ModelVersion      *string         `db:"model_version" json:"model_version,omitempty"`
	OverallConfidence *float64        `db:"overall_confidence" json:"overall_confidence,omitempty"`
	SeverityScore     *float64        `db:"severity_score" json:"severity_score,omitempty"`
	Labels            json.RawMessage `db:"labels" json:"labels,omitempty"`
	RawBody           *string         `db:"raw_body" json:"-"`
	FailureReason     *string         `db:"failure_reason" json:"failure_reason,omitempty"`
	PredictedAt       time.Time       `db:"predicted_at" json:"predicted_at"`
}

// PredictionOutcome summarises what applying a prediction did to a complaint.
type PredictionOutcome struct {
	ReviewRequired bool              `json:"review_required"`
	ReviewReason   string            `json:"review_reason,omitempty"`
	Record         *PredictionRecord `json:"prediction,omitempty"`
}
