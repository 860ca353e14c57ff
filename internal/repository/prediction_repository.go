package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

const predictionColumns = `id, complaint_id, success, model_version, overall_confidence, severity_score, labels, raw_body, failure_reason, predicted_at`

// PredictionRepository reads the classifier audit trail.
type PredictionRepository struct {
	db *sqlx.DB
}

// NewPredictionRepository constructs the repository.
func NewPredictionRepository(db *sqlx.DB) *PredictionRepository {
	return &PredictionRepository{db: db}
}

// Latest returns the most recent prediction for a complaint, or sql.ErrNoRows.
func (r *PredictionRepository) Latest(ctx context.Context, complaintID string) (*models.PredictionRecord, error) {
	const query = `SELECT ` + predictionColumns + ` FROM complaint_predictions
WHERE complaint_id = $1 ORDER BY predicted_at DESC, id DESC LIMIT 1`
	var record models.PredictionRecord
	if err := r.db.GetContext(ctx, &record, query, complaintID); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("latest prediction: %w", err)
	}
	return &record, nil
}

// ListByComplaint returns every prediction, newest first.
func (r *PredictionRepository) ListByComplaint(ctx context.Context, complaintID string) ([]models.PredictionRecord, error) {
	const query = `SELECT ` + predictionColumns + ` FROM complaint_predictions
WHERE complaint_id = $1 ORDER BY predicted_at DESC, id DESC`
	var records []models.PredictionRecord
	if err := r.db.SelectContext(ctx, &records, query, complaintID); err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	return records, nil
}
