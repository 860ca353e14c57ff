package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

// EscalationRepository reads escalation records.
type EscalationRepository struct {
	db *sqlx.DB
}

// NewEscalationRepository constructs the repository.
func NewEscalationRepository(db *sqlx.DB) *EscalationRepository {
	return &EscalationRepository{db: db}
}

// ListByComplaint returns escalations oldest first.
func (r *EscalationRepository) ListByComplaint(ctx context.Context, complaintID string) ([]models.Escalation, error) {
	const query = `SELECT id, complaint_id, level, reason, escalated_to_user_id, escalated_to_role, automatic, created_at
FROM escalations WHERE complaint_id = $1 ORDER BY created_at ASC, id ASC`
	var escalations []models.Escalation
	if err := r.db.SelectContext(ctx, &escalations, query, complaintID); err != nil {
		return nil, fmt.Errorf("list escalations: %w", err)
	}
	return escalations, nil
}

// Exists reports whether any escalation of level is recorded for the complaint.
func (r *EscalationRepository) Exists(ctx context.Context, complaintID string, level models.EscalationLevel) (bool, error) {
	return escalationExists(ctx, r.db, complaintID, level)
}
