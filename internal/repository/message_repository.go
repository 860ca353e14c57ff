package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

// MessageRepository reads complaint conversation entries.
type MessageRepository struct {
	db *sqlx.DB
}

// NewMessageRepository constructs the repository.
func NewMessageRepository(db *sqlx.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// ListByComplaint returns messages oldest first. Internal notes are omitted unless includeInternal.
func (r *MessageRepository) ListByComplaint(ctx context.Context, complaintID string, includeInternal bool) ([]models.ComplaintMessage, error) {
	query := `SELECT id, complaint_id, sender_id, message, internal, created_at FROM complaint_messages WHERE complaint_id = $1`
	if !includeInternal {
		query += ` AND internal = FALSE`
	}
	query += ` ORDER BY created_at ASC, id ASC`
	var messages []models.ComplaintMessage
	if err := r.db.SelectContext(ctx, &messages, query, complaintID); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
