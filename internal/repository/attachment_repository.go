package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

const attachmentColumns = `id, complaint_id, uploaded_by, original_name, storage_path, mime_type, size_bytes, created_at`

// AttachmentRepository stores uploaded file metadata.
type AttachmentRepository struct {
	db *sqlx.DB
}

// NewAttachmentRepository constructs the repository.
func NewAttachmentRepository(db *sqlx.DB) *AttachmentRepository {
	return &AttachmentRepository{db: db}
}

// Create records an uploaded file.
func (r *AttachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	if attachment.ID == "" {
		attachment.ID = uuid.NewString()
	}
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO complaint_attachments (` + attachmentColumns + `)
VALUES (:id, :complaint_id, :uploaded_by, :original_name, :storage_path, :mime_type, :size_bytes, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, attachment); err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}
	return nil
}

// FindByID returns attachment metadata or sql.ErrNoRows.
func (r *AttachmentRepository) FindByID(ctx context.Context, id string) (*models.Attachment, error) {
	const query = `SELECT ` + attachmentColumns + ` FROM complaint_attachments WHERE id = $1`
	var attachment models.Attachment
	if err := r.db.GetContext(ctx, &attachment, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find attachment: %w", err)
	}
	return &attachment, nil
}

// ListByComplaint returns attachments in upload order.
func (r *AttachmentRepository) ListByComplaint(ctx context.Context, complaintID string) ([]models.Attachment, error) {
	const query = `SELECT ` + attachmentColumns + ` FROM complaint_attachments
WHERE complaint_id = $1 ORDER BY created_at ASC, id ASC`
	var attachments []models.Attachment
	if err := r.db.SelectContext(ctx, &attachments, query, complaintID); err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	return attachments, nil
}
