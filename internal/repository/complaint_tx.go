package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

// ComplaintTx exposes the child-record writes allowed while a complaint row is locked.
type ComplaintTx interface {
	AppendTimeline(ctx context.Context, event *models.TimelineEvent) error
	InsertPrediction(ctx context.Context, record *models.PredictionRecord) error
	EscalationExists(ctx context.Context, complaintID string, level models.EscalationLevel) (bool, error)
	InsertEscalation(ctx context.Context, escalation *models.Escalation) error
	InsertMessage(ctx context.Context, message *models.ComplaintMessage) error
	LinkAttachments(ctx context.Context, complaintID, uploadedBy string, attachmentIDs []string) (int64, error)
}

type complaintTx struct {
	tx  *sqlx.Tx
	now func() time.Time
}

func (t *complaintTx) AppendTimeline(ctx context.Context, event *models.TimelineEvent) error {
	return insertTimeline(ctx, t.tx, event, t.now())
}

func (t *complaintTx) InsertPrediction(ctx context.Context, record *models.PredictionRecord) error {
	return insertPrediction(ctx, t.tx, record, t.now())
}

func (t *complaintTx) EscalationExists(ctx context.Context, complaintID string, level models.EscalationLevel) (bool, error) {
	return escalationExists(ctx, t.tx, complaintID, level)
}

func (t *complaintTx) InsertEscalation(ctx context.Context, escalation *models.Escalation) error {
	return insertEscalation(ctx, t.tx, escalation, t.now())
}

func (t *complaintTx) InsertMessage(ctx context.Context, message *models.ComplaintMessage) error {
	return insertMessage(ctx, t.tx, message, t.now())
}

func (t *complaintTx) LinkAttachments(ctx context.Context, complaintID, uploadedBy string, attachmentIDs []string) (int64, error) {
	return linkAttachments(ctx, t.tx, complaintID, uploadedBy, attachmentIDs)
}

func insertTimeline(ctx context.Context, db sqlx.ExtContext, event *models.TimelineEvent, now time.Time) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = now
	}
	const query = `INSERT INTO complaint_timeline (id, complaint_id, event_type, old_value, new_value, actor_id, detail, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING seq`
	row := db.QueryRowxContext(ctx, query, event.ID, event.ComplaintID, event.EventType, event.OldValue, event.NewValue,
		event.ActorID, event.Detail, event.CreatedAt)
	if err := row.Scan(&event.Seq); err != nil {
		return fmt.Errorf("append timeline: %w", err)
	}
	return nil
}

func insertPrediction(ctx context.Context, db sqlx.ExtContext, record *models.PredictionRecord, now time.Time) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.PredictedAt.IsZero() {
		record.PredictedAt = now
	}
	if len(record.Labels) == 0 {
		record.Labels = json.RawMessage("[]")
	}
	const query = `INSERT INTO complaint_predictions (id, complaint_id, success, model_version, overall_confidence, severity_score, labels, raw_body, failure_reason, predicted_at)
VALUES (:id, :complaint_id, :success, :model_version, :overall_confidence, :severity_score, CAST(convert_from(:labels, 'UTF8') AS JSONB), :raw_body, :failure_reason, :predicted_at)`
	if _, err := sqlx.NamedExecContext(ctx, db, query, record); err != nil {
		return fmt.Errorf("insert prediction: %w", err)
	}
	return nil
}

func escalationExists(ctx context.Context, db sqlx.QueryerContext, complaintID string, level models.EscalationLevel) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS (SELECT 1 FROM escalations WHERE complaint_id = $1 AND level = $2)`
	if err := sqlx.GetContext(ctx, db, &exists, query, complaintID, level); err != nil {
		return false, fmt.Errorf("check escalation: %w", err)
	}
	return exists, nil
}

func insertEscalation(ctx context.Context, db sqlx.ExtContext, escalation *models.Escalation, now time.Time) error {
	if escalation.ID == "" {
		escalation.ID = uuid.NewString()
	}
	if escalation.CreatedAt.IsZero() {
		escalation.CreatedAt = now
	}
	const query = `INSERT INTO escalations (id, complaint_id, level, reason, escalated_to_user_id, escalated_to_role, automatic, created_at)
VALUES (:id, :complaint_id, :level, :reason, :escalated_to_user_id, :escalated_to_role, :automatic, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, db, query, escalation); err != nil {
		return fmt.Errorf("insert escalation: %w", err)
	}
	return nil
}

func insertMessage(ctx context.Context, db sqlx.ExtContext, message *models.ComplaintMessage, now time.Time) error {
	if message.ID == "" {
		message.ID = uuid.NewString()
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = now
	}
	const query = `INSERT INTO complaint_messages (id, complaint_id, sender_id, message, internal, created_at)
VALUES (:id, :complaint_id, :sender_id, :message, :internal, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, db, query, message); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// linkAttachments claims uploads that are still unlinked and belong to uploadedBy.
func linkAttachments(ctx context.Context, db sqlx.ExecerContext, complaintID, uploadedBy string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	const query = `UPDATE complaint_attachments SET complaint_id = $1
WHERE id = ANY($2) AND uploaded_by = $3 AND complaint_id IS NULL`
	res, err := db.ExecContext(ctx, query, complaintID, pq.Array(ids), uploadedBy)
	if err != nil {
		return 0, fmt.Errorf("link attachments: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("link attachments rows affected: %w", err)
	}
	return affected, nil
}
