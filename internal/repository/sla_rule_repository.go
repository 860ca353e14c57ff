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

// SLARuleRepository persists per-priority SLA deadlines.
type SLARuleRepository struct {
	db *sqlx.DB
}

// NewSLARuleRepository constructs the repository.
func NewSLARuleRepository(db *sqlx.DB) *SLARuleRepository {
	return &SLARuleRepository{db: db}
}

// FindActiveByPriority returns the active rule for priority or sql.ErrNoRows.
func (r *SLARuleRepository) FindActiveByPriority(ctx context.Context, priority models.Priority) (*models.SLARule, error) {
	const query = `SELECT id, priority, acknowledge_within_minutes, resolve_within_minutes, active, updated_at
FROM sla_rules WHERE priority = $1 AND active = TRUE LIMIT 1`
	var rule models.SLARule
	if err := r.db.GetContext(ctx, &rule, query, priority); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find sla rule: %w", err)
	}
	return &rule, nil
}

// List returns every rule.
func (r *SLARuleRepository) List(ctx context.Context) ([]models.SLARule, error) {
	const query = `SELECT id, priority, acknowledge_within_minutes, resolve_within_minutes, active, updated_at
FROM sla_rules ORDER BY priority ASC`
	var rules []models.SLARule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("list sla rules: %w", err)
	}
	return rules, nil
}

// Upsert installs the active rule for a priority, replacing any existing one.
func (r *SLARuleRepository) Upsert(ctx context.Context, rule *models.SLARule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	rule.Active = true
	rule.UpdatedAt = time.Now().UTC()
	const query = `INSERT INTO sla_rules (id, priority, acknowledge_within_minutes, resolve_within_minutes, active, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (priority)
DO UPDATE SET acknowledge_within_minutes = EXCLUDED.acknowledge_within_minutes,
              resolve_within_minutes = EXCLUDED.resolve_within_minutes,
              active = EXCLUDED.active, updated_at = EXCLUDED.updated_at
RETURNING id`
	if err := r.db.QueryRowxContext(ctx, query, rule.ID, rule.Priority, rule.AcknowledgeWithinMinutes,
		rule.ResolveWithinMinutes, rule.Active, rule.UpdatedAt).Scan(&rule.ID); err != nil {
		return fmt.Errorf("upsert sla rule: %w", err)
	}
	return nil
}
