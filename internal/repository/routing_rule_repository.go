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

const routingRuleColumns = `id, category, hostel, building, owner_role, owner_user_id, collaborator_roles, active, created_at, updated_at`

// RoutingRuleRepository persists category routing rules.
type RoutingRuleRepository struct {
	db *sqlx.DB
}

// NewRoutingRuleRepository constructs the repository.
func NewRoutingRuleRepository(db *sqlx.DB) *RoutingRuleRepository {
	return &RoutingRuleRepository{db: db}
}

// ListActiveByCategory returns active rules for category in creation order.
func (r *RoutingRuleRepository) ListActiveByCategory(ctx context.Context, category models.Category) ([]models.RoutingRule, error) {
	const query = `SELECT ` + routingRuleColumns + ` FROM routing_rules
WHERE category = $1 AND active = TRUE ORDER BY created_at ASC, id ASC`
	var rules []models.RoutingRule
	if err := r.db.SelectContext(ctx, &rules, query, category); err != nil {
		return nil, fmt.Errorf("list routing rules by category: %w", err)
	}
	return rules, nil
}

// List returns all rules ordered by category.
func (r *RoutingRuleRepository) List(ctx context.Context) ([]models.RoutingRule, error) {
	const query = `SELECT ` + routingRuleColumns + ` FROM routing_rules ORDER BY category ASC, created_at ASC, id ASC`
	var rules []models.RoutingRule
	if err := r.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("list routing rules: %w", err)
	}
	return rules, nil
}

// FindByID returns a rule or sql.ErrNoRows.
func (r *RoutingRuleRepository) FindByID(ctx context.Context, id string) (*models.RoutingRule, error) {
	const query = `SELECT ` + routingRuleColumns + ` FROM routing_rules WHERE id = $1`
	var rule models.RoutingRule
	if err := r.db.GetContext(ctx, &rule, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find routing rule: %w", err)
	}
	return &rule, nil
}

// Create inserts a rule.
func (r *RoutingRuleRepository) Create(ctx context.Context, rule *models.RoutingRule) error {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	const query = `INSERT INTO routing_rules (` + routingRuleColumns + `)
VALUES (:id, :category, :hostel, :building, :owner_role, :owner_user_id, :collaborator_roles, :active, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, rule); err != nil {
		return fmt.Errorf("create routing rule: %w", err)
	}
	return nil
}

// Update replaces the mutable fields of a rule.
func (r *RoutingRuleRepository) Update(ctx context.Context, rule *models.RoutingRule) error {
	rule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE routing_rules SET category = :category, hostel = :hostel, building = :building,
owner_role = :owner_role, owner_user_id = :owner_user_id, collaborator_roles = :collaborator_roles,
active = :active, updated_at = :updated_at WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, rule)
	if err != nil {
		return fmt.Errorf("update routing rule: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Delete removes a rule.
func (r *RoutingRuleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM routing_rules WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete routing rule: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
