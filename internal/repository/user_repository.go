package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

const userColumns = `id, email, password_hash, full_name, role, department, active, last_login, created_at, updated_at`

// UserRepository reads accounts. Accounts are provisioned out of band; the API never creates them.
type UserRepository struct {
	db *sqlx.DB
}

func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail matches case-insensitively. Returns sql.ErrNoRows when absent.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.one(ctx, "by email", `WHERE LOWER(email) = LOWER($1)`, email)
}

// FindByID returns sql.ErrNoRows when absent.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	return r.one(ctx, "by id", `WHERE id = $1`, id)
}

// ListActiveByRole returns active holders of role, oldest account first. Routing relies on this
// order when it falls back to a department's first admin.
func (r *UserRepository) ListActiveByRole(ctx context.Context, role models.UserRole) ([]models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE role = $1 AND active = TRUE ORDER BY created_at ASC, id ASC`
	users := []models.User{}
	if err := r.db.SelectContext(ctx, &users, query, role); err != nil {
		return nil, fmt.Errorf("list users with role %s: %w", role, err)
	}
	return users, nil
}

// UpdateLastLogin stamps a successful sign-in.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	res, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("update last login for %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *UserRepository) one(ctx context.Context, label, where string, arg interface{}) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, `SELECT `+userColumns+` FROM users `+where+` LIMIT 1`, arg)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, sql.ErrNoRows
	case err != nil:
		return nil, fmt.Errorf("find user %s: %w", label, err)
	}
	return &user, nil
}
