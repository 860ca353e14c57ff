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

const sessionColumns = `id, user_id, token_hash, expires_at, created_at, revoked_at, revoke_reason, ip_address, user_agent`

// SessionRepository stores refresh token grants in refresh_tokens.
type SessionRepository struct {
	db *sqlx.DB
}

func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, s *models.Session) error {
	query := `INSERT INTO refresh_tokens (` + sessionColumns + `)
VALUES (:id, :user_id, :token_hash, :expires_at, :created_at, :revoked_at, :revoke_reason, :ip_address, :user_agent)`
	if _, err := r.db.NamedExecContext(ctx, query, s); err != nil {
		return fmt.Errorf("create session for %s: %w", s.UserID, err)
	}
	return nil
}

// FindByHash returns sql.ErrNoRows for unknown tokens. Revoked and expired sessions are returned so
// callers can tell reuse apart from garbage.
func (r *SessionRepository) FindByHash(ctx context.Context, tokenHash string) (*models.Session, error) {
	var s models.Session
	err := r.db.GetContext(ctx, &s, `SELECT `+sessionColumns+` FROM refresh_tokens WHERE token_hash = $1`, tokenHash)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, sql.ErrNoRows
	case err != nil:
		return nil, fmt.Errorf("find session: %w", err)
	}
	return &s, nil
}

// Revoke closes one session. It reports false when the session was already revoked, which lets two
// concurrent refreshes of the same token race safely: only one wins.
func (r *SessionRepository) Revoke(ctx context.Context, id, reason string, at time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3 WHERE id = $1 AND revoked_at IS NULL`,
		id, at, reason)
	if err != nil {
		return false, fmt.Errorf("revoke session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("revoke session %s: %w", id, err)
	}
	return n == 1, nil
}

// RevokeAllForUser closes every open session of userID and returns how many were closed.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID, reason string, at time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = $2, revoke_reason = $3 WHERE user_id = $1 AND revoked_at IS NULL`,
		userID, at, reason)
	if err != nil {
		return 0, fmt.Errorf("revoke sessions for %s: %w", userID, err)
	}
	return res.RowsAffected()
}
