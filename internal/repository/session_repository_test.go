package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

func TestSessionRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	now := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	session := &models.Session{
		ID: "s-1", UserID: "u-1", TokenHash: "abc", ExpiresAt: now.Add(time.Hour), CreatedAt: now,
		IPAddress: "10.0.0.1", UserAgent: "curl",
	}
	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs("s-1", "u-1", "abc", now.Add(time.Hour), now, nil, nil, "10.0.0.1", "curl").
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, NewSessionRepository(db).Create(context.Background(), session))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepositoryFindByHashReturnsRevoked(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM refresh_tokens WHERE token_hash = $1")).
		WithArgs("abc").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "token_hash", "expires_at", "created_at", "revoked_at", "revoke_reason", "ip_address", "user_agent"}).
			AddRow("s-1", "u-1", "abc", now.Add(time.Hour), now, now, models.RevokeRotated, "", ""))

	session, err := NewSessionRepository(db).FindByHash(context.Background(), "abc")
	require.NoError(t, err)
	require.NotNil(t, session.RevokeReason)
	assert.Equal(t, models.RevokeRotated, *session.RevokeReason)
	assert.False(t, session.Usable(now))
}

func TestSessionRepositoryFindByHashMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectQuery("FROM refresh_tokens").WithArgs("nope").WillReturnError(sql.ErrNoRows)

	_, err := NewSessionRepository(db).FindByHash(context.Background(), "nope")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSessionRepositoryRevokeReportsLostRace(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND revoked_at IS NULL")).
		WithArgs("s-1", at, models.RevokeRotated).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("WHERE id = $1 AND revoked_at IS NULL")).
		WithArgs("s-1", at, models.RevokeRotated).
		WillReturnResult(sqlmock.NewResult(0, 0))

	won, err := repo.Revoke(context.Background(), "s-1", models.RevokeRotated, at)
	require.NoError(t, err)
	assert.True(t, won)
	won, err = repo.Revoke(context.Background(), "s-1", models.RevokeRotated, at)
	require.NoError(t, err)
	assert.False(t, won)
}

func TestSessionRepositoryRevokeAllForUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	at := time.Now()

	mock.ExpectExec(regexp.QuoteMeta("WHERE user_id = $1 AND revoked_at IS NULL")).
		WithArgs("u-1", at, models.RevokeLogout).
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := NewSessionRepository(db).RevokeAllForUser(context.Background(), "u-1", models.RevokeLogout, at)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
}
