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

var userColumnNames = []string{"id", "email", "password_hash", "full_name", "role", "department", "active", "last_login", "created_at", "updated_at"}

func TestUserRepositoryFindByEmailIgnoresCase(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE LOWER(email) = LOWER($1) LIMIT 1")).
		WithArgs("Warden@Example.edu").
		WillReturnRows(sqlmock.NewRows(userColumnNames).
			AddRow("1", "warden@example.edu", "hash", "Warden", string(models.RoleDeptAdmin), "HOSTEL", true, now, now, now))

	user, err := NewUserRepository(db).FindByEmail(context.Background(), "Warden@Example.edu")
	require.NoError(t, err)
	assert.Equal(t, models.RoleDeptAdmin, user.Role)
	require.NotNil(t, user.Department)
	assert.Equal(t, "HOSTEL", *user.Department)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryFindByIDNotFound(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectQuery(regexp.QuoteMeta("FROM users WHERE id = $1")).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := NewUserRepository(db).FindByID(context.Background(), "missing")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestUserRepositoryListActiveByRole(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta("WHERE role = $1 AND active = TRUE ORDER BY created_at ASC, id ASC")).
		WithArgs(string(models.RoleResolver)).
		WillReturnRows(sqlmock.NewRows(userColumnNames).
			AddRow("r-1", "a@example.edu", "hash", "A", "ROLE_RESOLVER", nil, true, nil, now, now).
			AddRow("r-2", "b@example.edu", "hash", "B", "ROLE_RESOLVER", nil, true, nil, now, now))

	users, err := NewUserRepository(db).ListActiveByRole(context.Background(), models.RoleResolver)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "r-1", users[0].ID)
	assert.Nil(t, users[1].Department)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepositoryUpdateLastLoginUnknownUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	at := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET last_login = $2, updated_at = $2 WHERE id = $1")).
		WithArgs("ghost", at).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewUserRepository(db).UpdateLastLogin(context.Background(), "ghost", at)
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}
