package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

func TestSLARuleRepositoryFindActiveMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSLARuleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sla_rules WHERE priority = $1 AND active = TRUE")).
		WithArgs("CRITICAL").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindActiveByPriority(context.Background(), models.PriorityCritical)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSLARuleRepositoryUpsertKeepsExistingID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSLARuleRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("ON CONFLICT (priority)")).
		WithArgs(sqlmock.AnyArg(), "HIGH", 60, 480, true, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("sla-existing"))

	rule := &models.SLARule{Priority: models.PriorityHigh, AcknowledgeWithinMinutes: 60, ResolveWithinMinutes: 480}
	require.NoError(t, repo.Upsert(context.Background(), rule))
	assert.Equal(t, "sla-existing", rule.ID)
	assert.True(t, rule.Active)
	assert.NoError(t, mock.ExpectationsWereMet())
}
