package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

func TestSettingRepositoryGet(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectQuery("SELECT setting_key, setting_value, updated_by, updated_at FROM app_settings").
		WithArgs(models.SettingPredictionThreshold).
		WillReturnRows(sqlmock.NewRows([]string{"setting_key", "setting_value", "updated_by", "updated_at"}).
			AddRow(models.SettingPredictionThreshold, "0.7", "admin-1", time.Now()))

	setting, err := NewSettingRepository(db).Get(context.Background(), models.SettingPredictionThreshold)
	require.NoError(t, err)
	assert.Equal(t, "0.7", setting.Value)
	require.NotNil(t, setting.UpdatedBy)
	assert.Equal(t, "admin-1", *setting.UpdatedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSettingRepositoryGetMissing(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	mock.ExpectQuery("FROM app_settings").WithArgs("unknown").WillReturnError(sql.ErrNoRows)

	_, err := NewSettingRepository(db).Get(context.Background(), "unknown")
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestSettingRepositoryUpsertStampsTime(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()

	repo := NewSettingRepository(db)
	fixed := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	admin := "admin-1"

	mock.ExpectExec("INSERT INTO app_settings").
		WithArgs(models.SettingPredictionThreshold, "0.65", "admin-1", fixed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	setting := &models.AppSetting{Key: models.SettingPredictionThreshold, Value: "0.65", UpdatedBy: &admin}
	require.NoError(t, repo.Upsert(context.Background(), setting))
	assert.Equal(t, fixed, setting.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}
