package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/campus-complaints-api/internal/models"
)

// SettingRepository reads and writes app_settings rows.
type SettingRepository struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewSettingRepository constructs the repository.
func NewSettingRepository(db *sqlx.DB) *SettingRepository {
	return &SettingRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Get returns the setting stored under key, or sql.ErrNoRows.
func (r *SettingRepository) Get(ctx context.Context, key string) (*models.AppSetting, error) {
	var setting models.AppSetting
	err := r.db.GetContext(ctx, &setting,
		`SELECT setting_key, setting_value, updated_by, updated_at FROM app_settings WHERE setting_key = $1`, key)
	if err != nil {
		return nil, err
	}
	return &setting, nil
}

// Upsert writes the setting and stamps UpdatedAt.
func (r *SettingRepository) Upsert(ctx context.Context, setting *models.AppSetting) error {
	setting.UpdatedAt = r.now()
	_, err := r.db.NamedExecContext(ctx, `
INSERT INTO app_settings (setting_key, setting_value, updated_by, updated_at)
VALUES (:setting_key, :setting_value, :updated_by, :updated_at)
ON CONFLICT (setting_key) DO UPDATE
SET setting_value = EXCLUDED.setting_value, updated_by = EXCLUDED.updated_by, updated_at = EXCLUDED.updated_at`, setting)
	if err != nil {
		return fmt.Errorf("upsert setting %s: %w", setting.Key, err)
	}
	return nil
}
