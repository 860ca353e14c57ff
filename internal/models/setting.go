package models

import "time"

// SettingPredictionThreshold holds the classifier confidence below which complaints go to manual review.
const SettingPredictionThreshold = "prediction.threshold"

// AppSetting is a runtime override stored in app_settings. Values are kept as text.
type AppSetting struct {
	Key       string    `db:"setting_key" json:"key"`
	Value     string    `db:"setting_value" json:"value"`
	UpdatedBy *string   `db:"updated_by" json:"updated_by,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
