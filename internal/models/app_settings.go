package models

import (
	"time"

	"gorm.io/datatypes"
)

// AppSettingsID is the fixed primary key of the settings singleton.
const AppSettingsID uint = 1

// AppSettings is the process-wide settings row. It is created during seeding and
// updated in place afterwards.
type AppSettings struct {
	ID           uint              `gorm:"primaryKey;autoIncrement:false" json:"id"`
	OfflineMode  bool              `gorm:"not null;default:false" json:"offline_mode"`
	LastFullSync *time.Time        `json:"last_full_sync,omitempty"`
	Features     datatypes.JSONMap `json:"features"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// FeatureEnabled reports whether the named toggle is set to true.
func (s AppSettings) FeatureEnabled(name string) bool {
	if s.Features == nil {
		return false
	}
	enabled, _ := s.Features[name].(bool)
	return enabled
}
