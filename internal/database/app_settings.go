package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/marketsync/internal/models"
)

// EnsureAppSettings creates the settings singleton when it is missing.
func EnsureAppSettings(db *gorm.DB) error {
	if db == nil {
		return errors.New("app settings: db is nil")
	}

	defaults := models.AppSettings{
		ID:       models.AppSettingsID,
		Features: datatypes.JSONMap{},
	}
	if err := db.Where(models.AppSettings{ID: models.AppSettingsID}).Attrs(defaults).FirstOrCreate(&models.AppSettings{}).Error; err != nil {
		return fmt.Errorf("app settings: seed: %w", err)
	}
	return nil
}

// GetAppSettings loads the settings singleton, creating it on first access.
func GetAppSettings(ctx context.Context, db *gorm.DB) (models.AppSettings, error) {
	if db == nil {
		return models.AppSettings{}, errors.New("app settings: db is nil")
	}

	var settings models.AppSettings
	err := db.WithContext(ctx).Take(&settings, "id = ?", models.AppSettingsID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if err := EnsureAppSettings(db.WithContext(ctx)); err != nil {
			return models.AppSettings{}, err
		}
		err = db.WithContext(ctx).Take(&settings, "id = ?", models.AppSettingsID).Error
	}
	if err != nil {
		return models.AppSettings{}, fmt.Errorf("app settings: get: %w", err)
	}
	return settings, nil
}

// SetOfflineMode persists the user-controlled offline toggle.
func SetOfflineMode(ctx context.Context, db *gorm.DB, enabled bool) error {
	return updateAppSettings(ctx, db, map[string]any{"offline_mode": enabled})
}

// MarkFullSync records the completion time of a drain pass.
func MarkFullSync(ctx context.Context, db *gorm.DB, at time.Time) error {
	return updateAppSettings(ctx, db, map[string]any{"last_full_sync": at.UTC()})
}

// SetFeature stores a boolean feature toggle.
func SetFeature(ctx context.Context, db *gorm.DB, name string, enabled bool) error {
	settings, err := GetAppSettings(ctx, db)
	if err != nil {
		return err
	}
	features := datatypes.JSONMap{}
	for key, value := range settings.Features {
		features[key] = value
	}
	features[name] = enabled
	return updateAppSettings(ctx, db, map[string]any{"features": features})
}

func updateAppSettings(ctx context.Context, db *gorm.DB, values map[string]any) error {
	if _, err := GetAppSettings(ctx, db); err != nil {
		return err
	}
	err := db.WithContext(ctx).
		Model(&models.AppSettings{}).
		Where("id = ?", models.AppSettingsID).
		Updates(values).Error
	if err != nil {
		return fmt.Errorf("app settings: update: %w", err)
	}
	return nil
}
