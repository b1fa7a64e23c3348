package database

import (
	"gorm.io/gorm"

	"github.com/charlesng35/marketsync/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.CollectibleToken{},
		&models.Opportunity{},
		&models.Achievement{},
		&models.PendingOperation{},
		&models.DeadLetter{},
		&models.CacheEntry{},
		&models.AppSettings{},
	)
}

// SeedData ensures the settings singleton exists.
func SeedData(db *gorm.DB) error {
	return EnsureAppSettings(db)
}
