package db

import (
	"fmt"

	"github.com/zulandar/procurebot/internal/models"
	"gorm.io/gorm"
)

// AllModels returns every GORM model kept in the local cache database.
func AllModels() []interface{} {
	return []interface{}{
		&models.NegotiationSnapshot{},
		&models.WatchState{},
	}
}

// AutoMigrate creates or updates the cache tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}
