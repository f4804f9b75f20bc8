package database

import (
	"fmt"

	"samsar/server/internal/models"

	"gorm.io/gorm"
)

// MigrateSchema creates or updates the tables
func MigrateSchema(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.Preference{}); err != nil {
		return fmt.Errorf("failed to migrate preferences: %w", err)
	}
	return nil
}

func (d *Database) RunMigrations() error {
	if err := MigrateSchema(d.gorm); err != nil {
		return err
	}

	// Stale visitor cleanup scans by update time
	_, err := d.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_preferences_updated_at
		ON preferences(updated_at);
	`)
	if err != nil {
		return fmt.Errorf("failed to create preferences index: %w", err)
	}

	return nil
}
