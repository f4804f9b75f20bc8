package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"samsar/server/internal/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type Database struct {
	db   *sql.DB
	gorm *gorm.DB
}

func NewDatabase(dbPath string) (*Database, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	gdb, err := open(dbPath)
	if err != nil {
		return nil, err
	}

	db, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	if dbPath == ":memory:" {
		// Every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}

	// Enable foreign keys
	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		return nil, err
	}

	return &Database{db: db, gorm: gdb}, nil
}

func open(dsn string) (*gorm.DB, error) {
	return gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// NewTestDB returns a migrated in-memory database
func NewTestDB() (*gorm.DB, error) {
	gdb, err := open(":memory:")
	if err != nil {
		return nil, err
	}
	db, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := MigrateSchema(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func (d *Database) Close() error {
	return d.db.Close()
}

// GORM returns the ORM handle used for batched writes
func (d *Database) GORM() *gorm.DB {
	return d.gorm
}

// GetPreference returns the stored preference of a visitor, or nil when the
// visitor has none.
func (d *Database) GetPreference(visitorID string) (*models.Preference, error) {
	var p models.Preference
	var lastViewed, lastSection, lastCategory sql.NullString
	var welcomeShown sql.NullBool
	var updatedAt sql.NullTime

	err := d.db.QueryRow(`
		SELECT
			visitor_id,
			last_viewed_file,
			last_section,
			last_category,
			welcome_shown,
			updated_at
		FROM preferences
		WHERE visitor_id = ?
	`, visitorID).Scan(
		&p.VisitorID,
		&lastViewed,
		&lastSection,
		&lastCategory,
		&welcomeShown,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query preference: %w", err)
	}

	p.LastViewedFile = lastViewed.String
	p.LastSection = lastSection.String
	p.LastCategory = lastCategory.String
	p.WelcomeShown = welcomeShown.Valid && welcomeShown.Bool
	if updatedAt.Valid {
		p.UpdatedAt = updatedAt.Time
	}
	return &p, nil
}

// CountPreferences returns the number of visitors with stored state
func (d *Database) CountPreferences() (int64, error) {
	var count int64
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM preferences`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count preferences: %w", err)
	}
	return count, nil
}

// DeletePreferencesBefore removes visitors untouched since before
func (d *Database) DeletePreferencesBefore(before time.Time) (int64, error) {
	result := d.gorm.Where("updated_at < ?", before.UTC()).Delete(&models.Preference{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete stale preferences: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// UpsertPreferences writes a batch inside tx. When a visitor appears more
// than once only its last entry is written.
func UpsertPreferences(tx *gorm.DB, prefs []*models.Preference) error {
	if len(prefs) == 0 {
		return nil
	}

	latest := make(map[string]int, len(prefs))
	for i, p := range prefs {
		if p == nil || p.VisitorID == "" {
			continue
		}
		latest[p.VisitorID] = i
	}

	rows := make([]*models.Preference, 0, len(latest))
	for i, p := range prefs {
		if p != nil && p.VisitorID != "" && latest[p.VisitorID] == i {
			rows = append(rows, p)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "visitor_id"}},
		UpdateAll: true,
	}).Create(&rows).Error
}
