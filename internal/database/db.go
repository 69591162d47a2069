package database

import (
	"os"
	"path/filepath"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Initialize creates and returns a database connection
func Initialize(dbPath string) (*gorm.DB, error) {
	// Ensure the directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	// Configure GORM logger
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	}

	// Open SQLite database
	db, err := gorm.Open(sqlite.Open(dbPath), gormConfig)
	if err != nil {
		return nil, err
	}

	// Run migrations
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return db, nil
}

// runMigrations runs all database migrations
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Email{},
		&models.Log{},
	); err != nil {
		return err
	}

	// 旧库可能遗留单列 message_id 唯一索引，去掉它，唯一性由
	// (account_id, message_id) 组合索引保证
	_ = db.Migrator().DropIndex(&models.Email{}, "message_id")
	_ = db.Migrator().DropIndex(&models.Email{}, "idx_emails_message_id")

	// Backfill default folder for rows written before the column existed
	db.Model(&models.Email{}).Where("folder = '' OR folder IS NULL").Update("folder", "INBOX")

	return nil
}
