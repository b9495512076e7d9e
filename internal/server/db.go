package server

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/vesaa/warpdeck/internal/models"
)

// Journal is the SQLite-backed audit trail of dispatched actions.
type Journal struct {
	db *gorm.DB
}

// OpenJournal opens the database at path and runs AutoMigrate.
func OpenJournal(path string) (*Journal, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	if err := db.AutoMigrate(&models.ActionRecord{}); err != nil {
		return nil, fmt.Errorf("auto-migrate: %w", err)
	}
	slog.Info("journal opened", "component", "DB", "path", path)
	return &Journal{db: db}, nil
}

// Record appends one action to the journal.
func (j *Journal) Record(ctx context.Context, rec models.ActionRecord) error {
	return j.db.WithContext(ctx).Create(&rec).Error
}

// Recent returns up to limit records, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]models.ActionRecord, error) {
	var recs []models.ActionRecord
	err := j.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&recs).Error
	return recs, err
}

// Close releases the underlying connection pool.
func (j *Journal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
