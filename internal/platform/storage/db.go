// Package storage keeps the scan history in SQLite through gorm.
package storage

import (
	"context"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"proscan-server-go/internal/platform/errors"
	"proscan-server-go/internal/platform/storage/migrations"
)

// MemoryDSN opens a private in-memory database.
const MemoryDSN = ":memory:"

// Open opens (creating if needed) the database at path and brings the
// schema up to date.
func Open(ctx context.Context, path string) (*gorm.DB, error) {
	if path != MemoryDSN {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to create data directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to open database", err)
	}
	if path == MemoryDSN {
		// each pooled connection would otherwise see its own empty database
		sqlDB, err := db.DB()
		if err != nil {
			return nil, errors.Wrap(errors.KindStorage, "storage.open", "failed to access pool", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}

	mm := NewMigrationManager(db,
		&migrations.Migration001ScanRecords{},
		&migrations.Migration002ReportJSON{},
	)
	if _, err := mm.RunMigrations(ctx); err != nil {
		Close(db)
		return nil, err
	}
	return db, nil
}

// Close releases the underlying pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
