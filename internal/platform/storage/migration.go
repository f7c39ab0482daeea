package storage

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"proscan-server-go/internal/platform/errors"
)

// Migration is one versioned schema change.
type Migration interface {
	Version() string
	Description() string
	Up(db *gorm.DB) error
	Down(db *gorm.DB) error
}

// MigrationRecord marks a migration as applied.
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Version   string    `gorm:"uniqueIndex;not null"`
	Name      string    `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// MigrationManager applies registered migrations in order, each inside its
// own transaction.
type MigrationManager struct {
	db         *gorm.DB
	migrations []Migration
}

func NewMigrationManager(db *gorm.DB, ms ...Migration) *MigrationManager {
	return &MigrationManager{db: db, migrations: ms}
}

func (m *MigrationManager) AddMigration(migration Migration) {
	m.migrations = append(m.migrations, migration)
}

// RunMigrations applies every migration not yet recorded and returns the
// versions it applied.
func (m *MigrationManager) RunMigrations(ctx context.Context) ([]string, error) {
	db := m.db.WithContext(ctx)
	if err := db.AutoMigrate(&MigrationRecord{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.create_table", "failed to create migration table", err)
	}

	var appliedVersions []string
	if err := db.Model(&MigrationRecord{}).Pluck("version", &appliedVersions).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.get_applied", "failed to get applied migrations", err)
	}
	applied := make(map[string]bool, len(appliedVersions))
	for _, v := range appliedVersions {
		applied[v] = true
	}

	var ran []string
	for _, migration := range m.migrations {
		if applied[migration.Version()] {
			continue
		}
		err := db.Transaction(func(tx *gorm.DB) error {
			if err := migration.Up(tx); err != nil {
				return errors.Wrap(errors.KindStorage, "migration.up", fmt.Sprintf("failed to run migration %s", migration.Version()), err)
			}
			record := &MigrationRecord{
				Version:   migration.Version(),
				Name:      migration.Description(),
				AppliedAt: time.Now(),
			}
			if err := tx.Create(record).Error; err != nil {
				return errors.Wrap(errors.KindStorage, "migration.record", "failed to record migration", err)
			}
			return nil
		})
		if err != nil {
			return ran, err
		}
		ran = append(ran, migration.Version())
	}
	return ran, nil
}

// RollbackMigration reverts one applied migration.
func (m *MigrationManager) RollbackMigration(ctx context.Context, version string) error {
	db := m.db.WithContext(ctx)

	var record MigrationRecord
	if err := db.Where("version = ?", version).First(&record).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return errors.New(errors.KindStorage, "migration.not_found", fmt.Sprintf("migration %s not found", version))
		}
		return errors.Wrap(errors.KindStorage, "migration.find_record", "failed to find migration record", err)
	}

	var target Migration
	for _, migration := range m.migrations {
		if migration.Version() == version {
			target = migration
			break
		}
	}
	if target == nil {
		return errors.New(errors.KindStorage, "migration.not_registered", fmt.Sprintf("migration %s not registered", version))
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := target.Down(tx); err != nil {
			return errors.Wrap(errors.KindStorage, "migration.down", fmt.Sprintf("failed to rollback migration %s", version), err)
		}
		if err := tx.Delete(&record).Error; err != nil {
			return errors.Wrap(errors.KindStorage, "migration.delete_record", "failed to delete migration record", err)
		}
		return nil
	})
}

// MigrationHistory lists applied migrations, newest first.
func (m *MigrationManager) MigrationHistory(ctx context.Context) ([]MigrationRecord, error) {
	var records []MigrationRecord
	if err := m.db.WithContext(ctx).Order("applied_at DESC").Find(&records).Error; err != nil {
		return nil, errors.Wrap(errors.KindStorage, "migration.history", "failed to get migration history", err)
	}
	return records, nil
}
