package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/yungbote/dbprocessing/internal/domain"
)

// AutoMigrateAll creates every catalog table, index and constraint.
func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return err
	}
	return EnsureIndexes(db)
}

// EnsureIndexes adds the partial indexes gorm tags cannot express.
func EnsureIndexes(db *gorm.DB) error {
	// At most one run may hold the processing lock.
	if err := db.Exec(`
		CREATE UNIQUE INDEX IF NOT EXISTS idx_logging_one_active
		ON logging (currently_processing)
		WHERE currently_processing;
	`).Error; err != nil {
		return fmt.Errorf("create idx_logging_one_active: %w", err)
	}
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_file_newest_group
		ON file (product_id, utc_file_date)
		WHERE newest_version;
	`).Error; err != nil {
		return fmt.Errorf("create idx_file_newest_group: %w", err)
	}
	return nil
}

// CreateDB builds an empty catalog.
func (s *CatalogService) CreateDB() error {
	s.log.Info("Creating catalog tables...")
	if err := AutoMigrateAll(s.db); err != nil {
		s.log.Error("Catalog creation failed", "error", err)
		return fmt.Errorf("create catalog: %w", err)
	}
	return nil
}

// MigrateDB upgrades an existing catalog: missing tables and columns are
// added and the unixtime adjunct is backfilled from file rows.
func (s *CatalogService) MigrateDB() (int64, error) {
	s.log.Info("Migrating catalog...")
	if err := AutoMigrateAll(s.db); err != nil {
		return 0, fmt.Errorf("migrate catalog: %w", err)
	}
	n, err := BackfillUnixtime(s.db)
	if err != nil {
		return 0, err
	}
	s.log.Info("Catalog migrated", "unixtime_backfilled", n)
	return n, nil
}

// BackfillUnixtime inserts a unixtime row for every file without one.
func BackfillUnixtime(db *gorm.DB) (int64, error) {
	var missing []types.File
	if err := db.
		Where("file_id NOT IN (SELECT file_id FROM unixtime)").
		Find(&missing).Error; err != nil {
		return 0, fmt.Errorf("scan files for unixtime: %w", err)
	}
	if len(missing) == 0 {
		return 0, nil
	}
	rows := make([]types.Unixtime, 0, len(missing))
	for _, f := range missing {
		rows = append(rows, types.Unixtime{
			FileID:    f.FileID,
			UnixStart: f.UTCStartTime.Unix(),
			UnixStop:  f.UTCStopTime.Unix(),
		})
	}
	if err := db.CreateInBatches(rows, 500).Error; err != nil {
		return 0, fmt.Errorf("backfill unixtime: %w", err)
	}
	return int64(len(rows)), nil
}

// HasUnixtime reports whether the optional unixtime table exists.
func HasUnixtime(db *gorm.DB) bool {
	return db.Migrator().HasTable(&types.Unixtime{})
}
