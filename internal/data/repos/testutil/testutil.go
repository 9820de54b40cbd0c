package testutil

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	catalogdb "github.com/yungbote/dbprocessing/internal/data/db"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB returns an empty, migrated catalog private to tb. It is a sqlite file
// under tb.TempDir() unless TEST_POSTGRES_DSN is set, in which case every
// table is truncated before use.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	cfg := &gorm.Config{
		Logger:         gormLogger.Default.LogMode(gormLogger.Silent),
		TranslateError: true,
	}
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		db, err := gorm.Open(postgres.Open(dsn), cfg)
		if err != nil {
			tb.Fatalf("open postgres: %v", err)
		}
		if err := catalogdb.AutoMigrateAll(db); err != nil {
			tb.Fatalf("migrate postgres: %v", err)
		}
		if err := db.Exec(`TRUNCATE mission, satellite, instrument, product, instrumentproductlink,
			process, productprocesslink, code, inspector, file, filefilelink, filecodelink,
			"release", unixtime, processqueue, logging, logging_file RESTART IDENTITY CASCADE`).Error; err != nil {
			tb.Fatalf("truncate postgres: %v", err)
		}
		return db
	}

	path := filepath.Join(tb.TempDir(), uuid.NewString()+".sqlite")
	db, err := gorm.Open(sqlite.Open(catalogdb.SqliteDSN(path)), cfg)
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	tb.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := catalogdb.AutoMigrateAll(db); err != nil {
		tb.Fatalf("migrate sqlite: %v", err)
	}
	return db
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
