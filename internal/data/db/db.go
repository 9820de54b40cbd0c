package db

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

// CatalogService owns the catalog connection.
type CatalogService struct {
	db      *gorm.DB
	log     *logger.Logger
	dialect string
}

// IsPostgresDSN reports whether dsn names a postgres server rather than a
// sqlite file.
func IsPostgresDSN(dsn string) bool {
	d := strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(d, "postgres://") || strings.HasPrefix(d, "postgresql://")
}

// Open connects to the catalog. A postgres:// URL selects postgres; anything
// else is a sqlite file path, created if missing, with foreign keys on.
func Open(dsn string, logg *logger.Logger) (*CatalogService, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("catalog dsn is empty")
	}
	serviceLog := logg.With("service", "CatalogService")

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	cfg := &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
	}

	var (
		db      *gorm.DB
		err     error
		dialect string
	)
	if IsPostgresDSN(dsn) {
		dialect = "postgres"
		db, err = gorm.Open(postgres.Open(dsn), cfg)
	} else {
		dialect = "sqlite"
		db, err = gorm.Open(sqlite.Open(SqliteDSN(dsn)), cfg)
	}
	if err != nil {
		serviceLog.Error("Failed to open catalog", "dialect", dialect, "dsn", dsn, "error", err)
		return nil, fmt.Errorf("open %s catalog: %w", dialect, err)
	}
	serviceLog.Debug("Catalog opened", "dialect", dialect, "dsn", dsn)
	return &CatalogService{db: db, log: serviceLog, dialect: dialect}, nil
}

// SqliteDSN turns a file path into a go-sqlite3 URI with foreign keys and a
// busy timeout enabled.
func SqliteDSN(path string) string {
	p := strings.TrimPrefix(strings.TrimSpace(path), "sqlite://")
	if strings.HasPrefix(p, "file:") {
		return p
	}
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	return "file:" + p + "?_foreign_keys=1&_busy_timeout=10000&_journal_mode=WAL"
}

func (s *CatalogService) DB() *gorm.DB { return s.db }

func (s *CatalogService) Dialect() string { return s.dialect }

func (s *CatalogService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
