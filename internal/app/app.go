package app

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gorm.io/gorm"

	catalogdb "github.com/yungbote/dbprocessing/internal/data/db"
	"github.com/yungbote/dbprocessing/internal/data/repos"
	"github.com/yungbote/dbprocessing/internal/ingestion"
	"github.com/yungbote/dbprocessing/internal/inspector"
	"github.com/yungbote/dbprocessing/internal/jobs/driver"
	"github.com/yungbote/dbprocessing/internal/jobs/runner"
	"github.com/yungbote/dbprocessing/internal/observability"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
	"github.com/yungbote/dbprocessing/internal/services"
)

// Version is stamped by the build.
var Version = "dev"

type App struct {
	Log      *logger.Logger
	Cfg      Config
	Store    *catalogdb.CatalogService
	DB       *gorm.DB
	Repos    *repos.Set
	Catalog  services.CatalogService
	Metrics  *observability.Metrics
	Ingester *ingestion.Ingester
	Runner   *runner.Runner

	shutdownTracing func(context.Context) error
}

// New loads configuration, applies override (command-line flags) on top
// of it and connects to the catalog.
func New(ctx context.Context, configPath string, override func(*Config)) (*App, error) {
	if err := LoadDotenv(); err != nil {
		return nil, err
	}
	cfg, err := LoadConfig(nil, configPath)
	if err != nil {
		return nil, err
	}
	if override != nil {
		override(&cfg)
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	if cfg.LogDir != "" {
		if err := os.Setenv(logger.LogDirEnv, cfg.LogDir); err != nil {
			return nil, fmt.Errorf("set log dir: %w", err)
		}
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	if cfg.DB == "" {
		log.Sync()
		return nil, errors.New("no catalog configured: set DBPROCESSING_DB or pass --mission")
	}

	store, err := catalogdb.Open(cfg.DB, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init catalog: %w", err)
	}
	theDB := store.DB()
	reposet := wireRepos(theDB, log, cfg)

	cat, err := services.NewCatalogService(theDB, log, reposet)
	if err != nil {
		_ = store.Close()
		log.Sync()
		return nil, err
	}

	metrics := observability.NewMetrics()
	ingester := ingestion.New(cat, inspector.NewRegistry(), log, metrics)
	run := runner.New(cat, ingester, log, cfg.NumProc, metrics)
	run.SetPollInterval(cfg.PollInterval)

	a := &App{
		Log:      log,
		Cfg:      cfg,
		Store:    store,
		DB:       theDB,
		Repos:    reposet,
		Catalog:  cat,
		Metrics:  metrics,
		Ingester: ingester,
		Runner:   run,
	}
	a.shutdownTracing = observability.InitTracing(ctx, log, observability.TraceConfig{
		ServiceName: "dbprocessing",
		Mission:     a.missionName(ctx),
		Version:     Version,
	})
	return a, nil
}

// missionName is empty on a catalog that has no tables yet.
func (a *App) missionName(ctx context.Context) string {
	if !a.DB.Migrator().HasTable("mission") {
		return ""
	}
	m, err := a.Catalog.CurrentMission(dbctx.Context{Ctx: ctx})
	if err != nil {
		return ""
	}
	return m.MissionName
}

// Driver builds a driver for one invocation.
func (a *App) Driver(opts driver.Options) *driver.Driver {
	if opts.RunDir == "" {
		opts.RunDir = a.Cfg.RunDir
	}
	return driver.New(a.Catalog, a.Ingester, a.Runner, a.Log, a.Metrics, opts)
}

// Close writes the metrics textfile when one is configured, flushes traces
// and closes the catalog.
func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.Cfg.MetricsFile != "" && a.Metrics != nil {
		if err := a.Metrics.WriteTextfile(a.Cfg.MetricsFile); err != nil {
			a.Log.Warn("Could not write metrics file", "path", a.Cfg.MetricsFile, "error", err)
		}
	}
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.Log.Warn("Tracing shutdown failed", "error", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			a.Log.Warn("Catalog close failed", "error", err)
		}
	}
	a.Log.Sync()
}
