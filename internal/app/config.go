package app

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	catalogdb "github.com/yungbote/dbprocessing/internal/data/db"
	"github.com/yungbote/dbprocessing/internal/platform/envutil"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

const (
	defaultNumProc      = 2
	defaultPollInterval = 500 * time.Millisecond
	defaultQueueBatch   = 150
)

// Config is assembled from .env, an optional YAML file and the environment,
// in increasing precedence. Command-line flags are applied by the caller.
type Config struct {
	DB           string        `yaml:"db"`
	LogDir       string        `yaml:"log_dir"`
	LogMode      string        `yaml:"log_mode"`
	NumProc      int           `yaml:"numproc"`
	MetricsFile  string        `yaml:"metrics_file"`
	PollInterval time.Duration `yaml:"poll_interval"`
	QueueBatch   int           `yaml:"queue_batch"`
	RunDir       string        `yaml:"run_dir"`
}

func defaultConfig() Config {
	return Config{
		LogMode:      "development",
		NumProc:      defaultNumProc,
		PollInterval: defaultPollInterval,
		QueueBatch:   defaultQueueBatch,
	}
}

// LoadDotenv loads .env from the working directory. Variables already set
// are kept.
func LoadDotenv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// LoadConfig reads path (or DBPROCESSING_CONFIG when path is empty) and
// overlays the DBPROCESSING_* environment.
func LoadConfig(log *logger.Logger, path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		path = envutil.GetEnv("DBPROCESSING_CONFIG", "", log)
	}
	if path = envutil.ExpandPath(path); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.DB = envutil.GetEnv("DBPROCESSING_DB", cfg.DB, log)
	cfg.LogDir = envutil.GetEnv(logger.LogDirEnv, cfg.LogDir, log)
	cfg.LogMode = envutil.GetEnv("DBPROCESSING_LOG_MODE", cfg.LogMode, log)
	cfg.NumProc = envutil.GetEnvAsInt("DBPROCESSING_NUMPROC", cfg.NumProc, log)
	cfg.MetricsFile = envutil.GetEnv("DBPROCESSING_METRICS_FILE", cfg.MetricsFile, log)
	cfg.PollInterval = envutil.GetEnvAsDuration("DBPROCESSING_POLL_INTERVAL", cfg.PollInterval, log)
	cfg.QueueBatch = envutil.GetEnvAsInt("DBPROCESSING_QUEUE_BATCH", cfg.QueueBatch, log)
	cfg.RunDir = envutil.GetEnv("DBPROCESSING_RUN_DIR", cfg.RunDir, log)

	cfg.LogDir = envutil.ExpandPath(cfg.LogDir)
	cfg.MetricsFile = envutil.ExpandPath(cfg.MetricsFile)
	cfg.RunDir = envutil.ExpandPath(cfg.RunDir)
	if !catalogdb.IsPostgresDSN(cfg.DB) {
		cfg.DB = envutil.ExpandPath(cfg.DB)
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	if c.NumProc < 1 {
		return fmt.Errorf("numproc must be at least 1, got %d", c.NumProc)
	}
	if c.QueueBatch < 1 {
		return fmt.Errorf("queue batch must be at least 1, got %d", c.QueueBatch)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", c.PollInterval)
	}
	return nil
}
