package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/dbprocessing/internal/data/repos"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

func wireRepos(db *gorm.DB, log *logger.Logger, cfg Config) *repos.Set {
	log.Info("Wiring repos...", "queue_batch", cfg.QueueBatch)
	return repos.NewSet(db, log, cfg.QueueBatch)
}
