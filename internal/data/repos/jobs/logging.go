package jobs

import (
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

// LoggingRepo stores run records. The active row doubles as the processing
// lock.
type LoggingRepo interface {
	// Acquire inserts row as the active run. When another run holds the lock
	// nothing is written and the holder is returned.
	Acquire(dbc dbctx.Context, row *types.Logging) (*types.Logging, error)
	GetActive(dbc dbctx.Context) ([]*types.Logging, error)
	GetByID(dbc dbctx.Context, id int64) (*types.Logging, error)
	Finish(dbc dbctx.Context, id int64, comment string, summary datatypes.JSON) error
	// ResetAll clears every active row and stamps comment on it.
	ResetAll(dbc dbctx.Context, comment string) (int64, error)
	AddFile(dbc dbctx.Context, lf *types.LoggingFile) error
	ListFiles(dbc dbctx.Context, loggingID int64) ([]*types.LoggingFile, error)
}

type loggingRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLoggingRepo(db *gorm.DB, baseLog *logger.Logger) LoggingRepo {
	return &loggingRepo{db: db, log: baseLog.With("repo", "LoggingRepo")}
}

func (r *loggingRepo) Acquire(dbc dbctx.Context, row *types.Logging) (*types.Logging, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var holder *types.Logging
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		var active []*types.Logging
		if err := txx.Where("currently_processing = ?", true).
			Order("logging_id ASC").
			Limit(1).
			Find(&active).Error; err != nil {
			return err
		}
		if len(active) > 0 {
			holder = active[0]
			return nil
		}
		row.CurrentlyProcessing = true
		return txx.Create(row).Error
	})
	if err != nil {
		// Lost a race against another driver: the one-active-row index fired.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			active, gerr := r.GetActive(dbctx.Context{Ctx: dbc.Ctx})
			if gerr == nil && len(active) > 0 {
				return active[0], nil
			}
		}
		return nil, err
	}
	return holder, nil
}

func (r *loggingRepo) GetActive(dbc dbctx.Context) ([]*types.Logging, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Logging
	if err := transaction.WithContext(dbc.Ctx).
		Where("currently_processing = ?", true).
		Order("logging_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *loggingRepo) GetByID(dbc dbctx.Context, id int64) (*types.Logging, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Logging
	if err := transaction.WithContext(dbc.Ctx).Where("logging_id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *loggingRepo) Finish(dbc dbctx.Context, id int64, comment string, summary datatypes.JSON) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{
		"currently_processing": false,
		"processing_end_time":  time.Now().UTC(),
		"comment":              comment,
	}
	if len(summary) > 0 {
		updates["summary"] = summary
	}
	return transaction.WithContext(dbc.Ctx).Model(&types.Logging{}).
		Where("logging_id = ?", id).
		Updates(updates).Error
}

func (r *loggingRepo) ResetAll(dbc dbctx.Context, comment string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).Model(&types.Logging{}).
		Where("currently_processing = ?", true).
		Updates(map[string]interface{}{
			"currently_processing": false,
			"processing_end_time":  time.Now().UTC(),
			"comment":              comment,
		})
	return res.RowsAffected, res.Error
}

func (r *loggingRepo) AddFile(dbc dbctx.Context, lf *types.LoggingFile) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(lf).Error
}

func (r *loggingRepo) ListFiles(dbc dbctx.Context, loggingID int64) ([]*types.LoggingFile, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.LoggingFile
	if err := transaction.WithContext(dbc.Ctx).
		Where("logging_id = ?", loggingID).
		Order("logging_file_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
