package catalog

import (
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

type CodeRepo interface {
	Create(dbc dbctx.Context, c *types.Code) error
	GetByID(dbc dbctx.Context, id int64) (*types.Code, error)
	GetByFilename(dbc dbctx.Context, filename string) (*types.Code, error)
	ListByProcess(dbc dbctx.Context, processID int64) ([]*types.Code, error)
	// FindForDate returns active newest codes of processID whose validity
	// window covers day.
	FindForDate(dbc dbctx.Context, processID int64, day time.Time) ([]*types.Code, error)
	HasVersion(dbc dbctx.Context, processID int64, v version.Version) (bool, error)
	// RetireNewest clears newest_version and active_code on every other
	// newest code of keep's process whose validity window overlaps keep's.
	RetireNewest(dbc dbctx.Context, keep *types.Code) (int64, error)
	SetActive(dbc dbctx.Context, id int64, active bool) error
}

type codeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCodeRepo(db *gorm.DB, baseLog *logger.Logger) CodeRepo {
	return &codeRepo{db: db, log: baseLog.With("repo", "CodeRepo")}
}

func (r *codeRepo) Create(dbc dbctx.Context, c *types.Code) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	c.CodeStartDate = timeutil.Day(c.CodeStartDate)
	c.CodeStopDate = timeutil.Day(c.CodeStopDate)
	c.DateWritten = timeutil.Day(c.DateWritten)
	return transaction.WithContext(dbc.Ctx).Create(c).Error
}

func (r *codeRepo) GetByID(dbc dbctx.Context, id int64) (*types.Code, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Code
	if err := transaction.WithContext(dbc.Ctx).Where("code_id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// GetByFilename prefers the newest row when a filename was deployed more
// than once.
func (r *codeRepo) GetByFilename(dbc dbctx.Context, filename string) (*types.Code, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Code
	if err := transaction.WithContext(dbc.Ctx).
		Where("filename = ?", filename).
		Order("newest_version DESC, code_id DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *codeRepo) ListByProcess(dbc dbctx.Context, processID int64) ([]*types.Code, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Code
	if err := transaction.WithContext(dbc.Ctx).
		Where("process_id = ?", processID).
		Order("interface_version ASC, quality_version ASC, revision_version ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *codeRepo) FindForDate(dbc dbctx.Context, processID int64, day time.Time) ([]*types.Code, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	d := timeutil.Day(day)
	var out []*types.Code
	if err := transaction.WithContext(dbc.Ctx).
		Where("process_id = ? AND active_code = ? AND newest_version = ?", processID, true, true).
		Where("code_start_date <= ? AND code_stop_date >= ?", d, d).
		Order("code_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *codeRepo) HasVersion(dbc dbctx.Context, processID int64, v version.Version) (bool, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.Code{}).
		Where("process_id = ? AND interface_version = ? AND quality_version = ? AND revision_version = ?",
			processID, v.Interface, v.Quality, v.Revision).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *codeRepo) RetireNewest(dbc dbctx.Context, keep *types.Code) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).Model(&types.Code{}).
		Where("process_id = ? AND code_id <> ? AND newest_version = ?", keep.ProcessID, keep.CodeID, true).
		Where("code_start_date <= ? AND code_stop_date >= ?", timeutil.Day(keep.CodeStopDate), timeutil.Day(keep.CodeStartDate)).
		Updates(map[string]interface{}{
			"newest_version": false,
			"active_code":    false,
		})
	return res.RowsAffected, res.Error
}

// SetActive toggles active_code. Deactivating also clears newest_version so
// the pair never violates the newest-implies-active check.
func (r *codeRepo) SetActive(dbc dbctx.Context, id int64, active bool) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	updates := map[string]interface{}{"active_code": active}
	if !active {
		updates["newest_version"] = false
	}
	return transaction.WithContext(dbc.Ctx).Model(&types.Code{}).
		Where("code_id = ?", id).
		Updates(updates).Error
}
