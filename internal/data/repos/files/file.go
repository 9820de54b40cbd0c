package files

import (
	"sync"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

// FileQuery filters the file table. Zero fields do not filter.
type FileQuery struct {
	StartDate    *time.Time
	EndDate      *time.Time
	Level        *float64
	ProductID    int64
	CodeID       int64
	InstrumentID int64
	Exists       *bool
	// Newest keeps only the highest version in each (product, date) group of
	// the filtered set.
	Newest bool
	// StartTime/EndTime select files whose [utc_start_time, utc_stop_time]
	// overlaps the range. One alone selects an instant.
	StartTime *time.Time
	EndTime   *time.Time
	Limit     int
}

type FileRepo interface {
	Create(dbc dbctx.Context, f *types.File) error
	GetByID(dbc dbctx.Context, id int64) (*types.File, error)
	GetByIDs(dbc dbctx.Context, ids []int64) ([]*types.File, error)
	GetByFilename(dbc dbctx.Context, filename string) (*types.File, error)
	Query(dbc dbctx.Context, q FileQuery) ([]*types.File, error)
	// ListGroup returns every version of productID on day, newest first.
	ListGroup(dbc dbctx.Context, productID int64, day time.Time) ([]*types.File, error)
	ExistingIDs(dbc dbctx.Context, ids []int64) ([]int64, error)
	SetNewest(dbc dbctx.Context, ids []int64, newest bool) error
	SetExistsOnDisk(dbc dbctx.Context, id int64, exists bool) error
	Rename(dbc dbctx.Context, id int64, filename string) error
	// Delete removes the file row and every row that references it.
	Delete(dbc dbctx.Context, id int64) error
	HasUnixtime(dbc dbctx.Context) bool
}

type fileRepo struct {
	db  *gorm.DB
	log *logger.Logger

	unixOnce sync.Once
	unixOK   bool
}

func NewFileRepo(db *gorm.DB, baseLog *logger.Logger) FileRepo {
	return &fileRepo{db: db, log: baseLog.With("repo", "FileRepo")}
}

func (r *fileRepo) HasUnixtime(dbc dbctx.Context) bool {
	r.unixOnce.Do(func() {
		r.unixOK = r.db.WithContext(dbc.Ctx).Migrator().HasTable(&types.Unixtime{})
	})
	return r.unixOK
}

func (r *fileRepo) Create(dbc dbctx.Context, f *types.File) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	f.UTCFileDate = timeutil.Day(f.UTCFileDate)
	f.UTCStartTime = f.UTCStartTime.UTC()
	f.UTCStopTime = f.UTCStopTime.UTC()
	if f.FileCreateDate.IsZero() {
		f.FileCreateDate = time.Now().UTC()
	}
	if err := transaction.WithContext(dbc.Ctx).Create(f).Error; err != nil {
		return err
	}
	if !r.HasUnixtime(dbc) {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(&types.Unixtime{
		FileID:    f.FileID,
		UnixStart: f.UTCStartTime.Unix(),
		UnixStop:  f.UTCStopTime.Unix(),
	}).Error
}

func (r *fileRepo) GetByID(dbc dbctx.Context, id int64) (*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.File
	if err := transaction.WithContext(dbc.Ctx).Where("file_id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *fileRepo) GetByIDs(dbc dbctx.Context, ids []int64) ([]*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.File
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("file_id IN ?", ids).
		Order("file_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) GetByFilename(dbc dbctx.Context, filename string) (*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.File
	if err := transaction.WithContext(dbc.Ctx).Where("filename = ?", filename).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *fileRepo) Query(dbc dbctx.Context, q FileQuery) ([]*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	base := r.filtered(dbc, transaction.WithContext(dbc.Ctx), q)

	var out []*types.File
	if !q.Newest {
		qq := base.Order("utc_file_date ASC, product_id ASC, file_id ASC")
		if q.Limit > 0 {
			qq = qq.Limit(q.Limit)
		}
		if err := qq.Find(&out).Error; err != nil {
			return nil, err
		}
		return out, nil
	}

	ranked := base.Select(`file.*, ROW_NUMBER() OVER (
		PARTITION BY product_id, utc_file_date
		ORDER BY interface_version DESC, quality_version DESC, revision_version DESC
	) AS rn`)
	qq := transaction.WithContext(dbc.Ctx).
		Table("(?) AS ranked", ranked).
		Where("rn = 1").
		Order("utc_file_date ASC, product_id ASC, file_id ASC")
	if q.Limit > 0 {
		qq = qq.Limit(q.Limit)
	}
	if err := qq.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) filtered(dbc dbctx.Context, tx *gorm.DB, q FileQuery) *gorm.DB {
	qq := tx.Model(&types.File{})
	if q.StartDate != nil {
		qq = qq.Where("utc_file_date >= ?", timeutil.Day(*q.StartDate))
	}
	if q.EndDate != nil {
		qq = qq.Where("utc_file_date <= ?", timeutil.Day(*q.EndDate))
	}
	if q.Level != nil {
		qq = qq.Where("data_level = ?", *q.Level)
	}
	if q.ProductID > 0 {
		qq = qq.Where("product_id = ?", q.ProductID)
	}
	if q.CodeID > 0 {
		qq = qq.Where("file_id IN (SELECT resulting_file FROM filecodelink WHERE source_code = ?)", q.CodeID)
	}
	if q.InstrumentID > 0 {
		qq = qq.Where("product_id IN (SELECT product_id FROM instrumentproductlink WHERE instrument_id = ?)", q.InstrumentID)
	}
	if q.Exists != nil {
		qq = qq.Where("exists_on_disk = ?", *q.Exists)
	}
	if q.StartTime != nil || q.EndTime != nil {
		start, end := q.StartTime, q.EndTime
		if start == nil {
			start = end
		}
		if end == nil {
			end = start
		}
		if r.HasUnixtime(dbc) {
			qq = qq.Where("file_id IN (SELECT file_id FROM unixtime WHERE unix_start <= ? AND unix_stop >= ?)",
				end.Unix(), start.Unix())
		} else {
			qq = qq.Where("utc_start_time <= ? AND utc_stop_time >= ?", end.UTC(), start.UTC())
		}
	}
	return qq
}

func (r *fileRepo) ListGroup(dbc dbctx.Context, productID int64, day time.Time) ([]*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.File
	if err := transaction.WithContext(dbc.Ctx).
		Where("product_id = ? AND utc_file_date = ?", productID, timeutil.Day(day)).
		Order("interface_version DESC, quality_version DESC, revision_version DESC, file_id DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) ExistingIDs(dbc dbctx.Context, ids []int64) ([]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []int64
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).Model(&types.File{}).
		Where("file_id IN ?", ids).
		Pluck("file_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileRepo) SetNewest(dbc dbctx.Context, ids []int64, newest bool) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Model(&types.File{}).
		Where("file_id IN ?", ids).
		Update("newest_version", newest).Error
}

func (r *fileRepo) SetExistsOnDisk(dbc dbctx.Context, id int64, exists bool) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Model(&types.File{}).
		Where("file_id = ?", id).
		Update("exists_on_disk", exists).Error
}

func (r *fileRepo) Rename(dbc dbctx.Context, id int64, filename string) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).Model(&types.File{}).
		Where("file_id = ?", id).
		Update("filename", filename)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *fileRepo) Delete(dbc dbctx.Context, id int64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		dependents := []struct {
			model any
			where string
			args  []any
		}{
			{&types.FileFileLink{}, "source_file = ? OR resulting_file = ?", []any{id, id}},
			{&types.FileCodeLink{}, "resulting_file = ?", []any{id}},
			{&types.Release{}, "file_id = ?", []any{id}},
			{&types.ProcessQueue{}, "file_id = ?", []any{id}},
			{&types.LoggingFile{}, "file_id = ?", []any{id}},
		}
		for _, d := range dependents {
			if err := txx.Where(d.where, d.args...).Delete(d.model).Error; err != nil {
				return err
			}
		}
		if r.HasUnixtime(dbc) {
			if err := txx.Where("file_id = ?", id).Delete(&types.Unixtime{}).Error; err != nil {
				return err
			}
		}
		res := txx.Where("file_id = ?", id).Delete(&types.File{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}
