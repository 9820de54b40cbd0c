package jobs

import (
	"gorm.io/gorm"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

// DefaultPushBatch bounds the IN lists built while deduplicating a push.
const DefaultPushBatch = 150

// ProcessQueueRepo is the durable FIFO of files awaiting child evaluation.
type ProcessQueueRepo interface {
	// Push appends ids not already queued and present in the file table, in
	// input order, and returns the ids actually added.
	Push(dbc dbctx.Context, ids []int64, bump *int) ([]int64, error)
	// RawAdd appends without any checks.
	RawAdd(dbc dbctx.Context, ids []int64, bump *int) error
	Len(dbc dbctx.Context) (int64, error)
	// Get returns the entry at index; negative indexes count from the back.
	// It returns nil when index is out of range.
	Get(dbc dbctx.Context, index int) (*types.QueueItem, error)
	Pop(dbc dbctx.Context, index int) (*types.QueueItem, error)
	List(dbc dbctx.Context) ([]types.QueueItem, error)
	GetAll(dbc dbctx.Context) ([]int64, error)
	Remove(dbc dbctx.Context, ids []int64) (int64, error)
	Flush(dbc dbctx.Context) (int64, error)
	// Clean drops entries that are neither newest nor carry a version bump and
	// reorders the rest by (data_level asc, utc_file_date desc).
	Clean(dbc dbctx.Context) (int64, error)
}

type processQueueRepo struct {
	db    *gorm.DB
	log   *logger.Logger
	batch int
}

func NewProcessQueueRepo(db *gorm.DB, baseLog *logger.Logger, batch int) ProcessQueueRepo {
	if batch <= 0 {
		batch = DefaultPushBatch
	}
	return &processQueueRepo{db: db, log: baseLog.With("repo", "ProcessQueueRepo"), batch: batch}
}

func (r *processQueueRepo) Push(dbc dbctx.Context, ids []int64, bump *int) ([]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	uniq := make([]int64, 0, len(ids))
	seen := make(map[int64]bool, len(ids))
	for _, id := range ids {
		if id <= 0 || seen[id] {
			continue
		}
		seen[id] = true
		uniq = append(uniq, id)
	}
	if len(uniq) == 0 {
		return []int64{}, nil
	}

	var added []int64
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		for start := 0; start < len(uniq); start += r.batch {
			chunk := uniq[start:min(start+r.batch, len(uniq))]

			var queued []int64
			if err := txx.Model(&types.ProcessQueue{}).
				Where("file_id IN ?", chunk).
				Pluck("file_id", &queued).Error; err != nil {
				return err
			}
			var present []int64
			if err := txx.Model(&types.File{}).
				Where("file_id IN ?", chunk).
				Pluck("file_id", &present).Error; err != nil {
				return err
			}
			skip := make(map[int64]bool, len(queued))
			for _, id := range queued {
				skip[id] = true
			}
			exists := make(map[int64]bool, len(present))
			for _, id := range present {
				exists[id] = true
			}
			var fresh []int64
			for _, id := range chunk {
				if skip[id] {
					continue
				}
				if !exists[id] {
					r.log.Debug("Skipping queue push for unknown file", "file_id", id)
					continue
				}
				fresh = append(fresh, id)
			}
			if err := rawAdd(txx, fresh, bump); err != nil {
				return err
			}
			added = append(added, fresh...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if added == nil {
		added = []int64{}
	}
	return added, nil
}

func (r *processQueueRepo) RawAdd(dbc dbctx.Context, ids []int64, bump *int) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		return rawAdd(txx, ids, bump)
	})
}

func rawAdd(tx *gorm.DB, ids []int64, bump *int) error {
	if len(ids) == 0 {
		return nil
	}
	var next int64
	if err := tx.Model(&types.ProcessQueue{}).
		Select("COALESCE(MAX(position), 0)").
		Scan(&next).Error; err != nil {
		return err
	}
	rows := make([]types.ProcessQueue, 0, len(ids))
	for _, id := range ids {
		next++
		row := types.ProcessQueue{FileID: id, Position: next}
		if bump != nil {
			b := *bump
			row.VersionBump = &b
		}
		rows = append(rows, row)
	}
	return tx.CreateInBatches(rows, DefaultPushBatch).Error
}

func (r *processQueueRepo) Len(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.ProcessQueue{}).Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *processQueueRepo) Get(dbc dbctx.Context, index int) (*types.QueueItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	row, err := getAt(transaction.WithContext(dbc.Ctx), index)
	if err != nil || row == nil {
		return nil, err
	}
	return &types.QueueItem{FileID: row.FileID, VersionBump: row.VersionBump}, nil
}

func getAt(tx *gorm.DB, index int) (*types.ProcessQueue, error) {
	var n int64
	if err := tx.Model(&types.ProcessQueue{}).Count(&n).Error; err != nil {
		return nil, err
	}
	if index < 0 {
		index += int(n)
	}
	if index < 0 || int64(index) >= n {
		return nil, nil
	}
	var out []*types.ProcessQueue
	if err := tx.Order("position ASC").Offset(index).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *processQueueRepo) Pop(dbc dbctx.Context, index int) (*types.QueueItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var item *types.QueueItem
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		row, err := getAt(txx, index)
		if err != nil || row == nil {
			return err
		}
		if err := txx.Where("file_id = ?", row.FileID).Delete(&types.ProcessQueue{}).Error; err != nil {
			return err
		}
		item = &types.QueueItem{FileID: row.FileID, VersionBump: row.VersionBump}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func (r *processQueueRepo) List(dbc dbctx.Context) ([]types.QueueItem, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var rows []*types.ProcessQueue
	if err := transaction.WithContext(dbc.Ctx).Order("position ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]types.QueueItem, 0, len(rows))
	for _, row := range rows {
		out = append(out, types.QueueItem{FileID: row.FileID, VersionBump: row.VersionBump})
	}
	return out, nil
}

func (r *processQueueRepo) GetAll(dbc dbctx.Context) ([]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.ProcessQueue{}).
		Order("position ASC").
		Pluck("file_id", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *processQueueRepo) Remove(dbc dbctx.Context, ids []int64) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(ids) == 0 {
		return 0, nil
	}
	res := transaction.WithContext(dbc.Ctx).Where("file_id IN ?", ids).Delete(&types.ProcessQueue{})
	return res.RowsAffected, res.Error
}

func (r *processQueueRepo) Flush(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).Where("1 = 1").Delete(&types.ProcessQueue{})
	return res.RowsAffected, res.Error
}

func (r *processQueueRepo) Clean(dbc dbctx.Context) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var dropped int64
	err := transaction.WithContext(dbc.Ctx).Transaction(func(txx *gorm.DB) error {
		res := txx.
			Where("version_bump IS NULL").
			Where("file_id NOT IN (SELECT file_id FROM file WHERE newest_version = ?)", true).
			Delete(&types.ProcessQueue{})
		if res.Error != nil {
			return res.Error
		}
		dropped = res.RowsAffected

		var ordered []int64
		if err := txx.Table("processqueue").
			Joins("JOIN file ON file.file_id = processqueue.file_id").
			Order("file.data_level ASC, file.utc_file_date DESC, processqueue.position ASC").
			Pluck("processqueue.file_id", &ordered).Error; err != nil {
			return err
		}
		for i, id := range ordered {
			if err := txx.Model(&types.ProcessQueue{}).
				Where("file_id = ?", id).
				Update("position", int64(i+1)).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return dropped, nil
}
