package files

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

type ReleaseRepo interface {
	Tag(dbc dbctx.Context, fileIDs []int64, release string) (int64, error)
	ListFiles(dbc dbctx.Context, release string) ([]*types.File, error)
	ListReleases(dbc dbctx.Context, fileID int64) ([]string, error)
}

type releaseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewReleaseRepo(db *gorm.DB, baseLog *logger.Logger) ReleaseRepo {
	return &releaseRepo{db: db, log: baseLog.With("repo", "ReleaseRepo")}
}

func (r *releaseRepo) Tag(dbc dbctx.Context, fileIDs []int64, release string) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(fileIDs) == 0 {
		return 0, nil
	}
	rows := make([]types.Release, 0, len(fileIDs))
	for _, id := range fileIDs {
		rows = append(rows, types.Release{FileID: id, ReleaseNum: release})
	}
	res := transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *releaseRepo) ListFiles(dbc dbctx.Context, release string) ([]*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var ids []int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.Release{}).
		Where("release_num = ?", release).
		Pluck("file_id", &ids).Error; err != nil {
		return nil, err
	}
	var out []*types.File
	if len(ids) == 0 {
		return out, nil
	}
	if err := transaction.WithContext(dbc.Ctx).
		Where("file_id IN ?", ids).
		Order("filename ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *releaseRepo) ListReleases(dbc dbctx.Context, fileID int64) ([]string, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []string
	if err := transaction.WithContext(dbc.Ctx).Model(&types.Release{}).
		Where("file_id = ?", fileID).
		Order("release_num ASC").
		Pluck("release_num", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
