package files

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

// FileLinkRepo records provenance: which files and which code made a file.
type FileLinkRepo interface {
	AddParents(dbc dbctx.Context, resultingID int64, sourceIDs []int64) error
	AddCode(dbc dbctx.Context, resultingID, codeID int64) error
	GetParents(dbc dbctx.Context, fileID int64) ([]*types.File, error)
	GetChildren(dbc dbctx.Context, fileID int64) ([]*types.File, error)
	// GetCodeIDs lists codes linked to fileID, lowest id first.
	GetCodeIDs(dbc dbctx.Context, fileID int64) ([]int64, error)
}

type fileLinkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFileLinkRepo(db *gorm.DB, baseLog *logger.Logger) FileLinkRepo {
	return &fileLinkRepo{db: db, log: baseLog.With("repo", "FileLinkRepo")}
}

func (r *fileLinkRepo) AddParents(dbc dbctx.Context, resultingID int64, sourceIDs []int64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	if len(sourceIDs) == 0 {
		return nil
	}
	rows := make([]types.FileFileLink, 0, len(sourceIDs))
	seen := map[int64]bool{}
	for _, id := range sourceIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		rows = append(rows, types.FileFileLink{SourceFile: id, ResultingFile: resultingID})
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

func (r *fileLinkRepo) AddCode(dbc dbctx.Context, resultingID, codeID int64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&types.FileCodeLink{ResultingFile: resultingID, SourceCode: codeID}).Error
}

func (r *fileLinkRepo) GetParents(dbc dbctx.Context, fileID int64) ([]*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.File
	if err := transaction.WithContext(dbc.Ctx).
		Where("file_id IN (SELECT source_file FROM filefilelink WHERE resulting_file = ?)", fileID).
		Order("file_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileLinkRepo) GetChildren(dbc dbctx.Context, fileID int64) ([]*types.File, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.File
	if err := transaction.WithContext(dbc.Ctx).
		Where("file_id IN (SELECT resulting_file FROM filefilelink WHERE source_file = ?)", fileID).
		Order("file_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *fileLinkRepo) GetCodeIDs(dbc dbctx.Context, fileID int64) ([]int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.FileCodeLink{}).
		Where("resulting_file = ?", fileID).
		Order("source_code ASC").
		Pluck("source_code", &out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
