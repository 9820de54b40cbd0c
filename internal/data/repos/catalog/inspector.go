package catalog

import (
	"gorm.io/gorm"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

type InspectorRepo interface {
	Create(dbc dbctx.Context, i *types.Inspector) error
	GetByID(dbc dbctx.Context, id int64) (*types.Inspector, error)
	GetByFilename(dbc dbctx.Context, filename string) (*types.Inspector, error)
	ListActive(dbc dbctx.Context) ([]*types.Inspector, error)
	ListByProduct(dbc dbctx.Context, productID int64) ([]*types.Inspector, error)
	// RetireNewest clears newest_version and active_code on the product's
	// inspectors other than keepID.
	RetireNewest(dbc dbctx.Context, productID, keepID int64) (int64, error)
}

type inspectorRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInspectorRepo(db *gorm.DB, baseLog *logger.Logger) InspectorRepo {
	return &inspectorRepo{db: db, log: baseLog.With("repo", "InspectorRepo")}
}

func (r *inspectorRepo) Create(dbc dbctx.Context, i *types.Inspector) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	i.DateWritten = timeutil.Day(i.DateWritten)
	return transaction.WithContext(dbc.Ctx).Create(i).Error
}

func (r *inspectorRepo) GetByID(dbc dbctx.Context, id int64) (*types.Inspector, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Inspector
	if err := transaction.WithContext(dbc.Ctx).Where("inspector_id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *inspectorRepo) GetByFilename(dbc dbctx.Context, filename string) (*types.Inspector, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Inspector
	if err := transaction.WithContext(dbc.Ctx).
		Where("filename = ?", filename).
		Order("newest_version DESC, inspector_id DESC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *inspectorRepo) ListActive(dbc dbctx.Context) ([]*types.Inspector, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Inspector
	if err := transaction.WithContext(dbc.Ctx).
		Where("active_code = ?", true).
		Order("inspector_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *inspectorRepo) ListByProduct(dbc dbctx.Context, productID int64) ([]*types.Inspector, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Inspector
	if err := transaction.WithContext(dbc.Ctx).
		Where("product = ?", productID).
		Order("inspector_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *inspectorRepo) RetireNewest(dbc dbctx.Context, productID, keepID int64) (int64, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	res := transaction.WithContext(dbc.Ctx).Model(&types.Inspector{}).
		Where("product = ? AND inspector_id <> ? AND newest_version = ?", productID, keepID, true).
		Updates(map[string]interface{}{
			"newest_version": false,
			"active_code":    false,
		})
	return res.RowsAffected, res.Error
}
