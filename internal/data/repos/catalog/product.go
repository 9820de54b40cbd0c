package catalog

import (
	"gorm.io/gorm"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

type ProductRepo interface {
	Create(dbc dbctx.Context, p *types.Product) error
	GetByID(dbc dbctx.Context, id int64) (*types.Product, error)
	GetByName(dbc dbctx.Context, name string) (*types.Product, error)
	List(dbc dbctx.Context) ([]*types.Product, error)
	ListByLevel(dbc dbctx.Context, level float64) ([]*types.Product, error)
}

type productRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProductRepo(db *gorm.DB, baseLog *logger.Logger) ProductRepo {
	return &productRepo{db: db, log: baseLog.With("repo", "ProductRepo")}
}

func (r *productRepo) Create(dbc dbctx.Context, p *types.Product) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(p).Error
}

func (r *productRepo) GetByID(dbc dbctx.Context, id int64) (*types.Product, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Product
	if err := transaction.WithContext(dbc.Ctx).Where("product_id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// GetByName returns the lowest-id product with that name.
func (r *productRepo) GetByName(dbc dbctx.Context, name string) (*types.Product, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Product
	if err := transaction.WithContext(dbc.Ctx).
		Where("product_name = ?", name).
		Order("product_id ASC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *productRepo) List(dbc dbctx.Context) ([]*types.Product, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Product
	if err := transaction.WithContext(dbc.Ctx).Order("level ASC, product_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *productRepo) ListByLevel(dbc dbctx.Context, level float64) ([]*types.Product, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Product
	if err := transaction.WithContext(dbc.Ctx).
		Where("level = ?", level).
		Order("product_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
