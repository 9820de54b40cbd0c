package catalog

import (
	"gorm.io/gorm"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

type ProcessRepo interface {
	Create(dbc dbctx.Context, p *types.Process) error
	GetByID(dbc dbctx.Context, id int64) (*types.Process, error)
	GetByName(dbc dbctx.Context, name string) (*types.Process, error)
	List(dbc dbctx.Context) ([]*types.Process, error)
	GetByOutputProduct(dbc dbctx.Context, productID int64) ([]*types.Process, error)
	GetByInputProduct(dbc dbctx.Context, productID int64) ([]*types.Process, error)

	AddInputLink(dbc dbctx.Context, link *types.ProductProcessLink) error
	GetInputLinks(dbc dbctx.Context, processID int64) ([]*types.ProductProcessLink, error)
	GetInputLink(dbc dbctx.Context, processID, productID int64) (*types.ProductProcessLink, error)
	ListInputLinks(dbc dbctx.Context) ([]*types.ProductProcessLink, error)
}

type processRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewProcessRepo(db *gorm.DB, baseLog *logger.Logger) ProcessRepo {
	return &processRepo{db: db, log: baseLog.With("repo", "ProcessRepo")}
}

func (r *processRepo) Create(dbc dbctx.Context, p *types.Process) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(p).Error
}

func (r *processRepo) GetByID(dbc dbctx.Context, id int64) (*types.Process, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Process
	if err := transaction.WithContext(dbc.Ctx).Where("process_id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *processRepo) GetByName(dbc dbctx.Context, name string) (*types.Process, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Process
	if err := transaction.WithContext(dbc.Ctx).
		Where("process_name = ?", name).
		Order("process_id ASC").
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *processRepo) List(dbc dbctx.Context) ([]*types.Process, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Process
	if err := transaction.WithContext(dbc.Ctx).Order("process_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *processRepo) GetByOutputProduct(dbc dbctx.Context, productID int64) ([]*types.Process, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Process
	if err := transaction.WithContext(dbc.Ctx).
		Where("output_product = ?", productID).
		Order("process_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *processRepo) GetByInputProduct(dbc dbctx.Context, productID int64) ([]*types.Process, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Process
	if err := transaction.WithContext(dbc.Ctx).
		Where("process_id IN (SELECT process_id FROM productprocesslink WHERE input_product_id = ?)", productID).
		Order("process_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *processRepo) AddInputLink(dbc dbctx.Context, link *types.ProductProcessLink) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(link).Error
}

func (r *processRepo) GetInputLinks(dbc dbctx.Context, processID int64) ([]*types.ProductProcessLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ProductProcessLink
	if err := transaction.WithContext(dbc.Ctx).
		Where("process_id = ?", processID).
		Order("input_product_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *processRepo) GetInputLink(dbc dbctx.Context, processID, productID int64) (*types.ProductProcessLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ProductProcessLink
	if err := transaction.WithContext(dbc.Ctx).
		Where("process_id = ? AND input_product_id = ?", processID, productID).
		Limit(1).
		Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *processRepo) ListInputLinks(dbc dbctx.Context) ([]*types.ProductProcessLink, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.ProductProcessLink
	if err := transaction.WithContext(dbc.Ctx).
		Order("process_id ASC, input_product_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
