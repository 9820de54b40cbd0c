package catalog

import (
	"gorm.io/gorm"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

type MissionRepo interface {
	Create(dbc dbctx.Context, m *types.Mission) error
	GetByID(dbc dbctx.Context, id int64) (*types.Mission, error)
	GetByName(dbc dbctx.Context, name string) (*types.Mission, error)
	List(dbc dbctx.Context) ([]*types.Mission, error)
}

type missionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMissionRepo(db *gorm.DB, baseLog *logger.Logger) MissionRepo {
	return &missionRepo{db: db, log: baseLog.With("repo", "MissionRepo")}
}

func (r *missionRepo) Create(dbc dbctx.Context, m *types.Mission) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(m).Error
}

func (r *missionRepo) GetByID(dbc dbctx.Context, id int64) (*types.Mission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Mission
	if err := transaction.WithContext(dbc.Ctx).Where("mission_id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *missionRepo) GetByName(dbc dbctx.Context, name string) (*types.Mission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Mission
	if err := transaction.WithContext(dbc.Ctx).Where("mission_name = ?", name).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *missionRepo) List(dbc dbctx.Context) ([]*types.Mission, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Mission
	if err := transaction.WithContext(dbc.Ctx).Order("mission_id ASC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type SatelliteRepo interface {
	Create(dbc dbctx.Context, s *types.Satellite) error
	GetByID(dbc dbctx.Context, id int64) (*types.Satellite, error)
	// GetByName matches on name alone when missionID is zero.
	GetByName(dbc dbctx.Context, missionID int64, name string) (*types.Satellite, error)
	ListByMission(dbc dbctx.Context, missionID int64) ([]*types.Satellite, error)
}

type satelliteRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSatelliteRepo(db *gorm.DB, baseLog *logger.Logger) SatelliteRepo {
	return &satelliteRepo{db: db, log: baseLog.With("repo", "SatelliteRepo")}
}

func (r *satelliteRepo) Create(dbc dbctx.Context, s *types.Satellite) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(s).Error
}

func (r *satelliteRepo) GetByID(dbc dbctx.Context, id int64) (*types.Satellite, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Satellite
	if err := transaction.WithContext(dbc.Ctx).Where("satellite_id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *satelliteRepo) GetByName(dbc dbctx.Context, missionID int64, name string) (*types.Satellite, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Where("satellite_name = ?", name)
	if missionID > 0 {
		q = q.Where("mission_id = ?", missionID)
	}
	var out []*types.Satellite
	if err := q.Order("satellite_id ASC").Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *satelliteRepo) ListByMission(dbc dbctx.Context, missionID int64) ([]*types.Satellite, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Satellite
	if err := transaction.WithContext(dbc.Ctx).
		Where("mission_id = ?", missionID).
		Order("satellite_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

type InstrumentRepo interface {
	Create(dbc dbctx.Context, i *types.Instrument) error
	GetByID(dbc dbctx.Context, id int64) (*types.Instrument, error)
	// GetByName matches on name alone when satelliteID is zero.
	GetByName(dbc dbctx.Context, satelliteID int64, name string) (*types.Instrument, error)
	LinkProduct(dbc dbctx.Context, instrumentID, productID int64) error
	GetForProduct(dbc dbctx.Context, productID int64) ([]*types.Instrument, error)
}

type instrumentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewInstrumentRepo(db *gorm.DB, baseLog *logger.Logger) InstrumentRepo {
	return &instrumentRepo{db: db, log: baseLog.With("repo", "InstrumentRepo")}
}

func (r *instrumentRepo) Create(dbc dbctx.Context, i *types.Instrument) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(dbc.Ctx).Create(i).Error
}

func (r *instrumentRepo) GetByID(dbc dbctx.Context, id int64) (*types.Instrument, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Instrument
	if err := transaction.WithContext(dbc.Ctx).Where("instrument_id = ?", id).Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *instrumentRepo) GetByName(dbc dbctx.Context, satelliteID int64, name string) (*types.Instrument, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(dbc.Ctx).Where("instrument_name = ?", name)
	if satelliteID > 0 {
		q = q.Where("satellite_id = ?", satelliteID)
	}
	var out []*types.Instrument
	if err := q.Order("instrument_id ASC").Limit(1).Find(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

func (r *instrumentRepo) LinkProduct(dbc dbctx.Context, instrumentID, productID int64) error {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	link := &types.InstrumentProductLink{InstrumentID: instrumentID, ProductID: productID}
	var n int64
	if err := transaction.WithContext(dbc.Ctx).Model(&types.InstrumentProductLink{}).
		Where("instrument_id = ? AND product_id = ?", instrumentID, productID).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	return transaction.WithContext(dbc.Ctx).Create(link).Error
}

func (r *instrumentRepo) GetForProduct(dbc dbctx.Context, productID int64) ([]*types.Instrument, error) {
	transaction := dbc.Tx
	if transaction == nil {
		transaction = r.db
	}
	var out []*types.Instrument
	if err := transaction.WithContext(dbc.Ctx).
		Where("instrument_id IN (SELECT instrument_id FROM instrumentproductlink WHERE product_id = ?)", productID).
		Order("instrument_id ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
