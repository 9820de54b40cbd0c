package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	catalogdb "github.com/yungbote/dbprocessing/internal/data/db"
	"github.com/yungbote/dbprocessing/internal/data/repos"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
	"github.com/yungbote/dbprocessing/internal/platform/envutil"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

const defaultCacheSize = 1024

// CatalogService is the query and mutation facade over the provenance
// catalog. Every method accepts a dbctx.Context; multi-row mutations run in
// their own transaction unless the caller already supplied one.
type CatalogService interface {
	InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error
	DB() *gorm.DB

	// Lookups. key is an integer primary key or a name.
	GetEntry(dbc dbctx.Context, table string, key any) (any, error)
	GetMission(dbc dbctx.Context, key any) (*types.Mission, error)
	GetSatellite(dbc dbctx.Context, key any) (*types.Satellite, error)
	GetInstrument(dbc dbctx.Context, key any) (*types.Instrument, error)
	GetProduct(dbc dbctx.Context, key any) (*types.Product, error)
	GetProcess(dbc dbctx.Context, key any) (*types.Process, error)
	GetCode(dbc dbctx.Context, key any) (*types.Code, error)
	GetInspector(dbc dbctx.Context, key any) (*types.Inspector, error)
	GetFile(dbc dbctx.Context, key any) (*types.File, error)
	ListProducts(dbc dbctx.Context) ([]*types.Product, error)
	ListProcesses(dbc dbctx.Context) ([]*types.Process, error)
	ListProductProcessLinks(dbc dbctx.Context) ([]*types.ProductProcessLink, error)
	ListActiveInspectors(dbc dbctx.Context) ([]*types.Inspector, error)

	// Mission layout.
	CurrentMission(dbc dbctx.Context) (*types.Mission, error)
	Dirs(dbc dbctx.Context) (Dirs, error)
	GetCodePath(dbc dbctx.Context, code *types.Code) (string, error)
	GetInspectorPath(dbc dbctx.Context, insp *types.Inspector) (string, error)

	// Files.
	GetFiles(dbc dbctx.Context, q repos.FileQuery) ([]*types.File, error)
	GetFilesByProductDate(dbc dbctx.Context, productID int64, start, end time.Time, newest bool) ([]*types.File, error)
	GetFilesByProductTime(dbc dbctx.Context, productID int64, start, end time.Time, newest bool) ([]*types.File, error)
	GetFileParents(dbc dbctx.Context, fileID int64) ([]*types.File, error)
	GetFileChildren(dbc dbctx.Context, fileID int64) ([]*types.File, error)
	GetFileVersion(dbc dbctx.Context, fileID int64) (version.Version, error)
	GetFileDates(dbc dbctx.Context, fileID int64) ([]time.Time, error)
	GetFileFullPath(dbc dbctx.Context, fileID int64) (string, error)
	GetFileCode(dbc dbctx.Context, fileID int64) (*types.Code, error)
	FileIsNewest(dbc dbctx.Context, fileID int64) (bool, error)
	UpdateNewest(dbc dbctx.Context, productID int64, day time.Time) error
	AddFile(dbc dbctx.Context, f *types.File) error
	AddFileParents(dbc dbctx.Context, resultingID int64, sourceIDs []int64) error
	AddFileCodeLink(dbc dbctx.Context, resultingID, codeID int64) error

	// Process graph.
	GetTraceback(dbc dbctx.Context, table string, id int64) (*Traceback, error)
	GetProcessFromInputProduct(dbc dbctx.Context, productID int64) ([]*types.Process, error)
	GetProcessFromOutputProduct(dbc dbctx.Context, productID int64) ([]*types.Process, error)
	GetChildrenProcesses(dbc dbctx.Context, fileID int64) ([]*types.Process, error)
	GetInputProductLinks(dbc dbctx.Context, processID int64) ([]*types.ProductProcessLink, error)
	GetCodeFromProcess(dbc dbctx.Context, processID int64, day time.Time) (*types.Code, error)

	// Catalog construction.
	AddMission(dbc dbctx.Context, m *types.Mission) error
	AddSatellite(dbc dbctx.Context, s *types.Satellite) error
	AddInstrument(dbc dbctx.Context, i *types.Instrument) error
	AddProduct(dbc dbctx.Context, p *types.Product) error
	AddProcess(dbc dbctx.Context, p *types.Process) error
	AddProductProcessLink(dbc dbctx.Context, link *types.ProductProcessLink) error
	AddCode(dbc dbctx.Context, c *types.Code) error
	AddInspector(dbc dbctx.Context, i *types.Inspector) error

	// Processing lock and run records.
	StartLogging(dbc dbctx.Context, run RunInfo) (*types.Logging, error)
	StopLogging(dbc dbctx.Context, loggingID int64, comment string, summary any) error
	ResetProcessingFlag(dbc dbctx.Context, comment string) (int64, error)
	GetActiveLocks(dbc dbctx.Context) ([]*types.Logging, error)
	AddLoggingFile(dbc dbctx.Context, loggingID, fileID, codeID int64) error

	// Queue.
	Queue() repos.ProcessQueueRepo

	// Maintenance.
	CheckFilesOnDisk(dbc dbctx.Context, productID int64) ([]int64, error)
	PurgeFile(dbc dbctx.Context, fileID int64, removeFromDisk bool) error
	RenameFile(dbc dbctx.Context, fileID int64, newName string, moveOnDisk bool) error
	TagRelease(dbc dbctx.Context, fileIDs []int64, release string) (int64, error)
	GetRelease(dbc dbctx.Context, release string) ([]*types.File, error)
}

// Dirs is the mission layout with every path expanded and absolute.
type Dirs struct {
	Root      string
	Incoming  string
	Code      string
	Inspector string
	Error     string
}

type catalogService struct {
	db    *gorm.DB
	log   *logger.Logger
	repos *repos.Set
	cache *lru.Cache[string, any]
}

func NewCatalogService(db *gorm.DB, baseLog *logger.Logger, set *repos.Set) (CatalogService, error) {
	cache, err := lru.New[string, any](defaultCacheSize)
	if err != nil {
		return nil, fmt.Errorf("catalog cache: %w", err)
	}
	if set == nil {
		set = repos.NewSet(db, baseLog, 0)
	}
	return &catalogService{
		db:    db,
		log:   baseLog.With("service", "CatalogService"),
		repos: set,
		cache: cache,
	}, nil
}

func (s *catalogService) DB() *gorm.DB { return s.db }

func (s *catalogService) Queue() repos.ProcessQueueRepo { return s.repos.Queue }

func (s *catalogService) InTx(ctx context.Context, fn func(dbc dbctx.Context) error) error {
	if fn == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(dbctx.Context{Ctx: ctx}.WithTx(tx))
	})
}

// inTx runs fn inside dbc's transaction, or a fresh one when there is none.
func (s *catalogService) inTx(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return s.InTx(dbc.Ctx, fn)
}

// cached memoizes lookups of rows that never change after creation. Rows
// read inside a transaction are not stored since it may still roll back.
func cached[T any](s *catalogService, dbc dbctx.Context, key string, load func() (*T, error)) (*T, error) {
	if v, ok := s.cache.Get(key); ok {
		if out, ok := v.(*T); ok {
			return out, nil
		}
	}
	out, err := load()
	if err != nil || out == nil || dbc.Tx != nil {
		return out, err
	}
	s.cache.Add(key, out)
	return out, nil
}

// parseKey splits a lookup key into an id or a name.
func parseKey(key any) (int64, string, error) {
	switch k := key.(type) {
	case int:
		return int64(k), "", nil
	case int32:
		return int64(k), "", nil
	case int64:
		return k, "", nil
	case uint:
		return int64(k), "", nil
	case string:
		k = strings.TrimSpace(k)
		if k == "" {
			return 0, "", fmt.Errorf("%w: empty key", dperrors.ErrInvalidArgument)
		}
		if n, err := strconv.ParseInt(k, 10, 64); err == nil {
			return n, "", nil
		}
		return 0, k, nil
	default:
		return 0, "", fmt.Errorf("%w: key type %T", dperrors.ErrInvalidArgument, key)
	}
}

func missing(table string, key any) error {
	return fmt.Errorf("%s %v: %w", table, key, dperrors.ErrCatalogMissing)
}

func (s *catalogService) GetEntry(dbc dbctx.Context, table string, key any) (any, error) {
	switch strings.ToLower(strings.TrimSpace(table)) {
	case "mission":
		return s.GetMission(dbc, key)
	case "satellite":
		return s.GetSatellite(dbc, key)
	case "instrument":
		return s.GetInstrument(dbc, key)
	case "product":
		return s.GetProduct(dbc, key)
	case "process":
		return s.GetProcess(dbc, key)
	case "code":
		return s.GetCode(dbc, key)
	case "inspector":
		return s.GetInspector(dbc, key)
	case "file":
		return s.GetFile(dbc, key)
	default:
		return nil, fmt.Errorf("%w: unknown table %q", dperrors.ErrInvalidArgument, table)
	}
}

func (s *catalogService) GetMission(dbc dbctx.Context, key any) (*types.Mission, error) {
	id, name, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	if name != "" {
		m, err := s.repos.Mission.GetByName(dbc, name)
		if err != nil {
			return nil, catalogdb.MapError("get mission", err)
		}
		if m == nil {
			return nil, missing("mission", key)
		}
		return m, nil
	}
	m, err := cached(s, dbc, fmt.Sprintf("mission:%d", id), func() (*types.Mission, error) {
		return s.repos.Mission.GetByID(dbc, id)
	})
	if err != nil {
		return nil, catalogdb.MapError("get mission", err)
	}
	if m == nil {
		return nil, missing("mission", key)
	}
	return m, nil
}

func (s *catalogService) GetSatellite(dbc dbctx.Context, key any) (*types.Satellite, error) {
	id, name, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	var sat *types.Satellite
	if name != "" {
		sat, err = s.repos.Satellite.GetByName(dbc, 0, name)
	} else {
		sat, err = cached(s, dbc, fmt.Sprintf("satellite:%d", id), func() (*types.Satellite, error) {
			return s.repos.Satellite.GetByID(dbc, id)
		})
	}
	if err != nil {
		return nil, catalogdb.MapError("get satellite", err)
	}
	if sat == nil {
		return nil, missing("satellite", key)
	}
	return sat, nil
}

func (s *catalogService) GetInstrument(dbc dbctx.Context, key any) (*types.Instrument, error) {
	id, name, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	var inst *types.Instrument
	if name != "" {
		inst, err = s.repos.Instrument.GetByName(dbc, 0, name)
	} else {
		inst, err = cached(s, dbc, fmt.Sprintf("instrument:%d", id), func() (*types.Instrument, error) {
			return s.repos.Instrument.GetByID(dbc, id)
		})
	}
	if err != nil {
		return nil, catalogdb.MapError("get instrument", err)
	}
	if inst == nil {
		return nil, missing("instrument", key)
	}
	return inst, nil
}

func (s *catalogService) GetProduct(dbc dbctx.Context, key any) (*types.Product, error) {
	id, name, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	var p *types.Product
	if name != "" {
		p, err = s.repos.Product.GetByName(dbc, name)
	} else {
		p, err = cached(s, dbc, fmt.Sprintf("product:%d", id), func() (*types.Product, error) {
			return s.repos.Product.GetByID(dbc, id)
		})
	}
	if err != nil {
		return nil, catalogdb.MapError("get product", err)
	}
	if p == nil {
		return nil, missing("product", key)
	}
	return p, nil
}

func (s *catalogService) GetProcess(dbc dbctx.Context, key any) (*types.Process, error) {
	id, name, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	var p *types.Process
	if name != "" {
		p, err = s.repos.Process.GetByName(dbc, name)
	} else {
		p, err = cached(s, dbc, fmt.Sprintf("process:%d", id), func() (*types.Process, error) {
			return s.repos.Process.GetByID(dbc, id)
		})
	}
	if err != nil {
		return nil, catalogdb.MapError("get process", err)
	}
	if p == nil {
		return nil, missing("process", key)
	}
	return p, nil
}

// GetCode is never cached: roll-forward flips its flags.
func (s *catalogService) GetCode(dbc dbctx.Context, key any) (*types.Code, error) {
	id, name, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	var c *types.Code
	if name != "" {
		c, err = s.repos.Code.GetByFilename(dbc, name)
	} else {
		c, err = s.repos.Code.GetByID(dbc, id)
	}
	if err != nil {
		return nil, catalogdb.MapError("get code", err)
	}
	if c == nil {
		return nil, missing("code", key)
	}
	return c, nil
}

func (s *catalogService) GetInspector(dbc dbctx.Context, key any) (*types.Inspector, error) {
	id, name, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	var i *types.Inspector
	if name != "" {
		i, err = s.repos.Inspector.GetByFilename(dbc, name)
	} else {
		i, err = s.repos.Inspector.GetByID(dbc, id)
	}
	if err != nil {
		return nil, catalogdb.MapError("get inspector", err)
	}
	if i == nil {
		return nil, missing("inspector", key)
	}
	return i, nil
}

func (s *catalogService) GetFile(dbc dbctx.Context, key any) (*types.File, error) {
	id, name, err := parseKey(key)
	if err != nil {
		return nil, err
	}
	var f *types.File
	if name != "" {
		f, err = s.repos.File.GetByFilename(dbc, name)
	} else {
		f, err = s.repos.File.GetByID(dbc, id)
	}
	if err != nil {
		return nil, catalogdb.MapError("get file", err)
	}
	if f == nil {
		return nil, missing("file", key)
	}
	return f, nil
}

func (s *catalogService) ListProducts(dbc dbctx.Context) ([]*types.Product, error) {
	out, err := s.repos.Product.List(dbc)
	return out, catalogdb.MapError("list products", err)
}

func (s *catalogService) ListProcesses(dbc dbctx.Context) ([]*types.Process, error) {
	out, err := s.repos.Process.List(dbc)
	return out, catalogdb.MapError("list processes", err)
}

func (s *catalogService) ListProductProcessLinks(dbc dbctx.Context) ([]*types.ProductProcessLink, error) {
	out, err := s.repos.Process.ListInputLinks(dbc)
	return out, catalogdb.MapError("list product process links", err)
}

func (s *catalogService) ListActiveInspectors(dbc dbctx.Context) ([]*types.Inspector, error) {
	out, err := s.repos.Inspector.ListActive(dbc)
	return out, catalogdb.MapError("list inspectors", err)
}

// CurrentMission returns the catalog's mission. A catalog normally holds
// exactly one; the lowest id wins otherwise.
func (s *catalogService) CurrentMission(dbc dbctx.Context) (*types.Mission, error) {
	if v, ok := s.cache.Get("mission:current"); ok {
		return v.(*types.Mission), nil
	}
	ms, err := s.repos.Mission.List(dbc)
	if err != nil {
		return nil, catalogdb.MapError("list missions", err)
	}
	if len(ms) == 0 {
		return nil, missing("mission", "(any)")
	}
	if len(ms) > 1 {
		s.log.Warn("Catalog holds more than one mission, using the first", "missions", len(ms))
	}
	s.cache.Add("mission:current", ms[0])
	return ms[0], nil
}

func (s *catalogService) Dirs(dbc dbctx.Context) (Dirs, error) {
	m, err := s.CurrentMission(dbc)
	if err != nil {
		return Dirs{}, err
	}
	return MissionDirs(m), nil
}

// MissionDirs expands m's directories. Unset optional directories default
// to codes, inspectors and errors under the root.
func MissionDirs(m *types.Mission) Dirs {
	root := envutil.ExpandPath(m.RootDir)
	opt := func(p *string, def string) string {
		if p == nil || strings.TrimSpace(*p) == "" {
			return envutil.ResolvePath(root, def)
		}
		return envutil.ResolvePath(root, *p)
	}
	return Dirs{
		Root:      root,
		Incoming:  envutil.ResolvePath(root, m.IncomingDir),
		Code:      opt(m.CodeDir, "codes"),
		Inspector: opt(m.InspectorDir, "inspectors"),
		Error:     opt(m.ErrorDir, "errors"),
	}
}

// RunInfo identifies the process taking the processing lock.
type RunInfo struct {
	PID      int
	User     string
	Hostname string
	RunToken string
	Comment  string
}

func jsonOf(v any) datatypes.JSON {
	if v == nil {
		return nil
	}
	if j, ok := v.(datatypes.JSON); ok {
		return j
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return datatypes.JSON(b)
}
