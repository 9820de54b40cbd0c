package services

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	catalogdb "github.com/yungbote/dbprocessing/internal/data/db"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
	"github.com/yungbote/dbprocessing/internal/platform/envutil"
)

func (s *catalogService) GetProcessFromInputProduct(dbc dbctx.Context, productID int64) ([]*types.Process, error) {
	out, err := s.repos.Process.GetByInputProduct(dbc, productID)
	return out, catalogdb.MapError("process from input product", err)
}

func (s *catalogService) GetProcessFromOutputProduct(dbc dbctx.Context, productID int64) ([]*types.Process, error) {
	out, err := s.repos.Process.GetByOutputProduct(dbc, productID)
	return out, catalogdb.MapError("process from output product", err)
}

// GetChildrenProcesses lists the processes that consume the file's product.
func (s *catalogService) GetChildrenProcesses(dbc dbctx.Context, fileID int64) ([]*types.Process, error) {
	f, err := s.GetFile(dbc, fileID)
	if err != nil {
		return nil, err
	}
	return s.GetProcessFromInputProduct(dbc, f.ProductID)
}

func (s *catalogService) GetInputProductLinks(dbc dbctx.Context, processID int64) ([]*types.ProductProcessLink, error) {
	out, err := s.repos.Process.GetInputLinks(dbc, processID)
	return out, catalogdb.MapError("input product links", err)
}

// GetCodeFromProcess returns the single active newest code whose validity
// window covers day, nil when there is none.
func (s *catalogService) GetCodeFromProcess(dbc dbctx.Context, processID int64, day time.Time) (*types.Code, error) {
	codes, err := s.repos.Code.FindForDate(dbc, processID, timeutil.Day(day))
	if err != nil {
		return nil, catalogdb.MapError("code from process", err)
	}
	switch len(codes) {
	case 0:
		return nil, nil
	case 1:
		return codes[0], nil
	default:
		ids := make([]int64, 0, len(codes))
		for _, c := range codes {
			ids = append(ids, c.CodeID)
		}
		return nil, fmt.Errorf("process %d on %s: %w: %d active newest codes %v",
			processID, day.Format("2006-01-02"), dperrors.ErrCatalogInconsistent, len(codes), ids)
	}
}

func (s *catalogService) GetCodePath(dbc dbctx.Context, code *types.Code) (string, error) {
	if code == nil {
		return "", fmt.Errorf("%w: nil code", dperrors.ErrInvalidArgument)
	}
	tb, err := s.GetTraceback(dbc, "code", code.CodeID)
	if err != nil {
		return "", err
	}
	rel := expandPartial(code.RelativePath, tb.Fields())
	return filepath.Join(envutil.ResolvePath(tb.dirs.Code, rel), code.Filename), nil
}

func (s *catalogService) GetInspectorPath(dbc dbctx.Context, insp *types.Inspector) (string, error) {
	if insp == nil {
		return "", fmt.Errorf("%w: nil inspector", dperrors.ErrInvalidArgument)
	}
	tb, err := s.GetTraceback(dbc, "inspector", insp.InspectorID)
	if err != nil {
		return "", err
	}
	rel := expandPartial(insp.RelativePath, tb.Fields())
	return filepath.Join(envutil.ResolvePath(tb.dirs.Inspector, rel), insp.Filename), nil
}

func (s *catalogService) AddMission(dbc dbctx.Context, m *types.Mission) error {
	if m == nil || strings.TrimSpace(m.MissionName) == "" {
		return fmt.Errorf("%w: mission name required", dperrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(m.RootDir) == "" || strings.TrimSpace(m.IncomingDir) == "" {
		return fmt.Errorf("%w: mission %s needs rootdir and incoming_dir", dperrors.ErrInvalidArgument, m.MissionName)
	}
	if err := s.repos.Mission.Create(dbc, m); err != nil {
		return catalogdb.MapError("add mission "+m.MissionName, err)
	}
	s.cache.Remove("mission:current")
	return nil
}

func (s *catalogService) AddSatellite(dbc dbctx.Context, sat *types.Satellite) error {
	if sat == nil || strings.TrimSpace(sat.SatelliteName) == "" {
		return fmt.Errorf("%w: satellite name required", dperrors.ErrInvalidArgument)
	}
	return catalogdb.MapError("add satellite "+sat.SatelliteName, s.repos.Satellite.Create(dbc, sat))
}

func (s *catalogService) AddInstrument(dbc dbctx.Context, i *types.Instrument) error {
	if i == nil || strings.TrimSpace(i.InstrumentName) == "" {
		return fmt.Errorf("%w: instrument name required", dperrors.ErrInvalidArgument)
	}
	return catalogdb.MapError("add instrument "+i.InstrumentName, s.repos.Instrument.Create(dbc, i))
}

// AddProduct creates the product and links it to its instrument.
func (s *catalogService) AddProduct(dbc dbctx.Context, p *types.Product) error {
	if p == nil || strings.TrimSpace(p.ProductName) == "" {
		return fmt.Errorf("%w: product name required", dperrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(p.Format) == "" {
		return fmt.Errorf("%w: product %s has no format", dperrors.ErrInvalidArgument, p.ProductName)
	}
	return s.inTx(dbc, func(dbc dbctx.Context) error {
		if err := s.repos.Product.Create(dbc, p); err != nil {
			return catalogdb.MapError("add product "+p.ProductName, err)
		}
		return catalogdb.MapError("link product "+p.ProductName, s.repos.Instrument.LinkProduct(dbc, p.InstrumentID, p.ProductID))
	})
}

func (s *catalogService) AddProcess(dbc dbctx.Context, p *types.Process) error {
	if p == nil || strings.TrimSpace(p.ProcessName) == "" {
		return fmt.Errorf("%w: process name required", dperrors.ErrInvalidArgument)
	}
	if !p.OutputTimebase.Valid() {
		return fmt.Errorf("%w: process %s timebase %q", dperrors.ErrInvalidArgument, p.ProcessName, p.OutputTimebase)
	}
	if p.OutputTimebase != types.TimebaseRun && p.OutputProduct == nil {
		return fmt.Errorf("%w: process %s needs an output product", dperrors.ErrInvalidArgument, p.ProcessName)
	}
	return catalogdb.MapError("add process "+p.ProcessName, s.repos.Process.Create(dbc, p))
}

func (s *catalogService) AddProductProcessLink(dbc dbctx.Context, link *types.ProductProcessLink) error {
	if link == nil {
		return fmt.Errorf("%w: nil link", dperrors.ErrInvalidArgument)
	}
	if link.Yesterday < 0 || link.Tomorrow < 0 {
		return fmt.Errorf("%w: negative yesterday/tomorrow", dperrors.ErrInvalidArgument)
	}
	return catalogdb.MapError("add product process link", s.repos.Process.AddInputLink(dbc, link))
}

// AddCode inserts a code. A newest code retires every other newest code of
// the process. A second code with the same version triple is rejected.
func (s *catalogService) AddCode(dbc dbctx.Context, c *types.Code) error {
	if c == nil || strings.TrimSpace(c.Filename) == "" {
		return fmt.Errorf("%w: code filename required", dperrors.ErrInvalidArgument)
	}
	if c.InterfaceVersion < 1 || c.OutputInterfaceVersion < 1 {
		return fmt.Errorf("%w: code %s interface versions must be >= 1", dperrors.ErrInvalidArgument, c.Filename)
	}
	c.CodeStartDate = timeutil.Day(c.CodeStartDate)
	c.CodeStopDate = timeutil.Day(c.CodeStopDate)
	if c.CodeStopDate.Before(c.CodeStartDate) {
		return fmt.Errorf("%w: code %s stops before it starts", dperrors.ErrInvalidArgument, c.Filename)
	}
	if c.DateWritten.IsZero() {
		c.DateWritten = time.Now().UTC()
	}
	if c.NewestVersion {
		c.ActiveCode = true
	}
	if v := c.Version(); !v.Valid() {
		s.log.Warn("Code version component out of range", "filename", c.Filename, "version", v.String())
	}
	return s.inTx(dbc, func(dbc dbctx.Context) error {
		dup, err := s.repos.Code.HasVersion(dbc, c.ProcessID, c.Version())
		if err != nil {
			return catalogdb.MapError("add code", err)
		}
		if dup {
			return fmt.Errorf("code %s: %w: process %d already has version %s",
				c.Filename, dperrors.ErrCatalogInconsistent, c.ProcessID, c.Version())
		}
		if err := s.repos.Code.Create(dbc, c); err != nil {
			return catalogdb.MapError("add code "+c.Filename, err)
		}
		if !c.NewestVersion {
			return nil
		}
		retired, err := s.repos.Code.RetireNewest(dbc, c)
		if err != nil {
			return catalogdb.MapError("retire codes", err)
		}
		if retired > 0 {
			s.log.Info("Rolled code forward", "process_id", c.ProcessID, "code_id", c.CodeID, "version", c.Version().String(), "retired", retired)
		}
		return nil
	})
}

func (s *catalogService) AddInspector(dbc dbctx.Context, i *types.Inspector) error {
	if i == nil || strings.TrimSpace(i.Filename) == "" {
		return fmt.Errorf("%w: inspector filename required", dperrors.ErrInvalidArgument)
	}
	if i.InterfaceVersion < 1 {
		return fmt.Errorf("%w: inspector %s interface version must be >= 1", dperrors.ErrInvalidArgument, i.Filename)
	}
	if i.OutputInterfaceVersion < 1 {
		i.OutputInterfaceVersion = 1
	}
	if i.DateWritten.IsZero() {
		i.DateWritten = time.Now().UTC()
	}
	if i.NewestVersion {
		i.ActiveCode = true
	}
	return s.inTx(dbc, func(dbc dbctx.Context) error {
		if err := s.repos.Inspector.Create(dbc, i); err != nil {
			return catalogdb.MapError("add inspector "+i.Filename, err)
		}
		if !i.NewestVersion {
			return nil
		}
		_, err := s.repos.Inspector.RetireNewest(dbc, i.ProductID, i.InspectorID)
		return catalogdb.MapError("retire inspectors", err)
	})
}
