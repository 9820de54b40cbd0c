package services

import (
	"fmt"
	"strings"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/pkg/filefmt"
)

// Traceback is every catalog row reachable from a starting row by
// following foreign keys. Fields that do not apply are nil.
type Traceback struct {
	Mission       *types.Mission
	Satellite     *types.Satellite
	Instrument    *types.Instrument
	Product       *types.Product
	Inspector     *types.Inspector
	Process       *types.Process
	Code          *types.Code
	InputProducts []*types.Product
	Links         []*types.ProductProcessLink
	File          *types.File

	dirs Dirs
}

// Fields returns the template keywords the traceback provides. Names may
// themselves hold {MISSION}, {SATELLITE} or {INSTRUMENT} placeholders and
// are expanded against the levels above them.
func (tb *Traceback) Fields() filefmt.Fields {
	f := filefmt.Fields{}
	if tb == nil {
		return f
	}
	if tb.Mission != nil {
		f["MISSION"] = tb.Mission.MissionName
		f["ROOTDIR"] = tb.dirs.Root
		f["CODEDIR"] = tb.dirs.Code
	}
	if tb.Satellite != nil {
		name := expandPartial(tb.Satellite.SatelliteName, f)
		f["SATELLITE"] = name
		f["SPACECRAFT"] = name
	}
	if tb.Instrument != nil {
		f["INSTRUMENT"] = expandPartial(tb.Instrument.InstrumentName, f)
	}
	if tb.Product != nil {
		f["PRODUCT"] = expandPartial(tb.Product.ProductName, f)
		f["LEVEL"] = tb.Product.Level
	}
	if tb.Code != nil {
		f["CODEVERSION"] = tb.Code.Version()
	}
	return f
}

// expandPartial substitutes the keywords of s that f can satisfy and
// leaves s unchanged otherwise.
func expandPartial(s string, f filefmt.Fields) string {
	if !strings.Contains(s, "{") {
		return s
	}
	out, err := filefmt.Expand(s, f)
	if err != nil {
		return s
	}
	return out
}

func (s *catalogService) GetTraceback(dbc dbctx.Context, table string, id int64) (*Traceback, error) {
	tb := &Traceback{}
	var err error
	switch strings.ToLower(strings.TrimSpace(table)) {
	case "file":
		if tb.File, err = s.GetFile(dbc, id); err != nil {
			return nil, err
		}
		if err := s.fillFromProduct(dbc, tb, tb.File.ProductID); err != nil {
			return nil, err
		}
		if tb.Code, err = s.GetFileCode(dbc, id); err != nil {
			return nil, err
		}
	case "product":
		if err := s.fillFromProduct(dbc, tb, id); err != nil {
			return nil, err
		}
	case "inspector":
		if tb.Inspector, err = s.GetInspector(dbc, id); err != nil {
			return nil, err
		}
		if err := s.fillFromProduct(dbc, tb, tb.Inspector.ProductID); err != nil {
			return nil, err
		}
	case "process":
		if err := s.fillFromProcess(dbc, tb, id); err != nil {
			return nil, err
		}
	case "code":
		if tb.Code, err = s.GetCode(dbc, id); err != nil {
			return nil, err
		}
		if err := s.fillFromProcess(dbc, tb, tb.Code.ProcessID); err != nil {
			return nil, err
		}
	case "instrument":
		if err := s.fillFromInstrument(dbc, tb, id); err != nil {
			return nil, err
		}
	case "satellite":
		if err := s.fillFromSatellite(dbc, tb, id); err != nil {
			return nil, err
		}
	case "mission":
		if tb.Mission, err = s.GetMission(dbc, id); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: traceback from %q", dperrors.ErrInvalidArgument, table)
	}
	if tb.Mission == nil {
		if tb.Mission, err = s.CurrentMission(dbc); err != nil {
			return nil, err
		}
	}
	tb.dirs = MissionDirs(tb.Mission)
	return tb, nil
}

func (s *catalogService) fillFromProduct(dbc dbctx.Context, tb *Traceback, productID int64) error {
	p, err := s.GetProduct(dbc, productID)
	if err != nil {
		return err
	}
	tb.Product = p
	if err := s.fillFromInstrument(dbc, tb, p.InstrumentID); err != nil {
		return err
	}
	if tb.Inspector == nil {
		insps, err := s.repos.Inspector.ListByProduct(dbc, productID)
		if err != nil {
			return err
		}
		for _, i := range insps {
			if i.ActiveCode && i.NewestVersion {
				tb.Inspector = i
				break
			}
		}
	}
	if tb.Process == nil {
		procs, err := s.repos.Process.GetByOutputProduct(dbc, productID)
		if err != nil {
			return err
		}
		if len(procs) > 0 {
			tb.Process = procs[0]
			if err := s.fillInputs(dbc, tb, procs[0].ProcessID); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *catalogService) fillFromProcess(dbc dbctx.Context, tb *Traceback, processID int64) error {
	p, err := s.GetProcess(dbc, processID)
	if err != nil {
		return err
	}
	tb.Process = p
	if err := s.fillInputs(dbc, tb, processID); err != nil {
		return err
	}
	if p.OutputProduct != nil {
		return s.fillFromProduct(dbc, tb, *p.OutputProduct)
	}
	// Triggered processes have no output; anchor on the first input.
	if len(tb.InputProducts) > 0 {
		return s.fillFromInstrument(dbc, tb, tb.InputProducts[0].InstrumentID)
	}
	return nil
}

func (s *catalogService) fillInputs(dbc dbctx.Context, tb *Traceback, processID int64) error {
	links, err := s.repos.Process.GetInputLinks(dbc, processID)
	if err != nil {
		return err
	}
	tb.Links = links
	tb.InputProducts = tb.InputProducts[:0]
	for _, l := range links {
		p, err := s.GetProduct(dbc, l.InputProductID)
		if err != nil {
			return err
		}
		tb.InputProducts = append(tb.InputProducts, p)
	}
	return nil
}

func (s *catalogService) fillFromInstrument(dbc dbctx.Context, tb *Traceback, instrumentID int64) error {
	inst, err := s.GetInstrument(dbc, instrumentID)
	if err != nil {
		return err
	}
	tb.Instrument = inst
	return s.fillFromSatellite(dbc, tb, inst.SatelliteID)
}

func (s *catalogService) fillFromSatellite(dbc dbctx.Context, tb *Traceback, satelliteID int64) error {
	sat, err := s.GetSatellite(dbc, satelliteID)
	if err != nil {
		return err
	}
	tb.Satellite = sat
	tb.Mission, err = s.GetMission(dbc, sat.MissionID)
	return err
}
