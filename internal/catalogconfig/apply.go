package catalogconfig

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/pkg/pointers"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
	"github.com/yungbote/dbprocessing/internal/services"
)

var (
	defaultCodeStart = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)
	defaultCodeStop  = time.Date(2100, 12, 31, 0, 0, 0, 0, time.UTC)
)

// Result counts rows created and rows that were already present.
type Result struct {
	Created  map[string]int `json:"created"`
	Existing map[string]int `json:"existing"`
}

func (r *Result) add(table string, created bool) {
	if created {
		r.Created[table]++
	} else {
		r.Existing[table]++
	}
}

// Apply creates every row the config describes that the catalog does not
// already hold, in one transaction. Rows are matched by name; existing rows
// are never updated.
func Apply(ctx context.Context, cat services.CatalogService, cfg *Config, baseLog *logger.Logger) (Result, error) {
	res := Result{Created: map[string]int{}, Existing: map[string]int{}}
	if err := cfg.Validate(); err != nil {
		return res, err
	}
	log := baseLog.With("component", "CatalogConfig")
	err := cat.InTx(ctx, func(dbc dbctx.Context) error {
		a := &applier{cat: cat, dbc: dbc, log: log, res: &res, products: map[string]int64{}}
		mission, err := a.mission(cfg.Mission)
		if err != nil {
			return err
		}
		for _, sat := range cfg.Satellites {
			if err := a.satellite(mission.MissionID, sat); err != nil {
				return err
			}
		}
		for _, proc := range cfg.Processes {
			if err := a.process(proc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return Result{Created: map[string]int{}, Existing: map[string]int{}}, err
	}
	log.Info("Catalog config applied", "created", res.Created, "existing", res.Existing)
	return res, nil
}

type applier struct {
	cat      services.CatalogService
	dbc      dbctx.Context
	log      *logger.Logger
	res      *Result
	products map[string]int64
}

func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return pointers.String(s)
}

func isMissing(err error) bool { return errors.Is(err, dperrors.ErrCatalogMissing) }

func (a *applier) mission(m Mission) (*types.Mission, error) {
	existing, err := a.cat.GetMission(a.dbc, m.Name)
	if err == nil {
		a.res.add("mission", false)
		return existing, nil
	}
	if !isMissing(err) {
		return nil, err
	}
	row := &types.Mission{
		MissionName:  m.Name,
		RootDir:      m.RootDir,
		IncomingDir:  m.IncomingDir,
		CodeDir:      optional(m.CodeDir),
		InspectorDir: optional(m.InspectorDir),
		ErrorDir:     optional(m.ErrorDir),
	}
	if err := a.cat.AddMission(a.dbc, row); err != nil {
		return nil, err
	}
	a.res.add("mission", true)
	return row, nil
}

func (a *applier) satellite(missionID int64, s Satellite) error {
	sat, err := a.cat.GetSatellite(a.dbc, s.Name)
	switch {
	case err == nil:
		a.res.add("satellite", false)
	case isMissing(err):
		sat = &types.Satellite{SatelliteName: s.Name, MissionID: missionID}
		if err := a.cat.AddSatellite(a.dbc, sat); err != nil {
			return err
		}
		a.res.add("satellite", true)
	default:
		return err
	}
	for _, inst := range s.Instruments {
		if err := a.instrument(sat.SatelliteID, inst); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) instrument(satelliteID int64, in Instrument) error {
	inst, err := a.cat.GetInstrument(a.dbc, in.Name)
	switch {
	case err == nil:
		a.res.add("instrument", false)
	case isMissing(err):
		inst = &types.Instrument{InstrumentName: in.Name, SatelliteID: satelliteID}
		if err := a.cat.AddInstrument(a.dbc, inst); err != nil {
			return err
		}
		a.res.add("instrument", true)
	default:
		return err
	}
	for _, p := range in.Products {
		if err := a.product(inst.InstrumentID, p); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) product(instrumentID int64, p Product) error {
	prod, err := a.cat.GetProduct(a.dbc, p.Name)
	switch {
	case err == nil:
		a.res.add("product", false)
	case isMissing(err):
		prod = &types.Product{
			ProductName:        p.Name,
			InstrumentID:       instrumentID,
			RelativePath:       p.RelativePath,
			Level:              p.Level,
			Format:             p.Format,
			ProductDescription: p.Description,
		}
		if err := a.cat.AddProduct(a.dbc, prod); err != nil {
			return err
		}
		a.res.add("product", true)
	default:
		return err
	}
	a.products[p.Name] = prod.ProductID
	if p.Inspector == nil {
		return nil
	}
	return a.inspector(prod.ProductID, *p.Inspector)
}

func (a *applier) inspector(productID int64, in Inspector) error {
	v := in.Version
	if v.Interface < 1 {
		v.Interface = 1
	}
	active, err := a.cat.ListActiveInspectors(a.dbc)
	if err != nil {
		return err
	}
	for _, i := range active {
		if i.ProductID == productID && i.Filename == in.Filename && i.Version().Equal(v) {
			a.res.add("inspector", false)
			return nil
		}
	}
	row := &types.Inspector{
		Filename:               in.Filename,
		RelativePath:           in.RelativePath,
		Description:            in.Description,
		InterfaceVersion:       v.Interface,
		QualityVersion:         v.Quality,
		RevisionVersion:        v.Revision,
		OutputInterfaceVersion: max(in.OutputInterface, 1),
		ActiveCode:             true,
		NewestVersion:          true,
		Arguments:              optional(in.Arguments),
		ProductID:              productID,
	}
	if err := a.cat.AddInspector(a.dbc, row); err != nil {
		return err
	}
	a.res.add("inspector", true)
	return nil
}

func (a *applier) process(p Process) error {
	proc, err := a.cat.GetProcess(a.dbc, p.Name)
	switch {
	case err == nil:
		a.res.add("process", false)
	case isMissing(err):
		proc = &types.Process{
			ProcessName:    p.Name,
			OutputTimebase: types.Timebase(strings.ToUpper(p.Timebase)),
			ExtraParams:    optional(p.ExtraParams),
		}
		if p.OutputProduct != "" {
			id := a.products[p.OutputProduct]
			proc.OutputProduct = &id
		}
		if err := a.cat.AddProcess(a.dbc, proc); err != nil {
			return err
		}
		a.res.add("process", true)
	default:
		return err
	}

	links, err := a.cat.GetInputProductLinks(a.dbc, proc.ProcessID)
	if err != nil {
		return err
	}
	linked := map[int64]bool{}
	for _, l := range links {
		linked[l.InputProductID] = true
	}
	for _, in := range p.Inputs {
		id := a.products[in.Product]
		if linked[id] {
			a.res.add("productprocesslink", false)
			continue
		}
		if err := a.cat.AddProductProcessLink(a.dbc, &types.ProductProcessLink{
			InputProductID: id,
			ProcessID:      proc.ProcessID,
			Optional:       in.Optional,
			Yesterday:      in.Yesterday,
			Tomorrow:       in.Tomorrow,
		}); err != nil {
			return err
		}
		linked[id] = true
		a.res.add("productprocesslink", true)
	}

	for _, c := range p.Codes {
		if err := a.code(proc, c); err != nil {
			return err
		}
	}
	return nil
}

func (a *applier) code(proc *types.Process, c Code) error {
	start, stop := defaultCodeStart, defaultCodeStop
	var err error
	if c.Start != "" {
		if start, err = timeutil.ParseDay(c.Start); err != nil {
			return fmt.Errorf("%w: code %s start %q", dperrors.ErrInvalidArgument, c.Filename, c.Start)
		}
	}
	if c.Stop != "" {
		if stop, err = timeutil.ParseDay(c.Stop); err != nil {
			return fmt.Errorf("%w: code %s stop %q", dperrors.ErrInvalidArgument, c.Filename, c.Stop)
		}
	}
	row := &types.Code{
		Filename:               c.Filename,
		RelativePath:           c.RelativePath,
		CodeStartDate:          start,
		CodeStopDate:           stop,
		CodeDescription:        c.Description,
		ProcessID:              proc.ProcessID,
		InterfaceVersion:       c.Version.Interface,
		QualityVersion:         c.Version.Quality,
		RevisionVersion:        c.Version.Revision,
		OutputInterfaceVersion: max(c.OutputInterface, 1),
		ActiveCode:             !c.Retired,
		NewestVersion:          !c.Retired,
		Arguments:              optional(c.Arguments),
		Cpu:                    c.Cpu,
		Ram:                    c.Ram,
	}
	err = a.cat.AddCode(a.dbc, row)
	switch {
	case err == nil:
		a.res.add("code", true)
		return nil
	case errors.Is(err, dperrors.ErrCatalogInconsistent):
		// Same process and version triple: already loaded.
		a.log.Debug("Code already present", "process", proc.ProcessName, "filename", c.Filename, "version", c.Version.String())
		a.res.add("code", false)
		return nil
	default:
		return err
	}
}
