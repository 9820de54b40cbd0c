package planner

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/pkg/filefmt"
	"github.com/yungbote/dbprocessing/internal/pkg/pointers"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
	"github.com/yungbote/dbprocessing/internal/services"
)

// RunLevel is the data level given to triggered runs so they sort after
// every real product.
const RunLevel = 5000

// maxBumps bounds the version search against a corrupt catalog.
const maxBumps = 1000

// Options tune one plan.
type Options struct {
	// Force skips the check against files already in the catalog.
	Force bool
	// VersionBump forces one quality (1) or interface (2) increment.
	VersionBump *int
	// RunDir is the parent of the per-run output directory. Empty means the
	// system temp directory.
	RunDir string
}

// Plan is one prospective execution of a code for one date. Building a
// plan only reads the catalog.
type Plan struct {
	Date      time.Time
	Process   *types.Process
	Code      *types.Code
	Inputs    []*types.File
	Filename  string
	Version   version.Version
	DataLevel float64
	AbleToRun bool
	// Reason says why AbleToRun is false.
	Reason string

	CodePath    string
	ExtraParams []string
	Args        []string
	InputPaths  []string
	OutputDir   string
	OutputPath  string

	prepared bool
}

// IsRun reports whether the plan is a triggered run with no output file.
func (p *Plan) IsRun() bool {
	return p.Process != nil && p.Process.OutputTimebase == types.TimebaseRun
}

// InputIDs lists the file ids of the plan's inputs.
func (p *Plan) InputIDs() []int64 {
	out := make([]int64, 0, len(p.Inputs))
	for _, f := range p.Inputs {
		out = append(out, f.FileID)
	}
	return out
}

// CommandLine is code path, extra params, code arguments, input paths and,
// for plans that produce a file, the output path.
func (p *Plan) CommandLine() []string {
	cmd := []string{p.CodePath}
	cmd = append(cmd, p.ExtraParams...)
	cmd = append(cmd, p.Args...)
	cmd = append(cmd, p.InputPaths...)
	if !p.IsRun() && p.OutputPath != "" {
		cmd = append(cmd, p.OutputPath)
	}
	return cmd
}

// Key identifies duplicate plans: triggered runs also differ by date.
func (p *Plan) Key() string {
	if p.IsRun() {
		return p.Filename + "@" + p.Date.Format("20060102")
	}
	return p.Filename
}

// Prepare creates the output directory.
func (p *Plan) Prepare() error {
	if p.prepared {
		return nil
	}
	if err := os.MkdirAll(p.OutputDir, 0o755); err != nil {
		return fmt.Errorf("plan %s: %w", p.Filename, err)
	}
	p.prepared = true
	return nil
}

// Cleanup removes the output directory.
func (p *Plan) Cleanup() error {
	if p.OutputDir == "" {
		return nil
	}
	p.prepared = false
	return os.RemoveAll(p.OutputDir)
}

// New plans processID for day over inputIDs. A plan that should not run is
// returned with AbleToRun false and a Reason; errors are reserved for
// catalog failures.
func New(dbc dbctx.Context, cat services.CatalogService, day time.Time, processID int64, inputIDs []int64, opts Options, baseLog *logger.Logger) (*Plan, error) {
	day = timeutil.Day(day)
	log := baseLog.With("component", "Planner", "process_id", processID, "date", day.Format("2006-01-02"))
	if b := opts.VersionBump; b != nil && *b != types.BumpQuality && *b != types.BumpInterface {
		return nil, fmt.Errorf("%w: version bump %d", dperrors.ErrInvalidArgument, *b)
	}

	proc, err := cat.GetProcess(dbc, processID)
	if err != nil {
		return nil, err
	}
	p := &Plan{Date: day, Process: proc}

	code, err := cat.GetCodeFromProcess(dbc, processID, day)
	if err != nil {
		return nil, err
	}
	if code == nil {
		p.Reason = "no active code covers the date"
		log.Info("Not planning", "reason", p.Reason)
		return p, nil
	}
	p.Code = code

	for _, id := range inputIDs {
		f, err := cat.GetFile(dbc, id)
		if err != nil {
			return nil, err
		}
		p.Inputs = append(p.Inputs, f)
	}

	tb, err := cat.GetTraceback(dbc, "code", code.CodeID)
	if err != nil {
		return nil, err
	}
	fields := tb.Fields()
	fields.SetDatetime(day)

	if proc.OutputTimebase == types.TimebaseRun {
		p.Filename = fmt.Sprintf("RUN_%s_%d", proc.ProcessName, proc.ProcessID)
		p.DataLevel = RunLevel
		p.AbleToRun = true
	} else {
		if proc.OutputProduct == nil {
			return nil, fmt.Errorf("process %s: %w: no output product", proc.ProcessName, dperrors.ErrCatalogInconsistent)
		}
		if err := p.decideVersion(dbc, cat, tb.Product, fields, opts, log); err != nil {
			return nil, err
		}
	}

	if err := p.fillCommand(dbc, cat, fields, opts); err != nil {
		return nil, err
	}
	if p.AbleToRun {
		log.Debug("Planned run", "filename", p.Filename, "version", p.Version.String(), "code_id", code.CodeID)
	} else {
		log.Info("Not planning", "filename", p.Filename, "reason", p.Reason)
	}
	return p, nil
}

func (p *Plan) filename(product *types.Product, fields filefmt.Fields, v version.Version) (string, error) {
	f := fields.Clone()
	f["VERSION"] = v
	name, err := filefmt.Expand(product.Format, f)
	if err != nil {
		return "", fmt.Errorf("product %s format: %w", product.ProductName, err)
	}
	return name, nil
}

// decideVersion picks the output version. It starts at the code's output
// interface and bumps while the candidate name exists: by the code version
// change when a different code made it, by quality when the input count
// changed, otherwise by the largest input version change. Identical inputs
// and code mean there is nothing to run.
func (p *Plan) decideVersion(dbc dbctx.Context, cat services.CatalogService, product *types.Product, fields filefmt.Fields, opts Options, log *logger.Logger) error {
	p.DataLevel = product.Level
	for k, v := range inputKeywords(p.Inputs) {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}

	v := version.New(p.Code.OutputInterfaceVersion, 0, 0)
	identical := false
	for i := 0; ; i++ {
		if i >= maxBumps {
			return fmt.Errorf("process %s: %w: no free version after %d bumps", p.Process.ProcessName, dperrors.ErrCatalogInconsistent, maxBumps)
		}
		name, err := p.filename(product, fields, v)
		if err != nil {
			return err
		}
		p.Filename = name
		if opts.Force {
			break
		}
		next, same, err := p.nextVersion(dbc, cat, name, v)
		if err != nil {
			return err
		}
		if same {
			identical = true
			break
		}
		if next == v {
			break
		}
		v = next
	}

	if opts.VersionBump != nil {
		if *opts.VersionBump == types.BumpInterface {
			v = v.IncInterface()
		} else {
			v = v.IncQuality()
		}
		for i := 0; ; i++ {
			if i >= maxBumps {
				return fmt.Errorf("process %s: %w: no free version after %d bumps", p.Process.ProcessName, dperrors.ErrCatalogInconsistent, maxBumps)
			}
			name, err := p.filename(product, fields, v)
			if err != nil {
				return err
			}
			p.Filename = name
			if opts.Force {
				break
			}
			existing, err := lookup(dbc, cat, name)
			if err != nil {
				return err
			}
			if existing == nil {
				break
			}
			v = v.IncRevision()
		}
		identical = false
	}

	p.Version = v
	if identical {
		p.Reason = "output exists with identical code and inputs"
		return nil
	}
	p.AbleToRun = true
	log.Debug("Decided output version", "filename", p.Filename, "version", v.String())
	return nil
}

// nextVersion returns v unchanged when name is free, the bumped version when
// name is taken, and same when the existing file was made by this code
// from the same inputs.
func (p *Plan) nextVersion(dbc dbctx.Context, cat services.CatalogService, name string, v version.Version) (version.Version, bool, error) {
	existing, err := lookup(dbc, cat, name)
	if err != nil || existing == nil {
		return v, false, err
	}
	madeBy, err := cat.GetFileCode(dbc, existing.FileID)
	if err != nil {
		return v, false, err
	}
	if madeBy == nil || madeBy.CodeID != p.Code.CodeID {
		if madeBy == nil {
			return v.IncRevision(), false, nil
		}
		if next, ok := v.Bump(p.Code.Version().Sub(madeBy.Version())); ok {
			return next, false, nil
		}
		return v.IncRevision(), false, nil
	}

	parents, err := cat.GetFileParents(dbc, existing.FileID)
	if err != nil {
		return v, false, err
	}
	if len(parents) != len(p.Inputs) {
		return v.IncQuality(), false, nil
	}
	var delta version.Delta
	for _, in := range p.Inputs {
		parent := matchParent(in, parents)
		if parent == nil {
			return v.IncQuality(), false, nil
		}
		delta = delta.Max(in.Version().Sub(parent.Version()))
	}
	if next, ok := v.Bump(delta); ok {
		return next, false, nil
	}
	return v, true, nil
}

func lookup(dbc dbctx.Context, cat services.CatalogService, name string) (*types.File, error) {
	f, err := cat.GetFile(dbc, name)
	if err != nil {
		if isMissing(err) {
			return nil, nil
		}
		return nil, err
	}
	return f, nil
}

// matchParent finds the parent standing in for input: the same file, or
// another version of the same product and date.
func matchParent(input *types.File, parents []*types.File) *types.File {
	for _, pa := range parents {
		if pa.FileID == input.FileID {
			return pa
		}
	}
	for _, pa := range parents {
		if pa.ProductID == input.ProductID && timeutil.Day(pa.UTCFileDate).Equal(timeutil.Day(input.UTCFileDate)) {
			return pa
		}
	}
	return nil
}

func inputKeywords(inputs []*types.File) filefmt.Fields {
	out := filefmt.Fields{}
	for _, f := range inputs {
		if f.ProcessKeywords == nil {
			continue
		}
		for k, v := range filefmt.ParseKeywords(*f.ProcessKeywords) {
			if _, ok := out[k]; !ok {
				out[k] = v
			}
		}
	}
	return out
}

func (p *Plan) fillCommand(dbc dbctx.Context, cat services.CatalogService, fields filefmt.Fields, opts Options) error {
	codePath, err := cat.GetCodePath(dbc, p.Code)
	if err != nil {
		return err
	}
	p.CodePath = codePath

	p.ExtraParams = nil
	for _, part := range strings.Split(pointers.Deref(p.Process.ExtraParams), "|") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		s, err := filefmt.Expand(part, fields)
		if err != nil {
			return fmt.Errorf("process %s extra params: %w", p.Process.ProcessName, err)
		}
		p.ExtraParams = append(p.ExtraParams, s)
	}
	p.Args = nil
	for _, tok := range strings.Fields(pointers.Deref(p.Code.Arguments)) {
		s, err := filefmt.Expand(tok, fields)
		if err != nil {
			return fmt.Errorf("code %s arguments: %w", p.Code.Filename, err)
		}
		p.Args = append(p.Args, s)
	}
	p.InputPaths = nil
	for _, f := range p.Inputs {
		path, err := cat.GetFileFullPath(dbc, f.FileID)
		if err != nil {
			return err
		}
		p.InputPaths = append(p.InputPaths, path)
	}

	parent := opts.RunDir
	if parent == "" {
		parent = os.TempDir()
	}
	p.OutputDir = filepath.Join(parent, "dbprocessing-"+uuid.NewString())
	if p.IsRun() {
		p.OutputPath = ""
	} else {
		p.OutputPath = filepath.Join(p.OutputDir, p.Filename)
	}
	return nil
}
