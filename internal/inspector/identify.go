package inspector

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yungbote/dbprocessing/internal/diskfile"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
	"github.com/yungbote/dbprocessing/internal/services"
)

// Loaded is an active inspector row bound to its implementation.
type Loaded struct {
	Row  *types.Inspector
	Impl Inspector
	Args Args
}

// Claim is the single inspector that accepted a candidate.
type Claim struct {
	Params    *diskfile.Params
	Inspector *types.Inspector
}

// ErrMultipleClaims is returned when more than one inspector claims a
// candidate.
var ErrMultipleClaims = fmt.Errorf("%w: more than one inspector claimed the file", dperrors.ErrCatalogInconsistent)

// Load binds every active inspector. A row naming a registered built-in
// uses it; any other row runs the program at its inspector path. Rows that
// cannot be bound are logged and skipped.
func (r *Registry) Load(dbc dbctx.Context, cat services.CatalogService, baseLog *logger.Logger) ([]Loaded, error) {
	log := baseLog.With("component", "InspectorRegistry")
	rows, err := cat.ListActiveInspectors(dbc)
	if err != nil {
		return nil, err
	}
	out := make([]Loaded, 0, len(rows))
	for _, row := range rows {
		var args Args
		if row.Arguments != nil {
			if args, err = ParseArgs(*row.Arguments); err != nil {
				log.Error("Skipping inspector with bad arguments", "inspector_id", row.InspectorID, "filename", row.Filename, "error", err)
				continue
			}
		} else {
			args = Args{}
		}
		if impl, ok := r.Lookup(row.Filename); ok {
			out = append(out, Loaded{Row: row, Impl: impl, Args: args})
			continue
		}
		path, err := cat.GetInspectorPath(dbc, row)
		if err != nil {
			log.Error("Skipping inspector without path", "inspector_id", row.InspectorID, "filename", row.Filename, "error", err)
			continue
		}
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.Mode().Perm()&0o111 == 0 {
			log.Error("Skipping inspector that is not an executable file", "inspector_id", row.InspectorID, "path", path, "error", err)
			continue
		}
		out = append(out, Loaded{Row: row, Impl: Exec(path, baseLog), Args: args})
	}
	log.Debug("Loaded inspectors", "count", len(out))
	return out, nil
}

// Identify offers path to every loaded inspector. No claim returns nil. An
// inspector that fails is logged and counted as a pass.
func Identify(ctx context.Context, dbc dbctx.Context, cat services.CatalogService, loaded []Loaded, path string, log *logger.Logger) (*Claim, error) {
	var claims []Claim
	for _, l := range loaded {
		p, err := l.Impl.Inspect(ctx, Request{
			Path:      path,
			ProductID: l.Row.ProductID,
			Args:      l.Args,
			Catalog:   cat,
			DBC:       dbc,
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			log.Warn("Inspector failed, treating as pass",
				"inspector_id", l.Row.InspectorID,
				"inspector", l.Row.Filename,
				"filename", filepath.Base(path),
				"error", err,
			)
			continue
		}
		if p == nil {
			continue
		}
		if p.ProductID == 0 {
			p.ProductID = l.Row.ProductID
		}
		if p.Filename == "" {
			p.Filename = filepath.Base(path)
		}
		claims = append(claims, Claim{Params: p, Inspector: l.Row})
	}
	switch len(claims) {
	case 0:
		return nil, nil
	case 1:
		return &claims[0], nil
	default:
		names := make([]string, 0, len(claims))
		for _, c := range claims {
			names = append(names, c.Inspector.Filename)
		}
		return nil, fmt.Errorf("%s: %w %v", filepath.Base(path), ErrMultipleClaims, names)
	}
}
