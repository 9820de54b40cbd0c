package ingestion

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/yungbote/dbprocessing/internal/diskfile"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/inspector"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
	"github.com/yungbote/dbprocessing/internal/services"
)

// Metrics receives one observation per ingested or rejected file.
type Metrics interface {
	ObserveIngest(result string)
}

// Provenance links a built file to its inputs and the code that made it.
type Provenance struct {
	Parents   []int64
	CodeID    int64
	LoggingID int64
}

// Summary counts one ingest pass.
type Summary struct {
	Scanned  int   `json:"scanned"`
	Ingested int   `json:"ingested"`
	Rejected int   `json:"rejected"`
	Bytes    int64 `json:"bytes"`
}

type Ingester struct {
	cat      services.CatalogService
	registry *inspector.Registry
	log      *logger.Logger
	metrics  Metrics
	loaded   []inspector.Loaded
	isLoaded bool
}

func New(cat services.CatalogService, registry *inspector.Registry, baseLog *logger.Logger, metrics Metrics) *Ingester {
	if registry == nil {
		registry = inspector.NewRegistry()
	}
	return &Ingester{
		cat:      cat,
		registry: registry,
		log:      baseLog.With("component", "Ingester"),
		metrics:  metrics,
	}
}

// Reload rebinds the active inspectors.
func (g *Ingester) Reload(dbc dbctx.Context) error {
	loaded, err := g.registry.Load(dbc, g.cat, g.log)
	if err != nil {
		return err
	}
	g.loaded = loaded
	g.isLoaded = true
	return nil
}

func (g *Ingester) inspectors(dbc dbctx.Context) ([]inspector.Loaded, error) {
	if !g.isLoaded {
		if err := g.Reload(dbc); err != nil {
			return nil, err
		}
	}
	return g.loaded, nil
}

// Scan lists candidate files in the incoming directory, sorted by name.
// Hidden files and directories are skipped.
func (g *Ingester) Scan(dbc dbctx.Context) ([]string, error) {
	dirs, err := g.cat.Dirs(dbc)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dirs.Incoming)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			g.log.Warn("Incoming directory missing", "dir", dirs.Incoming)
			return nil, nil
		}
		return nil, fmt.Errorf("scan %s: %w", dirs.Incoming, err)
	}
	var paths []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") {
			continue
		}
		path := filepath.Join(dirs.Incoming, e.Name())
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		paths = append(paths, path)
	}
	return Dedupe(paths), nil
}

// Dedupe sorts paths and keeps the first path for each base name.
func Dedupe(paths []string) []string {
	sorted := append([]string(nil), paths...)
	sort.Strings(sorted)
	seen := make(map[string]bool, len(sorted))
	out := sorted[:0]
	for _, p := range sorted {
		base := filepath.Base(p)
		if seen[base] {
			continue
		}
		seen[base] = true
		out = append(out, p)
	}
	return out
}

// IngestAll ingests every candidate in the incoming directory. Rejected
// files are moved to the error directory and do not stop the pass.
func (g *Ingester) IngestAll(ctx context.Context, dbc dbctx.Context) (Summary, error) {
	var sum Summary
	paths, err := g.Scan(dbc)
	if err != nil {
		return sum, err
	}
	sum.Scanned = len(paths)
	if len(paths) == 0 {
		return sum, nil
	}
	start := time.Now()
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		var size int64
		if info, statErr := os.Stat(p); statErr == nil {
			size = info.Size()
		}
		_, err := g.IngestFile(ctx, dbc, p, nil)
		switch {
		case err == nil:
			sum.Ingested++
			sum.Bytes += size
		case errors.Is(err, dperrors.ErrIngestReject):
			sum.Rejected++
		default:
			return sum, err
		}
	}
	g.log.Info("Ingest pass finished",
		"scanned", sum.Scanned,
		"ingested", sum.Ingested,
		"rejected", sum.Rejected,
		"bytes", humanize.Bytes(uint64(sum.Bytes)),
		"took", time.Since(start).String(),
	)
	return sum, nil
}

// IngestFile identifies path, records it, moves it into the managed tree,
// recomputes the newest version of its group and queues it. prov, when set,
// also links the file to its parents and code. Every rejection wraps
// ErrIngestReject and leaves the file in the error directory.
func (g *Ingester) IngestFile(ctx context.Context, dbc dbctx.Context, path string, prov *Provenance) (*types.File, error) {
	name := filepath.Base(path)
	log := g.log.With("filename", name)

	loaded, err := g.inspectors(dbc)
	if err != nil {
		return nil, err
	}
	claim, err := inspector.Identify(ctx, dbc, g.cat, loaded, path, log)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, g.reject(dbc, path, err.Error())
	}
	if claim == nil {
		return nil, g.reject(dbc, path, "no inspector claimed the file")
	}

	df, err := diskfile.Open(path, g.log)
	if err != nil {
		return nil, g.reject(dbc, path, err.Error())
	}
	params := *claim.Params
	if params.FileCreateDate.IsZero() {
		params.FileCreateDate = df.Params.FileCreateDate
	}
	params.ExistsOnDisk = true
	params.NewestVersion = true
	df.Params = params
	if _, err := df.Checksum(); err != nil {
		return nil, g.reject(dbc, path, err.Error())
	}

	tb, err := g.cat.GetTraceback(dbc, "product", params.ProductID)
	if err != nil {
		return nil, err
	}
	df.Params.DataLevel = tb.Product.Level
	dir, err := services.ProductDir(tb, df.Params.UTCFileDate, df.Params.Version)
	if err != nil {
		return nil, g.reject(dbc, path, err.Error())
	}
	dest := filepath.Join(dir, df.Params.Filename)

	var file *types.File
	err = g.inTx(dbc, func(dbc dbctx.Context) error {
		file = df.Params.File()
		if err := g.cat.AddFile(dbc, file); err != nil {
			return err
		}
		if prov != nil {
			if err := g.cat.AddFileParents(dbc, file.FileID, prov.Parents); err != nil {
				return err
			}
			if prov.CodeID != 0 {
				if err := g.cat.AddFileCodeLink(dbc, file.FileID, prov.CodeID); err != nil {
					return err
				}
				if prov.LoggingID != 0 {
					if err := g.cat.AddLoggingFile(dbc, prov.LoggingID, file.FileID, prov.CodeID); err != nil {
						return err
					}
				}
			}
		}
		if err := g.cat.UpdateNewest(dbc, file.ProductID, file.UTCFileDate); err != nil {
			return err
		}
		if _, err := g.cat.Queue().Push(dbc, []int64{file.FileID}, nil); err != nil {
			return err
		}
		return df.Move(dest)
	})
	if err != nil {
		if errors.Is(err, dperrors.ErrIntegrity) || errors.Is(err, dperrors.ErrInvalidArgument) {
			return nil, g.reject(dbc, path, err.Error())
		}
		return nil, err
	}
	log.Info("Ingested file",
		"file_id", file.FileID,
		"product_id", file.ProductID,
		"version", file.Version().String(),
		"inspector", claim.Inspector.Filename,
		"dest", dest,
		"size", humanize.Bytes(uint64(max(df.Size, 0))),
	)
	g.observe("ingested")
	return file, nil
}

func (g *Ingester) inTx(dbc dbctx.Context, fn func(dbc dbctx.Context) error) error {
	if dbc.Tx != nil {
		return fn(dbc)
	}
	return g.cat.InTx(dbc.Ctx, fn)
}

func (g *Ingester) observe(result string) {
	if g.metrics != nil {
		g.metrics.ObserveIngest(result)
	}
}

// reject moves path to the error directory and returns an ErrIngestReject
// error carrying reason.
func (g *Ingester) reject(dbc dbctx.Context, path, reason string) error {
	g.observe("rejected")
	rerr := fmt.Errorf("%s: %w: %s", filepath.Base(path), dperrors.ErrIngestReject, reason)
	dest, err := MoveToError(dbc, g.cat, path, g.log)
	if err != nil {
		g.log.Error("Could not move rejected file", "path", path, "reason", reason, "error", err)
		return rerr
	}
	g.log.Warn("Rejected file", "path", path, "dest", dest, "reason", reason)
	return rerr
}

// MoveToError moves path into the mission's error directory. An existing
// file of the same name is replaced.
func MoveToError(dbc dbctx.Context, cat services.CatalogService, path string, log *logger.Logger) (string, error) {
	dirs, err := cat.Dirs(dbc)
	if err != nil {
		return "", err
	}
	if _, err := os.Lstat(path); err != nil {
		return "", err
	}
	dest := filepath.Join(dirs.Error, filepath.Base(path))
	if err := os.MkdirAll(dirs.Error, 0o755); err != nil {
		return "", err
	}
	if err := os.Rename(path, dest); err != nil {
		df, derr := diskfile.Open(path, log)
		if derr != nil {
			return "", err
		}
		if err := df.Move(dest); err != nil {
			return "", err
		}
	}
	return dest, nil
}
