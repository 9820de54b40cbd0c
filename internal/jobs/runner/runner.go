package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/yungbote/dbprocessing/internal/diskfile"
	"github.com/yungbote/dbprocessing/internal/ingestion"
	"github.com/yungbote/dbprocessing/internal/jobs/planner"
	"github.com/yungbote/dbprocessing/internal/observability"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
	"github.com/yungbote/dbprocessing/internal/services"
)

const (
	DefaultNumProc      = 2
	DefaultPollInterval = 500 * time.Millisecond
)

// Metrics receives one observation per finished child.
type Metrics interface {
	ObserveBuild(result string, dur time.Duration)
}

// Summary counts one Run.
type Summary struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

func (s *Summary) Add(o Summary) {
	s.Succeeded += o.Succeeded
	s.Failed += o.Failed
	s.Skipped += o.Skipped
}

// Runner executes plans as child processes, at most NumProc at a time, and
// ingests what they produce.
type Runner struct {
	cat       services.CatalogService
	ingester  *ingestion.Ingester
	log       *logger.Logger
	metrics   Metrics
	tracer    trace.Tracer
	numProc   int
	poll      time.Duration
	loggingID int64
}

func New(cat services.CatalogService, ingester *ingestion.Ingester, baseLog *logger.Logger, numProc int, metrics Metrics) *Runner {
	if numProc < 1 {
		numProc = DefaultNumProc
	}
	return &Runner{
		cat:      cat,
		ingester: ingester,
		log:      baseLog.With("component", "Runner"),
		metrics:  metrics,
		tracer:   observability.Tracer(),
		numProc:  numProc,
		poll:     DefaultPollInterval,
	}
}

// SetPollInterval sets how often Run reports the children still running.
func (r *Runner) SetPollInterval(d time.Duration) {
	if d > 0 {
		r.poll = d
	}
}

// SetLoggingID attributes produced files to a driver run.
func (r *Runner) SetLoggingID(id int64) { r.loggingID = id }

type result struct {
	plan     *planner.Plan
	exitCode int
	err      error
	took     time.Duration
	probPath string
}

// Schedule drops plans that cannot run, orders the rest by data level then
// filename, and keeps the first plan for each output.
func Schedule(plans []*planner.Plan) (runnable, dropped []*planner.Plan) {
	for _, p := range plans {
		if p == nil {
			continue
		}
		if !p.AbleToRun {
			dropped = append(dropped, p)
			continue
		}
		runnable = append(runnable, p)
	}
	sort.SliceStable(runnable, func(i, j int) bool {
		if runnable[i].DataLevel != runnable[j].DataLevel {
			return runnable[i].DataLevel < runnable[j].DataLevel
		}
		if runnable[i].Filename != runnable[j].Filename {
			return runnable[i].Filename < runnable[j].Filename
		}
		return runnable[i].Date.Before(runnable[j].Date)
	})
	seen := map[string]bool{}
	out := runnable[:0]
	for _, p := range runnable {
		if seen[p.Key()] {
			dropped = append(dropped, p)
			continue
		}
		seen[p.Key()] = true
		out = append(out, p)
	}
	return out, dropped
}

// Run executes plans and returns the counts. Child failures are counted,
// not returned; an error means the catalog or filesystem could not record
// an outcome.
func (r *Runner) Run(ctx context.Context, dbc dbctx.Context, plans []*planner.Plan) (Summary, error) {
	var sum Summary
	runnable, dropped := Schedule(plans)
	for _, p := range dropped {
		_ = p.Cleanup()
	}
	sum.Skipped = len(dropped)
	if len(runnable) == 0 {
		return sum, nil
	}

	ctx, span := r.tracer.Start(ctx, "runner.run", trace.WithAttributes(
		attribute.Int("runner.plans", len(runnable)),
		attribute.Int("runner.numproc", r.numProc),
	))
	defer span.End()
	r.log.Info("Running plans", "count", len(runnable), "numproc", r.numProc)

	sem := semaphore.NewWeighted(int64(r.numProc))
	results := make(chan result, len(runnable))
	heartbeat := time.NewTicker(r.poll)
	defer heartbeat.Stop()
	next, running := 0, 0
	var firstErr error
	for next < len(runnable) || running > 0 {
		for next < len(runnable) && ctx.Err() == nil && sem.TryAcquire(1) {
			p := runnable[next]
			next++
			if err := r.start(ctx, p, sem, results); err != nil {
				sem.Release(1)
				r.log.Error("Could not start child", "filename", p.Filename, "error", err)
				r.observe("failure", 0)
				sum.Failed++
				continue
			}
			running++
		}
		if running == 0 {
			if ctx.Err() != nil {
				for _, p := range runnable[next:] {
					_ = p.Cleanup()
					sum.Skipped++
				}
				next = len(runnable)
			}
			continue
		}
		var res result
		select {
		case res = <-results:
		case <-heartbeat.C:
			r.log.Debug("Waiting on children", "running", running, "pending", len(runnable)-next)
			continue
		}
		running--
		if err := r.finish(ctx, dbc, res, &sum); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	span.SetAttributes(
		attribute.Int("runner.succeeded", sum.Succeeded),
		attribute.Int("runner.failed", sum.Failed),
	)
	if firstErr != nil {
		span.RecordError(firstErr)
		span.SetStatus(codes.Error, firstErr.Error())
	}
	r.log.Info("Run finished", "succeeded", sum.Succeeded, "failed", sum.Failed, "skipped", sum.Skipped)
	if firstErr == nil {
		firstErr = ctx.Err()
	}
	return sum, firstErr
}

func (r *Runner) start(ctx context.Context, p *planner.Plan, sem *semaphore.Weighted, results chan<- result) error {
	if err := p.Prepare(); err != nil {
		return err
	}
	cmdline := p.CommandLine()
	r.touch(ctx, cmdline)

	probPath := filepath.Join(p.OutputDir, p.Filename+".prob")
	prob, err := os.Create(probPath)
	if err != nil {
		return fmt.Errorf("prob log: %w", err)
	}
	if _, err := fmt.Fprintf(prob, "command: %s\n", strings.Join(cmdline, " ")); err != nil {
		_ = prob.Close()
		return fmt.Errorf("prob log: %w", err)
	}

	cmd := exec.CommandContext(ctx, cmdline[0], cmdline[1:]...)
	cmd.Stdout = prob
	cmd.Stderr = prob
	cmd.Dir = p.OutputDir
	started := time.Now()
	if err := cmd.Start(); err != nil {
		_ = prob.Close()
		return err
	}
	r.log.Debug("Started child", "filename", p.Filename, "pid", cmd.Process.Pid, "command", strings.Join(cmdline, " "))

	go func() {
		err := cmd.Wait()
		_ = prob.Close()
		res := result{plan: p, err: err, took: time.Since(started), probPath: probPath}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.exitCode = exitErr.ExitCode()
		} else if err != nil {
			res.exitCode = -1
		}
		sem.Release(1)
		results <- res
	}()
	return nil
}

// touch opens and closes every argument that looks like a path so
// automounted directories are mounted before the child starts. Missing
// files are logged only.
func (r *Runner) touch(ctx context.Context, cmdline []string) {
	var paths []string
	for _, arg := range cmdline[1:] {
		if strings.HasPrefix(arg, "--") {
			if _, v, ok := strings.Cut(arg, "="); ok {
				arg = v
			}
		}
		if strings.ContainsRune(arg, os.PathSeparator) {
			paths = append(paths, arg)
		}
	}
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, path := range paths {
		g.Go(func() error {
			f, err := os.OpenFile(path, os.O_RDONLY|syscall.O_NONBLOCK, 0)
			if err != nil {
				r.log.Debug("Argument not accessible", "path", path, "error", err)
				return nil
			}
			return f.Close()
		})
	}
	_ = g.Wait()
}

func (r *Runner) finish(ctx context.Context, dbc dbctx.Context, res result, sum *Summary) error {
	p := res.plan
	log := r.log.With("filename", p.Filename, "exit_code", res.exitCode)
	if res.err != nil {
		log.Warn("Child failed", "took", res.took.String(), "error", res.err)
		r.observe("failure", res.took)
		sum.Failed++
		return r.saveFailure(dbc, p, res.probPath, log)
	}

	if p.IsRun() {
		log.Info("Triggered run finished", "took", res.took.String())
		r.observe("success", res.took)
		sum.Succeeded++
		return p.Cleanup()
	}

	if _, err := os.Stat(p.OutputPath); err != nil {
		log.Warn("Child exited cleanly without output", "output", p.OutputPath)
		r.observe("failure", res.took)
		sum.Failed++
		return r.saveFailure(dbc, p, res.probPath, log)
	}

	dirs, err := r.cat.Dirs(dbc)
	if err != nil {
		return err
	}
	incoming := filepath.Join(dirs.Incoming, p.Filename)
	df, err := diskfile.Open(p.OutputPath, r.log)
	if err != nil {
		return err
	}
	if err := df.Move(incoming); err != nil {
		return fmt.Errorf("move %s to incoming: %w", p.Filename, err)
	}
	_, err = r.ingester.IngestFile(ctx, dbc, incoming, &ingestion.Provenance{
		Parents:   p.InputIDs(),
		CodeID:    p.Code.CodeID,
		LoggingID: r.loggingID,
	})
	if err != nil {
		r.observe("failure", res.took)
		sum.Failed++
		if errors.Is(err, dperrors.ErrIngestReject) {
			log.Warn("Built file rejected at ingest", "error", err)
			return r.saveFailure(dbc, p, res.probPath, log)
		}
		return err
	}
	log.Info("Built file", "took", res.took.String(), "size", humanize.Bytes(uint64(max(df.Size, 0))))
	r.observe("success", res.took)
	sum.Succeeded++
	return p.Cleanup()
}

// saveFailure moves the output, if any, and the .prob log to the error
// directory. The run directory is left in place.
func (r *Runner) saveFailure(dbc dbctx.Context, p *planner.Plan, probPath string, log *logger.Logger) error {
	for _, path := range []string{p.OutputPath, probPath} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}
		dest, err := ingestion.MoveToError(dbc, r.cat, path, r.log)
		if err != nil {
			return fmt.Errorf("%s: %w: %w", p.Filename, dperrors.ErrBuildFailure, err)
		}
		log.Info("Saved failed build output", "dest", dest)
	}
	return nil
}

func (r *Runner) observe(result string, took time.Duration) {
	if r.metrics != nil {
		r.metrics.ObserveBuild(result, took)
	}
}
