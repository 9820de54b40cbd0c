package driver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/ingestion"
	"github.com/yungbote/dbprocessing/internal/jobs/orchestrator"
	"github.com/yungbote/dbprocessing/internal/jobs/planner"
	"github.com/yungbote/dbprocessing/internal/jobs/runner"
	"github.com/yungbote/dbprocessing/internal/observability"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
	"github.com/yungbote/dbprocessing/internal/services"
)

// Options select the phases of one invocation.
type Options struct {
	IngestOnly  bool
	ProcessOnly bool
	// DryRun plans and reports command lines without executing them or
	// changing the catalog.
	DryRun  bool
	Force   bool
	RunDir  string
	Comment string
	// MaxWaves stops the process phase after that many waves; 0 means until
	// the queue is empty.
	MaxWaves int
}

// QueueGauge receives the queue length after each wave.
type QueueGauge interface {
	SetQueueLength(n int)
}

// Summary is recorded on the run's logging row.
type Summary struct {
	Ingest   ingestion.Summary `json:"ingest"`
	Build    runner.Summary    `json:"build"`
	Waves    int               `json:"waves"`
	Planned  int               `json:"planned"`
	DryRun   bool              `json:"dry_run,omitempty"`
	Commands [][]string        `json:"commands,omitempty"`
}

type Driver struct {
	cat      services.CatalogService
	ingester *ingestion.Ingester
	runner   *runner.Runner
	log      *logger.Logger
	gauge    QueueGauge
	tracer   trace.Tracer
	opts     Options
}

func New(cat services.CatalogService, ingester *ingestion.Ingester, run *runner.Runner, baseLog *logger.Logger, gauge QueueGauge, opts Options) *Driver {
	return &Driver{
		cat:      cat,
		ingester: ingester,
		runner:   run,
		log:      baseLog.With("component", "Driver"),
		gauge:    gauge,
		tracer:   observability.Tracer(),
		opts:     opts,
	}
}

// Run takes the processing lock, ingests the incoming directory and drains
// the process queue. A held lock fails with ErrLockHeld before anything
// else happens.
func (d *Driver) Run(ctx context.Context) (sum Summary, err error) {
	sum.DryRun = d.opts.DryRun
	err = d.locked(ctx, &sum, func(dbc dbctx.Context) error {
		if !d.opts.ProcessOnly {
			if err := d.ingestPhase(ctx, dbc, &sum); err != nil {
				return err
			}
		}
		if !d.opts.IngestOnly {
			return d.processPhase(ctx, dbc, &sum)
		}
		return nil
	})
	return sum, err
}

// RunProcess plans processID for every output date whose period touches
// [start, end] and runs the plans, without consulting the queue. A date that
// cannot be planned is logged and skipped.
func (d *Driver) RunProcess(ctx context.Context, processID int64, start, end time.Time) (sum Summary, err error) {
	sum.DryRun = d.opts.DryRun
	err = d.locked(ctx, &sum, func(dbc dbctx.Context) error {
		proc, err := d.cat.GetProcess(dbc, processID)
		if err != nil {
			return err
		}
		log := d.log.With("process", proc.ProcessName)
		var plans []*planner.Plan
		for _, day := range planner.RangeDates(proc.OutputTimebase, start, end) {
			p, err := d.planDate(dbc, proc, day, nil, nil)
			if err != nil {
				if canceled(err) {
					return err
				}
				log.Error("Could not plan", "date", day.Format("2006-01-02"), "error", err)
				continue
			}
			if p != nil {
				plans = append(plans, p)
			}
		}
		return d.execute(ctx, dbc, plans, &sum)
	})
	return sum, err
}

// planDate gathers the inputs of proc for day and plans the output. A nil
// plan means a required input is missing.
func (d *Driver) planDate(dbc dbctx.Context, proc *types.Process, day time.Time, trigger *types.File, bump *int) (*planner.Plan, error) {
	inputs, missing, ok, err := planner.GatherInputs(dbc, d.cat, proc, day, trigger)
	if err != nil {
		return nil, err
	}
	if !ok {
		d.log.Info("Skipping date, required input missing",
			"process", proc.ProcessName,
			"date", day.Format("2006-01-02"),
			"product_id", missing,
		)
		return nil, nil
	}
	return planner.New(dbc, d.cat, day, proc.ProcessID, inputs, d.planOptions(bump), d.log)
}

func canceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func (d *Driver) locked(ctx context.Context, sum *Summary, fn func(dbc dbctx.Context) error) (err error) {
	dbc := dbctx.Context{Ctx: ctx}
	if err := orchestrator.ValidateCatalog(dbc, d.cat); err != nil {
		return err
	}
	if d.opts.DryRun {
		return fn(dbc)
	}

	run := services.DefaultRunInfo()
	run.Comment = d.opts.Comment
	lg, err := d.cat.StartLogging(dbc, run)
	if err != nil {
		return err
	}
	d.runner.SetLoggingID(lg.LoggingID)

	defer func() {
		if r := recover(); r != nil {
			d.release(lg.LoggingID, fmt.Sprintf("panic: %v", r), sum)
			panic(r)
		}
		comment := "finished"
		if err != nil {
			comment = "failed: " + err.Error()
		}
		d.release(lg.LoggingID, comment, sum)
	}()
	return fn(dbc)
}

// release records the outcome on a fresh context so a cancelled run still
// clears its lock.
func (d *Driver) release(loggingID int64, comment string, sum *Summary) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := d.cat.StopLogging(dbctx.Context{Ctx: ctx}, loggingID, comment, sum); err != nil {
		d.log.Error("Could not release processing lock", "logging_id", loggingID, "error", err)
	}
}

func (d *Driver) ingestPhase(ctx context.Context, dbc dbctx.Context, sum *Summary) error {
	ctx, span := d.tracer.Start(ctx, "driver.ingest")
	defer span.End()
	dbc.Ctx = ctx

	if d.opts.DryRun {
		paths, err := d.ingester.Scan(dbc)
		if err != nil {
			return err
		}
		sum.Ingest.Scanned = len(paths)
		for _, p := range paths {
			d.log.Info("Would ingest", "path", p)
		}
		return nil
	}
	s, err := d.ingester.IngestAll(ctx, dbc)
	sum.Ingest = s
	span.SetAttributes(attribute.Int("ingest.ingested", s.Ingested), attribute.Int("ingest.rejected", s.Rejected))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (d *Driver) processPhase(ctx context.Context, dbc dbctx.Context, sum *Summary) error {
	ctx, span := d.tracer.Start(ctx, "driver.process")
	defer span.End()
	dbc.Ctx = ctx
	queue := d.cat.Queue()

	for d.opts.MaxWaves == 0 || sum.Waves < d.opts.MaxWaves {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.opts.DryRun {
			if _, err := queue.Clean(dbc); err != nil {
				return err
			}
		}
		items, err := d.wave(dbc)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			break
		}
		sum.Waves++
		if !d.opts.DryRun {
			ids := make([]int64, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.FileID)
			}
			if _, err := queue.Remove(dbc, ids); err != nil {
				return err
			}
		}

		var plans []*planner.Plan
		for _, it := range items {
			ps, err := d.plansForFile(dbc, it)
			if err != nil {
				if ctx.Err() != nil {
					return err
				}
				d.log.Error("Planning failed", "file_id", it.FileID, "error", err)
				continue
			}
			plans = append(plans, ps...)
		}
		if err := d.execute(ctx, dbc, plans, sum); err != nil {
			return err
		}
		if d.gauge != nil {
			if n, err := queue.Len(dbc); err == nil {
				d.gauge.SetQueueLength(int(n))
			}
		}
		if d.opts.DryRun {
			// Nothing was built, so the queue would not change.
			break
		}
	}
	span.SetAttributes(attribute.Int("process.waves", sum.Waves), attribute.Int("process.planned", sum.Planned))
	return nil
}

// wave returns the queued files at the lowest data level. The queue is in
// level order after Clean; a dry run sorts its own copy.
func (d *Driver) wave(dbc dbctx.Context) ([]types.QueueItem, error) {
	all, err := d.cat.Queue().List(dbc)
	if err != nil {
		return nil, err
	}
	var (
		out   []types.QueueItem
		level float64
	)
	for _, it := range all {
		f, err := d.cat.GetFile(dbc, it.FileID)
		if err != nil {
			return nil, err
		}
		switch {
		case len(out) == 0 || f.DataLevel < level:
			if len(out) > 0 && !d.opts.DryRun {
				// Clean orders by level, so only a dry run reaches here.
				d.log.Warn("Queue out of level order", "file_id", it.FileID)
			}
			out = append(out[:0], it)
			level = f.DataLevel
		case f.DataLevel == level:
			out = append(out, it)
		}
	}
	return out, nil
}

// plansForFile plans every child process of the queued file for every
// output date the file takes part in.
func (d *Driver) plansForFile(dbc dbctx.Context, it types.QueueItem) ([]*planner.Plan, error) {
	f, err := d.cat.GetFile(dbc, it.FileID)
	if err != nil {
		return nil, err
	}
	procs, err := d.cat.GetChildrenProcesses(dbc, f.FileID)
	if err != nil {
		return nil, err
	}
	log := d.log.With("file_id", f.FileID, "filename", f.Filename)
	if len(procs) == 0 {
		log.Debug("No child processes")
		return nil, nil
	}
	var plans []*planner.Plan
	for _, proc := range procs {
		dates, err := planner.OutputDates(dbc, d.cat, proc, f)
		if err != nil {
			return nil, err
		}
		for _, day := range dates {
			p, err := d.planDate(dbc, proc, day, f, it.VersionBump)
			if err != nil {
				if canceled(err) {
					return nil, err
				}
				log.Error("Could not plan", "process", proc.ProcessName, "date", day.Format("2006-01-02"), "error", err)
				continue
			}
			if p != nil {
				plans = append(plans, p)
			}
		}
	}
	return plans, nil
}

func (d *Driver) planOptions(bump *int) planner.Options {
	return planner.Options{Force: d.opts.Force, VersionBump: bump, RunDir: d.opts.RunDir}
}

func (d *Driver) execute(ctx context.Context, dbc dbctx.Context, plans []*planner.Plan, sum *Summary) error {
	runnable, _ := runner.Schedule(plans)
	sum.Planned += len(runnable)
	if d.opts.DryRun {
		for _, p := range runnable {
			cmd := p.CommandLine()
			sum.Commands = append(sum.Commands, cmd)
			d.log.Info("Would run", "filename", p.Filename, "command", strings.Join(cmd, " "))
		}
		return nil
	}
	s, err := d.runner.Run(ctx, dbc, plans)
	sum.Build.Add(s)
	return err
}
