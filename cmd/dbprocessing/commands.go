package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yungbote/dbprocessing/internal/app"
	"github.com/yungbote/dbprocessing/internal/jobs/driver"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
)

// --- Global Command Variables ---
var (
	catalogDSN  string
	configPath  string
	numProc     int
	metricsFile string
	logMode     string

	ingestOnly  bool
	processOnly bool
	force       bool
	dryRun      bool
	comment     string
	runDir      string
	maxWaves    int

	startDate string
	endDate   string

	rootCmd = &cobra.Command{
		Use:   "dbprocessing",
		Short: "Ingest incoming files and build every product that depends on them",
		Long: `dbprocessing ingests the mission's incoming directory into the catalog,
then drains the process queue level by level, running each product's code
and ingesting what it writes.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runProcessing,
	}

	runnerCmd = &cobra.Command{
		Use:   "runner <process>",
		Short: "Run one process for every day of a date range, ignoring the queue",
		Args:  cobra.ExactArgs(1),
		RunE:  runProcessRange,
	}
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&catalogDSN, "mission", "m", "", "catalog: sqlite file path or postgres:// URL (default $DBPROCESSING_DB)")
	pf.StringVar(&configPath, "config", "", "YAML config file (default $DBPROCESSING_CONFIG)")
	pf.IntVar(&numProc, "numproc", 0, "maximum concurrent child processes (default $DBPROCESSING_NUMPROC or 2)")
	pf.StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics to this textfile on exit")
	pf.StringVar(&logMode, "log-mode", "", "development or production logging")

	f := rootCmd.Flags()
	f.BoolVarP(&ingestOnly, "ingest-only", "i", false, "only ingest the incoming directory")
	f.BoolVarP(&processOnly, "process-only", "p", false, "only drain the process queue")
	addRunFlags(f)
	f.IntVar(&maxWaves, "max-waves", 0, "stop after this many queue waves (0 drains the queue)")
	rootCmd.MarkFlagsMutuallyExclusive("ingest-only", "process-only")

	rf := runnerCmd.Flags()
	rf.StringVarP(&startDate, "startdate", "s", "", "first day, YYYY-MM-DD or YYYYMMDD (required)")
	rf.StringVarP(&endDate, "enddate", "e", "", "last day (default: the start day)")
	addRunFlags(rf)
	_ = runnerCmd.MarkFlagRequired("startdate")

	rootCmd.AddCommand(runnerCmd)
	rootCmd.AddCommand(resetLockCmd)
	rootCmd.AddCommand(createDBCmd)
	rootCmd.AddCommand(migrateDBCmd)
	rootCmd.AddCommand(loadConfigCmd)
	rootCmd.AddCommand(queueCmd)
}

type flagSet interface {
	BoolVar(p *bool, name string, value bool, usage string)
	StringVar(p *string, name string, value string, usage string)
}

func addRunFlags(f flagSet) {
	f.BoolVar(&force, "force", false, "rebuild outputs even when nothing changed")
	f.BoolVar(&dryRun, "dryrun", false, "print the command lines without running or changing anything")
	f.StringVar(&comment, "comment", "", "comment recorded on the run's logging row")
	f.StringVar(&runDir, "run-dir", "", "parent of the per-run temporary directories (default $DBPROCESSING_RUN_DIR or the system temp dir)")
}

// openApp builds the app with command-line flags layered over the config.
func openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, configPath, func(cfg *app.Config) {
		if catalogDSN != "" {
			cfg.DB = catalogDSN
		}
		if numProc > 0 {
			cfg.NumProc = numProc
		}
		if metricsFile != "" {
			cfg.MetricsFile = metricsFile
		}
		if logMode != "" {
			cfg.LogMode = logMode
		}
		if runDir != "" {
			cfg.RunDir = runDir
		}
	})
}

// withApp opens the app, runs fn and closes the app on a context that
// survives cancellation of the command.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		a.Close(closeCtx)
	}()
	return fn(ctx, a)
}

func driverOptions() driver.Options {
	return driver.Options{
		IngestOnly:  ingestOnly,
		ProcessOnly: processOnly,
		DryRun:      dryRun,
		Force:       force,
		RunDir:      runDir,
		Comment:     comment,
		MaxWaves:    maxWaves,
	}
}

func runProcessing(cmd *cobra.Command, _ []string) error {
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		sum, err := a.Driver(driverOptions()).Run(ctx)
		printSummary(cmd, sum)
		return err
	})
}

func runProcessRange(cmd *cobra.Command, args []string) error {
	start, end, err := parseRange(startDate, endDate)
	if err != nil {
		return err
	}
	return withApp(cmd, func(ctx context.Context, a *app.App) error {
		proc, err := a.Catalog.GetProcess(dbcOf(ctx), args[0])
		if err != nil {
			return err
		}
		sum, err := a.Driver(driverOptions()).RunProcess(ctx, proc.ProcessID, start, end)
		printSummary(cmd, sum)
		return err
	})
}

func parseRange(start, end string) (time.Time, time.Time, error) {
	s, err := timeutil.ParseDay(start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad start date %q: %w", start, err)
	}
	if end == "" {
		return s, s, nil
	}
	e, err := timeutil.ParseDay(end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("bad end date %q: %w", end, err)
	}
	if e.Before(s) {
		return time.Time{}, time.Time{}, fmt.Errorf("end date %s is before start date %s", end, start)
	}
	return s, e, nil
}

func printSummary(cmd *cobra.Command, sum driver.Summary) {
	out := cmd.OutOrStdout()
	if sum.DryRun {
		for _, c := range sum.Commands {
			fmt.Fprintln(out, shellJoin(c))
		}
		fmt.Fprintf(out, "dry run: %d to ingest, %d planned\n", sum.Ingest.Scanned, sum.Planned)
		return
	}
	fmt.Fprintf(out, "ingested %d, rejected %d; built %d, failed %d, skipped %d in %d waves\n",
		sum.Ingest.Ingested, sum.Ingest.Rejected,
		sum.Build.Succeeded, sum.Build.Failed, sum.Build.Skipped, sum.Waves)
}

// shellJoin renders argv so it can be pasted into a POSIX shell.
func shellJoin(argv []string) string {
	parts := make([]string, len(argv))
	for i, a := range argv {
		if a != "" && !strings.ContainsAny(a, " \t\n'\"\\$`|&;<>()*?[]{}!#~") {
			parts[i] = a
			continue
		}
		parts[i] = "'" + strings.ReplaceAll(a, "'", `'\''`) + "'"
	}
	return strings.Join(parts, " ")
}
