package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/dbprocessing/internal/data/repos"
	"github.com/yungbote/dbprocessing/internal/data/repos/testutil"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/ingestion"
	"github.com/yungbote/dbprocessing/internal/inspector"
	"github.com/yungbote/dbprocessing/internal/jobs/planner"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/services"
)

type buildMetrics struct {
	mu     sync.Mutex
	counts map[string]int
}

func (m *buildMetrics) ObserveBuild(result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counts == nil {
		m.counts = map[string]int{}
	}
	m.counts[result]++
}

type runFixture struct {
	cat  services.CatalogService
	dbc  dbctx.Context
	root string
	proc *types.Process
}

func newRunFixture(t *testing.T) *runFixture {
	t.Helper()
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	cat, err := services.NewCatalogService(db, log, repos.NewSet(db, log, 0))
	require.NoError(t, err)
	root := t.TempDir()
	testutil.SeedTree(t, ctx, db, root)
	proc := testutil.SeedProcess(t, ctx, db, "trigger", nil, types.TimebaseRun)
	return &runFixture{cat: cat, dbc: dbctx.Context{Ctx: ctx}, root: root, proc: proc}
}

func (fx *runFixture) runner(t *testing.T, numProc int, m Metrics) *Runner {
	t.Helper()
	log := testutil.Logger(t)
	ing := ingestion.New(fx.cat, inspector.NewRegistry(), log, nil)
	return New(fx.cat, ing, log, numProc, m)
}

func script(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "code.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func runPlan(t *testing.T, fx *runFixture, code string, day time.Time, args ...string) *planner.Plan {
	t.Helper()
	return &planner.Plan{
		Date:      day,
		Process:   fx.proc,
		Code:      &types.Code{CodeID: 1, Filename: filepath.Base(code)},
		Filename:  fmt.Sprintf("RUN_%s_%d", fx.proc.ProcessName, fx.proc.ProcessID),
		DataLevel: planner.RunLevel,
		AbleToRun: true,
		CodePath:  code,
		Args:      args,
		OutputDir: filepath.Join(t.TempDir(), "run-"+day.Format("20060102")),
	}
}

func TestScheduleOrdersAndDedupes(t *testing.T) {
	mk := func(name string, level float64, able bool) *planner.Plan {
		return &planner.Plan{Filename: name, DataLevel: level, AbleToRun: able, Process: &types.Process{OutputTimebase: types.TimebaseDaily}}
	}
	plans := []*planner.Plan{
		mk("b_l1", 1, true),
		mk("a_l2", 2, true),
		mk("z_l0", 0, true),
		mk("b_l1", 1, true),
		mk("never", 0, false),
		nil,
	}
	runnable, dropped := Schedule(plans)
	var names []string
	for _, p := range runnable {
		names = append(names, p.Filename)
	}
	require.Equal(t, []string{"z_l0", "b_l1", "a_l2"}, names)
	require.Len(t, dropped, 2)
}

func TestScheduleKeepsTriggeredRunPerDate(t *testing.T) {
	proc := &types.Process{OutputTimebase: types.TimebaseRun}
	d := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	plans := []*planner.Plan{
		{Filename: "RUN_x_1", Date: d, AbleToRun: true, Process: proc},
		{Filename: "RUN_x_1", Date: d.AddDate(0, 0, 1), AbleToRun: true, Process: proc},
		{Filename: "RUN_x_1", Date: d, AbleToRun: true, Process: proc},
	}
	runnable, dropped := Schedule(plans)
	require.Len(t, runnable, 2)
	require.Len(t, dropped, 1)
}

func TestRunCapsConcurrency(t *testing.T) {
	fx := newRunFixture(t)
	live := t.TempDir()
	peak := filepath.Join(t.TempDir(), "peak.log")
	code := script(t, fmt.Sprintf(`touch %[1]s/$$
ls %[1]s | wc -l >> %[2]s
sleep 0.3
rm %[1]s/$$`, live, peak))

	var plans []*planner.Plan
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 7; i++ {
		plans = append(plans, runPlan(t, fx, code, base.AddDate(0, 0, i)))
	}
	m := &buildMetrics{}
	sum, err := fx.runner(t, 3, m).Run(context.Background(), fx.dbc, plans)
	require.NoError(t, err)
	require.Equal(t, Summary{Succeeded: 7}, sum)
	require.Equal(t, 7, m.counts["success"])

	raw, err := os.ReadFile(peak)
	require.NoError(t, err)
	lines := strings.Fields(string(raw))
	require.Len(t, lines, 7)
	for _, l := range lines {
		n, err := strconv.Atoi(l)
		require.NoError(t, err)
		require.LessOrEqual(t, n, 3)
	}
	for _, p := range plans {
		_, err := os.Stat(p.OutputDir)
		require.True(t, os.IsNotExist(err), "run directory removed after success")
	}
}

func TestRunFailureSavesProbLog(t *testing.T) {
	fx := newRunFixture(t)
	code := script(t, `echo "bad input $1" >&2
exit 3`)
	p := runPlan(t, fx, code, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), "--flag")

	m := &buildMetrics{}
	sum, err := fx.runner(t, 1, m).Run(context.Background(), fx.dbc, []*planner.Plan{p})
	require.NoError(t, err)
	require.Equal(t, Summary{Failed: 1}, sum)
	require.Equal(t, 1, m.counts["failure"])

	raw, err := os.ReadFile(filepath.Join(fx.root, "errors", p.Filename+".prob"))
	require.NoError(t, err)
	require.Contains(t, string(raw), "command: "+code+" --flag")
	require.Contains(t, string(raw), "bad input --flag")

	st, err := os.Stat(p.OutputDir)
	require.NoError(t, err, "run directory kept after failure")
	require.True(t, st.IsDir())
}

func TestRunMissingCodeCountsFailure(t *testing.T) {
	fx := newRunFixture(t)
	p := runPlan(t, fx, filepath.Join(t.TempDir(), "absent.sh"), time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))
	sum, err := fx.runner(t, 2, nil).Run(context.Background(), fx.dbc, []*planner.Plan{p})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Failed)
}
