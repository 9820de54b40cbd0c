package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/dbprocessing/internal/data/repos/testutil"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
)

func TestCodeRepoFindForDateAndRetire(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewCodeRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	tree := testutil.SeedTree(t, ctx, tx, t.TempDir())
	in := testutil.SeedProduct(t, ctx, tx, tree.Instrument.InstrumentID, "p0", "p0_{Y}{m}{d}.dat", "L0", 0)
	out := testutil.SeedProduct(t, ctx, tx, tree.Instrument.InstrumentID, "p1", "p1_{Y}{m}{d}.dat", "L1", 1)
	proc := testutil.SeedProcess(t, ctx, tx, "p0top1", &out.ProductID, types.TimebaseDaily, in.ProductID)

	old := testutil.SeedCode(t, ctx, tx, proc.ProcessID, "run_v1.sh", version.New(1, 0, 0), 1)
	day := time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
	got, err := repo.FindForDate(dbc, proc.ProcessID, day)
	if err != nil || len(got) != 1 || got[0].CodeID != old.CodeID {
		t.Fatalf("FindForDate: got=%v err=%v", got, err)
	}
	if got, _ := repo.FindForDate(dbc, proc.ProcessID, time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)); len(got) != 0 {
		t.Fatalf("FindForDate outside window: got=%v", got)
	}

	next := testutil.SeedCode(t, ctx, tx, proc.ProcessID, "run_v2.sh", version.New(1, 0, 1), 1)
	n, err := repo.RetireNewest(dbc, next)
	if err != nil || n != 1 {
		t.Fatalf("RetireNewest: n=%d err=%v", n, err)
	}
	got, err = repo.FindForDate(dbc, proc.ProcessID, day)
	if err != nil || len(got) != 1 || got[0].CodeID != next.CodeID {
		t.Fatalf("FindForDate after retire: got=%v err=%v", got, err)
	}
	retired, _ := repo.GetByID(dbc, old.CodeID)
	if retired.ActiveCode || retired.NewestVersion {
		t.Fatalf("retired code still active/newest: %+v", retired)
	}
	has, err := repo.HasVersion(dbc, proc.ProcessID, version.New(1, 0, 1))
	if err != nil || !has {
		t.Fatalf("HasVersion: has=%v err=%v", has, err)
	}
}

func TestCodeRepoRejectsNewestInactive(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()
	repo := NewCodeRepo(db, testutil.Logger(t))
	dbc := dbctx.Context{Ctx: ctx}

	tree := testutil.SeedTree(t, ctx, db, t.TempDir())
	out := testutil.SeedProduct(t, ctx, db, tree.Instrument.InstrumentID, "p1", "p1_{Y}{m}{d}.dat", "L1", 1)
	proc := testutil.SeedProcess(t, ctx, db, "make_p1", &out.ProductID, types.TimebaseDaily)
	bad := &types.Code{
		Filename:               "bad.sh",
		RelativePath:           "scripts",
		CodeStartDate:          time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		CodeStopDate:           time.Date(2001, 1, 1, 0, 0, 0, 0, time.UTC),
		ProcessID:              proc.ProcessID,
		InterfaceVersion:       1,
		OutputInterfaceVersion: 1,
		ActiveCode:             false,
		NewestVersion:          true,
		DateWritten:            time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := repo.Create(dbc, bad); err == nil {
		t.Fatalf("newest but inactive code should violate the check constraint")
	}
}
