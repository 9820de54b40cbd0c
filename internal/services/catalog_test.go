package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/dbprocessing/internal/data/repos"
	"github.com/yungbote/dbprocessing/internal/data/repos/testutil"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
)

type catalogFixture struct {
	cat  CatalogService
	dbc  dbctx.Context
	tx   *gorm.DB
	root string
	tree *testutil.Tree
	p0   *types.Product
	p1   *types.Product
	proc *types.Process
}

func newCatalogFixture(t *testing.T) *catalogFixture {
	t.Helper()
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)
	cat, err := NewCatalogService(db, log, repos.NewSet(db, log, 0))
	require.NoError(t, err)

	root := t.TempDir()
	tree := testutil.SeedTree(t, ctx, tx, root)
	p0 := testutil.SeedProduct(t, ctx, tx, tree.Instrument.InstrumentID, "{SATELLITE}_p0", "p0_{Y}{m}{d}_v{VERSION}.dat", "L0/{Y}", 0)
	p1 := testutil.SeedProduct(t, ctx, tx, tree.Instrument.InstrumentID, "p1", "p1_{Y}{m}{d}_v{VERSION}.dat", "L1", 1)
	proc := testutil.SeedProcess(t, ctx, tx, "p0top1", &p1.ProductID, types.TimebaseDaily, p0.ProductID)
	return &catalogFixture{
		cat:  cat,
		dbc:  dbctx.Context{Ctx: ctx, Tx: tx},
		tx:   tx,
		root: root,
		tree: tree,
		p0:   p0,
		p1:   p1,
		proc: proc,
	}
}

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func TestCatalogGetEntryByIDAndName(t *testing.T) {
	fx := newCatalogFixture(t)

	got, err := fx.cat.GetEntry(fx.dbc, "product", fx.p1.ProductID)
	require.NoError(t, err)
	require.Equal(t, "p1", got.(*types.Product).ProductName)

	byName, err := fx.cat.GetProcess(fx.dbc, "p0top1")
	require.NoError(t, err)
	require.Equal(t, fx.proc.ProcessID, byName.ProcessID)

	byNumericString, err := fx.cat.GetProduct(fx.dbc, strconv.FormatInt(fx.p0.ProductID, 10))
	require.NoError(t, err)
	require.Equal(t, fx.p0.ProductID, byNumericString.ProductID)

	_, err = fx.cat.GetProduct(fx.dbc, "nope")
	require.ErrorIs(t, err, dperrors.ErrCatalogMissing)
	_, err = fx.cat.GetEntry(fx.dbc, "bogus", 1)
	require.ErrorIs(t, err, dperrors.ErrInvalidArgument)
}

func TestCatalogTracebackFields(t *testing.T) {
	fx := newCatalogFixture(t)
	code := testutil.SeedCode(t, fx.dbc.Ctx, fx.tx, fx.proc.ProcessID, "run.sh", version.New(2, 0, 0), 2)

	tb, err := fx.cat.GetTraceback(fx.dbc, "code", code.CodeID)
	require.NoError(t, err)
	require.Equal(t, fx.proc.ProcessID, tb.Process.ProcessID)
	require.Equal(t, fx.p1.ProductID, tb.Product.ProductID)
	require.Len(t, tb.InputProducts, 1)
	require.Equal(t, fx.p0.ProductID, tb.InputProducts[0].ProductID)

	f := tb.Fields()
	require.Equal(t, "testmission", f["MISSION"])
	require.Equal(t, "testmission-a", f["SATELLITE"])
	require.Equal(t, "rot13", f["INSTRUMENT"])
	require.Equal(t, "p1", f["PRODUCT"])
	require.Equal(t, version.New(2, 0, 0), f["CODEVERSION"])
	require.Equal(t, filepath.Join(fx.root, "codes"), f["CODEDIR"])

	ptb, err := fx.cat.GetTraceback(fx.dbc, "product", fx.p0.ProductID)
	require.NoError(t, err)
	require.Equal(t, "testmission-a_p0", ptb.Fields()["PRODUCT"])

	path, err := fx.cat.GetCodePath(fx.dbc, code)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(fx.root, "codes", "scripts", "run.sh"), path)
}

func TestCatalogFileDatesAndFullPath(t *testing.T) {
	fx := newCatalogFixture(t)
	f := &types.File{
		Filename:     "p0_20240301_v1.0.0.dat",
		UTCFileDate:  day(2024, 3, 1),
		UTCStartTime: time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC),
		UTCStopTime:  time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC),
		ProductID:    fx.p0.ProductID,
		ExistsOnDisk: true,
	}
	f.SetVersion(version.New(1, 0, 0))
	require.NoError(t, fx.cat.AddFile(fx.dbc, f))

	dates, err := fx.cat.GetFileDates(fx.dbc, f.FileID)
	require.NoError(t, err)
	require.Equal(t, []time.Time{day(2024, 3, 1), day(2024, 3, 2)}, dates)

	path, err := fx.cat.GetFileFullPath(fx.dbc, f.FileID)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(fx.root, "L0", "2024", f.Filename), path)

	bad := &types.File{Filename: "x", ProductID: fx.p0.ProductID}
	require.ErrorIs(t, fx.cat.AddFile(fx.dbc, bad), dperrors.ErrInvalidArgument)
}

func TestCatalogUpdateNewestPerGroup(t *testing.T) {
	fx := newCatalogFixture(t)
	ctx := fx.dbc.Ctx
	d := day(2024, 3, 1)
	a := testutil.SeedFile(t, ctx, fx.tx, fx.p0.ProductID, "a_v1.0.0", d, version.New(1, 0, 0), true)
	b := testutil.SeedFile(t, ctx, fx.tx, fx.p0.ProductID, "a_v1.0.1", d, version.New(1, 0, 1), true)
	other := testutil.SeedFile(t, ctx, fx.tx, fx.p0.ProductID, "b_v1.0.0", day(2024, 3, 2), version.New(1, 0, 0), true)

	require.NoError(t, fx.cat.UpdateNewest(fx.dbc, fx.p0.ProductID, d))

	newest, err := fx.cat.FileIsNewest(fx.dbc, b.FileID)
	require.NoError(t, err)
	require.True(t, newest)
	stale, err := fx.cat.GetFile(fx.dbc, a.FileID)
	require.NoError(t, err)
	require.False(t, stale.NewestVersion)
	untouched, err := fx.cat.GetFile(fx.dbc, other.FileID)
	require.NoError(t, err)
	require.True(t, untouched.NewestVersion)

	got, err := fx.cat.GetFilesByProductDate(fx.dbc, fx.p0.ProductID, d, day(2024, 3, 2), true)
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestCatalogCodeFromProcess(t *testing.T) {
	fx := newCatalogFixture(t)
	d := day(2024, 3, 1)

	code, err := fx.cat.GetCodeFromProcess(fx.dbc, fx.proc.ProcessID, d)
	require.NoError(t, err)
	require.Nil(t, code)

	mk := func(name string, v version.Version, start, stop time.Time) *types.Code {
		c := &types.Code{
			Filename:               name,
			RelativePath:           "scripts",
			CodeStartDate:          start,
			CodeStopDate:           stop,
			ProcessID:              fx.proc.ProcessID,
			InterfaceVersion:       v.Interface,
			QualityVersion:         v.Quality,
			RevisionVersion:        v.Revision,
			OutputInterfaceVersion: 1,
			NewestVersion:          true,
		}
		require.NoError(t, fx.cat.AddCode(fx.dbc, c))
		return c
	}
	early := mk("early.sh", version.New(1, 0, 0), day(2000, 1, 1), day(2009, 12, 31))
	v1 := mk("run_v1.sh", version.New(1, 0, 1), day(2010, 1, 1), day(2099, 1, 1))
	v2 := mk("run_v2.sh", version.New(1, 1, 0), day(2010, 1, 1), day(2099, 1, 1))

	code, err = fx.cat.GetCodeFromProcess(fx.dbc, fx.proc.ProcessID, d)
	require.NoError(t, err)
	require.Equal(t, v2.CodeID, code.CodeID)

	old, err := fx.cat.GetCode(fx.dbc, v1.CodeID)
	require.NoError(t, err)
	require.False(t, old.ActiveCode)
	require.False(t, old.NewestVersion)

	// Disjoint validity windows are not rolled forward.
	code, err = fx.cat.GetCodeFromProcess(fx.dbc, fx.proc.ProcessID, day(2005, 6, 1))
	require.NoError(t, err)
	require.Equal(t, early.CodeID, code.CodeID)

	dup := &types.Code{
		Filename:               "dup.sh",
		RelativePath:           "scripts",
		CodeStartDate:          day(2010, 1, 1),
		CodeStopDate:           day(2099, 1, 1),
		ProcessID:              fx.proc.ProcessID,
		InterfaceVersion:       1,
		QualityVersion:         1,
		OutputInterfaceVersion: 1,
	}
	require.ErrorIs(t, fx.cat.AddCode(fx.dbc, dup), dperrors.ErrCatalogInconsistent)
}

func TestCatalogCodeFromProcessRejectsAmbiguity(t *testing.T) {
	fx := newCatalogFixture(t)
	testutil.SeedCode(t, fx.dbc.Ctx, fx.tx, fx.proc.ProcessID, "a.sh", version.New(1, 0, 0), 1)
	testutil.SeedCode(t, fx.dbc.Ctx, fx.tx, fx.proc.ProcessID, "b.sh", version.New(1, 0, 1), 1)

	_, err := fx.cat.GetCodeFromProcess(fx.dbc, fx.proc.ProcessID, day(2024, 1, 1))
	require.ErrorIs(t, err, dperrors.ErrCatalogInconsistent)
}

func TestCatalogLock(t *testing.T) {
	fx := newCatalogFixture(t)
	run := DefaultRunInfo()

	row, err := fx.cat.StartLogging(fx.dbc, run)
	require.NoError(t, err)
	require.True(t, row.CurrentlyProcessing)

	_, err = fx.cat.StartLogging(fx.dbc, DefaultRunInfo())
	require.ErrorIs(t, err, dperrors.ErrLockHeld)
	var held *LockHeldError
	require.True(t, errors.As(err, &held))
	require.Equal(t, run.PID, held.PID)
	require.NotNil(t, held.Alive)
	require.True(t, *held.Alive)

	require.NoError(t, fx.cat.StopLogging(fx.dbc, row.LoggingID, "done", map[string]int{"ingested": 1}))
	next, err := fx.cat.StartLogging(fx.dbc, run)
	require.NoError(t, err)

	_, err = fx.cat.ResetProcessingFlag(fx.dbc, "")
	require.ErrorIs(t, err, dperrors.ErrInvalidArgument)
	n, err := fx.cat.ResetProcessingFlag(fx.dbc, "crashed")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	active, err := fx.cat.GetActiveLocks(fx.dbc)
	require.NoError(t, err)
	require.Empty(t, active)
	require.NotEqual(t, row.LoggingID, next.LoggingID)
}

func TestCatalogPurgeAndCheckOnDisk(t *testing.T) {
	fx := newCatalogFixture(t)
	ctx := fx.dbc.Ctx
	d := day(2024, 3, 1)
	older := testutil.SeedFile(t, ctx, fx.tx, fx.p1.ProductID, "p1_20240301_v1.0.0.dat", d, version.New(1, 0, 0), false)
	newer := testutil.SeedFile(t, ctx, fx.tx, fx.p1.ProductID, "p1_20240301_v1.0.1.dat", d, version.New(1, 0, 1), true)

	path, err := fx.cat.GetFileFullPath(fx.dbc, newer.FileID)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	missingIDs, err := fx.cat.CheckFilesOnDisk(fx.dbc, fx.p1.ProductID)
	require.NoError(t, err)
	require.Equal(t, []int64{older.FileID}, missingIDs)
	fixed, err := fx.cat.GetFile(fx.dbc, older.FileID)
	require.NoError(t, err)
	require.False(t, fixed.ExistsOnDisk)

	n, err := fx.cat.TagRelease(fx.dbc, []int64{older.FileID, newer.FileID}, "1")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	require.NoError(t, fx.cat.PurgeFile(fx.dbc, newer.FileID, true))
	_, err = os.Stat(path)
	require.True(t, os.IsNotExist(err))
	_, err = fx.cat.GetFile(fx.dbc, newer.FileID)
	require.ErrorIs(t, err, dperrors.ErrCatalogMissing)

	promoted, err := fx.cat.FileIsNewest(fx.dbc, older.FileID)
	require.NoError(t, err)
	require.True(t, promoted)
	rel, err := fx.cat.GetRelease(fx.dbc, "1")
	require.NoError(t, err)
	require.Len(t, rel, 1)

	require.NoError(t, fx.cat.RenameFile(fx.dbc, older.FileID, "renamed.dat", false))
	renamed, err := fx.cat.GetFile(fx.dbc, "renamed.dat")
	require.NoError(t, err)
	require.Equal(t, older.FileID, renamed.FileID)
}

func TestCatalogRolledBackRowsAreNotCached(t *testing.T) {
	db := testutil.DB(t)
	log := testutil.Logger(t)
	cat, err := NewCatalogService(db, log, repos.NewSet(db, log, 0))
	require.NoError(t, err)
	ctx := context.Background()

	rollback := errors.New("roll back")
	var tree *testutil.Tree
	err = cat.InTx(ctx, func(dbc dbctx.Context) error {
		tree = testutil.SeedTree(t, ctx, dbc.Tx, t.TempDir())
		m, err := cat.GetMission(dbc, tree.Mission.MissionID)
		require.NoError(t, err)
		require.Equal(t, tree.Mission.MissionName, m.MissionName)
		_, err = cat.GetInstrument(dbc, tree.Instrument.InstrumentID)
		require.NoError(t, err)
		return rollback
	})
	require.ErrorIs(t, err, rollback)

	dbc := dbctx.Context{Ctx: ctx}
	_, err = cat.GetMission(dbc, tree.Mission.MissionID)
	require.ErrorIs(t, err, dperrors.ErrCatalogMissing)
	_, err = cat.GetInstrument(dbc, tree.Instrument.InstrumentID)
	require.ErrorIs(t, err, dperrors.ErrCatalogMissing)
}
