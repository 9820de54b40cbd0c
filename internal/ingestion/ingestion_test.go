package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/dbprocessing/internal/data/repos"
	"github.com/yungbote/dbprocessing/internal/data/repos/testutil"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/inspector"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
	"github.com/yungbote/dbprocessing/internal/services"
)

type countingMetrics map[string]int

func (m countingMetrics) ObserveIngest(result string) { m[result]++ }

type ingestFixture struct {
	cat     services.CatalogService
	dbc     dbctx.Context
	root    string
	tree    *testutil.Tree
	ing     *Ingester
	metrics countingMetrics
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	cat, err := services.NewCatalogService(db, log, repos.NewSet(db, log, 0))
	require.NoError(t, err)
	root := t.TempDir()
	tree := testutil.SeedTree(t, ctx, db, root)
	m := countingMetrics{}
	return &ingestFixture{
		cat:     cat,
		dbc:     dbctx.Context{Ctx: ctx},
		root:    root,
		tree:    tree,
		ing:     New(cat, inspector.NewRegistry(), log, m),
		metrics: m,
	}
}

func (fx *ingestFixture) product(t *testing.T, name, format, rel string, level float64, inspArgs string) *types.Product {
	t.Helper()
	p := &types.Product{
		ProductName:  name,
		InstrumentID: fx.tree.Instrument.InstrumentID,
		RelativePath: rel,
		Level:        level,
		Format:       format,
	}
	require.NoError(t, fx.cat.AddProduct(fx.dbc, p))
	insp := &types.Inspector{
		Filename:         inspector.TemplateName,
		InterfaceVersion: 1,
		ActiveCode:       true,
		NewestVersion:    true,
		ProductID:        p.ProductID,
	}
	if inspArgs != "" {
		insp.Arguments = &inspArgs
	}
	require.NoError(t, fx.cat.AddInspector(fx.dbc, insp))
	return p
}

func (fx *ingestFixture) drop(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(fx.root, "incoming", name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestIngestFreshLevelZero(t *testing.T) {
	fx := newIngestFixture(t)
	prod := fx.product(t, "testDB_001", "testDB_{nnn}_{nnn}.raw", "L0", 0, "date=2010-01-01")
	src := fx.drop(t, "testDB_000_000.raw", "payload")

	sum, err := fx.ing.IngestAll(context.Background(), fx.dbc)
	require.NoError(t, err)
	require.Equal(t, Summary{Scanned: 1, Ingested: 1, Bytes: 7}, sum)

	f, err := fx.cat.GetFile(fx.dbc, "testDB_000_000.raw")
	require.NoError(t, err)
	require.Equal(t, prod.ProductID, f.ProductID)
	require.Equal(t, version.New(1, 0, 0), f.Version())
	require.True(t, f.NewestVersion)
	require.True(t, f.ExistsOnDisk)
	require.NotNil(t, f.Shasum)

	dest := filepath.Join(fx.root, "L0", "testDB_000_000.raw")
	_, err = os.Stat(dest)
	require.NoError(t, err)
	_, err = os.Stat(src)
	require.True(t, os.IsNotExist(err))

	full, err := fx.cat.GetFileFullPath(fx.dbc, f.FileID)
	require.NoError(t, err)
	require.Equal(t, dest, full)

	queued, err := fx.cat.Queue().GetAll(fx.dbc)
	require.NoError(t, err)
	require.Equal(t, []int64{f.FileID}, queued)
	require.Equal(t, 1, fx.metrics["ingested"])

	again, err := fx.ing.IngestAll(context.Background(), fx.dbc)
	require.NoError(t, err)
	require.Equal(t, Summary{}, again)
}

func TestIngestNewerVersionTakesNewest(t *testing.T) {
	fx := newIngestFixture(t)
	fx.product(t, "daily", "daily_{Y}{m}{d}_v{VERSION}.dat", "L0/{Y}", 0, "")
	fx.drop(t, "daily_20240301_v1.0.0.dat", "a")
	_, err := fx.ing.IngestAll(context.Background(), fx.dbc)
	require.NoError(t, err)
	fx.drop(t, "daily_20240301_v1.0.1.dat", "b")
	_, err = fx.ing.IngestAll(context.Background(), fx.dbc)
	require.NoError(t, err)

	old, err := fx.cat.GetFile(fx.dbc, "daily_20240301_v1.0.0.dat")
	require.NoError(t, err)
	require.False(t, old.NewestVersion)
	cur, err := fx.cat.GetFile(fx.dbc, "daily_20240301_v1.0.1.dat")
	require.NoError(t, err)
	require.True(t, cur.NewestVersion)
	_, err = os.Stat(filepath.Join(fx.root, "L0", "2024", "daily_20240301_v1.0.1.dat"))
	require.NoError(t, err)
}

func TestIngestRejectsToErrorDir(t *testing.T) {
	fx := newIngestFixture(t)
	fx.product(t, "daily", "daily_{Y}{m}{d}_v{VERSION}.dat", "L0", 0, "")
	fx.drop(t, "unknown.bin", "?")
	fx.drop(t, "daily_20240301_v1.0.0.dat", "a")

	sum, err := fx.ing.IngestAll(context.Background(), fx.dbc)
	require.NoError(t, err)
	require.Equal(t, 2, sum.Scanned)
	require.Equal(t, 1, sum.Ingested)
	require.Equal(t, 1, sum.Rejected)
	_, err = os.Stat(filepath.Join(fx.root, "errors", "unknown.bin"))
	require.NoError(t, err)

	_, err = fx.ing.IngestFile(context.Background(), fx.dbc, fx.drop(t, "copy_daily_20240301_v1.0.0.dat", "x"), nil)
	require.ErrorIs(t, err, dperrors.ErrIngestReject)
	_, err = os.Stat(filepath.Join(fx.root, "errors", "copy_daily_20240301_v1.0.0.dat"))
	require.NoError(t, err)
	require.Equal(t, 2, fx.metrics["rejected"])
}

func TestIngestDuplicateVersionRejected(t *testing.T) {
	fx := newIngestFixture(t)
	fx.product(t, "daily", "{PRODUCT}_{Y}{m}{d}.dat", "L0", 0, "version=1.0.0")
	fx.drop(t, "daily_20240301.dat", "a")
	_, err := fx.ing.IngestAll(context.Background(), fx.dbc)
	require.NoError(t, err)

	// A second drop of the same name and version collides on insert.
	fx.drop(t, "daily_20240301.dat", "b")
	sum, err := fx.ing.IngestAll(context.Background(), fx.dbc)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Rejected)
	_, err = os.Stat(filepath.Join(fx.root, "errors", "daily_20240301.dat"))
	require.NoError(t, err)
	b, err := os.ReadFile(filepath.Join(fx.root, "L0", "daily_20240301.dat"))
	require.NoError(t, err)
	require.Equal(t, "a", string(b))
}

func TestIngestWithProvenance(t *testing.T) {
	fx := newIngestFixture(t)
	ctx := context.Background()
	in := fx.product(t, "in", "in_{Y}{m}{d}_v{VERSION}.dat", "L0", 0, "")
	out := fx.product(t, "out", "out_{Y}{m}{d}_v{VERSION}.dat", "L1", 1, "")
	proc := &types.Process{ProcessName: "in2out", OutputProduct: &out.ProductID, OutputTimebase: types.TimebaseDaily}
	require.NoError(t, fx.cat.AddProcess(fx.dbc, proc))
	require.NoError(t, fx.cat.AddProductProcessLink(fx.dbc, &types.ProductProcessLink{InputProductID: in.ProductID, ProcessID: proc.ProcessID}))
	code := testutil.SeedCode(t, ctx, fx.cat.DB(), proc.ProcessID, "run.sh", version.New(1, 0, 0), 1)

	parent, err := fx.ing.IngestFile(ctx, fx.dbc, fx.drop(t, "in_20240301_v1.0.0.dat", "i"), nil)
	require.NoError(t, err)
	child, err := fx.ing.IngestFile(ctx, fx.dbc, fx.drop(t, "out_20240301_v1.0.0.dat", "o"), &Provenance{
		Parents: []int64{parent.FileID},
		CodeID:  code.CodeID,
	})
	require.NoError(t, err)
	require.Equal(t, float64(1), child.DataLevel)

	parents, err := fx.cat.GetFileParents(fx.dbc, child.FileID)
	require.NoError(t, err)
	require.Len(t, parents, 1)
	require.Equal(t, parent.FileID, parents[0].FileID)
	madeBy, err := fx.cat.GetFileCode(fx.dbc, child.FileID)
	require.NoError(t, err)
	require.Equal(t, code.CodeID, madeBy.CodeID)

	queued, err := fx.cat.Queue().GetAll(fx.dbc)
	require.NoError(t, err)
	require.Equal(t, []int64{parent.FileID, child.FileID}, queued)
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"/b/x.dat", "/a/x.dat", "/a/y.dat"})
	require.Equal(t, []string{"/a/x.dat", "/a/y.dat"}, got)
}
