package inspector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/dbprocessing/internal/data/repos"
	"github.com/yungbote/dbprocessing/internal/data/repos/testutil"
	"github.com/yungbote/dbprocessing/internal/diskfile"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
	"github.com/yungbote/dbprocessing/internal/services"
)

func TestParseArgs(t *testing.T) {
	got, err := ParseArgs("  version=2.0.0\tdate=20240301  flag= ")
	require.NoError(t, err)
	require.Equal(t, Args{"version": "2.0.0", "date": "20240301", "flag": ""}, got)

	_, err = ParseArgs("version")
	require.ErrorIs(t, err, dperrors.ErrInvalidArgument)
	_, err = ParseArgs("=x")
	require.Error(t, err)
}

type inspectorFixture struct {
	cat  services.CatalogService
	dbc  dbctx.Context
	root string
	prod *types.Product
}

func newInspectorFixture(t *testing.T) *inspectorFixture {
	t.Helper()
	db := testutil.DB(t)
	ctx := context.Background()
	log := testutil.Logger(t)
	cat, err := services.NewCatalogService(db, log, repos.NewSet(db, log, 0))
	require.NoError(t, err)
	root := t.TempDir()
	tree := testutil.SeedTree(t, ctx, db, root)
	prod := testutil.SeedProduct(t, ctx, db, tree.Instrument.InstrumentID, "testDB_001", "testDB_{nnn}_{nnn}.raw", "L0", 0)
	return &inspectorFixture{cat: cat, dbc: dbctx.Context{Ctx: ctx}, root: root, prod: prod}
}

func TestTemplateInspector(t *testing.T) {
	fx := newInspectorFixture(t)
	insp := Template()
	req := Request{
		Path:      filepath.Join(fx.root, "incoming", "testDB_000_000.raw"),
		ProductID: fx.prod.ProductID,
		Args:      Args{"date": "2010-01-02"},
		Catalog:   fx.cat,
		DBC:       fx.dbc,
	}
	p, err := insp.Inspect(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, "testDB_000_000.raw", p.Filename)
	require.Equal(t, version.New(1, 0, 0), p.Version)
	require.True(t, p.UTCFileDate.Equal(time.Date(2010, 1, 2, 0, 0, 0, 0, time.UTC)))
	require.Equal(t, "nnn=000", p.ProcessKeywords)
	require.False(t, p.UTCStopTime.Before(p.UTCStartTime))

	req.Path = filepath.Join(fx.root, "incoming", "other_000_000.raw")
	p, err = insp.Inspect(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, p)

	req.Path = filepath.Join(fx.root, "incoming", "testDB_000_000.raw")
	req.Args = Args{}
	p, err = insp.Inspect(context.Background(), req)
	require.NoError(t, err)
	require.Nil(t, p, "no date available should pass")
}

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
}

func TestExecInspectorProtocol(t *testing.T) {
	dir := t.TempDir()
	claim := filepath.Join(dir, "claim.sh")
	writeScript(t, claim, `case "$1" in
*.cdf) echo "{\"version\":\"1.2.3\",\"utc_file_date\":\"2024-03-01\",\"process_keywords\":\"$3\"}" ;;
esac
`)
	fail := filepath.Join(dir, "fail.sh")
	writeScript(t, fail, "echo boom >&2\nexit 3\n")

	log := testutil.Logger(t)
	p, err := Exec(claim, log).Inspect(context.Background(), Request{Path: "/x/a.cdf", ProductID: 7, Args: Args{"k": "v"}})
	require.NoError(t, err)
	require.NotNil(t, p)
	require.Equal(t, version.New(1, 2, 3), p.Version)
	require.Equal(t, "k=v", p.ProcessKeywords)

	p, err = Exec(claim, log).Inspect(context.Background(), Request{Path: "/x/a.txt", ProductID: 7})
	require.NoError(t, err)
	require.Nil(t, p)

	_, err = Exec(fail, log).Inspect(context.Background(), Request{Path: "/x/a.cdf"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "boom")
}

func TestIdentify(t *testing.T) {
	fx := newInspectorFixture(t)
	log := testutil.Logger(t)
	claimAll := Func(func(ctx context.Context, req Request) (*diskfile.Params, error) {
		return &diskfile.Params{Version: version.New(1, 0, 0)}, nil
	})
	pass := Func(func(ctx context.Context, req Request) (*diskfile.Params, error) { return nil, nil })
	broken := Func(func(ctx context.Context, req Request) (*diskfile.Params, error) {
		return nil, errors.New("kaboom")
	})
	row := func(id int64) *types.Inspector {
		return &types.Inspector{InspectorID: id, Filename: "i", ProductID: fx.prod.ProductID}
	}

	c, err := Identify(context.Background(), fx.dbc, fx.cat, []Loaded{{Row: row(1), Impl: pass}, {Row: row(2), Impl: broken}}, "/in/a.dat", log)
	require.NoError(t, err)
	require.Nil(t, c)

	c, err = Identify(context.Background(), fx.dbc, fx.cat, []Loaded{{Row: row(1), Impl: pass}, {Row: row(2), Impl: claimAll}}, "/in/a.dat", log)
	require.NoError(t, err)
	require.Equal(t, int64(2), c.Inspector.InspectorID)
	require.Equal(t, "a.dat", c.Params.Filename)
	require.Equal(t, fx.prod.ProductID, c.Params.ProductID)

	_, err = Identify(context.Background(), fx.dbc, fx.cat, []Loaded{{Row: row(1), Impl: claimAll}, {Row: row(2), Impl: claimAll}}, "/in/a.dat", log)
	require.ErrorIs(t, err, ErrMultipleClaims)
	require.ErrorIs(t, err, dperrors.ErrCatalogInconsistent)
}

func TestRegistryLoad(t *testing.T) {
	fx := newInspectorFixture(t)
	log := testutil.Logger(t)
	add := func(filename, args string) {
		i := &types.Inspector{
			Filename:         filename,
			RelativePath:     "",
			InterfaceVersion: 1,
			ActiveCode:       true,
			ProductID:        fx.prod.ProductID,
		}
		if args != "" {
			i.Arguments = &args
		}
		require.NoError(t, fx.cat.AddInspector(fx.dbc, i))
	}
	add(TemplateName, "date=2010-01-01")
	add("external.sh", "")
	add("missing.sh", "")
	add("badargs.sh", "oops")
	writeScript(t, filepath.Join(fx.root, "inspectors", "external.sh"), "exit 0\n")

	loaded, err := NewRegistry().Load(fx.dbc, fx.cat, log)
	require.NoError(t, err)
	require.Len(t, loaded, 2)
	require.Equal(t, TemplateName, loaded[0].Row.Filename)
	require.Equal(t, "2010-01-01", loaded[0].Args["date"])
	require.Equal(t, "external.sh", loaded[1].Row.Filename)

	c, err := Identify(context.Background(), fx.dbc, fx.cat, loaded, filepath.Join(fx.root, "incoming", "testDB_001_001.raw"), log)
	require.NoError(t, err)
	require.NotNil(t, c)
	require.Equal(t, TemplateName, c.Inspector.Filename)
}
