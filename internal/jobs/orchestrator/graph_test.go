package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/yungbote/dbprocessing/internal/data/repos"
	"github.com/yungbote/dbprocessing/internal/data/repos/testutil"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	dperrors "github.com/yungbote/dbprocessing/internal/pkg/errors"
	"github.com/yungbote/dbprocessing/internal/services"
)

func TestOrderStable(t *testing.T) {
	nodes := []Node{
		{Name: "c", Deps: []string{"b"}},
		{Name: "a"},
		{Name: "b", Deps: []string{"a"}},
	}
	got, err := Order(nodes)
	if err != nil {
		t.Fatalf("Order: %v", err)
	}
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order: want=%v got=%v", want, got)
		}
	}
}

func TestOrderRejects(t *testing.T) {
	cases := []struct {
		name  string
		nodes []Node
		want  error
	}{
		{"cycle", []Node{{Name: "a", Deps: []string{"b"}}, {Name: "b", Deps: []string{"a"}}}, dperrors.ErrCatalogInconsistent},
		{"unknown dep", []Node{{Name: "a", Deps: []string{"zzz"}}}, dperrors.ErrCatalogInconsistent},
		{"duplicate", []Node{{Name: "a"}, {Name: "a"}}, dperrors.ErrInvalidArgument},
		{"empty name", []Node{{Name: " "}}, dperrors.ErrInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Order(tc.nodes); !errors.Is(err, tc.want) {
				t.Fatalf("want=%v got=%v", tc.want, err)
			}
		})
	}
}

func TestValidateCatalog(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	log := testutil.Logger(t)
	cat, err := services.NewCatalogService(db, log, repos.NewSet(db, log, 0))
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	tree := testutil.SeedTree(t, ctx, tx, t.TempDir())
	p0 := testutil.SeedProduct(t, ctx, tx, tree.Instrument.InstrumentID, "p0", "p0_{DATE}.dat", "L0", 0)
	p1 := testutil.SeedProduct(t, ctx, tx, tree.Instrument.InstrumentID, "p1", "p1_{DATE}.dat", "L1", 1)
	testutil.SeedProcess(t, ctx, tx, "p0top1", &p1.ProductID, types.TimebaseDaily, p0.ProductID)
	if err := ValidateCatalog(dbc, cat); err != nil {
		t.Fatalf("acyclic catalog: %v", err)
	}

	testutil.SeedProcess(t, ctx, tx, "p1top0", &p0.ProductID, types.TimebaseDaily, p1.ProductID)
	if err := ValidateCatalog(dbc, cat); !errors.Is(err, dperrors.ErrCatalogInconsistent) {
		t.Fatalf("cyclic catalog: want ErrCatalogInconsistent got=%v", err)
	}
}
