package jobs

import (
	"context"
	"testing"
	"time"

	"github.com/yungbote/dbprocessing/internal/data/repos/testutil"
	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
)

func TestProcessQueuePushDedupAndIndexing(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	// Batch of 2 forces chunking across three files.
	repo := NewProcessQueueRepo(db, testutil.Logger(t), 2)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	tree := testutil.SeedTree(t, ctx, tx, t.TempDir())
	p := testutil.SeedProduct(t, ctx, tx, tree.Instrument.InstrumentID, "p0", "p0_{Y}{m}{d}.dat", "L0", 0)
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	a := testutil.SeedFile(t, ctx, tx, p.ProductID, "a.dat", d, version.New(1, 0, 0), true)
	b := testutil.SeedFile(t, ctx, tx, p.ProductID, "b.dat", d.AddDate(0, 0, 1), version.New(1, 0, 0), true)
	c := testutil.SeedFile(t, ctx, tx, p.ProductID, "c.dat", d.AddDate(0, 0, 2), version.New(1, 0, 0), true)

	added, err := repo.Push(dbc, []int64{a.FileID, a.FileID, 99999, b.FileID}, nil)
	if err != nil {
		t.Fatalf("Push: %v", err)
	}
	if len(added) != 2 {
		t.Fatalf("Push: want 2 added got=%v", added)
	}
	if added, err = repo.Push(dbc, []int64{b.FileID, c.FileID}, nil); err != nil || len(added) != 1 || added[0] != c.FileID {
		t.Fatalf("Push again: added=%v err=%v", added, err)
	}
	if n, _ := repo.Len(dbc); n != 3 {
		t.Fatalf("Len: want=3 got=%d", n)
	}

	last, err := repo.Get(dbc, -1)
	if err != nil || last == nil || last.FileID != c.FileID {
		t.Fatalf("Get(-1): got=%+v err=%v", last, err)
	}
	if out, _ := repo.Get(dbc, 3); out != nil {
		t.Fatalf("Get out of range: got=%+v", out)
	}
	first, err := repo.Pop(dbc, 0)
	if err != nil || first == nil || first.FileID != a.FileID {
		t.Fatalf("Pop(0): got=%+v err=%v", first, err)
	}
	ids, _ := repo.GetAll(dbc)
	if len(ids) != 2 || ids[0] != b.FileID || ids[1] != c.FileID {
		t.Fatalf("GetAll: got=%v", ids)
	}
	if n, err := repo.Remove(dbc, []int64{b.FileID}); err != nil || n != 1 {
		t.Fatalf("Remove: n=%d err=%v", n, err)
	}
	if n, err := repo.Flush(dbc); err != nil || n != 1 {
		t.Fatalf("Flush: n=%d err=%v", n, err)
	}
	if item, err := repo.Pop(dbc, 0); err != nil || item != nil {
		t.Fatalf("Pop empty: got=%+v err=%v", item, err)
	}
}

func TestProcessQueueClean(t *testing.T) {
	db := testutil.DB(t)
	tx := testutil.Tx(t, db)
	ctx := context.Background()
	repo := NewProcessQueueRepo(db, testutil.Logger(t), 0)
	dbc := dbctx.Context{Ctx: ctx, Tx: tx}

	tree := testutil.SeedTree(t, ctx, tx, t.TempDir())
	p0 := testutil.SeedProduct(t, ctx, tx, tree.Instrument.InstrumentID, "p0", "p0_{Y}{m}{d}.dat", "L0", 0)
	p1 := testutil.SeedProduct(t, ctx, tx, tree.Instrument.InstrumentID, "p1", "p1_{Y}{m}{d}.dat", "L1", 1)
	d := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	hi := testutil.SeedFile(t, ctx, tx, p1.ProductID, "p1_20240101.dat", d, version.New(1, 0, 0), true)
	if err := tx.Model(hi).Update("data_level", 1.0).Error; err != nil {
		t.Fatalf("set level: %v", err)
	}
	stale := testutil.SeedFile(t, ctx, tx, p0.ProductID, "p0_20240101_old.dat", d, version.New(1, 0, 0), false)
	bumped := testutil.SeedFile(t, ctx, tx, p0.ProductID, "p0_20240102_old.dat", d.AddDate(0, 0, 1), version.New(1, 0, 0), false)
	early := testutil.SeedFile(t, ctx, tx, p0.ProductID, "p0_20240101.dat", d, version.New(2, 0, 0), true)
	late := testutil.SeedFile(t, ctx, tx, p0.ProductID, "p0_20240103.dat", d.AddDate(0, 0, 2), version.New(1, 0, 0), true)

	if err := repo.RawAdd(dbc, []int64{hi.FileID, stale.FileID, early.FileID, late.FileID}, nil); err != nil {
		t.Fatalf("RawAdd: %v", err)
	}
	bump := types.BumpQuality
	if _, err := repo.Push(dbc, []int64{bumped.FileID}, &bump); err != nil {
		t.Fatalf("Push bump: %v", err)
	}

	dropped, err := repo.Clean(dbc)
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if dropped != 1 {
		t.Fatalf("Clean dropped: want=1 got=%d", dropped)
	}
	items, err := repo.List(dbc)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	want := []int64{late.FileID, bumped.FileID, early.FileID, hi.FileID}
	if len(items) != len(want) {
		t.Fatalf("List: want=%v got=%+v", want, items)
	}
	for i, id := range want {
		if items[i].FileID != id {
			t.Fatalf("List[%d]: want=%d got=%d (%+v)", i, id, items[i].FileID, items)
		}
	}
	if items[1].VersionBump == nil || *items[1].VersionBump != types.BumpQuality {
		t.Fatalf("version bump lost: %+v", items[1])
	}
}
