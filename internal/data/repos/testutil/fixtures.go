package testutil

import (
	"context"
	"testing"
	"time"

	"gorm.io/gorm"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/pointers"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
)

// Tree is a mission with one satellite and one instrument.
type Tree struct {
	Mission    *types.Mission
	Satellite  *types.Satellite
	Instrument *types.Instrument
}

func SeedTree(tb testing.TB, ctx context.Context, tx *gorm.DB, rootDir string) *Tree {
	tb.Helper()
	m := &types.Mission{
		MissionName:  "testmission",
		RootDir:      rootDir,
		IncomingDir:  "incoming",
		CodeDir:      pointers.String("codes"),
		InspectorDir: pointers.String("inspectors"),
		ErrorDir:     pointers.String("errors"),
	}
	if err := tx.WithContext(ctx).Create(m).Error; err != nil {
		tb.Fatalf("seed mission: %v", err)
	}
	s := &types.Satellite{SatelliteName: "{MISSION}-a", MissionID: m.MissionID}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed satellite: %v", err)
	}
	i := &types.Instrument{InstrumentName: "rot13", SatelliteID: s.SatelliteID}
	if err := tx.WithContext(ctx).Create(i).Error; err != nil {
		tb.Fatalf("seed instrument: %v", err)
	}
	return &Tree{Mission: m, Satellite: s, Instrument: i}
}

func SeedProduct(tb testing.TB, ctx context.Context, tx *gorm.DB, instrumentID int64, name, format, relPath string, level float64) *types.Product {
	tb.Helper()
	p := &types.Product{
		ProductName:  name,
		InstrumentID: instrumentID,
		RelativePath: relPath,
		Level:        level,
		Format:       format,
	}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed product: %v", err)
	}
	link := &types.InstrumentProductLink{InstrumentID: instrumentID, ProductID: p.ProductID}
	if err := tx.WithContext(ctx).Create(link).Error; err != nil {
		tb.Fatalf("seed instrument product link: %v", err)
	}
	return p
}

// SeedProcess creates a process producing output (nil for RUN) from inputs.
func SeedProcess(tb testing.TB, ctx context.Context, tx *gorm.DB, name string, output *int64, timebase types.Timebase, inputs ...int64) *types.Process {
	tb.Helper()
	p := &types.Process{ProcessName: name, OutputProduct: output, OutputTimebase: timebase}
	if err := tx.WithContext(ctx).Create(p).Error; err != nil {
		tb.Fatalf("seed process: %v", err)
	}
	for _, in := range inputs {
		if err := tx.WithContext(ctx).Create(&types.ProductProcessLink{InputProductID: in, ProcessID: p.ProcessID}).Error; err != nil {
			tb.Fatalf("seed product process link: %v", err)
		}
	}
	return p
}

func SeedCode(tb testing.TB, ctx context.Context, tx *gorm.DB, processID int64, filename string, v version.Version, outputInterface int) *types.Code {
	tb.Helper()
	c := &types.Code{
		Filename:               filename,
		RelativePath:           "scripts",
		CodeStartDate:          time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		CodeStopDate:           time.Date(2099, 12, 31, 0, 0, 0, 0, time.UTC),
		ProcessID:              processID,
		InterfaceVersion:       v.Interface,
		QualityVersion:         v.Quality,
		RevisionVersion:        v.Revision,
		OutputInterfaceVersion: outputInterface,
		ActiveCode:             true,
		NewestVersion:          true,
		DateWritten:            time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := tx.WithContext(ctx).Create(c).Error; err != nil {
		tb.Fatalf("seed code: %v", err)
	}
	return c
}

// SeedFile creates a file covering the whole of day.
func SeedFile(tb testing.TB, ctx context.Context, tx *gorm.DB, productID int64, filename string, day time.Time, v version.Version, newest bool) *types.File {
	tb.Helper()
	d := timeutil.Day(day)
	f := &types.File{
		Filename:       filename,
		UTCFileDate:    d,
		UTCStartTime:   d,
		UTCStopTime:    d.Add(24*time.Hour - time.Second),
		DataLevel:      0,
		ProductID:      productID,
		FileCreateDate: time.Now().UTC(),
		ExistsOnDisk:   true,
		NewestVersion:  newest,
	}
	f.SetVersion(v)
	if err := tx.WithContext(ctx).Create(f).Error; err != nil {
		tb.Fatalf("seed file: %v", err)
	}
	if err := tx.WithContext(ctx).Create(&types.Unixtime{
		FileID:    f.FileID,
		UnixStart: f.UTCStartTime.Unix(),
		UnixStop:  f.UTCStopTime.Unix(),
	}).Error; err != nil {
		tb.Fatalf("seed unixtime: %v", err)
	}
	return f
}
