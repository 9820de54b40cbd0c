package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/dbprocessing/internal/data/repos/catalog"
	"github.com/yungbote/dbprocessing/internal/data/repos/files"
	"github.com/yungbote/dbprocessing/internal/data/repos/jobs"
	"github.com/yungbote/dbprocessing/internal/platform/logger"
)

type MissionRepo = catalog.MissionRepo
type SatelliteRepo = catalog.SatelliteRepo
type InstrumentRepo = catalog.InstrumentRepo
type ProductRepo = catalog.ProductRepo
type ProcessRepo = catalog.ProcessRepo
type CodeRepo = catalog.CodeRepo
type InspectorRepo = catalog.InspectorRepo

type FileRepo = files.FileRepo
type FileLinkRepo = files.FileLinkRepo
type ReleaseRepo = files.ReleaseRepo
type FileQuery = files.FileQuery

type ProcessQueueRepo = jobs.ProcessQueueRepo
type LoggingRepo = jobs.LoggingRepo

// Set bundles every catalog repo over one connection.
type Set struct {
	Mission    MissionRepo
	Satellite  SatelliteRepo
	Instrument InstrumentRepo
	Product    ProductRepo
	Process    ProcessRepo
	Code       CodeRepo
	Inspector  InspectorRepo
	File       FileRepo
	FileLink   FileLinkRepo
	Release    ReleaseRepo
	Queue      ProcessQueueRepo
	Logging    LoggingRepo
}

func NewSet(db *gorm.DB, baseLog *logger.Logger, queueBatch int) *Set {
	return &Set{
		Mission:    catalog.NewMissionRepo(db, baseLog),
		Satellite:  catalog.NewSatelliteRepo(db, baseLog),
		Instrument: catalog.NewInstrumentRepo(db, baseLog),
		Product:    catalog.NewProductRepo(db, baseLog),
		Process:    catalog.NewProcessRepo(db, baseLog),
		Code:       catalog.NewCodeRepo(db, baseLog),
		Inspector:  catalog.NewInspectorRepo(db, baseLog),
		File:       files.NewFileRepo(db, baseLog),
		FileLink:   files.NewFileLinkRepo(db, baseLog),
		Release:    files.NewReleaseRepo(db, baseLog),
		Queue:      jobs.NewProcessQueueRepo(db, baseLog, queueBatch),
		Logging:    jobs.NewLoggingRepo(db, baseLog),
	}
}
