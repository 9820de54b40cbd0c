package domain

import (
	"github.com/yungbote/dbprocessing/internal/domain/catalog"
	"github.com/yungbote/dbprocessing/internal/domain/files"
	"github.com/yungbote/dbprocessing/internal/domain/jobs"
)

type Timebase = catalog.Timebase

const (
	TimebaseRun     = catalog.TimebaseRun
	TimebaseOrbit   = catalog.TimebaseOrbit
	TimebaseDaily   = catalog.TimebaseDaily
	TimebaseWeekly  = catalog.TimebaseWeekly
	TimebaseMonthly = catalog.TimebaseMonthly
	TimebaseYearly  = catalog.TimebaseYearly
	TimebaseFile    = catalog.TimebaseFile

	BumpQuality   = jobs.BumpQuality
	BumpInterface = jobs.BumpInterface
)

// Catalog
type Mission = catalog.Mission
type Satellite = catalog.Satellite
type Instrument = catalog.Instrument
type Product = catalog.Product
type InstrumentProductLink = catalog.InstrumentProductLink
type Process = catalog.Process
type ProductProcessLink = catalog.ProductProcessLink
type Code = catalog.Code
type Inspector = catalog.Inspector

// Files
type File = files.File
type FileFileLink = files.FileFileLink
type FileCodeLink = files.FileCodeLink
type Release = files.Release
type Unixtime = files.Unixtime

// Jobs
type ProcessQueue = jobs.ProcessQueue
type QueueItem = jobs.QueueItem
type Logging = jobs.Logging
type LoggingFile = jobs.LoggingFile
