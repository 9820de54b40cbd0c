package db

import (
	"github.com/yungbote/dbprocessing/internal/domain/catalog"
	"github.com/yungbote/dbprocessing/internal/domain/files"
	"github.com/yungbote/dbprocessing/internal/domain/jobs"
)

// Catalog primary keys share their names with the columns that reference
// them (mission.mission_id, satellite.mission_id), so a belongs-to field on a
// child resolves as has-one and gorm puts the key on the parent. Foreign keys
// are declared here instead, as has-many fields on migration views of the
// parent tables. A child that is itself a parent is named by its view, since
// the constraint lands on the schema that is migrated.

type missionTable struct {
	catalog.Mission
	Satellites []satelliteTable `gorm:"foreignKey:MissionID;references:MissionID;constraint:OnDelete:RESTRICT"`
	Runs       []loggingTable   `gorm:"foreignKey:MissionID;references:MissionID;constraint:OnDelete:RESTRICT"`
}

func (missionTable) TableName() string { return "mission" }

type satelliteTable struct {
	catalog.Satellite
	Instruments []instrumentTable `gorm:"foreignKey:SatelliteID;references:SatelliteID;constraint:OnDelete:RESTRICT"`
}

func (satelliteTable) TableName() string { return "satellite" }

type instrumentTable struct {
	catalog.Instrument
	Products     []productTable                  `gorm:"foreignKey:InstrumentID;references:InstrumentID;constraint:OnDelete:RESTRICT"`
	ProductLinks []catalog.InstrumentProductLink `gorm:"foreignKey:InstrumentID;references:InstrumentID;constraint:OnDelete:CASCADE"`
}

func (instrumentTable) TableName() string { return "instrument" }

type productTable struct {
	catalog.Product
	InstrumentLinks []catalog.InstrumentProductLink `gorm:"foreignKey:ProductID;references:ProductID;constraint:OnDelete:CASCADE"`
	Inspectors      []catalog.Inspector             `gorm:"foreignKey:ProductID;references:ProductID;constraint:OnDelete:CASCADE"`
	Producers       []processTable                  `gorm:"foreignKey:OutputProduct;references:ProductID;constraint:OnDelete:RESTRICT"`
	Consumers       []catalog.ProductProcessLink    `gorm:"foreignKey:InputProductID;references:ProductID;constraint:OnDelete:CASCADE"`
	Files           []fileTable                     `gorm:"foreignKey:ProductID;references:ProductID;constraint:OnDelete:RESTRICT"`
}

func (productTable) TableName() string { return "product" }

type processTable struct {
	catalog.Process
	Inputs []catalog.ProductProcessLink `gorm:"foreignKey:ProcessID;references:ProcessID;constraint:OnDelete:CASCADE"`
	Codes  []codeTable                  `gorm:"foreignKey:ProcessID;references:ProcessID;constraint:OnDelete:RESTRICT"`
}

func (processTable) TableName() string { return "process" }

type codeTable struct {
	catalog.Code
	Outputs  []files.FileCodeLink `gorm:"foreignKey:SourceCode;references:CodeID;constraint:OnDelete:RESTRICT"`
	RunFiles []jobs.LoggingFile   `gorm:"foreignKey:CodeID;references:CodeID;constraint:OnDelete:RESTRICT"`
}

func (codeTable) TableName() string { return "code" }

type fileTable struct {
	files.File
	Children  []files.FileFileLink `gorm:"foreignKey:SourceFile;references:FileID;constraint:OnDelete:CASCADE"`
	Parents   []files.FileFileLink `gorm:"foreignKey:ResultingFile;references:FileID;constraint:OnDelete:CASCADE"`
	MadeBy    []files.FileCodeLink `gorm:"foreignKey:ResultingFile;references:FileID;constraint:OnDelete:CASCADE"`
	Releases  []files.Release      `gorm:"foreignKey:FileID;references:FileID;constraint:OnDelete:CASCADE"`
	Unixtimes []files.Unixtime     `gorm:"foreignKey:FileID;references:FileID;constraint:OnDelete:CASCADE"`
	Queued    []jobs.ProcessQueue  `gorm:"foreignKey:FileID;references:FileID;constraint:OnDelete:CASCADE"`
	RunFiles  []jobs.LoggingFile   `gorm:"foreignKey:FileID;references:FileID;constraint:OnDelete:CASCADE"`
}

func (fileTable) TableName() string { return "file" }

type loggingTable struct {
	jobs.Logging
	Files []jobs.LoggingFile `gorm:"foreignKey:LoggingID;references:LoggingID;constraint:OnDelete:CASCADE"`
}

func (loggingTable) TableName() string { return "logging" }

// Models lists every catalog table, parents first. Parent tables are
// migrated through their views above so child constraints are known before
// the child tables are created.
func Models() []any {
	return []any{
		&missionTable{},
		&satelliteTable{},
		&instrumentTable{},
		&productTable{},
		&processTable{},
		&codeTable{},
		&fileTable{},
		&loggingTable{},
		&catalog.InstrumentProductLink{},
		&catalog.ProductProcessLink{},
		&catalog.Inspector{},
		&files.FileFileLink{},
		&files.FileCodeLink{},
		&files.Release{},
		&files.Unixtime{},
		&jobs.ProcessQueue{},
		&jobs.LoggingFile{},
	}
}
