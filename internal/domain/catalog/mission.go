package catalog

// Mission is the root of the catalog tree. Directory columns other than
// RootDir may be relative to RootDir and may use ~ or $VAR.
type Mission struct {
	MissionID    int64   `gorm:"column:mission_id;primaryKey;autoIncrement" json:"mission_id"`
	MissionName  string  `gorm:"column:mission_name;type:text;not null;uniqueIndex:idx_mission_name" json:"mission_name"`
	RootDir      string  `gorm:"column:rootdir;type:text;not null" json:"rootdir"`
	IncomingDir  string  `gorm:"column:incoming_dir;type:text;not null" json:"incoming_dir"`
	CodeDir      *string `gorm:"column:codedir;type:text" json:"codedir,omitempty"`
	InspectorDir *string `gorm:"column:inspectordir;type:text" json:"inspectordir,omitempty"`
	ErrorDir     *string `gorm:"column:errordir;type:text" json:"errordir,omitempty"`
}

func (Mission) TableName() string { return "mission" }

type Satellite struct {
	SatelliteID   int64  `gorm:"column:satellite_id;primaryKey;autoIncrement" json:"satellite_id"`
	SatelliteName string `gorm:"column:satellite_name;type:text;not null;uniqueIndex:idx_satellite_mission_name,priority:2" json:"satellite_name"`
	MissionID     int64  `gorm:"column:mission_id;not null;index;uniqueIndex:idx_satellite_mission_name,priority:1" json:"mission_id"`
}

func (Satellite) TableName() string { return "satellite" }

type Instrument struct {
	InstrumentID   int64  `gorm:"column:instrument_id;primaryKey;autoIncrement" json:"instrument_id"`
	InstrumentName string `gorm:"column:instrument_name;type:text;not null;uniqueIndex:idx_instrument_satellite_name,priority:2" json:"instrument_name"`
	SatelliteID    int64  `gorm:"column:satellite_id;not null;index;uniqueIndex:idx_instrument_satellite_name,priority:1" json:"satellite_id"`
}

func (Instrument) TableName() string { return "instrument" }
