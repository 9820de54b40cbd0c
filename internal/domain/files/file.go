package files

import (
	"time"

	"github.com/yungbote/dbprocessing/internal/pkg/version"
)

// File is one cataloged data file. Filename is unique across the catalog;
// (product, day, version) identifies a file logically.
type File struct {
	FileID            int64      `gorm:"column:file_id;primaryKey;autoIncrement" json:"file_id"`
	Filename          string     `gorm:"column:filename;type:text;not null;uniqueIndex:idx_file_filename" json:"filename"`
	UTCFileDate       time.Time  `gorm:"column:utc_file_date;type:date;not null;index;uniqueIndex:idx_file_product_date_version,priority:2" json:"utc_file_date"`
	UTCStartTime      time.Time  `gorm:"column:utc_start_time;not null;index" json:"utc_start_time"`
	UTCStopTime       time.Time  `gorm:"column:utc_stop_time;not null;index;check:chk_file_times,utc_start_time <= utc_stop_time" json:"utc_stop_time"`
	DataLevel         float64    `gorm:"column:data_level;not null;index" json:"data_level"`
	InterfaceVersion  int        `gorm:"column:interface_version;not null;uniqueIndex:idx_file_product_date_version,priority:3;check:chk_file_interface,interface_version >= 1" json:"interface_version"`
	QualityVersion    int        `gorm:"column:quality_version;not null;uniqueIndex:idx_file_product_date_version,priority:4" json:"quality_version"`
	RevisionVersion   int        `gorm:"column:revision_version;not null;uniqueIndex:idx_file_product_date_version,priority:5" json:"revision_version"`
	VerboseProvenance *string    `gorm:"column:verbose_provenance;type:text" json:"verbose_provenance,omitempty"`
	CheckDate         *time.Time `gorm:"column:check_date" json:"check_date,omitempty"`
	QualityComment    *string    `gorm:"column:quality_comment;type:text" json:"quality_comment,omitempty"`
	Caveats           *string    `gorm:"column:caveats;type:text" json:"caveats,omitempty"`
	FileCreateDate    time.Time  `gorm:"column:file_create_date;not null" json:"file_create_date"`
	MetStartTime      *float64   `gorm:"column:met_start_time" json:"met_start_time,omitempty"`
	MetStopTime       *float64   `gorm:"column:met_stop_time" json:"met_stop_time,omitempty"`
	ExistsOnDisk      bool       `gorm:"column:exists_on_disk;not null" json:"exists_on_disk"`
	QualityChecked    *bool      `gorm:"column:quality_checked" json:"quality_checked,omitempty"`
	ProductID         int64      `gorm:"column:product_id;not null;index;uniqueIndex:idx_file_product_date_version,priority:1" json:"product_id"`
	Shasum            *string    `gorm:"column:shasum;type:text" json:"shasum,omitempty"`
	ProcessKeywords   *string    `gorm:"column:process_keywords;type:text" json:"process_keywords,omitempty"`
	NewestVersion     bool       `gorm:"column:newest_version;not null;default:false;index" json:"newest_version"`
}

func (File) TableName() string { return "file" }

func (f File) Version() version.Version {
	return version.New(f.InterfaceVersion, f.QualityVersion, f.RevisionVersion)
}

func (f *File) SetVersion(v version.Version) {
	f.InterfaceVersion = v.Interface
	f.QualityVersion = v.Quality
	f.RevisionVersion = v.Revision
}

// FileFileLink records that ResultingFile was built from SourceFile.
type FileFileLink struct {
	SourceFile    int64 `gorm:"column:source_file;primaryKey;autoIncrement:false;index" json:"source_file"`
	ResultingFile int64 `gorm:"column:resulting_file;primaryKey;autoIncrement:false;index;check:chk_filefilelink_distinct,source_file <> resulting_file" json:"resulting_file"`
}

func (FileFileLink) TableName() string { return "filefilelink" }

// FileCodeLink records the code that produced ResultingFile.
type FileCodeLink struct {
	ResultingFile int64 `gorm:"column:resulting_file;primaryKey;autoIncrement:false" json:"resulting_file"`
	SourceCode    int64 `gorm:"column:source_code;primaryKey;autoIncrement:false;index" json:"source_code"`
}

func (FileCodeLink) TableName() string { return "filecodelink" }

// Release tags a file as part of a numbered data release.
type Release struct {
	FileID     int64  `gorm:"column:file_id;primaryKey;autoIncrement:false" json:"file_id"`
	ReleaseNum string `gorm:"column:release_num;type:text;primaryKey;index" json:"release_num"`
}

func (Release) TableName() string { return "release" }

// Unixtime mirrors a file's span as seconds since the epoch for fast range
// queries. It is optional; catalogs created before it exist without it.
type Unixtime struct {
	FileID    int64 `gorm:"column:file_id;primaryKey;autoIncrement:false" json:"file_id"`
	UnixStart int64 `gorm:"column:unix_start;not null;index" json:"unix_start"`
	UnixStop  int64 `gorm:"column:unix_stop;not null;index" json:"unix_stop"`
}

func (Unixtime) TableName() string { return "unixtime" }
