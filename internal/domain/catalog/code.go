package catalog

import (
	"time"

	"github.com/yungbote/dbprocessing/internal/pkg/version"
)

// Code is one deployed version of the executable realizing a process.
type Code struct {
	CodeID                 int64     `gorm:"column:code_id;primaryKey;autoIncrement" json:"code_id"`
	Filename               string    `gorm:"column:filename;type:text;not null" json:"filename"`
	RelativePath           string    `gorm:"column:relative_path;type:text;not null" json:"relative_path"`
	CodeStartDate          time.Time `gorm:"column:code_start_date;type:date;not null" json:"code_start_date"`
	CodeStopDate           time.Time `gorm:"column:code_stop_date;type:date;not null;check:chk_code_dates,code_start_date <= code_stop_date" json:"code_stop_date"`
	CodeDescription        string    `gorm:"column:code_description;type:text;not null;default:''" json:"code_description"`
	ProcessID              int64     `gorm:"column:process_id;not null;index;uniqueIndex:idx_code_process_version,priority:1" json:"process_id"`
	InterfaceVersion       int       `gorm:"column:interface_version;not null;uniqueIndex:idx_code_process_version,priority:2;check:chk_code_interface,interface_version >= 1" json:"interface_version"`
	QualityVersion         int       `gorm:"column:quality_version;not null;uniqueIndex:idx_code_process_version,priority:3" json:"quality_version"`
	RevisionVersion        int       `gorm:"column:revision_version;not null;uniqueIndex:idx_code_process_version,priority:4" json:"revision_version"`
	OutputInterfaceVersion int       `gorm:"column:output_interface_version;not null;check:chk_code_output_interface,output_interface_version >= 1" json:"output_interface_version"`
	ActiveCode             bool      `gorm:"column:active_code;not null" json:"active_code"`
	NewestVersion          bool      `gorm:"column:newest_version;not null;check:chk_code_newest_active,(NOT newest_version) OR active_code" json:"newest_version"`
	DateWritten            time.Time `gorm:"column:date_written;type:date;not null" json:"date_written"`
	Arguments              *string   `gorm:"column:arguments;type:text" json:"arguments,omitempty"`
	Cpu                    *int      `gorm:"column:cpu" json:"cpu,omitempty"`
	Ram                    *float64  `gorm:"column:ram" json:"ram,omitempty"`
}

func (Code) TableName() string { return "code" }

func (c Code) Version() version.Version {
	return version.New(c.InterfaceVersion, c.QualityVersion, c.RevisionVersion)
}

// Covers reports whether day lies inside the code's validity window.
func (c Code) Covers(day time.Time) bool {
	return !day.Before(c.CodeStartDate) && !day.After(c.CodeStopDate)
}
