package catalog

import (
	"time"

	"github.com/yungbote/dbprocessing/internal/pkg/version"
)

// Inspector names a probe that decides whether a candidate file belongs to
// Product.
type Inspector struct {
	InspectorID            int64     `gorm:"column:inspector_id;primaryKey;autoIncrement" json:"inspector_id"`
	Filename               string    `gorm:"column:filename;type:text;not null" json:"filename"`
	RelativePath           string    `gorm:"column:relative_path;type:text;not null;default:''" json:"relative_path"`
	Description            string    `gorm:"column:description;type:text;not null;default:''" json:"description"`
	InterfaceVersion       int       `gorm:"column:interface_version;not null;check:chk_inspector_interface,interface_version >= 1" json:"interface_version"`
	QualityVersion         int       `gorm:"column:quality_version;not null" json:"quality_version"`
	RevisionVersion        int       `gorm:"column:revision_version;not null" json:"revision_version"`
	OutputInterfaceVersion int       `gorm:"column:output_interface_version;not null;default:1" json:"output_interface_version"`
	ActiveCode             bool      `gorm:"column:active_code;not null" json:"active_code"`
	DateWritten            time.Time `gorm:"column:date_written;type:date;not null" json:"date_written"`
	NewestVersion          bool      `gorm:"column:newest_version;not null;check:chk_inspector_newest_active,(NOT newest_version) OR active_code" json:"newest_version"`
	Arguments              *string   `gorm:"column:arguments;type:text" json:"arguments,omitempty"`
	ProductID              int64     `gorm:"column:product;not null;index" json:"product"`
}

func (Inspector) TableName() string { return "inspector" }

func (i Inspector) Version() version.Version {
	return version.New(i.InterfaceVersion, i.QualityVersion, i.RevisionVersion)
}
