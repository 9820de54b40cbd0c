package jobs

import (
	"time"

	"gorm.io/datatypes"
)

// Logging is one driver run. A row with CurrentlyProcessing set is the
// catalog-wide processing lock.
type Logging struct {
	LoggingID           int64          `gorm:"column:logging_id;primaryKey;autoIncrement" json:"logging_id"`
	CurrentlyProcessing bool           `gorm:"column:currently_processing;not null;default:false;index" json:"currently_processing"`
	PID                 int            `gorm:"column:pid;not null" json:"pid"`
	ProcessingStartTime time.Time      `gorm:"column:processing_start_time;not null" json:"processing_start_time"`
	ProcessingEndTime   *time.Time     `gorm:"column:processing_end_time" json:"processing_end_time,omitempty"`
	Comment             *string        `gorm:"column:comment;type:text" json:"comment,omitempty"`
	MissionID           int64          `gorm:"column:mission_id;not null;index" json:"mission_id"`
	User                string         `gorm:"column:user;type:text;not null" json:"user"`
	Hostname            string         `gorm:"column:hostname;type:text;not null" json:"hostname"`
	RunToken            string         `gorm:"column:run_token;type:text;not null;index" json:"run_token"`
	Summary             datatypes.JSON `gorm:"column:summary;type:jsonb" json:"summary,omitempty"`
}

func (Logging) TableName() string { return "logging" }

// LoggingFile records a file written during a run and the code that wrote it.
type LoggingFile struct {
	LoggingFileID int64   `gorm:"column:logging_file_id;primaryKey;autoIncrement" json:"logging_file_id"`
	LoggingID     int64   `gorm:"column:logging_id;not null;index" json:"logging_id"`
	FileID        int64   `gorm:"column:file_id;not null;index" json:"file_id"`
	CodeID        int64   `gorm:"column:code_id;not null;index" json:"code_id"`
	Comments      *string `gorm:"column:comments;type:text" json:"comments,omitempty"`
}

func (LoggingFile) TableName() string { return "logging_file" }
