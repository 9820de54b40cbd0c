package jobs

// Version bump levels a queue entry may request for its children.
const (
	BumpQuality   = 1
	BumpInterface = 2
)

// ProcessQueue holds files whose children have not been evaluated. Position
// preserves insertion order; FileID is unique so a file is queued at most
// once.
type ProcessQueue struct {
	FileID      int64 `gorm:"column:file_id;primaryKey;autoIncrement:false" json:"file_id"`
	VersionBump *int  `gorm:"column:version_bump;check:chk_queue_version_bump,version_bump IS NULL OR version_bump IN (1,2)" json:"version_bump,omitempty"`
	Position    int64 `gorm:"column:position;not null;index" json:"position"`
}

func (ProcessQueue) TableName() string { return "processqueue" }

// QueueItem is a queue entry as handed to callers.
type QueueItem struct {
	FileID      int64
	VersionBump *int
}
