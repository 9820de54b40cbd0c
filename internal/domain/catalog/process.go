package catalog

// Timebase is the cadence on which a process emits output.
type Timebase string

const (
	TimebaseRun     Timebase = "RUN"
	TimebaseOrbit   Timebase = "ORBIT"
	TimebaseDaily   Timebase = "DAILY"
	TimebaseWeekly  Timebase = "WEEKLY"
	TimebaseMonthly Timebase = "MONTHLY"
	TimebaseYearly  Timebase = "YEARLY"
	TimebaseFile    Timebase = "FILE"
)

// Timebases lists every valid timebase.
var Timebases = []Timebase{TimebaseRun, TimebaseOrbit, TimebaseDaily, TimebaseWeekly, TimebaseMonthly, TimebaseYearly, TimebaseFile}

func (t Timebase) Valid() bool {
	for _, v := range Timebases {
		if v == t {
			return true
		}
	}
	return false
}

// Process transforms input products into one output product. OutputProduct
// is nil for triggered (RUN) processes.
type Process struct {
	ProcessID      int64    `gorm:"column:process_id;primaryKey;autoIncrement" json:"process_id"`
	ProcessName    string   `gorm:"column:process_name;type:text;not null;uniqueIndex:idx_process_name_output,priority:1" json:"process_name"`
	OutputProduct  *int64   `gorm:"column:output_product;index;uniqueIndex:idx_process_name_output,priority:2" json:"output_product,omitempty"`
	OutputTimebase Timebase `gorm:"column:output_timebase;type:text;not null;check:chk_process_timebase,output_timebase IN ('RUN','ORBIT','DAILY','WEEKLY','MONTHLY','YEARLY','FILE')" json:"output_timebase"`
	ExtraParams    *string  `gorm:"column:extra_params;type:text" json:"extra_params,omitempty"`
}

func (Process) TableName() string { return "process" }

// ProductProcessLink feeds InputProductID into ProcessID. Yesterday and
// Tomorrow count the adjacent days of input also required.
type ProductProcessLink struct {
	InputProductID int64 `gorm:"column:input_product_id;primaryKey;autoIncrement:false" json:"input_product_id"`
	ProcessID      int64 `gorm:"column:process_id;primaryKey;autoIncrement:false;index" json:"process_id"`
	Optional       bool  `gorm:"column:optional;not null;default:false" json:"optional"`
	Yesterday      int   `gorm:"column:yesterday;not null;default:0;check:chk_ppl_yesterday,yesterday >= 0" json:"yesterday"`
	Tomorrow       int   `gorm:"column:tomorrow;not null;default:0;check:chk_ppl_tomorrow,tomorrow >= 0" json:"tomorrow"`
}

func (ProductProcessLink) TableName() string { return "productprocesslink" }
