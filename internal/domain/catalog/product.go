package catalog

// Product is a named kind of data file. Format is a filename template and
// RelativePath a directory template below the mission root.
type Product struct {
	ProductID          int64   `gorm:"column:product_id;primaryKey;autoIncrement" json:"product_id"`
	ProductName        string  `gorm:"column:product_name;type:text;not null;uniqueIndex:idx_product_name_instrument_path,priority:1" json:"product_name"`
	InstrumentID       int64   `gorm:"column:instrument_id;not null;index;uniqueIndex:idx_product_name_instrument_path,priority:2" json:"instrument_id"`
	RelativePath       string  `gorm:"column:relative_path;type:text;not null;uniqueIndex:idx_product_name_instrument_path,priority:3" json:"relative_path"`
	Level              float64 `gorm:"column:level;not null" json:"level"`
	Format             string  `gorm:"column:format;type:text;not null" json:"format"`
	ProductDescription string  `gorm:"column:product_description;type:text;not null;default:''" json:"product_description"`
}

func (Product) TableName() string { return "product" }

type InstrumentProductLink struct {
	InstrumentID int64 `gorm:"column:instrument_id;primaryKey;autoIncrement:false" json:"instrument_id"`
	ProductID    int64 `gorm:"column:product_id;primaryKey;autoIncrement:false;index" json:"product_id"`
}

func (InstrumentProductLink) TableName() string { return "instrumentproductlink" }
