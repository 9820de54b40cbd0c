package diskfile

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
	"github.com/yungbote/dbprocessing/internal/pkg/version"
)

// Params mirrors the file columns an inspector fills in when it claims a
// candidate.
type Params struct {
	Filename          string
	UTCFileDate       time.Time
	UTCStartTime      time.Time
	UTCStopTime       time.Time
	DataLevel         float64
	Version           version.Version
	ProductID         int64
	FileCreateDate    time.Time
	ExistsOnDisk      bool
	NewestVersion     bool
	Shasum            string
	ProcessKeywords   string
	VerboseProvenance string
	QualityComment    string
	Caveats           string
	QualityChecked    *bool
	MetStartTime      *float64
	MetStopTime       *float64
	CheckDate         *time.Time
}

// wireParams is the JSON form. Times are strings so inspectors may print
// plain dates.
type wireParams struct {
	Filename          string   `json:"filename"`
	UTCFileDate       string   `json:"utc_file_date"`
	UTCStartTime      string   `json:"utc_start_time"`
	UTCStopTime       string   `json:"utc_stop_time"`
	DataLevel         *float64 `json:"data_level,omitempty"`
	Version           string   `json:"version"`
	ProductID         int64    `json:"product_id,omitempty"`
	FileCreateDate    string   `json:"file_create_date,omitempty"`
	Shasum            string   `json:"shasum,omitempty"`
	ProcessKeywords   string   `json:"process_keywords,omitempty"`
	VerboseProvenance string   `json:"verbose_provenance,omitempty"`
	QualityComment    string   `json:"quality_comment,omitempty"`
	Caveats           string   `json:"caveats,omitempty"`
	QualityChecked    *bool    `json:"quality_checked,omitempty"`
	MetStartTime      *float64 `json:"met_start_time,omitempty"`
	MetStopTime       *float64 `json:"met_stop_time,omitempty"`
	CheckDate         string   `json:"check_date,omitempty"`
}

func (p Params) MarshalJSON() ([]byte, error) {
	w := wireParams{
		Filename:          p.Filename,
		UTCFileDate:       timeutil.Day(p.UTCFileDate).Format("2006-01-02"),
		UTCStartTime:      p.UTCStartTime.UTC().Format(time.RFC3339Nano),
		UTCStopTime:       p.UTCStopTime.UTC().Format(time.RFC3339Nano),
		DataLevel:         &p.DataLevel,
		Version:           p.Version.String(),
		ProductID:         p.ProductID,
		Shasum:            p.Shasum,
		ProcessKeywords:   p.ProcessKeywords,
		VerboseProvenance: p.VerboseProvenance,
		QualityComment:    p.QualityComment,
		Caveats:           p.Caveats,
		QualityChecked:    p.QualityChecked,
		MetStartTime:      p.MetStartTime,
		MetStopTime:       p.MetStopTime,
	}
	if !p.FileCreateDate.IsZero() {
		w.FileCreateDate = p.FileCreateDate.UTC().Format(time.RFC3339Nano)
	}
	if p.CheckDate != nil {
		w.CheckDate = p.CheckDate.UTC().Format(time.RFC3339Nano)
	}
	return json.Marshal(w)
}

// UnmarshalJSON requires a version and at least one of utc_file_date or
// utc_start_time. Missing dates and times are derived from the others.
func (p *Params) UnmarshalJSON(b []byte) error {
	var w wireParams
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	out := Params{
		Filename:          w.Filename,
		ProductID:         w.ProductID,
		Shasum:            w.Shasum,
		ProcessKeywords:   w.ProcessKeywords,
		VerboseProvenance: w.VerboseProvenance,
		QualityComment:    w.QualityComment,
		Caveats:           w.Caveats,
		QualityChecked:    w.QualityChecked,
		MetStartTime:      w.MetStartTime,
		MetStopTime:       w.MetStopTime,
	}
	if w.DataLevel != nil {
		out.DataLevel = *w.DataLevel
	}
	if strings.TrimSpace(w.Version) == "" {
		return fmt.Errorf("params: version required")
	}
	v, err := version.Parse(w.Version)
	if err != nil {
		return fmt.Errorf("params: %w", err)
	}
	out.Version = v
	parse := func(name, s string) (time.Time, error) {
		if strings.TrimSpace(s) == "" {
			return time.Time{}, nil
		}
		t, err := timeutil.ParseTime(s)
		if err != nil {
			return time.Time{}, fmt.Errorf("params %s: %w", name, err)
		}
		return t, nil
	}
	if out.UTCFileDate, err = parse("utc_file_date", w.UTCFileDate); err != nil {
		return err
	}
	if out.UTCStartTime, err = parse("utc_start_time", w.UTCStartTime); err != nil {
		return err
	}
	if out.UTCStopTime, err = parse("utc_stop_time", w.UTCStopTime); err != nil {
		return err
	}
	if out.FileCreateDate, err = parse("file_create_date", w.FileCreateDate); err != nil {
		return err
	}
	if w.CheckDate != "" {
		cd, err := parse("check_date", w.CheckDate)
		if err != nil {
			return err
		}
		out.CheckDate = &cd
	}
	if err := out.fillTimes(); err != nil {
		return err
	}
	*p = out
	return nil
}

// fillTimes derives whichever of the file date and time range is missing.
// A bare file date covers that whole day.
func (p *Params) fillTimes() error {
	switch {
	case p.UTCFileDate.IsZero() && p.UTCStartTime.IsZero():
		return fmt.Errorf("params: utc_file_date or utc_start_time required")
	case p.UTCFileDate.IsZero():
		p.UTCFileDate = timeutil.Day(p.UTCStartTime)
	default:
		p.UTCFileDate = timeutil.Day(p.UTCFileDate)
	}
	if p.UTCStartTime.IsZero() {
		p.UTCStartTime = p.UTCFileDate
	}
	if p.UTCStopTime.IsZero() {
		p.UTCStopTime = p.UTCFileDate.Add(24*time.Hour - time.Microsecond)
		if p.UTCStopTime.Before(p.UTCStartTime) {
			p.UTCStopTime = p.UTCStartTime
		}
	}
	if p.UTCStopTime.Before(p.UTCStartTime) {
		return fmt.Errorf("params: utc_stop_time before utc_start_time")
	}
	return nil
}

// File converts the parameters to a catalog row.
func (p Params) File() *types.File {
	f := &types.File{
		Filename:       p.Filename,
		UTCFileDate:    timeutil.Day(p.UTCFileDate),
		UTCStartTime:   p.UTCStartTime.UTC(),
		UTCStopTime:    p.UTCStopTime.UTC(),
		DataLevel:      p.DataLevel,
		ProductID:      p.ProductID,
		FileCreateDate: p.FileCreateDate,
		ExistsOnDisk:   p.ExistsOnDisk,
		NewestVersion:  p.NewestVersion,
		QualityChecked: p.QualityChecked,
		MetStartTime:   p.MetStartTime,
		MetStopTime:    p.MetStopTime,
		CheckDate:      p.CheckDate,
	}
	f.SetVersion(p.Version)
	f.Shasum = optional(p.Shasum)
	f.ProcessKeywords = optional(p.ProcessKeywords)
	f.VerboseProvenance = optional(p.VerboseProvenance)
	f.QualityComment = optional(p.QualityComment)
	f.Caveats = optional(p.Caveats)
	return f
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
