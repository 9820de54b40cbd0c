package planner

import (
	"sort"
	"time"

	types "github.com/yungbote/dbprocessing/internal/domain"
	"github.com/yungbote/dbprocessing/internal/pkg/dbctx"
	"github.com/yungbote/dbprocessing/internal/pkg/timeutil"
	"github.com/yungbote/dbprocessing/internal/services"
)

// Period returns the first and last day whose inputs feed an output of
// timebase tb dated day. The link's yesterday and tomorrow widen daily and
// per-file windows.
func Period(tb types.Timebase, day time.Time, link *types.ProductProcessLink) (time.Time, time.Time) {
	day = timeutil.Day(day)
	switch tb {
	case types.TimebaseWeekly:
		s := timeutil.WeekStart(day)
		return s, s.AddDate(0, 0, 6)
	case types.TimebaseMonthly:
		s := timeutil.MonthStart(day)
		return s, s.AddDate(0, 1, -1)
	case types.TimebaseYearly:
		s := timeutil.YearStart(day)
		return s, s.AddDate(1, 0, -1)
	}
	start, end := day, day
	if link != nil {
		start = day.AddDate(0, 0, -link.Yesterday)
		end = day.AddDate(0, 0, link.Tomorrow)
	}
	return start, end
}

// OutputDates lists the output dates of proc that input file f takes part
// in, ascending.
func OutputDates(dbc dbctx.Context, cat services.CatalogService, proc *types.Process, f *types.File) ([]time.Time, error) {
	var dates []time.Time
	switch proc.OutputTimebase {
	case types.TimebaseFile, types.TimebaseOrbit:
		return []time.Time{timeutil.Day(f.UTCFileDate)}, nil
	default:
		var err error
		if dates, err = cat.GetFileDates(dbc, f.FileID); err != nil {
			return nil, err
		}
	}

	seen := map[time.Time]bool{}
	var out []time.Time
	add := func(d time.Time) {
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	switch proc.OutputTimebase {
	case types.TimebaseWeekly, types.TimebaseMonthly, types.TimebaseYearly:
		for _, d := range dates {
			add(PeriodStart(proc.OutputTimebase, d))
		}
	case types.TimebaseDaily:
		link, err := linkFor(dbc, cat, proc.ProcessID, f.ProductID)
		if err != nil {
			return nil, err
		}
		for _, d := range dates {
			// f on day d is "yesterday" input for later outputs and
			// "tomorrow" input for earlier ones.
			from, to := d, d
			if link != nil {
				from = d.AddDate(0, 0, -link.Tomorrow)
				to = d.AddDate(0, 0, link.Yesterday)
			}
			for _, x := range timeutil.DayRange(from, to) {
				add(x)
			}
		}
	default:
		for _, d := range dates {
			add(d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out, nil
}

// PeriodStart returns the output date of the tb period that day falls in.
// Timebases without a calendar period date their output by day.
func PeriodStart(tb types.Timebase, day time.Time) time.Time {
	switch tb {
	case types.TimebaseWeekly:
		return timeutil.WeekStart(day)
	case types.TimebaseMonthly:
		return timeutil.MonthStart(day)
	case types.TimebaseYearly:
		return timeutil.YearStart(day)
	}
	return timeutil.Day(day)
}

// RangeDates lists, ascending and once each, the output dates of tb whose
// periods touch [start, end].
func RangeDates(tb types.Timebase, start, end time.Time) []time.Time {
	var out []time.Time
	for _, d := range timeutil.DayRange(start, end) {
		p := PeriodStart(tb, d)
		if len(out) == 0 || !out[len(out)-1].Equal(p) {
			out = append(out, p)
		}
	}
	return out
}

func linkFor(dbc dbctx.Context, cat services.CatalogService, processID, productID int64) (*types.ProductProcessLink, error) {
	links, err := cat.GetInputProductLinks(dbc, processID)
	if err != nil {
		return nil, err
	}
	for _, l := range links {
		if l.InputProductID == productID {
			return l, nil
		}
	}
	return nil, nil
}

// GatherInputs collects the newest input files of proc for the output
// dated day. For per-file timebases the trigger file stands alone for its
// own product. ok is false, with the missing product id, when a required
// input has no file in its window.
func GatherInputs(dbc dbctx.Context, cat services.CatalogService, proc *types.Process, day time.Time, trigger *types.File) (inputs []int64, missing int64, ok bool, err error) {
	links, err := cat.GetInputProductLinks(dbc, proc.ProcessID)
	if err != nil {
		return nil, 0, false, err
	}
	seen := map[int64]bool{}
	for _, link := range links {
		var found []*types.File
		perFile := proc.OutputTimebase == types.TimebaseFile || proc.OutputTimebase == types.TimebaseOrbit
		if perFile && trigger != nil && trigger.ProductID == link.InputProductID {
			found = []*types.File{trigger}
		} else {
			start, end := Period(proc.OutputTimebase, day, link)
			if found, err = cat.GetFilesByProductDate(dbc, link.InputProductID, start, end, true); err != nil {
				return nil, 0, false, err
			}
		}
		if len(found) == 0 {
			if link.Optional {
				continue
			}
			return nil, link.InputProductID, false, nil
		}
		for _, f := range found {
			if !seen[f.FileID] {
				seen[f.FileID] = true
				inputs = append(inputs, f.FileID)
			}
		}
	}
	return inputs, 0, true, nil
}
