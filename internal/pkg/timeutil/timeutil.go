package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseDay accepts YYYY-MM-DD or YYYYMMDD.
func ParseDay(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "20060102"} {
		if t, err := time.Parse(layout, s); err == nil {
			return Day(t), nil
		}
	}
	_, err := time.Parse("2006-01-02", s)
	return time.Time{}, err
}

// DaysSpanned lists every UTC day touched by [start, stop]. A stop exactly
// at midnight does not add that day unless it is also the start day.
func DaysSpanned(start, stop time.Time) []time.Time {
	first := Day(start)
	last := Day(stop)
	if stop.Equal(last) && last.After(first) {
		last = last.AddDate(0, 0, -1)
	}
	if last.Before(first) {
		last = first
	}
	var out []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// DayRange lists every day in [start, end] inclusive.
func DayRange(start, end time.Time) []time.Time {
	var out []time.Time
	for d := Day(start); !d.After(Day(end)); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}

// WeekStart returns the Monday of t's ISO week.
func WeekStart(t time.Time) time.Time {
	d := Day(t)
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}

func MonthStart(t time.Time) time.Time {
	d := Day(t)
	return time.Date(d.Year(), d.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func YearStart(t time.Time) time.Time {
	d := Day(t)
	return time.Date(d.Year(), 1, 1, 0, 0, 0, 0, time.UTC)
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
	"20060102T150405",
	"20060102",
}

// ParseTime accepts RFC 3339 and the common date and date-time forms
// without a zone, which are read as UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized time %q", s)
}
