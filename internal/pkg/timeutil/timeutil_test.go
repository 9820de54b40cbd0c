package timeutil

import (
	"testing"
	"time"
)

func d(y int, m time.Month, day int) time.Time { return time.Date(y, m, day, 0, 0, 0, 0, time.UTC) }

func TestDaysSpanned(t *testing.T) {
	start := time.Date(2024, 3, 1, 22, 0, 0, 0, time.UTC)
	stop := time.Date(2024, 3, 2, 3, 0, 0, 0, time.UTC)
	got := DaysSpanned(start, stop)
	if len(got) != 2 || !got[0].Equal(d(2024, 3, 1)) || !got[1].Equal(d(2024, 3, 2)) {
		t.Fatalf("two-day span: got=%v", got)
	}
	got = DaysSpanned(d(2024, 3, 1), d(2024, 3, 2))
	if len(got) != 1 {
		t.Fatalf("midnight stop: want 1 day got=%v", got)
	}
	got = DaysSpanned(d(2024, 3, 1), d(2024, 3, 1))
	if len(got) != 1 {
		t.Fatalf("instant: want 1 day got=%v", got)
	}
}

func TestPeriodStarts(t *testing.T) {
	wed := d(2024, 5, 15)
	if got := WeekStart(wed); !got.Equal(d(2024, 5, 13)) {
		t.Fatalf("WeekStart: got=%v", got)
	}
	if got := WeekStart(d(2024, 5, 19)); !got.Equal(d(2024, 5, 13)) {
		t.Fatalf("WeekStart sunday: got=%v", got)
	}
	if got := MonthStart(wed); !got.Equal(d(2024, 5, 1)) {
		t.Fatalf("MonthStart: got=%v", got)
	}
	if got := YearStart(wed); !got.Equal(d(2024, 1, 1)) {
		t.Fatalf("YearStart: got=%v", got)
	}
}

func TestParseDay(t *testing.T) {
	for _, s := range []string{"2024-02-29", "20240229"} {
		got, err := ParseDay(s)
		if err != nil || !got.Equal(d(2024, 2, 29)) {
			t.Fatalf("ParseDay(%q): got=%v err=%v", s, got, err)
		}
	}
	if _, err := ParseDay("29/02/2024"); err == nil {
		t.Fatalf("ParseDay: expected error")
	}
	if n := len(DayRange(d(2024, 2, 27), d(2024, 3, 1))); n != 4 {
		t.Fatalf("DayRange: want=4 got=%d", n)
	}
}

func TestParseTime(t *testing.T) {
	cases := map[string]time.Time{
		"2024-03-01":                time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		"2024-03-01T12:30:00":       time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC),
		"2024-03-01T12:30:00+02:00": time.Date(2024, 3, 1, 10, 30, 0, 0, time.UTC),
		"20240301":                  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	}
	for in, want := range cases {
		got, err := ParseTime(in)
		if err != nil || !got.Equal(want) {
			t.Fatalf("ParseTime(%q): want=%v got=%v err=%v", in, want, got, err)
		}
	}
	if _, err := ParseTime("yesterday"); err == nil {
		t.Fatalf("ParseTime: expected error")
	}
}
