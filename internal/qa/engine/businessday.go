package engine

import (
	"fmt"
	"math"
	"time"
)

// DateOf truncates t to its local calendar day
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CalendarDate the calendar day t was written as, at midnight in loc
func CalendarDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// ParseCalendarDate parses YYYY-MM-DD, or an RFC3339 timestamp taken at the date it names,
// as midnight in loc
func ParseCalendarDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return CalendarDate(t, loc), nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, malformed("invalid date %q, expected YYYY-MM-DD", s)
	}
	return CalendarDate(t, loc), nil
}

// IsWeekend Saturday or Sunday
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// AddBusinessDays advances start one calendar day at a time, skipping weekends,
// until n business days have been applied. Public holidays are not considered.
// Panics on negative n.
func AddBusinessDays(start time.Time, n int) time.Time {
	if n < 0 {
		panic(fmt.Sprintf("engine: AddBusinessDays with negative n (%d)", n))
	}
	d := start
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if !IsWeekend(d) {
			added++
		}
	}
	return d
}

// WorkingDaysBetween number of business days d with date(from) < d <= date(to)
func WorkingDaysBetween(from, to time.Time) int {
	start := DateOf(from)
	end := DateOf(to.In(from.Location()))
	if !end.After(start) {
		return 0
	}
	count := 0
	for d := start.AddDate(0, 0, 1); !d.After(end); d = d.AddDate(0, 0, 1) {
		if !IsWeekend(d) {
			count++
		}
	}
	return count
}

// CalendarDaysBetween date(to) - date(from) in whole days, negative when to is earlier
func CalendarDaysBetween(from, to time.Time) int {
	a := DateOf(from)
	b := DateOf(to.In(from.Location()))
	// rounding absorbs DST shifts
	return int(math.Round(b.Sub(a).Hours() / 24))
}
