package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-03-04 is a Monday
func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 9, 30, 0, 0, time.UTC)
}

func TestAddBusinessDays_ZeroIsIdentity(t *testing.T) {
	start := day(2024, 3, 2) // Saturday
	for i := 0; i < 14; i++ {
		d := start.AddDate(0, 0, i)
		assert.True(t, AddBusinessDays(d, 0).Equal(d), "n=0 must return %s unchanged", d)
	}
}

func TestAddBusinessDays_NeverWeekend(t *testing.T) {
	start := day(2024, 1, 1)
	for i := 0; i < 21; i++ {
		d := start.AddDate(0, 0, i)
		for n := 1; n <= 30; n++ {
			got := AddBusinessDays(d, n)
			require.False(t, IsWeekend(got), "start=%s n=%d landed on %s", d.Format("Mon 2006-01-02"), n, got.Weekday())
			require.True(t, got.After(d), "result must be later than start")
		}
	}
}

func TestAddBusinessDays_Cases(t *testing.T) {
	tests := []struct {
		name  string
		start time.Time
		n     int
		want  time.Time
	}{
		{"monday plus one", day(2024, 3, 4), 1, day(2024, 3, 5)},
		{"friday plus one skips weekend", day(2024, 3, 8), 1, day(2024, 3, 11)},
		{"saturday plus one", day(2024, 3, 9), 1, day(2024, 3, 11)},
		{"monday plus ten is two weeks", day(2024, 3, 4), 10, day(2024, 3, 18)},
		{"monday plus fifteen is three weeks", day(2024, 3, 4), 15, day(2024, 3, 25)},
		{"wednesday plus five", day(2024, 3, 6), 5, day(2024, 3, 13)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AddBusinessDays(tt.start, tt.n))
		})
	}
}

func TestAddBusinessDays_KeepsTimeOfDay(t *testing.T) {
	start := time.Date(2024, 3, 8, 16, 45, 0, 0, time.UTC)
	got := AddBusinessDays(start, 1)
	assert.Equal(t, 16, got.Hour())
	assert.Equal(t, 45, got.Minute())
}

func TestAddBusinessDays_NegativePanics(t *testing.T) {
	assert.Panics(t, func() { AddBusinessDays(day(2024, 3, 4), -1) })
}

func TestWorkingDaysBetween(t *testing.T) {
	tests := []struct {
		name     string
		from, to time.Time
		want     int
	}{
		{"same day", day(2024, 3, 4), day(2024, 3, 4), 0},
		{"to before from", day(2024, 3, 5), day(2024, 3, 4), 0},
		{"next weekday", day(2024, 3, 4), day(2024, 3, 5), 1},
		{"friday to monday", day(2024, 3, 8), day(2024, 3, 11), 1},
		{"friday to sunday", day(2024, 3, 8), day(2024, 3, 10), 0},
		{"two weeks", day(2024, 3, 4), day(2024, 3, 18), 10},
		{"time of day ignored", time.Date(2024, 3, 4, 23, 0, 0, 0, time.UTC), time.Date(2024, 3, 5, 1, 0, 0, 0, time.UTC), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, WorkingDaysBetween(tt.from, tt.to))
		})
	}
}

func TestWorkingDaysBetween_InverseOfAdd(t *testing.T) {
	start := day(2024, 3, 6)
	for n := 0; n <= 20; n++ {
		assert.Equal(t, n, WorkingDaysBetween(start, AddBusinessDays(start, n)))
	}
}

func TestCalendarDaysBetween(t *testing.T) {
	assert.Equal(t, 0, CalendarDaysBetween(day(2024, 3, 4), time.Date(2024, 3, 4, 23, 59, 0, 0, time.UTC)))
	assert.Equal(t, 3, CalendarDaysBetween(day(2024, 3, 4), day(2024, 3, 7)))
	assert.Equal(t, -2, CalendarDaysBetween(day(2024, 3, 4), day(2024, 3, 2)))

	syd, err := time.LoadLocation("Australia/Sydney")
	if err != nil {
		t.Skip("tzdata not available")
	}
	// DST ends 2024-04-07 in Sydney
	from := time.Date(2024, 4, 5, 12, 0, 0, 0, syd)
	to := time.Date(2024, 4, 9, 12, 0, 0, 0, syd)
	assert.Equal(t, 4, CalendarDaysBetween(from, to))
}

func TestParseCalendarDate(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata not available")
	}
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2026-03-03", time.Date(2026, 3, 3, 0, 0, 0, 0, ny)},
		// the date as written, not shifted into the server zone
		{"2026-03-03T00:00:00Z", time.Date(2026, 3, 3, 0, 0, 0, 0, ny)},
		{"2026-03-03T23:30:00+10:00", time.Date(2026, 3, 3, 0, 0, 0, 0, ny)},
	}
	for _, tt := range tests {
		got, err := ParseCalendarDate(tt.in, ny)
		require.NoError(t, err, tt.in)
		assert.True(t, tt.want.Equal(got), "%s: got %s", tt.in, got)
	}

	_, err = ParseCalendarDate("03/03/2026", ny)
	assert.ErrorIs(t, err, ErrMalformedInput)
}
