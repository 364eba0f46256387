package schedule

import "time"

// =============================================================================
// CALENDAR ARITHMETIC
// =============================================================================
// time.AddDate rolls Jan 31 + 1 month over into March. Schedule due dates
// must clamp to the target month instead (Jan 31 -> Feb 28/29), so every
// schedule computation goes through AddMonths below.

// Date builds a UTC date at midnight. All schedule dates are day-granular.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOnly truncates a timestamp to its UTC calendar day.
func DateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddMonths adds n calendar months, clamping the day to the last valid day
// of the target month.
func AddMonths(d time.Time, n int) time.Time {
	d = DateOnly(d)
	months := int(d.Month()) - 1 + n
	year := d.Year() + months/12
	month := time.Month(months%12 + 1)
	if months < 0 && months%12 != 0 {
		year--
		month = time.Month(months%12 + 13)
	}
	day := d.Day()
	if last := daysInMonth(year, month); day > last {
		day = last
	}
	return Date(year, month, day)
}

// LastDayOfMonth returns the last calendar day of d's month.
func LastDayOfMonth(d time.Time) time.Time {
	d = DateOnly(d)
	return Date(d.Year(), d.Month(), daysInMonth(d.Year(), d.Month()))
}

// EndOfPreviousMonth returns the last day of the month before d's month.
func EndOfPreviousMonth(d time.Time) time.Time {
	d = DateOnly(d)
	return Date(d.Year(), d.Month(), 1).AddDate(0, 0, -1)
}

// DaysBetween returns the number of whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(DateOnly(b).Sub(DateOnly(a)).Hours() / 24)
}

func daysInMonth(year int, month time.Month) int {
	return Date(year, month+1, 1).AddDate(0, 0, -1).Day()
}
