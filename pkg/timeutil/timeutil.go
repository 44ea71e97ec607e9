// Package timeutil provides UTC day-boundary utilities for the learning engine.
// Streak counting, commitment deadlines and round windows all operate on UTC
// calendar days so that results are reproducible regardless of server locale.
// No external dependencies - uses only standard library.
package timeutil

import "time"

// FormatDay is the canonical day key format (YYYY-MM-DD, UTC).
const FormatDay = "2006-01-02"

// Now returns the current time in UTC.
func Now() time.Time {
	return time.Now().UTC()
}

// ToUTC converts a time to UTC.
func ToUTC(t time.Time) time.Time {
	return t.UTC()
}

// Date creates a UTC time with the given date at midnight.
func Date(year, month, day int) time.Time {
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns the start of the UTC day (00:00:00) containing t.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// EndOfDay returns the end of the UTC day (23:59:59.999999999) containing t.
func EndOfDay(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 23, 59, 59, 999999999, time.UTC)
}

// DayKey returns the canonical UTC day key (YYYY-MM-DD) for t.
// Two events with the same day key count as one day for streak purposes.
func DayKey(t time.Time) string {
	return t.UTC().Format(FormatDay)
}

// ParseDayKey parses a canonical day key back into a UTC midnight time.
func ParseDayKey(key string) (time.Time, error) {
	return time.ParseInLocation(FormatDay, key, time.UTC)
}

// IsSameDay checks if two times fall on the same UTC calendar day.
func IsSameDay(t1, t2 time.Time) bool {
	u1, u2 := t1.UTC(), t2.UTC()
	return u1.Year() == u2.Year() && u1.YearDay() == u2.YearDay()
}

// IsConsecutiveDay checks if t2 falls on the UTC day immediately after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return IsSameDay(t1.UTC().AddDate(0, 0, 1), t2)
}

// DaysBetween calculates the number of whole UTC days between two times.
// The result is always non-negative.
func DaysBetween(t1, t2 time.Time) int {
	d1 := StartOfDay(t1)
	d2 := StartOfDay(t2)
	days := int(d2.Sub(d1).Hours() / 24)
	if days < 0 {
		days = -days
	}
	return days
}

// NextDay returns UTC midnight of the day after t.
func NextDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1)
}

// IsToday checks if the given time falls on the current UTC day.
func IsToday(t time.Time) bool {
	return IsSameDay(t, Now())
}

// IsPastDeadline checks whether now is strictly after the deadline.
// A commitment is expired only once its deadline day is fully over.
func IsPastDeadline(deadline, now time.Time) bool {
	return now.UTC().After(deadline.UTC())
}

// WindowContains checks whether t falls inside [start, end).
func WindowContains(start, end, t time.Time) bool {
	u := t.UTC()
	return !u.Before(start.UTC()) && u.Before(end.UTC())
}
