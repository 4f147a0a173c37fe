package timeutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidDate is returned for dates that are not yyyy-DDD.
var ErrInvalidDate = errors.New("invalid day-of-year date")

// ParseDOY parses a yyyy-DDD date and returns midnight UTC of that day.
func ParseDOY(s string) (time.Time, error) {
	yearStr, dayStr, ok := strings.Cut(strings.TrimSpace(s), "-")
	if !ok || len(yearStr) != 4 || len(dayStr) != 3 {
		return time.Time{}, fmt.Errorf("%w: %q, expected yyyy-DDD", ErrInvalidDate, s)
	}
	year, err := strconv.Atoi(yearStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: bad year", ErrInvalidDate, s)
	}
	day, err := strconv.Atoi(dayStr)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: bad day", ErrInvalidDate, s)
	}
	if day < 1 || day > daysIn(year) {
		return time.Time{}, fmt.Errorf("%w: %q: day %d outside year %d", ErrInvalidDate, s, day, year)
	}
	return time.Date(year, time.January, day, 0, 0, 0, 0, time.UTC), nil
}

// BeginOfDay parses a yyyy-DDD date as 00:00:00.000 UTC.
func BeginOfDay(s string) (time.Time, error) {
	return ParseDOY(s)
}

// EndOfDay parses a yyyy-DDD date as 23:59:59.999 UTC.
func EndOfDay(s string) (time.Time, error) {
	t, err := ParseDOY(s)
	if err != nil {
		return time.Time{}, err
	}
	return t.AddDate(0, 0, 1).Add(-time.Millisecond), nil
}

// RunWindow parses the processing interval [begin of start, end of end].
func RunWindow(start, end string) (time.Time, time.Time, error) {
	from, err := BeginOfDay(start)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("start: %w", err)
	}
	to, err := EndOfDay(end)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("end: %w", err)
	}
	if to.Before(from) {
		return time.Time{}, time.Time{}, fmt.Errorf("%w: end %s before start %s", ErrInvalidDate, end, start)
	}
	return from, to, nil
}

// FormatDOY formats t as yyyy-DDD in UTC.
func FormatDOY(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%04d-%03d", t.Year(), t.YearDay())
}

func daysIn(year int) int {
	return time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC).YearDay()
}
