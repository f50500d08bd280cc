package week

import (
	"errors"
	"fmt"
	"time"
)

const layout = "2006-01-02"

var ErrInvalidDate = errors.New("invalid date")

var dayNames = [7]string{"Sun", "Mon", "Tue", "Wed", "Thu", "Fri", "Sat"}

// Date is a calendar date without a clock or a time zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseDate converts "YYYY-MM-DD" to a Date. Out of range values like "2025-02-30" are rejected.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(layout, s)
	if err != nil {
		return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return DateOf(t), nil
}

// DateOf returns the calendar date of t as seen in t's own location.
func DateOf(t time.Time) Date {
	year, month, day := t.Date()
	return Date{Year: year, Month: month, Day: day}
}

// NewDate validates the parts and builds a Date.
func NewDate(year int, month time.Month, day int) (Date, error) {
	d := Date{Year: year, Month: month, Day: day}
	if !d.IsValid() {
		return Date{}, fmt.Errorf("%w: %04d-%02d-%02d", ErrInvalidDate, year, int(month), day)
	}
	return d, nil
}

// IsValid reports whether the date exists in the calendar.
func (d Date) IsValid() bool {
	if d.Month < time.January || d.Month > time.December || d.Day < 1 {
		return false
	}
	return DateOf(d.Time()) == d
}

// Time returns midnight UTC of the date. UTC has no DST so day arithmetic on it is exact.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

func (d Date) AddDays(days int) Date {
	return DateOf(d.Time().AddDate(0, 0, days))
}

func (d Date) Weekday() time.Weekday {
	return d.Time().Weekday()
}

func (d Date) IsZero() bool {
	return d == Date{}
}

func (d Date) Equal(other Date) bool {
	return d == other
}

// Before reports whether d is an earlier calendar day than other.
func (d Date) Before(other Date) bool {
	return d.Time().Before(other.Time())
}

// After reports whether d is a later calendar day than other.
func (d Date) After(other Date) bool {
	return d.Time().After(other.Time())
}

// Compare returns -1, 0 or +1 for use with slices.SortFunc.
func (d Date) Compare(other Date) int {
	return d.Time().Compare(other.Time())
}

// String returns the ISO 8601 format e.g. "2025-06-01"
func (d Date) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(text []byte) error {
	parsed, err := ParseDate(string(text))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// WeekStartOf returns the Sunday starting the week that contains the date.
// A Sunday is its own week start.
func WeekStartOf(d Date) Date {
	delta := int(d.Weekday() - time.Sunday)
	return d.AddDays(-delta)
}

// WeekMembers returns the 7 consecutive dates starting at weekStart.
func WeekMembers(weekStart Date) [7]Date {
	var members [7]Date
	for i := range members {
		members[i] = weekStart.AddDays(i)
	}
	return members
}

// WeekEndOf returns the Saturday closing the week started at weekStart.
func WeekEndOf(weekStart Date) Date {
	return weekStart.AddDays(6)
}

func PreviousWeekStart(weekStart Date) Date {
	return weekStart.AddDays(-7)
}

func NextWeekStart(weekStart Date) Date {
	return weekStart.AddDays(7)
}

// DayName returns the short english day name, "Sun" through "Sat".
func DayName(d Date) string {
	return dayNames[d.Weekday()]
}

// DisplayLabel formats the date as "DD/MM".
func DisplayLabel(d Date) string {
	return fmt.Sprintf("%02d/%02d", d.Day, int(d.Month))
}
