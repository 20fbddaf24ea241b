// Package timeutil provides calendar helpers for bucketing practice sessions
// into days and weeks in a configurable timezone.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the canonical calendar-date layout.
const DateLayout = "2006-01-02"

// Calendar defines how instants map to calendar days and weeks.
type Calendar struct {
	// Location used to derive the date part of a timestamp.
	Location *time.Location

	// WeekStart is the weekday that opens a week bucket.
	WeekStart time.Weekday
}

// DefaultCalendar uses UTC dates and Sunday-anchored weeks.
func DefaultCalendar() Calendar {
	return Calendar{Location: time.UTC, WeekStart: time.Sunday}
}

// NewCalendar builds a calendar from a timezone name and a weekday name.
func NewCalendar(timezone, weekStart string) (Calendar, error) {
	cal := DefaultCalendar()

	if timezone != "" {
		loc, err := time.LoadLocation(timezone)
		if err != nil {
			return Calendar{}, fmt.Errorf("timeutil: unknown timezone %q: %w", timezone, err)
		}
		cal.Location = loc
	}

	if weekStart != "" {
		wd, err := ParseWeekday(weekStart)
		if err != nil {
			return Calendar{}, err
		}
		cal.WeekStart = wd
	}

	return cal, nil
}

func (c Calendar) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// In converts t to the calendar's location.
func (c Calendar) In(t time.Time) time.Time {
	return t.In(c.loc())
}

// StartOfDay returns midnight of t's calendar day.
func (c Calendar) StartOfDay(t time.Time) time.Time {
	local := c.In(t)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc())
}

// StartOfWeek returns midnight of the first day of t's week.
func (c Calendar) StartOfWeek(t time.Time) time.Time {
	day := c.StartOfDay(t)
	offset := (int(day.Weekday()) - int(c.WeekStart) + 7) % 7
	return day.AddDate(0, 0, -offset)
}

// DayKey returns the calendar date of t as YYYY-MM-DD.
func (c Calendar) DayKey(t time.Time) string {
	return c.In(t).Format(DateLayout)
}

// WeekKey returns the calendar date of the week start for t.
func (c Calendar) WeekKey(t time.Time) string {
	return c.StartOfWeek(t).Format(DateLayout)
}

// DaysBetween returns the number of calendar days from a to b.
// The result is DST-safe because both ends are normalised to civil dates in UTC.
func (c Calendar) DaysBetween(a, b time.Time) int {
	la, lb := c.In(a), c.In(b)
	da := time.Date(la.Year(), la.Month(), la.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(lb.Year(), lb.Month(), lb.Day(), 0, 0, 0, 0, time.UTC)
	return int(db.Sub(da).Hours() / 24)
}

// ParseWeekday parses an English weekday name ("sunday", "Mon", ...).
func ParseWeekday(s string) (time.Weekday, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if key == name || (len(key) == 3 && strings.HasPrefix(name, key)) {
			return d, nil
		}
	}
	return time.Sunday, fmt.Errorf("timeutil: unknown weekday %q", s)
}

// FormatDate formats a date as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD date at midnight in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, s, loc)
}

// FormatDuration renders seconds as "1h 30m" for dashboards.
func FormatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	if hours == 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	if minutes == 0 {
		return fmt.Sprintf("%dh", hours)
	}
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
