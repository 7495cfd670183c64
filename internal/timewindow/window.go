// Package timewindow decides whether a date / time-of-day / weekday window
// is active at a given instant.
package timewindow

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// Date is a calendar date without time or location.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses "YYYY-MM-DD".
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	return DateOf(t), nil
}

// IsZero reports whether d is unset.
func (d Date) IsZero() bool {
	return d.Year == 0 && d.Month == 0 && d.Day == 0
}

// Compare returns -1, 0 or +1.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

// In returns midnight of d in loc.
func (d Date) In(loc *time.Location) time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Clock is a local time of day, stored as an offset from midnight.
type Clock struct {
	offset time.Duration
	set    bool
}

// NewClock builds a clock from hour and minute.
func NewClock(hour, minute int) Clock {
	return Clock{offset: time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute, set: true}
}

// ParseClock parses "HH:MM" (seconds, if present, are accepted as "HH:MM:SS").
func ParseClock(s string) (Clock, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}

	c := NewClock(hour, minute)
	if len(parts) == 3 {
		sec, err := strconv.Atoi(parts[2])
		if err != nil || sec < 0 || sec > 59 {
			return Clock{}, fmt.Errorf("invalid second in %q", s)
		}
		c.offset += time.Duration(sec) * time.Second
	}
	return c, nil
}

// ClockOf returns the wall-clock time of day of t in t's location.
func ClockOf(t time.Time) Clock {
	h, m, s := t.Clock()
	return Clock{
		offset: time.Duration(h)*time.Hour + time.Duration(m)*time.Minute +
			time.Duration(s)*time.Second + time.Duration(t.Nanosecond()),
		set: true,
	}
}

// IsZero reports whether c is unset. Midnight is a set clock.
func (c Clock) IsZero() bool { return !c.set }

// Before reports whether c is strictly earlier than o.
func (c Clock) Before(o Clock) bool { return c.offset < o.offset }

// After reports whether c is strictly later than o.
func (c Clock) After(o Clock) bool { return c.offset > o.offset }

// Offset returns the duration since midnight.
func (c Clock) Offset() time.Duration { return c.offset }

// On returns the instant of c on date d in loc.
func (c Clock) On(d Date, loc *time.Location) time.Time {
	h := int(c.offset / time.Hour)
	m := int((c.offset % time.Hour) / time.Minute)
	s := int((c.offset % time.Minute) / time.Second)
	return time.Date(d.Year, d.Month, d.Day, h, m, s, 0, loc)
}

func (c Clock) String() string {
	if !c.set {
		return ""
	}
	s := fmt.Sprintf("%02d:%02d", int(c.offset/time.Hour), int((c.offset%time.Hour)/time.Minute))
	if sec := int((c.offset % time.Minute) / time.Second); sec != 0 {
		s += fmt.Sprintf(":%02d", sec)
	}
	return s
}

func (c Clock) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Clock) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*c = Clock{}
		return nil
	}
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// DateRange is an inclusive calendar range; either bound may be unset.
type DateRange struct {
	Start Date `json:"start,omitzero"`
	End   Date `json:"end,omitzero"`
}

// TimeRange is an inclusive time-of-day range; either bound may be unset.
type TimeRange struct {
	Start Clock `json:"start,omitzero"`
	End   Clock `json:"end,omitzero"`
}

// Window bundles the optional restrictions of a rule.
type Window struct {
	Dates    DateRange      `json:"dates,omitzero"`
	Times    TimeRange      `json:"times,omitzero"`
	Weekdays []time.Weekday `json:"weekdays,omitempty"`
}

// IsActive reports whether the window is open at now. All bounds are
// inclusive and unset dimensions do not restrict. Dates, times and the
// weekday are read from now in its own location.
func (w Window) IsActive(now time.Time) bool {
	today := DateOf(now)
	if !w.Dates.Start.IsZero() && today.Compare(w.Dates.Start) < 0 {
		return false
	}
	if !w.Dates.End.IsZero() && today.Compare(w.Dates.End) > 0 {
		return false
	}

	clock := ClockOf(now)
	if !w.Times.Start.IsZero() && clock.Before(w.Times.Start) {
		return false
	}
	if !w.Times.End.IsZero() && clock.After(w.Times.End) {
		return false
	}

	if len(w.Weekdays) > 0 && !containsWeekday(w.Weekdays, now.Weekday()) {
		return false
	}
	return true
}

// HasTimeOfDay reports whether either time-of-day bound is set.
func (w Window) HasTimeOfDay() bool {
	return !w.Times.Start.IsZero() || !w.Times.End.IsZero()
}

func containsWeekday(days []time.Weekday, d time.Weekday) bool {
	for _, x := range days {
		if x == d {
			return true
		}
	}
	return false
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
