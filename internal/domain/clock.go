package domain

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const minutesPerDay = 24 * 60

// ClockTime is a local wall-clock time of day in minutes since midnight.
// 1440 is allowed so that an interval can close at midnight.
type ClockTime int

func Clock(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

func ParseClock(s string) (ClockTime, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return 0, validationError(fmt.Sprintf("invalid time %q: want HH:MM", s))
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 24 {
		return 0, validationError(fmt.Sprintf("invalid hour in %q", s))
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, validationError(fmt.Sprintf("invalid minute in %q", s))
	}
	c := Clock(h, m)
	if c > minutesPerDay {
		return 0, validationError(fmt.Sprintf("time %q is past midnight", s))
	}
	return c, nil
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c ClockTime) Add(minutes int) ClockTime {
	return c + ClockTime(minutes)
}

// On returns the instant c falls on for the given calendar date in loc.
func (c ClockTime) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), c.Hour(), c.Minute(), 0, 0, loc)
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClock(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Value stores the minute count so columns stay plain integers.
func (c ClockTime) Value() (driver.Value, error) {
	return int64(c), nil
}

func (c *ClockTime) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*c = ClockTime(v)
	case int32:
		*c = ClockTime(v)
	case []byte:
		n, err := strconv.Atoi(string(v))
		if err != nil {
			return err
		}
		*c = ClockTime(n)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*c = ClockTime(n)
	default:
		return fmt.Errorf("cannot scan %T into ClockTime", src)
	}
	return nil
}

// Interval is a half-open [Start, End) span of wall-clock time.
type Interval struct {
	Start ClockTime `json:"start"`
	End   ClockTime `json:"end"`
}

func (iv Interval) Validate() error {
	if iv.Start < 0 || iv.End > minutesPerDay {
		return validationError(fmt.Sprintf("interval %s-%s is outside the day", iv.Start, iv.End))
	}
	if iv.End <= iv.Start {
		return validationError(fmt.Sprintf("interval %s-%s: end must be after start", iv.Start, iv.End))
	}
	return nil
}

func (iv Interval) Contains(start ClockTime, minutes int) bool {
	return start >= iv.Start && start.Add(minutes) <= iv.End
}

func (iv Interval) String() string {
	return iv.Start.String() + "-" + iv.End.String()
}

// Overlaps reports whether [aStart, aStart+aMin) and [bStart, bStart+bMin) intersect.
func Overlaps(aStart ClockTime, aMin int, bStart ClockTime, bMin int) bool {
	return aStart < bStart.Add(bMin) && bStart < aStart.Add(aMin)
}
