package scheduling

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

const DateLayout = "2006-01-02"

const minutesPerDay = 24 * 60

var (
	clockPattern = regexp.MustCompile(`^(0[1-9]|1[0-2]):([0-5][0-9]) (AM|PM)$`)

	errClockFormat = errors.New("time must match hh:mm AM|PM")
)

// ClockTime is a time of day in minutes since midnight. Its text form is
// the fixed "hh:mm AM" representation used by the portal.
type ClockTime int

func ParseClockTime(s string) (ClockTime, error) {
	m := clockPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, errClockFormat
	}
	hour, _ := strconv.Atoi(m[1])
	minute, _ := strconv.Atoi(m[2])

	hour %= 12
	if m[3] == "PM" {
		hour += 12
	}
	return ClockTime(hour*60 + minute), nil
}

// MustClockTime is ParseClockTime for literals known to be valid.
func MustClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(fmt.Sprintf("scheduling: invalid clock time %q", s))
	}
	return c
}

func (c ClockTime) Valid() bool {
	return c >= 0 && c < minutesPerDay
}

func (c ClockTime) String() string {
	hour, minute := int(c)/60, int(c)%60
	suffix := "AM"
	if hour >= 12 {
		suffix = "PM"
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%02d:%02d %s", hour, minute, suffix)
}

func (c ClockTime) MarshalText() ([]byte, error) {
	if !c.Valid() {
		return nil, fmt.Errorf("scheduling: clock time %d out of range", int(c))
	}
	return []byte(c.String()), nil
}

func (c *ClockTime) UnmarshalText(b []byte) error {
	parsed, err := ParseClockTime(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// ParseDate parses an ISO calendar date into a UTC-midnight civil date.
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}

// CivilDate drops the time of day, keeping the wall-clock date of t.
func CivilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// nextWeekday returns the first date on or after from that falls on day.
func nextWeekday(from time.Time, day time.Weekday) time.Time {
	delta := (int(day) - int(from.Weekday()) + 7) % 7
	return from.AddDate(0, 0, delta)
}
