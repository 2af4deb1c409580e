// Package schedule computes when the daemon should run the next backup.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron"
)

type Type string

const (
	TypeDaily   Type = "daily"
	TypeWeekly  Type = "weekly"
	TypeMonthly Type = "monthly"
)

// Spec is the schedule section of the configuration file.
type Spec struct {
	Type       Type   `mapstructure:"type"`
	Time       string `mapstructure:"time"`
	DayOfWeek  string `mapstructure:"day_of_week"`
	DayOfMonth int    `mapstructure:"day_of_month"`

	// Cron, when set, replaces the calendar fields with a standard five-field
	// cron expression.
	Cron string `mapstructure:"cron"`
}

// ConfigError reports an invalid schedule field. It is fatal: no run may start
// with an invalid schedule.
type ConfigError struct {
	Field string
	Value string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid schedule %s: %q", e.Field, e.Value)
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Schedule is a validated calendar schedule.
type Schedule struct {
	typ     Type
	hour    int
	minute  int
	second  int
	weekday time.Weekday
	day     int
}

var _ cron.Schedule = (*Schedule)(nil)

// New returns the schedule described by spec: a cron schedule when spec.Cron
// is set, a calendar schedule otherwise.
func New(spec Spec) (cron.Schedule, error) {
	if spec.Cron != "" {
		return ParseCron(spec.Cron)
	}

	return Parse(spec)
}

func ParseCron(expr string) (cron.Schedule, error) {
	s, err := cron.ParseStandard(expr)
	if err != nil {
		return nil, &ConfigError{Field: "cron", Value: expr}
	}

	return s, nil
}

func Parse(spec Spec) (*Schedule, error) {
	s := &Schedule{typ: Type(strings.ToLower(string(spec.Type)))}

	var err error
	s.hour, s.minute, s.second, err = parseTime(spec.Time)
	if err != nil {
		return nil, err
	}

	switch s.typ {
	case TypeDaily:
	case TypeWeekly:
		wd, ok := weekdays[strings.ToLower(spec.DayOfWeek)]
		if !ok {
			return nil, &ConfigError{Field: "day_of_week", Value: spec.DayOfWeek}
		}
		s.weekday = wd
	case TypeMonthly:
		if spec.DayOfMonth < 1 || spec.DayOfMonth > 31 {
			return nil, &ConfigError{Field: "day_of_month", Value: strconv.Itoa(spec.DayOfMonth)}
		}
		s.day = spec.DayOfMonth
	default:
		return nil, &ConfigError{Field: "type", Value: string(spec.Type)}
	}

	return s, nil
}

// parseTime accepts a 24-hour HH:MM:SS time of day.
func parseTime(value string) (int, int, int, error) {
	invalid := &ConfigError{Field: "time", Value: value}

	parts := strings.Split(value, ":")
	if len(parts) != 3 {
		return 0, 0, 0, invalid
	}

	limits := [3]int{23, 59, 59}
	var fields [3]int

	for i, part := range parts {
		if len(part) < 1 || len(part) > 2 {
			return 0, 0, 0, invalid
		}

		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > limits[i] {
			return 0, 0, 0, invalid
		}

		fields[i] = n
	}

	return fields[0], fields[1], fields[2], nil
}

func (s *Schedule) Type() Type {
	return s.typ
}

// Next returns the first scheduled time strictly after now, in now's location.
func (s *Schedule) Next(now time.Time) time.Time {
	loc := now.Location()
	today := time.Date(now.Year(), now.Month(), now.Day(), s.hour, s.minute, s.second, 0, loc)

	switch s.typ {
	case TypeWeekly:
		delta := (int(s.weekday) - int(now.Weekday()) + 7) % 7
		if delta == 0 && !today.After(now) {
			delta = 7
		}
		return today.AddDate(0, 0, delta)

	case TypeMonthly:
		next := time.Date(now.Year(), now.Month(), s.day, s.hour, s.minute, s.second, 0, loc)
		if !next.After(now) {
			next = time.Date(now.Year(), now.Month()+1, s.day, s.hour, s.minute, s.second, 0, loc)
		}
		return next

	default:
		if !today.After(now) {
			return today.AddDate(0, 0, 1)
		}
		return today
	}
}

// NextRun validates spec and computes the next run after now.
func NextRun(spec Spec, now time.Time) (time.Time, error) {
	s, err := New(spec)
	if err != nil {
		return time.Time{}, err
	}

	return s.Next(now), nil
}
