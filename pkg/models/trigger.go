package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// TriggerMode selects how a recurring trigger computes its firing
// times.
type TriggerMode string

const (
	TriggerModeInterval   TriggerMode = "interval"     // every N hours
	TriggerModeDaily      TriggerMode = "daily"        // every day at HH:MM
	TriggerModeWeekly     TriggerMode = "weekly"       // once a week at HH:MM
	TriggerModeDayAndTime TriggerMode = "day-and-time" // specific weekday + HH:MM
	TriggerModeCron       TriggerMode = "cron"         // standard 5-field cron expression
)

// ErrTimerMisconfigured indicates a trigger config that cannot produce
// a firing schedule.
var ErrTimerMisconfigured = errors.New("timer misconfigured")

// TriggerConfig is the persisted configuration of a trigger-timer
// step. One config exists per trigger node; its lifecycle follows the
// node's presence and Enabled flag.
type TriggerConfig struct {
	Mode          TriggerMode  `json:"mode"`
	IntervalHours int          `json:"interval_hours,omitempty"`
	Time          string       `json:"time,omitempty"` // "HH:MM", wall clock
	Weekday       time.Weekday `json:"weekday,omitempty"`
	CronExpr      string       `json:"cron,omitempty"`
	Enabled       bool         `json:"enabled"`
}

// ParseTriggerConfig reads a trigger-timer node's config map.
func ParseTriggerConfig(config map[string]any) (*TriggerConfig, error) {
	mode, _ := config["mode"].(string)
	if mode == "" {
		return nil, fmt.Errorf("%w: missing mode", ErrTimerMisconfigured)
	}

	tc := &TriggerConfig{
		Mode:    TriggerMode(mode),
		Enabled: true,
	}

	if enabled, ok := config["enabled"].(bool); ok {
		tc.Enabled = enabled
	}

	if t, ok := config["time"].(string); ok {
		tc.Time = t
	}

	if expr, ok := config["cron"].(string); ok {
		tc.CronExpr = expr
	}

	switch hours := config["interval_hours"].(type) {
	case int:
		tc.IntervalHours = hours
	case float64: // JSON numbers decode as float64
		tc.IntervalHours = int(hours)
	}

	switch day := config["weekday"].(type) {
	case string:
		weekday, err := parseWeekday(day)
		if err != nil {
			return nil, err
		}

		tc.Weekday = weekday
	case float64:
		tc.Weekday = time.Weekday(int(day))
	}

	if err := tc.Validate(); err != nil {
		return nil, err
	}

	return tc, nil
}

// Validate checks mode-specific parameters.
func (tc *TriggerConfig) Validate() error {
	switch tc.Mode {
	case TriggerModeInterval:
		if tc.IntervalHours <= 0 {
			return fmt.Errorf("%w: interval_hours must be positive", ErrTimerMisconfigured)
		}
	case TriggerModeDaily:
		if _, _, err := tc.ClockTime(); err != nil {
			return err
		}
	case TriggerModeWeekly, TriggerModeDayAndTime:
		if _, _, err := tc.ClockTime(); err != nil {
			return err
		}

		if tc.Weekday < time.Sunday || tc.Weekday > time.Saturday {
			return fmt.Errorf("%w: weekday out of range", ErrTimerMisconfigured)
		}
	case TriggerModeCron:
		if _, err := cron.ParseStandard(tc.CronExpr); err != nil {
			return fmt.Errorf("%w: %v", ErrTimerMisconfigured, err)
		}
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrTimerMisconfigured, tc.Mode)
	}

	return nil
}

// ClockTime parses the "HH:MM" target into hour and minute.
func (tc *TriggerConfig) ClockTime() (hour, minute int, err error) {
	parts := strings.SplitN(tc.Time, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: time %q is not HH:MM", ErrTimerMisconfigured, tc.Time)
	}

	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("%w: bad hour in %q", ErrTimerMisconfigured, tc.Time)
	}

	minute, err = strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("%w: bad minute in %q", ErrTimerMisconfigured, tc.Time)
	}

	return hour, minute, nil
}

// MatchesMinute reports whether the wall-clock minute of now matches
// the configured target. Only meaningful for the daily, weekly and
// day-and-time modes; the comparison is exact to the minute, so a poll
// at 09:01 does not fire a 09:00 trigger and no catch-up happens.
func (tc *TriggerConfig) MatchesMinute(now time.Time) bool {
	hour, minute, err := tc.ClockTime()
	if err != nil {
		return false
	}

	if now.Hour() != hour || now.Minute() != minute {
		return false
	}

	switch tc.Mode {
	case TriggerModeDaily:
		return true
	case TriggerModeWeekly, TriggerModeDayAndTime:
		return now.Weekday() == tc.Weekday
	default:
		return false
	}
}

func parseWeekday(name string) (time.Weekday, error) {
	days := map[string]time.Weekday{
		"sunday":    time.Sunday,
		"monday":    time.Monday,
		"tuesday":   time.Tuesday,
		"wednesday": time.Wednesday,
		"thursday":  time.Thursday,
		"friday":    time.Friday,
		"saturday":  time.Saturday,
	}

	if day, ok := days[strings.ToLower(name)]; ok {
		return day, nil
	}

	return 0, fmt.Errorf("%w: unknown weekday %q", ErrTimerMisconfigured, name)
}
