package schedule

import (
	"fmt"
	"slices"
	"time"

	"github.com/fennwick/trellis/internal/model"
)

// OccursOn reports whether commitment c generates occurrences on date, and
// how many instances it generates that day.
//
// Dates outside the commitment's active range (inclusive bounds) never
// occur, regardless of cadence. Daily cadence occurs every in-range day
// with InstancesPerDay instances. Weekly cadence occurs on the listed
// active days (Sunday=0..Saturday=6); an empty day set falls back to
// TimesPerWeek >= 7 meaning "every day". CadenceNone never recurs — one-off
// tasks are resolved from independent task records instead.
func OccursOn(c model.Commitment, date time.Time) (bool, int) {
	date = startOfDay(date)

	if c.StartDate != nil {
		start, err := ParseDate(*c.StartDate)
		if err == nil && date.Before(start) {
			return false, 0
		}
	}
	if c.EndDate != nil {
		end, err := ParseDate(*c.EndDate)
		if err == nil && date.After(end) {
			return false, 0
		}
	}

	switch c.Cadence {
	case model.CadenceDaily:
		n := c.InstancesPerDay
		if n < 1 {
			n = 1
		}
		return true, n

	case model.CadenceWeekly:
		if len(c.ActiveDays) > 0 {
			if slices.Contains(c.ActiveDays, int(date.Weekday())) {
				return true, 1
			}
			return false, 0
		}
		// No explicit day set: a frequency of 7+ per week means every day.
		if c.TimesPerWeek >= 7 {
			return true, 1
		}
		return false, 0
	}

	return false, 0
}

// ValidateRule rejects recurrence rules that cannot produce a sensible
// schedule. Called before any write; rule errors are never runtime errors.
func ValidateRule(c model.Commitment) error {
	switch c.Cadence {
	case model.CadenceNone, model.CadenceDaily, model.CadenceWeekly:
	default:
		return fmt.Errorf("unknown cadence %q", c.Cadence)
	}

	if c.Cadence == model.CadenceWeekly && len(c.ActiveDays) == 0 && c.TimesPerWeek < 7 {
		return fmt.Errorf("weekly cadence requires at least one active day")
	}

	for _, d := range c.ActiveDays {
		if d < 0 || d > 6 {
			return fmt.Errorf("active day %d out of range 0-6", d)
		}
	}

	if c.Cadence == model.CadenceDaily && c.InstancesPerDay < 1 {
		return fmt.Errorf("instances per day must be at least 1")
	}

	if c.StartTime != nil {
		if _, err := ParseClock(*c.StartTime); err != nil {
			return err
		}
	}
	if c.EndTime != nil {
		endMin, err := ParseClock(*c.EndTime)
		if err != nil {
			return err
		}
		if c.StartTime != nil {
			startMin, _ := ParseClock(*c.StartTime)
			if endMin <= startMin {
				return fmt.Errorf("end time must be after start time")
			}
		}
	}

	if c.StartDate != nil {
		if _, err := ParseDate(*c.StartDate); err != nil {
			return err
		}
	}
	if c.EndDate != nil {
		end, err := ParseDate(*c.EndDate)
		if err != nil {
			return err
		}
		if c.StartDate != nil {
			start, _ := ParseDate(*c.StartDate)
			if end.Before(start) {
				return fmt.Errorf("end date before start date")
			}
		}
	}

	return nil
}
