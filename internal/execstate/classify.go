// Package execstate derives planned/active/dormant status for goals and
// plans from historical completion patterns.
package execstate

import (
	"time"

	"github.com/fennwick/trellis/internal/model"
	"github.com/fennwick/trellis/internal/schedule"
)

type State string

const (
	StateNone    State = "none"
	StatePlanned State = "planned"
	StateActive  State = "active"
	StateDormant State = "dormant"
)

const (
	// ExecutionWindowDays is the trailing window in which any completion
	// keeps a goal "active".
	ExecutionWindowDays = 14

	// ConsistencyThreshold is the fraction of expected weekly completions
	// that keeps a streak alive.
	ConsistencyThreshold = 0.6
)

// gracePeriodDays is how long after creation/start the absence of any
// completion still counts as "planned" rather than "dormant".
func gracePeriodDays(cadence model.Cadence) int {
	switch cadence {
	case model.CadenceDaily:
		return 3
	case model.CadenceWeekly:
		return 7
	default:
		return 1
	}
}

// Classify derives the execution state of a goal from its commitments and
// their completion timestamps, as of ref.
//
// none: no commitments at all. active: any completion within the trailing
// window. planned: never completed and every commitment still inside its
// cadence grace period. dormant: everything else — grace elapsed with no
// recent activity, whether the goal never started or was active and
// stopped.
func Classify(commitments []model.Commitment, completions []time.Time, ref time.Time) State {
	if len(commitments) == 0 {
		return StateNone
	}

	windowStart := ref.AddDate(0, 0, -ExecutionWindowDays)
	for _, done := range completions {
		if done.After(windowStart) && !done.After(ref) {
			return StateActive
		}
	}

	if len(completions) == 0 && allWithinGrace(commitments, ref) {
		return StatePlanned
	}

	return StateDormant
}

func allWithinGrace(commitments []model.Commitment, ref time.Time) bool {
	for _, c := range commitments {
		since := c.CreatedAt
		if c.StartDate != nil {
			if d, err := schedule.ParseDate(*c.StartDate); err == nil {
				since = d
			}
		}
		deadline := since.AddDate(0, 0, gracePeriodDays(c.Cadence))
		if ref.After(deadline) {
			return false
		}
	}
	return true
}

// ExpectedPerWeek is how many completions a commitment plans per week.
func ExpectedPerWeek(c model.Commitment) int {
	switch c.Cadence {
	case model.CadenceDaily:
		n := c.InstancesPerDay
		if n < 1 {
			n = 1
		}
		return 7 * n
	case model.CadenceWeekly:
		if len(c.ActiveDays) > 0 {
			return len(c.ActiveDays)
		}
		if c.TimesPerWeek > 0 {
			return c.TimesPerWeek
		}
		return 1
	default:
		return 1
	}
}

// Streak counts trailing consecutive weeks, excluding the current week,
// where completions met the consistency threshold of the commitment's
// expected weekly count. The streak breaks at the first week below
// threshold.
func Streak(c model.Commitment, completions []time.Time, ref time.Time) int {
	expected := ExpectedPerWeek(c)
	needed := ConsistencyThreshold * float64(expected)

	perWeek := make(map[string]int)
	for _, done := range completions {
		perWeek[schedule.DateKey(schedule.WeekStart(done))]++
	}

	streak := 0
	week := schedule.WeekStart(ref).AddDate(0, 0, -7)
	for {
		count := perWeek[schedule.DateKey(week)]
		if float64(count) < needed {
			break
		}
		streak++
		week = week.AddDate(0, 0, -7)
	}
	return streak
}

// Rollup aggregates child states upward (goal → parent goal → vision):
// active if any child is active, planned if any child is planned and none
// active, dormant if any child has ever had work, none otherwise. Any-of,
// not averaging.
func Rollup(children []State) State {
	if len(children) == 0 {
		return StateNone
	}

	anyPlanned, anyDormant := false, false
	for _, s := range children {
		switch s {
		case StateActive:
			return StateActive
		case StatePlanned:
			anyPlanned = true
		case StateDormant:
			anyDormant = true
		}
	}
	if anyPlanned {
		return StatePlanned
	}
	if anyDormant {
		return StateDormant
	}
	return StateNone
}
