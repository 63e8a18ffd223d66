package schedule

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
)

func strptr(s string) *string { return &s }

// 2026-03-09 is a Monday.
var (
	monday    = time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	tuesday   = monday.AddDate(0, 0, 1)
	wednesday = monday.AddDate(0, 0, 2)
	friday    = monday.AddDate(0, 0, 4)
	sunday    = monday.AddDate(0, 0, 6)
)

func TestOccursOnDaily(t *testing.T) {
	c := model.Commitment{ID: uuid.New(), Cadence: model.CadenceDaily, InstancesPerDay: 3}

	for _, date := range []time.Time{monday, tuesday, sunday} {
		show, n := OccursOn(c, date)
		if !show {
			t.Errorf("daily commitment should occur on %v", date)
		}
		if n != 3 {
			t.Errorf("instance count = %d, want 3", n)
		}
	}
}

func TestOccursOnDailyDefaultsToOneInstance(t *testing.T) {
	c := model.Commitment{Cadence: model.CadenceDaily}
	show, n := OccursOn(c, monday)
	if !show || n != 1 {
		t.Errorf("got show=%v n=%d, want show=true n=1", show, n)
	}
}

func TestOccursOnWeekly(t *testing.T) {
	c := model.Commitment{
		Cadence:    model.CadenceWeekly,
		ActiveDays: []int{1, 3, 5}, // Mon, Wed, Fri (Sunday=0)
	}

	tests := []struct {
		date time.Time
		want bool
	}{
		{monday, true},
		{tuesday, false},
		{wednesday, true},
		{friday, true},
		{sunday, false},
	}

	for _, tt := range tests {
		show, n := OccursOn(c, tt.date)
		if show != tt.want {
			t.Errorf("OccursOn(%s) = %v, want %v", tt.date.Weekday(), show, tt.want)
		}
		if show && n != 1 {
			t.Errorf("weekly instance count = %d, want 1", n)
		}
	}
}

func TestOccursOnWeeklyFrequencyFallback(t *testing.T) {
	// No explicit day set: 7+ times per week means every day.
	c := model.Commitment{Cadence: model.CadenceWeekly, TimesPerWeek: 7}
	for _, date := range []time.Time{monday, tuesday, sunday} {
		if show, _ := OccursOn(c, date); !show {
			t.Errorf("times_per_week=7 should show on %s", date.Weekday())
		}
	}

	c.TimesPerWeek = 3
	if show, _ := OccursOn(c, monday); show {
		t.Error("times_per_week=3 with no active days should not show")
	}
}

func TestOccursOnDateBounds(t *testing.T) {
	c := model.Commitment{
		Cadence:   model.CadenceDaily,
		StartDate: strptr("2026-03-09"),
		EndDate:   strptr("2026-03-13"),
	}

	tests := []struct {
		date time.Time
		want bool
	}{
		{monday.AddDate(0, 0, -1), false}, // before start
		{monday, true},                    // start is inclusive
		{friday, true},                    // end is inclusive
		{friday.AddDate(0, 0, 1), false},  // after end
	}

	for _, tt := range tests {
		if show, _ := OccursOn(c, tt.date); show != tt.want {
			t.Errorf("OccursOn(%s) = %v, want %v", DateKey(tt.date), show, tt.want)
		}
	}
}

func TestOccursOnBoundsApplyToAllCadences(t *testing.T) {
	outOfRange := monday.AddDate(0, 0, -7)
	for _, cadence := range []model.Cadence{model.CadenceDaily, model.CadenceWeekly} {
		c := model.Commitment{
			Cadence:      cadence,
			ActiveDays:   []int{0, 1, 2, 3, 4, 5, 6},
			TimesPerWeek: 7,
			StartDate:    strptr("2026-03-09"),
		}
		if show, _ := OccursOn(c, outOfRange); show {
			t.Errorf("cadence %s should not occur before start date", cadence)
		}
	}
}

func TestOccursOnNone(t *testing.T) {
	c := model.Commitment{Cadence: model.CadenceNone}
	if show, _ := OccursOn(c, monday); show {
		t.Error("cadence none should never recur")
	}
}

func TestValidateRule(t *testing.T) {
	tests := []struct {
		name    string
		c       model.Commitment
		wantErr bool
	}{
		{"daily ok", model.Commitment{Cadence: model.CadenceDaily, InstancesPerDay: 1}, false},
		{"weekly with days", model.Commitment{Cadence: model.CadenceWeekly, ActiveDays: []int{1}}, false},
		{"weekly no days low frequency", model.Commitment{Cadence: model.CadenceWeekly, TimesPerWeek: 3}, true},
		{"weekly no days everyday frequency", model.Commitment{Cadence: model.CadenceWeekly, TimesPerWeek: 7}, false},
		{"day out of range", model.Commitment{Cadence: model.CadenceWeekly, ActiveDays: []int{7}}, true},
		{"daily zero instances", model.Commitment{Cadence: model.CadenceDaily, InstancesPerDay: 0}, true},
		{"bad cadence", model.Commitment{Cadence: "monthly"}, true},
		{"bad start time", model.Commitment{Cadence: model.CadenceDaily, InstancesPerDay: 1, StartTime: strptr("25:00")}, true},
		{"end before start time", model.Commitment{Cadence: model.CadenceDaily, InstancesPerDay: 1, StartTime: strptr("10:00"), EndTime: strptr("09:00")}, true},
		{"end date before start date", model.Commitment{Cadence: model.CadenceDaily, InstancesPerDay: 1, StartDate: strptr("2026-03-10"), EndDate: strptr("2026-03-09")}, true},
		{"none cadence ok", model.Commitment{Cadence: model.CadenceNone}, false},
	}

	for _, tt := range tests {
		err := ValidateRule(tt.c)
		if (err != nil) != tt.wantErr {
			t.Errorf("%s: ValidateRule error = %v, wantErr %v", tt.name, err, tt.wantErr)
		}
	}
}
