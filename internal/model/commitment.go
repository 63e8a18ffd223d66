package model

import (
	"time"

	"github.com/google/uuid"
)

// Cadence controls how a commitment recurs. CadenceNone never recurs on its
// own — one-off tasks live as independent task records instead.
type Cadence string

const (
	CadenceNone   Cadence = "none"
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

// Commitment is a recurring task template. Clock times are "HH:MM" strings,
// calendar dates are "2006-01-02" strings with inclusive bounds.
//
// ActiveDays uses the fixed Sunday=0..Saturday=6 mapping regardless of any
// display week-start preference. It is only meaningful for weekly cadence;
// when empty, TimesPerWeek >= 7 means "show every day".
type Commitment struct {
	ID              uuid.UUID  `json:"id"`
	UserID          uuid.UUID  `json:"user_id"`
	GoalID          *uuid.UUID `json:"goal_id,omitempty"`
	Title           string     `json:"title"`
	Cadence         Cadence    `json:"cadence"`
	ActiveDays      []int      `json:"active_days"`
	TimesPerWeek    int        `json:"times_per_week"`
	InstancesPerDay int        `json:"instances_per_day"`
	StartTime       *string    `json:"start_time,omitempty"`
	EndTime         *string    `json:"end_time,omitempty"`
	StartDate       *string    `json:"start_date,omitempty"`
	EndDate         *string    `json:"end_date,omitempty"`
	IsActive        bool       `json:"is_active"`
	DeletedAt       *time.Time `json:"deleted_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
