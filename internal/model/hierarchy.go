package model

import (
	"time"

	"github.com/google/uuid"
)

// GoalHorizon is the planning horizon of a goal in the
// pillar → vision → goal hierarchy.
type GoalHorizon string

const (
	HorizonThreeYear GoalHorizon = "three_year"
	HorizonOneYear   GoalHorizon = "one_year"
	HorizonNinetyDay GoalHorizon = "ninety_day"
)

type Pillar struct {
	ID         uuid.UUID  `json:"id"`
	UserID     uuid.UUID  `json:"user_id"`
	Name       string     `json:"name"`
	SortOrder  int        `json:"sort_order"`
	ArchivedAt *time.Time `json:"archived_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

type Vision struct {
	ID          uuid.UUID  `json:"id"`
	UserID      uuid.UUID  `json:"user_id"`
	PillarID    uuid.UUID  `json:"pillar_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	ArchivedAt  *time.Time `json:"archived_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type Goal struct {
	ID           uuid.UUID   `json:"id"`
	UserID       uuid.UUID   `json:"user_id"`
	VisionID     uuid.UUID   `json:"vision_id"`
	ParentGoalID *uuid.UUID  `json:"parent_goal_id,omitempty"`
	Title        string      `json:"title"`
	Horizon      GoalHorizon `json:"horizon"`
	TargetDate   *string     `json:"target_date,omitempty"` // "2006-01-02"
	ArchivedAt   *time.Time  `json:"archived_at,omitempty"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
}
