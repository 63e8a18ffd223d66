package model

import (
	"time"

	"github.com/google/uuid"
)

// WeeklyCheckIn tracks planned vs actual completions for one commitment in
// one week. Created lazily the first time a completion is toggled in that
// week; ActualCount never goes below zero.
type WeeklyCheckIn struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	CommitmentID uuid.UUID `json:"commitment_id"`
	WeekStart    string    `json:"week_start"` // Monday, "2006-01-02"
	PlannedCount int       `json:"planned_count"`
	ActualCount  int       `json:"actual_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
