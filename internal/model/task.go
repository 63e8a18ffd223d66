package model

import (
	"time"

	"github.com/google/uuid"
)

// TaskRecord is a per-date record. With CommitmentID set it is an exception
// record for one occurrence of a recurring commitment (completion, time
// override, or detachment). With CommitmentID nil it is an independent,
// self-contained one-off task.
//
// Exception records are created lazily — only once a day's state diverges
// from the template default. At most one exists per
// (commitment, date, instance) in non-detached state.
type TaskRecord struct {
	ID           uuid.UUID  `json:"id"`
	UserID       uuid.UUID  `json:"user_id"`
	CommitmentID *uuid.UUID `json:"commitment_id,omitempty"`
	Date         string     `json:"date"` // "2006-01-02"
	Instance     int        `json:"instance"`
	Title        string     `json:"title,omitempty"`
	StartTime    *string    `json:"start_time,omitempty"`
	EndTime      *string    `json:"end_time,omitempty"`
	IsCompleted  bool       `json:"is_completed"`
	IsDetached   bool       `json:"is_detached"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// TaskCompletion marks an independent task record as done. Recurring
// occurrences track completion on the exception record itself; independent
// tasks use this separate per-instance flag.
type TaskCompletion struct {
	ID           uuid.UUID `json:"id"`
	UserID       uuid.UUID `json:"user_id"`
	TaskRecordID uuid.UUID `json:"task_record_id"`
	CompletedAt  time.Time `json:"completed_at"`
}
