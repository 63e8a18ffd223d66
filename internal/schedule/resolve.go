package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
)

// Occurrence is the ephemeral, computed representation of "this task
// happens on this day". Never persisted; recomputed on every fetch.
type Occurrence struct {
	CommitmentID *uuid.UUID `json:"commitment_id,omitempty"`
	TaskRecordID *uuid.UUID `json:"task_record_id,omitempty"`
	GoalID       *uuid.UUID `json:"goal_id,omitempty"`
	Date         string     `json:"date"`
	Instance     int        `json:"instance"`
	Title        string     `json:"title"`
	GoalTitle    string     `json:"goal_title,omitempty"`
	StartTime    *string    `json:"start_time,omitempty"`
	EndTime      *string    `json:"end_time,omitempty"`
	Completed    bool       `json:"completed"`
	Detached     bool       `json:"detached"`
}

// Key identifies one occurrence of a recurring commitment. A structured key
// rather than a concatenated string, so IDs can never collide on a
// delimiter.
type Key struct {
	CommitmentID uuid.UUID
	Date         string
	Instance     int
}

// Resolve merges a commitment's template defaults with its exception
// records for one date and produces the final occurrence list.
//
// Soft-deleted records are ignored. A detached record excludes its
// occurrence entirely: the occurrence has been materialized as an
// independent task and must not double-render. Time overrides on a record
// take precedence over the template's default window.
func Resolve(c model.Commitment, date time.Time, records []model.TaskRecord) []Occurrence {
	show, count := OccursOn(c, date)
	if !show {
		return nil
	}

	key := DateKey(date)
	byInstance := make(map[int]*model.TaskRecord)
	detached := make(map[int]bool)
	for i := range records {
		r := &records[i]
		if r.CommitmentID == nil || *r.CommitmentID != c.ID || r.Date != key {
			continue
		}
		if r.DeletedAt != nil {
			continue
		}
		inst := r.Instance
		if count == 1 {
			// Single-instance fallback: any record for this commitment+date
			// covers instance 1, tolerating legacy rows with other instance
			// numbers.
			inst = 1
		}
		if r.IsDetached {
			// Detachment is permanent and wins over any other record for
			// the same instance.
			detached[inst] = true
			continue
		}
		byInstance[inst] = r
	}

	occs := make([]Occurrence, 0, count)
	for i := 1; i <= count; i++ {
		if detached[i] {
			continue
		}
		rec := byInstance[i]

		cid := c.ID
		occ := Occurrence{
			CommitmentID: &cid,
			GoalID:       c.GoalID,
			Date:         key,
			Instance:     i,
			Title:        c.Title,
			StartTime:    c.StartTime,
			EndTime:      c.EndTime,
		}
		if rec != nil {
			rid := rec.ID
			occ.TaskRecordID = &rid
			occ.Completed = rec.IsCompleted
			if rec.StartTime != nil {
				occ.StartTime = rec.StartTime
				occ.EndTime = rec.EndTime
			}
		}
		occs = append(occs, occ)
	}

	return occs
}

// ResolveIndependent converts a one-off task record into an occurrence.
// Completion for independent tasks is tracked by a separate per-instance
// flag, not on the record itself.
func ResolveIndependent(rec model.TaskRecord, completed bool) Occurrence {
	rid := rec.ID
	return Occurrence{
		TaskRecordID: &rid,
		Date:         rec.Date,
		Instance:     rec.Instance,
		Title:        rec.Title,
		StartTime:    rec.StartTime,
		EndTime:      rec.EndTime,
		Completed:    completed,
		Detached:     rec.IsDetached,
	}
}
