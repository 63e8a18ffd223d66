package store

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
)

func TestTaskRecordCRUD(t *testing.T) {
	db := setupTestDB(t)
	rs := NewTaskRecordStore(db)
	userID := createTestUser(t, db)

	rec, err := rs.Create(userID, model.TaskRecord{
		Date:      "2026-03-09",
		Title:     "Dentist",
		StartTime: strptr("11:00"),
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if rec.CommitmentID != nil {
		t.Error("independent record should have no commitment")
	}
	if rec.Instance != 1 {
		t.Errorf("instance defaults to 1, got %d", rec.Instance)
	}

	updated, err := rs.Update(userID, rec.ID, "Dentist visit", "2026-03-10", strptr("14:00"), nil)
	if err != nil {
		t.Fatalf("update record: %v", err)
	}
	if updated.Title != "Dentist visit" || updated.Date != "2026-03-10" {
		t.Errorf("update not applied: %+v", updated)
	}

	if err := rs.SoftDelete(userID, rec.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}
	got, err := rs.GetByID(userID, rec.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got.DeletedAt == nil {
		t.Error("soft-deleted record should carry deleted_at")
	}

	list, err := rs.ListRange(userID, "2026-03-09", "2026-03-15")
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("soft-deleted record still listed: %d rows", len(list))
	}
}

func TestTaskRecordOccurrenceLookup(t *testing.T) {
	db := setupTestDB(t)
	rs := NewTaskRecordStore(db)
	cs := NewCommitmentStore(db)
	userID := createTestUser(t, db)

	c, err := cs.Create(userID, model.Commitment{Title: "Read", Cadence: model.CadenceDaily, InstancesPerDay: 2})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	cid := c.ID
	rec, err := rs.Create(userID, model.TaskRecord{
		CommitmentID: &cid,
		Date:         "2026-03-09",
		Instance:     2,
		IsCompleted:  true,
	})
	if err != nil {
		t.Fatalf("create exception: %v", err)
	}

	got, err := rs.GetOccurrence(userID, c.ID, "2026-03-09", 2)
	if err != nil {
		t.Fatalf("get occurrence: %v", err)
	}
	if got == nil || got.ID != rec.ID {
		t.Fatal("occurrence lookup missed the record")
	}

	if got, _ := rs.GetOccurrence(userID, c.ID, "2026-03-09", 1); got != nil {
		t.Error("instance 1 has no record yet")
	}

	// Detached records drop out of the occurrence lookup.
	if err := rs.Detach(userID, rec.ID); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if got, _ := rs.GetOccurrence(userID, c.ID, "2026-03-09", 2); got != nil {
		t.Error("detached record must not be returned as live occurrence")
	}

	n, err := rs.CountByCommitment(userID, c.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}
}

func TestTaskRecordUniquePerOccurrence(t *testing.T) {
	db := setupTestDB(t)
	rs := NewTaskRecordStore(db)
	cs := NewCommitmentStore(db)
	userID := createTestUser(t, db)

	c, err := cs.Create(userID, model.Commitment{Title: "Read", Cadence: model.CadenceDaily, InstancesPerDay: 1})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	cid := c.ID

	if _, err := rs.Create(userID, model.TaskRecord{CommitmentID: &cid, Date: "2026-03-09", Instance: 1}); err != nil {
		t.Fatalf("first record: %v", err)
	}
	if _, err := rs.Create(userID, model.TaskRecord{CommitmentID: &cid, Date: "2026-03-09", Instance: 1}); err == nil {
		t.Error("duplicate live record for one occurrence should be rejected")
	}
}

func TestTaskRecordPurge(t *testing.T) {
	db := setupTestDB(t)
	rs := NewTaskRecordStore(db)
	userID := createTestUser(t, db)

	rec, err := rs.Create(userID, model.TaskRecord{Date: "2026-01-05", Title: "Old"})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if err := rs.SoftDelete(userID, rec.ID); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	// Cutoff in the past: nothing purged yet.
	n, err := rs.PurgeDeletedBefore(time.Now().Add(-time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 0 {
		t.Errorf("purged %d rows, want 0", n)
	}

	n, err = rs.PurgeDeletedBefore(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d rows, want 1", n)
	}

	got, err := rs.GetByID(userID, rec.ID)
	if err != nil {
		t.Fatalf("get purged record: %v", err)
	}
	if got != nil {
		t.Error("purged record should be gone")
	}
}

func TestInstanceCompletionFlags(t *testing.T) {
	db := setupTestDB(t)
	rs := NewTaskRecordStore(db)
	userID := createTestUser(t, db)

	rec, err := rs.Create(userID, model.TaskRecord{Date: "2026-03-09", Title: "One-off"})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	if err := rs.SetInstanceCompleted(userID, rec.ID); err != nil {
		t.Fatalf("set completed: %v", err)
	}
	// Idempotent.
	if err := rs.SetInstanceCompleted(userID, rec.ID); err != nil {
		t.Fatalf("set completed twice: %v", err)
	}

	completions, err := rs.ListInstanceCompletions(userID, "2026-03-09", "2026-03-09")
	if err != nil {
		t.Fatalf("list completions: %v", err)
	}
	if len(completions) != 1 {
		t.Fatalf("got %d completions, want 1", len(completions))
	}
	if completions[0].TaskRecordID != rec.ID {
		t.Error("completion points at wrong record")
	}

	if err := rs.ClearInstanceCompleted(userID, rec.ID); err != nil {
		t.Fatalf("clear completed: %v", err)
	}
	completions, err = rs.ListInstanceCompletions(userID, "2026-03-09", "2026-03-09")
	if err != nil {
		t.Fatalf("list completions: %v", err)
	}
	if len(completions) != 0 {
		t.Errorf("got %d completions after clear, want 0", len(completions))
	}
}

func TestCompletionTimesByGoal(t *testing.T) {
	db := setupTestDB(t)
	rs := NewTaskRecordStore(db)
	cs := NewCommitmentStore(db)
	userID := createTestUser(t, db)

	ps := NewPillarStore(db)
	vs := NewVisionStore(db)
	gs := NewGoalStore(db)

	pillar, err := ps.Create(userID, "Health", 0)
	if err != nil {
		t.Fatalf("create pillar: %v", err)
	}
	vision, err := vs.Create(userID, pillar.ID, "Stay fit", "")
	if err != nil {
		t.Fatalf("create vision: %v", err)
	}
	goal, err := gs.Create(userID, model.Goal{VisionID: vision.ID, Title: "Run a 10k", Horizon: model.HorizonNinetyDay})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}

	gid := goal.ID
	c, err := cs.Create(userID, model.Commitment{Title: "Run", GoalID: &gid, Cadence: model.CadenceDaily, InstancesPerDay: 1})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	cid := c.ID

	if _, err := rs.Create(userID, model.TaskRecord{CommitmentID: &cid, Date: "2026-03-09", Instance: 1, IsCompleted: true}); err != nil {
		t.Fatalf("create completed record: %v", err)
	}
	if _, err := rs.Create(userID, model.TaskRecord{CommitmentID: &cid, Date: "2026-03-10", Instance: 1}); err != nil {
		t.Fatalf("create incomplete record: %v", err)
	}

	times, err := rs.CompletionTimesByGoal(userID, goal.ID)
	if err != nil {
		t.Fatalf("completion times: %v", err)
	}
	if len(times) != 1 {
		t.Fatalf("got %d completion times, want 1", len(times))
	}
	want := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	if !times[0].Equal(want) {
		t.Errorf("completion time = %v, want %v", times[0], want)
	}
}

func TestGoalTitlesByID(t *testing.T) {
	db := setupTestDB(t)
	userID := createTestUser(t, db)

	ps := NewPillarStore(db)
	vs := NewVisionStore(db)
	gs := NewGoalStore(db)

	pillar, _ := ps.Create(userID, "Craft", 0)
	vision, _ := vs.Create(userID, pillar.ID, "Master woodworking", "")
	goal, err := gs.Create(userID, model.Goal{VisionID: vision.ID, Title: "Build a chair", Horizon: model.HorizonOneYear})
	if err != nil {
		t.Fatalf("create goal: %v", err)
	}

	titles, err := gs.TitlesByID(userID)
	if err != nil {
		t.Fatalf("titles: %v", err)
	}
	if titles[goal.ID] != "Build a chair" {
		t.Errorf("titles = %v", titles)
	}
	if got := titles[uuid.New()]; got != "" {
		t.Errorf("unknown goal title = %q", got)
	}
}
