package planner

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/database"
	"github.com/fennwick/trellis/internal/model"
	"github.com/fennwick/trellis/internal/store"
)

func setupService(t *testing.T) (*Service, *sql.DB, uuid.UUID) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	userID := uuid.New()
	if _, err := db.Exec(
		`INSERT INTO users (id, name, token_hash) VALUES (?, ?, ?)`,
		userID.String(), "Test User", "x",
	); err != nil {
		t.Fatalf("create test user: %v", err)
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(log,
		store.NewCommitmentStore(db),
		store.NewTaskRecordStore(db),
		store.NewGoalStore(db),
		store.NewCheckInStore(db),
	)
	return svc, db, userID
}

func strptr(s string) *string { return &s }

func TestOccurrencesForDate(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	cs := svc.commitments
	if _, err := cs.Create(userID, model.Commitment{
		Title: "Morning run", Cadence: model.CadenceDaily, InstancesPerDay: 1,
		StartTime: strptr("07:00"), EndTime: strptr("08:00"),
	}); err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	if _, err := cs.Create(userID, model.Commitment{
		Title: "Journal", Cadence: model.CadenceDaily, InstancesPerDay: 2,
	}); err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	if _, err := svc.records.Create(userID, model.TaskRecord{
		Date: "2026-03-09", Title: "Dentist", StartTime: strptr("11:00"),
	}); err != nil {
		t.Fatalf("create independent task: %v", err)
	}

	occs, err := svc.OccurrencesForDate(ctx, userID, "2026-03-09")
	if err != nil {
		t.Fatalf("occurrences: %v", err)
	}
	if len(occs) != 4 {
		t.Fatalf("got %d occurrences, want 4", len(occs))
	}

	// Timed items first in clock order, untimed after.
	if occs[0].Title != "Morning run" {
		t.Errorf("first occurrence = %q, want Morning run", occs[0].Title)
	}
	if occs[1].Title != "Dentist" {
		t.Errorf("second occurrence = %q, want Dentist", occs[1].Title)
	}
	if occs[2].Title != "Journal" || occs[2].Instance != 1 {
		t.Errorf("third occurrence = %q instance %d", occs[2].Title, occs[2].Instance)
	}
	if occs[3].Instance != 2 {
		t.Errorf("fourth occurrence instance = %d, want 2", occs[3].Instance)
	}
}

func TestOccurrencesForWeek(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	// Weekly on Monday and Friday.
	if _, err := svc.commitments.Create(userID, model.Commitment{
		Title: "Gym", Cadence: model.CadenceWeekly, ActiveDays: []int{1, 5},
	}); err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	// 2026-03-11 is a Wednesday; its week starts Monday 2026-03-09.
	weekStart, days, err := svc.OccurrencesForWeek(ctx, userID, "2026-03-11")
	if err != nil {
		t.Fatalf("week: %v", err)
	}
	if weekStart != "2026-03-09" {
		t.Errorf("week start = %s, want 2026-03-09", weekStart)
	}
	if len(days) != 7 {
		t.Errorf("got %d days, want 7", len(days))
	}
	if len(days["2026-03-09"]) != 1 || len(days["2026-03-13"]) != 1 {
		t.Errorf("Monday/Friday occurrences missing: %v", days)
	}
	if len(days["2026-03-10"]) != 0 {
		t.Errorf("Tuesday should be empty, got %v", days["2026-03-10"])
	}
}

func TestCacheServesStaleWithinTTLAndInvalidates(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	if _, err := svc.commitments.Create(userID, model.Commitment{
		Title: "Read", Cadence: model.CadenceDaily, InstancesPerDay: 1,
	}); err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	occs, err := svc.OccurrencesForDate(ctx, userID, "2026-03-09")
	if err != nil {
		t.Fatalf("occurrences: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(occs))
	}

	// A write that bypasses the service is not visible until invalidation.
	if _, err := svc.commitments.Create(userID, model.Commitment{
		Title: "Stretch", Cadence: model.CadenceDaily, InstancesPerDay: 1,
	}); err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	occs, err = svc.OccurrencesForDate(ctx, userID, "2026-03-09")
	if err != nil {
		t.Fatalf("occurrences: %v", err)
	}
	if len(occs) != 1 {
		t.Errorf("cached read returned %d occurrences, want 1", len(occs))
	}

	svc.Invalidate(userID)
	occs, err = svc.OccurrencesForDate(ctx, userID, "2026-03-09")
	if err != nil {
		t.Fatalf("occurrences: %v", err)
	}
	if len(occs) != 2 {
		t.Errorf("post-invalidation read returned %d occurrences, want 2", len(occs))
	}
}

func TestToggleRecurringCreatesRecordAndCheckIn(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	c, err := svc.commitments.Create(userID, model.Commitment{
		Title: "Gym", Cadence: model.CadenceWeekly, ActiveDays: []int{1, 3, 5},
	})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	// Warm the cache so the optimistic path is exercised.
	if _, err := svc.OccurrencesForDate(ctx, userID, "2026-03-09"); err != nil {
		t.Fatalf("warm cache: %v", err)
	}

	cid := c.ID
	ref := OccurrenceRef{CommitmentID: &cid, Date: "2026-03-09", Instance: 1}
	done, err := svc.ToggleCompletion(ctx, userID, ref)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !done {
		t.Error("first toggle should complete the occurrence")
	}

	// Cache reflects the toggle without a refetch.
	occs, err := svc.OccurrencesForDate(ctx, userID, "2026-03-09")
	if err != nil {
		t.Fatalf("occurrences: %v", err)
	}
	if len(occs) != 1 || !occs[0].Completed {
		t.Errorf("cached occurrence not marked completed: %+v", occs)
	}

	// The exception record was created lazily.
	rec, err := svc.records.GetOccurrence(userID, c.ID, "2026-03-09", 1)
	if err != nil {
		t.Fatalf("get occurrence record: %v", err)
	}
	if rec == nil || !rec.IsCompleted {
		t.Fatal("exception record missing or incomplete")
	}

	// Week counter moved: planned 3 per week, one done.
	w, err := svc.checkins.Get(userID, c.ID, "2026-03-09")
	if err != nil {
		t.Fatalf("get checkin: %v", err)
	}
	if w == nil || w.PlannedCount != 3 || w.ActualCount != 1 {
		t.Errorf("checkin = %+v, want planned=3 actual=1", w)
	}

	// Toggle back.
	done, err = svc.ToggleCompletion(ctx, userID, ref)
	if err != nil {
		t.Fatalf("toggle back: %v", err)
	}
	if done {
		t.Error("second toggle should undo completion")
	}
	w, err = svc.checkins.Get(userID, c.ID, "2026-03-09")
	if err != nil {
		t.Fatalf("get checkin: %v", err)
	}
	if w.ActualCount != 0 {
		t.Errorf("actual count = %d, want 0 after undo", w.ActualCount)
	}
}

func TestToggleIndependent(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	rec, err := svc.records.Create(userID, model.TaskRecord{Date: "2026-03-09", Title: "Dentist"})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	rid := rec.ID
	ref := OccurrenceRef{TaskRecordID: &rid, Date: "2026-03-09"}
	done, err := svc.ToggleCompletion(ctx, userID, ref)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !done {
		t.Error("first toggle should complete")
	}

	occs, err := svc.OccurrencesForDate(ctx, userID, "2026-03-09")
	if err != nil {
		t.Fatalf("occurrences: %v", err)
	}
	if len(occs) != 1 || !occs[0].Completed {
		t.Errorf("occurrence not completed: %+v", occs)
	}

	if done, err = svc.ToggleCompletion(ctx, userID, ref); err != nil || done {
		t.Errorf("second toggle: done=%v err=%v, want false/nil", done, err)
	}
}

func TestDetachOccurrence(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	c, err := svc.commitments.Create(userID, model.Commitment{
		Title: "Review week", Cadence: model.CadenceDaily, InstancesPerDay: 1,
		StartTime: strptr("17:00"), EndTime: strptr("17:30"),
	})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	cid := c.ID
	copyRec, err := svc.DetachOccurrence(ctx, userID, OccurrenceRef{
		CommitmentID: &cid, Date: "2026-03-09", Instance: 1,
	})
	if err != nil {
		t.Fatalf("detach: %v", err)
	}
	if copyRec.CommitmentID != nil {
		t.Error("materialized copy must be independent")
	}
	if copyRec.Title != "Review week" || copyRec.StartTime == nil || *copyRec.StartTime != "17:00" {
		t.Errorf("copy did not inherit template defaults: %+v", copyRec)
	}

	occs, err := svc.OccurrencesForDate(ctx, userID, "2026-03-09")
	if err != nil {
		t.Fatalf("occurrences: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("got %d occurrences, want only the detached copy", len(occs))
	}
	if occs[0].CommitmentID != nil {
		t.Error("template occurrence should no longer render on that day")
	}

	// Other days of the template are untouched.
	occs, err = svc.OccurrencesForDate(ctx, userID, "2026-03-10")
	if err != nil {
		t.Fatalf("occurrences next day: %v", err)
	}
	if len(occs) != 1 || occs[0].CommitmentID == nil {
		t.Errorf("next day should still render from the template: %+v", occs)
	}
}

func TestConvertToRecurring(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	rec, err := svc.records.Create(userID, model.TaskRecord{
		Date: "2026-03-09", Title: "Water plants", StartTime: strptr("08:00"),
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}

	c, err := svc.ConvertToRecurring(ctx, userID, rec.ID, model.Commitment{
		Cadence: model.CadenceWeekly, ActiveDays: []int{1},
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}
	if c.Title != "Water plants" {
		t.Errorf("commitment title = %q, inherited title expected", c.Title)
	}
	if c.StartDate == nil || *c.StartDate != "2026-03-09" {
		t.Errorf("start date = %v, want record date", c.StartDate)
	}

	got, err := svc.records.GetByID(userID, rec.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if got.CommitmentID == nil || *got.CommitmentID != c.ID {
		t.Error("record not re-pointed at the new commitment")
	}

	// Converting again fails: the record already belongs to a commitment.
	if _, err := svc.ConvertToRecurring(ctx, userID, rec.ID, model.Commitment{
		Cadence: model.CadenceWeekly, ActiveDays: []int{1},
	}); err == nil {
		t.Error("second conversion should fail")
	}
}

func TestUpdateRuleRejectsInvalid(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	c, err := svc.commitments.Create(userID, model.Commitment{
		Title: "Gym", Cadence: model.CadenceWeekly, ActiveDays: []int{1},
	})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	bad := *c
	bad.ActiveDays = []int{9}
	if _, err := svc.UpdateRule(ctx, userID, c.ID, bad); err == nil {
		t.Error("day 9 should be rejected")
	}

	good := *c
	good.ActiveDays = []int{2, 4}
	updated, err := svc.UpdateRule(ctx, userID, c.ID, good)
	if err != nil {
		t.Fatalf("update rule: %v", err)
	}
	if len(updated.ActiveDays) != 2 {
		t.Errorf("active days = %v", updated.ActiveDays)
	}
}

func TestConvertKeepsCompletedState(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	rec, err := svc.records.Create(userID, model.TaskRecord{
		Date: "2026-03-09", Title: "File taxes", StartTime: strptr("10:00"),
	})
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	rid := rec.ID
	if _, err := svc.ToggleCompletion(ctx, userID, OccurrenceRef{TaskRecordID: &rid, Date: "2026-03-09"}); err != nil {
		t.Fatalf("toggle: %v", err)
	}

	c, err := svc.ConvertToRecurring(ctx, userID, rec.ID, model.Commitment{
		Cadence: model.CadenceDaily, InstancesPerDay: 1,
	})
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	// The first occurrence of the new commitment keeps its completed
	// state: completion moved from the instance table onto the record.
	occs, err := svc.OccurrencesForDate(ctx, userID, "2026-03-09")
	if err != nil {
		t.Fatalf("occurrences: %v", err)
	}
	if len(occs) != 1 {
		t.Fatalf("got %d occurrences, want 1", len(occs))
	}
	if occs[0].CommitmentID == nil || *occs[0].CommitmentID != c.ID {
		t.Errorf("occurrence not driven by the new commitment: %+v", occs[0])
	}
	if !occs[0].Completed {
		t.Errorf("occurrence lost its completed state after conversion: %+v", occs[0])
	}

	got, err := svc.records.GetByID(userID, rec.ID)
	if err != nil {
		t.Fatalf("get record: %v", err)
	}
	if !got.IsCompleted {
		t.Error("record flag not set during conversion")
	}
	completions, err := svc.records.ListInstanceCompletions(userID, "2026-03-09", "2026-03-09")
	if err != nil {
		t.Fatalf("list completions: %v", err)
	}
	if len(completions) != 0 {
		t.Errorf("instance-completion row should be removed, got %d", len(completions))
	}
}

func TestDetachTwiceRefused(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	c, err := svc.commitments.Create(userID, model.Commitment{
		Title: "Review week", Cadence: model.CadenceDaily, InstancesPerDay: 1,
	})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	cid := c.ID
	ref := OccurrenceRef{CommitmentID: &cid, Date: "2026-03-09", Instance: 1}
	if _, err := svc.DetachOccurrence(ctx, userID, ref); err != nil {
		t.Fatalf("detach: %v", err)
	}
	if _, err := svc.DetachOccurrence(ctx, userID, ref); err == nil {
		t.Fatal("second detach of the same occurrence should be refused")
	}

	occs, err := svc.OccurrencesForDate(ctx, userID, "2026-03-09")
	if err != nil {
		t.Fatalf("occurrences: %v", err)
	}
	if len(occs) != 1 {
		t.Errorf("got %d occurrences, want only the single detached copy", len(occs))
	}
}

func TestToggleRejectsNonOccurrence(t *testing.T) {
	svc, _, userID := setupService(t)
	ctx := context.Background()

	c, err := svc.commitments.Create(userID, model.Commitment{
		Title: "Gym", Cadence: model.CadenceWeekly, ActiveDays: []int{1},
	})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}
	cid := c.ID

	// 2026-03-10 is a Tuesday; the rule only generates Mondays.
	if _, err := svc.ToggleCompletion(ctx, userID, OccurrenceRef{
		CommitmentID: &cid, Date: "2026-03-10", Instance: 1,
	}); err == nil {
		t.Fatal("toggle on a non-occurring date should be refused")
	}

	// An instance beyond the rule's count is equally invalid.
	if _, err := svc.ToggleCompletion(ctx, userID, OccurrenceRef{
		CommitmentID: &cid, Date: "2026-03-09", Instance: 2,
	}); err == nil {
		t.Fatal("toggle of a non-existent instance should be refused")
	}

	// Neither attempt may plant a record or move the week counter.
	records, err := svc.records.ListRange(userID, "2026-03-09", "2026-03-10")
	if err != nil {
		t.Fatalf("list records: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("orphan exception records created: %+v", records)
	}
	w, err := svc.checkins.Get(userID, c.ID, "2026-03-09")
	if err != nil {
		t.Fatalf("get checkin: %v", err)
	}
	if w != nil {
		t.Errorf("check-in row created for rejected toggle: %+v", w)
	}
}
