package store

import (
	"testing"

	"github.com/fennwick/trellis/internal/model"
)

func TestCheckInAdjust(t *testing.T) {
	db := setupTestDB(t)
	cs := NewCommitmentStore(db)
	ws := NewCheckInStore(db)
	userID := createTestUser(t, db)

	c, err := cs.Create(userID, model.Commitment{
		Title:      "Gym",
		Cadence:    model.CadenceWeekly,
		ActiveDays: []int{1, 3, 5},
	})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	// Row created lazily on first adjustment.
	w, err := ws.Adjust(userID, c.ID, "2026-03-09", 3, 1)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if w.PlannedCount != 3 || w.ActualCount != 1 {
		t.Errorf("got planned=%d actual=%d, want 3/1", w.PlannedCount, w.ActualCount)
	}

	w, err = ws.Adjust(userID, c.ID, "2026-03-09", 3, 1)
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if w.ActualCount != 2 {
		t.Errorf("actual = %d, want 2", w.ActualCount)
	}

	// Undo twice more than completed: clamps at zero.
	for range 3 {
		if w, err = ws.Adjust(userID, c.ID, "2026-03-09", 3, -1); err != nil {
			t.Fatalf("adjust: %v", err)
		}
	}
	if w.ActualCount != 0 {
		t.Errorf("actual = %d, want 0 after clamping", w.ActualCount)
	}

	// A different week gets its own row.
	w, err = ws.Adjust(userID, c.ID, "2026-03-16", 3, 1)
	if err != nil {
		t.Fatalf("adjust next week: %v", err)
	}
	if w.WeekStart != "2026-03-16" || w.ActualCount != 1 {
		t.Errorf("next week row = %+v", w)
	}

	week, err := ws.ListForWeek(userID, "2026-03-09")
	if err != nil {
		t.Fatalf("list week: %v", err)
	}
	if len(week) != 1 {
		t.Errorf("got %d checkins for week, want 1", len(week))
	}
}

func TestCheckInGetMissing(t *testing.T) {
	db := setupTestDB(t)
	cs := NewCommitmentStore(db)
	ws := NewCheckInStore(db)
	userID := createTestUser(t, db)

	c, err := cs.Create(userID, model.Commitment{Title: "Gym", Cadence: model.CadenceWeekly, ActiveDays: []int{1}})
	if err != nil {
		t.Fatalf("create commitment: %v", err)
	}

	w, err := ws.Get(userID, c.ID, "2026-03-09")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if w != nil {
		t.Error("expected nil for missing checkin")
	}
}
