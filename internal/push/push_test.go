package push

import (
	"encoding/base64"
	"testing"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/schedule"
)

func TestGenerateVAPIDKeys(t *testing.T) {
	pub, priv, err := GenerateVAPIDKeys()
	if err != nil {
		t.Fatalf("generate VAPID keys: %v", err)
	}

	if pub == "" {
		t.Error("expected non-empty public key")
	}
	if priv == "" {
		t.Error("expected non-empty private key")
	}

	// Public key should be base64url-encoded, 65 bytes uncompressed P-256 point
	pubBytes, err := base64.RawURLEncoding.DecodeString(pub)
	if err != nil {
		t.Fatalf("decode public key: %v", err)
	}
	if len(pubBytes) != 65 {
		t.Errorf("public key length = %d, want 65", len(pubBytes))
	}

	// Private key should be base64url-encoded, 32 bytes P-256 scalar
	privBytes, err := base64.RawURLEncoding.DecodeString(priv)
	if err != nil {
		t.Fatalf("decode private key: %v", err)
	}
	if len(privBytes) != 32 {
		t.Errorf("private key length = %d, want 32", len(privBytes))
	}

	// Generate again — should be different
	pub2, _, _ := GenerateVAPIDKeys()
	if pub == pub2 {
		t.Error("expected different keys on second generation")
	}
}

func TestReminderTagsDistinct(t *testing.T) {
	userID := uuid.New()
	commitmentID := uuid.New()
	recordID := uuid.New()

	recurring := schedule.Occurrence{CommitmentID: &commitmentID, Date: "2026-03-09", Instance: 2}
	independent := schedule.Occurrence{TaskRecordID: &recordID, Date: "2026-03-09", Instance: 1}

	t1 := reminderTag(userID, recurring)
	t2 := reminderTag(userID, independent)
	if t1 == t2 {
		t.Error("recurring and independent occurrences must not share a tag")
	}

	// Instances are distinct reminders.
	other := recurring
	other.Instance = 1
	if reminderTag(userID, other) == t1 {
		t.Error("different instances must have different tags")
	}
}

func TestNewReminder(t *testing.T) {
	userID := uuid.New()
	commitmentID := uuid.New()
	start := "07:30"

	p := NewReminder(userID, schedule.Occurrence{
		CommitmentID: &commitmentID, Date: "2026-03-09", Instance: 1,
		Title: "Morning run", StartTime: &start,
	})
	if p.Body != "Morning run at 07:30" {
		t.Errorf("body = %q", p.Body)
	}
	if p.Tag == "" {
		t.Error("reminder needs a tag for dedupe")
	}
	if p.URL != "/planner" {
		t.Errorf("url = %q", p.URL)
	}
}

func TestDedupeResetsOnDayRollover(t *testing.T) {
	s := &Scheduler{sent: make(map[string]struct{})}

	s.resetDedupe("2026-03-09")
	s.markSent("k")
	if !s.alreadySent("k") {
		t.Fatal("marked key should dedupe")
	}

	// Same day: set survives.
	s.resetDedupe("2026-03-09")
	if !s.alreadySent("k") {
		t.Error("dedupe set must survive within a day")
	}

	// Next day: set clears.
	s.resetDedupe("2026-03-10")
	if s.alreadySent("k") {
		t.Error("dedupe set must clear on day rollover")
	}
}
