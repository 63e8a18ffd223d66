package schedule

import (
	"testing"
	"time"
)

func TestParseClock(t *testing.T) {
	tests := []struct {
		input string
		want  int
	}{
		{"00:00", 0},
		{"09:00", 540},
		{"9:00", 540},
		{"09:30", 570},
		{"23:59", 1439},
		{"16:30:00", 990},
	}

	for _, tt := range tests {
		got, err := ParseClock(tt.input)
		if err != nil {
			t.Errorf("ParseClock(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseClock(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseClockInvalid(t *testing.T) {
	for _, input := range []string{"", "9", "24:00", "09:60", "ab:cd", "09:00:00:00"} {
		if _, err := ParseClock(input); err == nil {
			t.Errorf("ParseClock(%q) should fail", input)
		}
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		mins int
		want string
	}{
		{0, "00:00"},
		{540, "09:00"},
		{570, "09:30"},
		{1439, "23:59"},
	}

	for _, tt := range tests {
		if got := FormatClock(tt.mins); got != tt.want {
			t.Errorf("FormatClock(%d) = %q, want %q", tt.mins, got, tt.want)
		}
	}
}

func TestFormatRange(t *testing.T) {
	end := 570
	if got := FormatRange(540, &end); got != "09:00–09:30" {
		t.Errorf("FormatRange = %q", got)
	}
	if got := FormatRange(540, nil); got != "09:00" {
		t.Errorf("FormatRange without end = %q", got)
	}
}

func TestDateKeyRoundTrip(t *testing.T) {
	d := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	key := DateKey(d)
	if key != "2026-03-09" {
		t.Fatalf("DateKey = %q", key)
	}
	back, err := ParseDate(key)
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if !back.Equal(d) {
		t.Errorf("round trip = %v, want %v", back, d)
	}
}

func TestWeekStart(t *testing.T) {
	tests := []struct {
		name string
		in   time.Time
		want time.Time
	}{
		{
			"wednesday maps to monday",
			time.Date(2026, 3, 11, 15, 30, 0, 0, time.UTC),
			time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			"monday maps to itself",
			time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
		{
			"sunday maps to previous monday",
			time.Date(2026, 3, 15, 23, 0, 0, 0, time.UTC),
			time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		if got := WeekStart(tt.in); !got.Equal(tt.want) {
			t.Errorf("%s: WeekStart = %v, want %v", tt.name, got, tt.want)
		}
	}
}
