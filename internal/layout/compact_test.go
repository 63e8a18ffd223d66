package layout

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func TestBuildSegmentsSingleGap(t *testing.T) {
	// Tasks at 09:00–09:30 and 16:00–16:30 only: one collapsed gap
	// covering 09:30–16:00.
	items := []Item{
		timed("a", 540, 570),
		timed("b", 960, 990),
	}

	segs := Config{}.BuildSegments(items, 540, 990, nil)
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3: %+v", len(segs), segs)
	}

	gap := segs[1]
	if !gap.IsGap {
		t.Fatal("middle segment should be a gap")
	}
	if gap.StartMin != 570 || gap.EndMin != 960 {
		t.Errorf("gap range = %d–%d, want 570–960", gap.StartMin, gap.EndMin)
	}
	if !gap.Collapsed() {
		t.Error("gap should be collapsed by default")
	}
	if gap.Height != CollapsedGapHeight {
		t.Errorf("gap height = %v, want %v", gap.Height, CollapsedGapHeight)
	}
}

func TestBuildSegmentsShortGapStaysVisible(t *testing.T) {
	// A 30-minute free interval is below MinGapMinutes and merges into the
	// surrounding visible segment.
	items := []Item{
		timed("a", 540, 570),
		timed("b", 600, 630),
	}

	segs := Config{}.BuildSegments(items, 540, 630, nil)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(segs), segs)
	}
	if segs[0].IsGap {
		t.Error("short free interval must not become a gap")
	}
	if segs[0].StartMin != 540 || segs[0].EndMin != 630 {
		t.Errorf("segment range = %d–%d, want 540–630", segs[0].StartMin, segs[0].EndMin)
	}
}

func TestBuildSegmentsLeadingAndTrailingGaps(t *testing.T) {
	// Free intervals before the first and after the last occupied range
	// also collapse.
	items := []Item{timed("a", 720, 750)}

	segs := Config{}.BuildSegments(items, 540, 1080, nil)
	if len(segs) != 3 {
		t.Fatalf("got %d segments, want 3: %+v", len(segs), segs)
	}
	if !segs[0].IsGap || segs[0].StartMin != 540 || segs[0].EndMin != 720 {
		t.Errorf("leading gap = %+v", segs[0])
	}
	if segs[1].IsGap {
		t.Error("occupied range must be visible")
	}
	if !segs[2].IsGap || segs[2].StartMin != 750 || segs[2].EndMin != 1080 {
		t.Errorf("trailing gap = %+v", segs[2])
	}
}

func TestBuildSegmentsOverlappingRangesMerge(t *testing.T) {
	items := []Item{
		timed("a", 540, 600),
		timed("b", 570, 630),
		timed("c", 630, 660), // touching, still one occupied block
	}

	segs := Config{}.BuildSegments(items, 540, 660, nil)
	if len(segs) != 1 {
		t.Fatalf("got %d segments, want 1: %+v", len(segs), segs)
	}
	if segs[0].StartMin != 540 || segs[0].EndMin != 660 {
		t.Errorf("segment range = %d–%d, want 540–660", segs[0].StartMin, segs[0].EndMin)
	}
}

func TestBuildSegmentsExpandedGap(t *testing.T) {
	items := []Item{
		timed("a", 540, 570),
		timed("b", 960, 990),
	}
	cfg := Config{}

	collapsed := cfg.BuildSegments(items, 540, 990, nil)
	expanded := cfg.BuildSegments(items, 540, 990, map[string]bool{"gap-570-960": true})

	gap := expanded[1]
	if gap.Collapsed() {
		t.Fatal("gap should be expanded")
	}
	wantHeight := float64(960-570) / 60 * HourHeight
	if !almostEqual(gap.Height, wantHeight) {
		t.Errorf("expanded gap height = %v, want %v", gap.Height, wantHeight)
	}

	// Expanding increases total height by exactly
	// gapDuration/60*HourHeight - CollapsedGapHeight.
	delta := TotalHeight(expanded) - TotalHeight(collapsed)
	if !almostEqual(delta, wantHeight-CollapsedGapHeight) {
		t.Errorf("height delta = %v, want %v", delta, wantHeight-CollapsedGapHeight)
	}
}

func TestTotalHeightConservation(t *testing.T) {
	items := []Item{
		timed("a", 540, 570),
		timed("b", 720, 750),
		timed("c", 960, 990),
	}
	segs := Config{}.BuildSegments(items, 540, 990, nil)

	visibleMin := 0
	collapsedCount := 0
	for _, s := range segs {
		if s.Collapsed() {
			collapsedCount++
		} else {
			visibleMin += s.EndMin - s.StartMin
		}
	}
	want := float64(visibleMin)/60*HourHeight + float64(collapsedCount)*CollapsedGapHeight
	if got := TotalHeight(segs); !almostEqual(got, want) {
		t.Errorf("TotalHeight = %v, want %v", got, want)
	}
}

func TestSegmentOffsetWalk(t *testing.T) {
	items := []Item{
		timed("a", 540, 570),
		timed("b", 960, 990),
	}
	cfg := Config{}
	segs := cfg.BuildSegments(items, 540, 990, nil)

	tests := []struct {
		minute int
		want   float64
	}{
		{540, 0},                            // top of the axis
		{555, 15},                           // inside the first visible segment
		{570, 30},                           // boundary between visible and gap
		{700, 30},                           // inside the collapsed gap: pinned to its top
		{960, 30 + CollapsedGapHeight},      // start of the second visible segment
		{975, 30 + CollapsedGapHeight + 15}, // inside the second segment
	}

	for _, tt := range tests {
		if got := cfg.SegmentOffset(segs, tt.minute); !almostEqual(got, tt.want) {
			t.Errorf("SegmentOffset(%d) = %v, want %v", tt.minute, got, tt.want)
		}
	}
}

func TestSegmentOffsetExpandedGapIsProportional(t *testing.T) {
	items := []Item{
		timed("a", 540, 570),
		timed("b", 960, 990),
	}
	cfg := Config{}
	segs := cfg.BuildSegments(items, 540, 990, map[string]bool{"gap-570-960": true})

	// 60 minutes into the expanded gap.
	want := 30.0 + 60.0/60*HourHeight
	if got := cfg.SegmentOffset(segs, 630); !almostEqual(got, want) {
		t.Errorf("SegmentOffset(630) = %v, want %v", got, want)
	}
}

func TestPlaceCompact(t *testing.T) {
	items := []Item{
		timed("a", 540, 570),
		timed("b", 960, 990),
	}
	cfg := Config{}
	segs := cfg.BuildSegments(items, 540, 990, nil)

	placed := cfg.PlaceCompact(items, segs)
	if len(placed) != 2 {
		t.Fatalf("got %d placed, want 2", len(placed))
	}

	if placed[0].Top != 0 {
		t.Errorf("first item top = %v, want 0", placed[0].Top)
	}
	wantTop := 30.0 + CollapsedGapHeight
	if !almostEqual(placed[1].Top, wantTop) {
		t.Errorf("second item top = %v, want %v", placed[1].Top, wantTop)
	}
	for _, p := range placed {
		if p.Height != 30 {
			t.Errorf("%s: height = %v, want 30", p.ID, p.Height)
		}
	}
}
