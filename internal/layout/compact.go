package layout

import (
	"fmt"
	"sort"
)

// Segment is one vertical slice of the compact-mode axis: either a visible
// stretch rendered at time-proportional height, or a gap of free time
// rendered as a thin strip until expanded. Gap IDs are stable for a given
// day layout so the UI can persist per-gap expansion for the session.
type Segment struct {
	ID       string  `json:"id,omitempty"`
	StartMin int     `json:"start_min"`
	EndMin   int     `json:"end_min"`
	IsGap    bool    `json:"is_gap"`
	Expanded bool    `json:"expanded,omitempty"`
	Height   float64 `json:"height"`
}

// Collapsed reports whether the segment renders at the fixed strip height.
func (s Segment) Collapsed() bool {
	return s.IsGap && !s.Expanded
}

// BuildSegments merges the items' occupied time ranges into a sorted
// non-overlapping list and carves the visible window into segments. Any
// free interval of at least MinGapMinutes — between, before, or after
// occupied ranges — becomes a gap; shorter free intervals stay part of the
// surrounding visible segments. expanded holds per-gap-ID toggles.
func (c Config) BuildSegments(items []Item, visStartMin, visEndMin int, expanded map[string]bool) []Segment {
	busy := mergeRanges(items, visStartMin, visEndMin)
	hh := c.hourHeight()
	minGap := c.minGap()

	var segs []Segment
	cursor := visStartMin
	flushVisible := func(end int) {
		if end <= cursor {
			return
		}
		// Extend the previous visible segment instead of starting a new one.
		if n := len(segs); n > 0 && !segs[n-1].IsGap && segs[n-1].EndMin == cursor {
			segs[n-1].EndMin = end
			segs[n-1].Height = float64(segs[n-1].EndMin-segs[n-1].StartMin) / 60 * hh
		} else {
			segs = append(segs, Segment{
				StartMin: cursor,
				EndMin:   end,
				Height:   float64(end-cursor) / 60 * hh,
			})
		}
		cursor = end
	}

	emit := func(freeEnd int) {
		if freeEnd-cursor >= minGap {
			id := fmt.Sprintf("gap-%d-%d", cursor, freeEnd)
			seg := Segment{
				ID:       id,
				StartMin: cursor,
				EndMin:   freeEnd,
				IsGap:    true,
				Expanded: expanded[id],
			}
			if seg.Collapsed() {
				seg.Height = c.collapsedGapHeight()
			} else {
				seg.Height = float64(freeEnd-cursor) / 60 * hh
			}
			segs = append(segs, seg)
			cursor = freeEnd
		} else {
			flushVisible(freeEnd)
		}
	}

	for _, r := range busy {
		if r.start > cursor {
			emit(r.start)
		}
		flushVisible(r.end)
	}
	if cursor < visEndMin {
		emit(visEndMin)
	}

	return segs
}

type minuteRange struct{ start, end int }

// mergeRanges returns the union of occupied minute ranges, clamped to the
// visible window, sorted and non-overlapping.
func mergeRanges(items []Item, visStart, visEnd int) []minuteRange {
	ranges := make([]minuteRange, 0, len(items))
	for _, it := range items {
		start, end := it.StartMin, it.effectiveEnd()
		if start < visStart {
			start = visStart
		}
		if end > visEnd {
			end = visEnd
		}
		if end > start {
			ranges = append(ranges, minuteRange{start, end})
		}
	}
	sort.Slice(ranges, func(i, j int) bool { return ranges[i].start < ranges[j].start })

	var merged []minuteRange
	for _, r := range ranges {
		if n := len(merged); n > 0 && r.start <= merged[n-1].end {
			if r.end > merged[n-1].end {
				merged[n-1].end = r.end
			}
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// SegmentOffset maps an absolute minute to its vertical pixel position by
// walking segments in order and accumulating heights. The walk is
// O(segments) by necessity: collapsed gaps have fixed height while visible
// segments are time-proportional, so no closed-form position exists.
func (c Config) SegmentOffset(segs []Segment, minute int) float64 {
	hh := c.hourHeight()
	offset := 0.0
	for _, s := range segs {
		if minute >= s.EndMin {
			offset += s.Height
			continue
		}
		if minute <= s.StartMin {
			return offset
		}
		if s.Collapsed() {
			// Anything inside a collapsed gap pins to the strip's top.
			return offset
		}
		return offset + float64(minute-s.StartMin)/60*hh
	}
	return offset
}

// TotalHeight is the rendered height of the whole compact axis.
func TotalHeight(segs []Segment) float64 {
	total := 0.0
	for _, s := range segs {
		total += s.Height
	}
	return total
}

// PlaceCompact lays items out against a compact segment list. Overlap
// grouping and column assignment match full mode; only vertical placement
// changes, following the segment walk instead of the linear hour axis.
func (c Config) PlaceCompact(items []Item, segs []Segment) []Positioned {
	placed := make([]Positioned, 0, len(items))
	hh := c.hourHeight()

	for _, group := range overlapGroups(items) {
		cols := len(group)
		if max := c.maxColumns(); cols > max {
			cols = max
		}
		for i, it := range group {
			dur := it.effectiveEnd() - it.StartMin
			if dur < MinHeightMin {
				dur = MinHeightMin
			}
			placed = append(placed, Positioned{
				Item:    it,
				Top:     c.SegmentOffset(segs, it.StartMin),
				Height:  float64(dur) / 60 * hh,
				Column:  i % cols,
				Columns: cols,
			})
		}
	}

	sort.Slice(placed, func(i, j int) bool {
		if placed[i].StartMin != placed[j].StartMin {
			return placed[i].StartMin < placed[j].StartMin
		}
		return placed[i].ID < placed[j].ID
	})
	return placed
}
