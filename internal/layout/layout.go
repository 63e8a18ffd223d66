// Package layout places derived occurrences on a pixel time axis for the
// calendar views: full mode renders every visible hour at constant height,
// compact mode collapses long empty stretches into thin expandable strips.
package layout

import (
	"sort"
)

const (
	// HourHeight is the rendered height of one hour in full mode, in pixels.
	HourHeight = 60.0
	// DefaultDurationMin is assumed when an occurrence has no end time.
	// A display floor, not a semantic duration.
	DefaultDurationMin = 30
	// MinHeightMin is the minimum rendered height, in minutes worth of
	// pixels. Also a display floor.
	MinHeightMin = 20
	// MinGapMinutes is the smallest free interval that collapses into a
	// gap strip in compact mode.
	MinGapMinutes = 60
	// CollapsedGapHeight is the fixed pixel height of a collapsed gap.
	CollapsedGapHeight = 24.0
	// DefaultMaxColumns caps side-by-side columns in an overlap group.
	DefaultMaxColumns = 3

	// Default visible range when no occurrence carries a time.
	DefaultStartHour = 9
	DefaultEndHour   = 18
)

// Config carries the layout constants. Zero fields fall back to the
// package defaults, so Config{} behaves like the source layout.
type Config struct {
	HourHeight         float64
	MaxColumns         int
	MinGapMinutes      int
	CollapsedGapHeight float64
}

func (c Config) hourHeight() float64 {
	if c.HourHeight > 0 {
		return c.HourHeight
	}
	return HourHeight
}

func (c Config) maxColumns() int {
	if c.MaxColumns > 0 {
		return c.MaxColumns
	}
	return DefaultMaxColumns
}

func (c Config) minGap() int {
	if c.MinGapMinutes > 0 {
		return c.MinGapMinutes
	}
	return MinGapMinutes
}

func (c Config) collapsedGapHeight() float64 {
	if c.CollapsedGapHeight > 0 {
		return c.CollapsedGapHeight
	}
	return CollapsedGapHeight
}

// Item is one schedulable occurrence on the time axis. EndMin <= StartMin
// means "no end time": a 30-minute display duration is assumed.
type Item struct {
	ID       string
	StartMin int
	EndMin   int
}

func (i Item) effectiveEnd() int {
	if i.EndMin > i.StartMin {
		return i.EndMin
	}
	return i.StartMin + DefaultDurationMin
}

// Positioned is an Item with its computed screen geometry. Width is implied
// by Columns: each column in a group takes 1/Columns of the day width.
type Positioned struct {
	Item
	Top     float64 `json:"top"`
	Height  float64 `json:"height"`
	Column  int     `json:"column"`
	Columns int     `json:"columns"`
}

// Place lays items out in full mode. Top is measured from visibleStartHour;
// overlapping items are split into side-by-side columns, capped at
// MaxColumns with column indexes cycling beyond the cap.
func (c Config) Place(items []Item, visibleStartHour int) []Positioned {
	placed := make([]Positioned, 0, len(items))
	hh := c.hourHeight()
	originMin := visibleStartHour * 60

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
				Top:     float64(it.StartMin-originMin) / 60 * hh,
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

// overlapGroups sorts items by start time and merges any item whose range
// intersects a group's combined range into that group. Because the sweep
// runs in start order, extending each group's max end as it goes, the merge
// is transitive: an item bridging two would-be groups keeps them together.
func overlapGroups(items []Item) [][]Item {
	if len(items) == 0 {
		return nil
	}

	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].StartMin != sorted[j].StartMin {
			return sorted[i].StartMin < sorted[j].StartMin
		}
		return sorted[i].effectiveEnd() > sorted[j].effectiveEnd()
	})

	var groups [][]Item
	var current []Item
	maxEnd := 0

	for _, it := range sorted {
		if len(current) > 0 && it.StartMin < maxEnd {
			current = append(current, it)
			if end := it.effectiveEnd(); end > maxEnd {
				maxEnd = end
			}
			continue
		}
		if len(current) > 0 {
			groups = append(groups, current)
		}
		current = []Item{it}
		maxEnd = it.effectiveEnd()
	}
	groups = append(groups, current)
	return groups
}

// VisibleHours computes the adaptive visible range: one hour of padding
// around the earliest start and latest end, clamped to [0, 24]. Items
// without an end time count as one hour long. Defaults to 9–18 when
// nothing is timed.
func VisibleHours(items []Item) (startHour, endHour int) {
	if len(items) == 0 {
		return DefaultStartHour, DefaultEndHour
	}

	earliest := 24
	latest := 0
	for _, it := range items {
		startH := it.StartMin / 60
		if startH < earliest {
			earliest = startH
		}
		endH := startH + 1
		if it.EndMin > it.StartMin {
			endH = it.EndMin / 60
			if it.EndMin%60 != 0 {
				endH++
			}
		}
		if endH > latest {
			latest = endH
		}
	}

	startHour = earliest - 1
	if startHour < 0 {
		startHour = 0
	}
	endHour = latest + 1
	if endHour > 24 {
		endHour = 24
	}
	return startHour, endHour
}
