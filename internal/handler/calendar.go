package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/fennwick/trellis/internal/auth"
	"github.com/fennwick/trellis/internal/layout"
	"github.com/fennwick/trellis/internal/planner"
	"github.com/fennwick/trellis/internal/schedule"
)

type CalendarHandler struct {
	planner *planner.Service
	layout  layout.Config
	logger  *slog.Logger
}

func NewCalendarHandler(plan *planner.Service, cfg layout.Config, logger *slog.Logger) *CalendarHandler {
	return &CalendarHandler{planner: plan, layout: cfg, logger: logger}
}

// dayView is one rendered day column.
type dayView struct {
	Date             string                `json:"date"`
	VisibleStartHour int                   `json:"visible_start_hour"`
	VisibleEndHour   int                   `json:"visible_end_hour"`
	Items            []layout.Positioned   `json:"items"`
	Untimed          []schedule.Occurrence `json:"untimed"`
	Segments         []layout.Segment      `json:"segments,omitempty"`
	TotalHeight      float64               `json:"total_height,omitempty"`
}

// Day handles GET /api/calendar/day?date=YYYY-MM-DD&mode=full|compact.
// Compact mode collapses free stretches of an hour or more into thin
// strips; gap IDs listed in the "expanded" parameter render at full
// height.
func (h *CalendarHandler) Day(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	date, ok := dateParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	occs, err := h.planner.OccurrencesForDate(r.Context(), userID, date)
	if err != nil {
		h.logger.Error("calendar day", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load calendar")
		return
	}

	view := h.renderDay(date, occs, r.URL.Query().Get("mode") == "compact", expandedGaps(r))
	writeJSON(w, http.StatusOK, view)
}

// Week handles GET /api/calendar/week?date=YYYY-MM-DD&mode=full|compact.
// All seven day columns share one visible-hour range so rows align
// across the grid.
func (h *CalendarHandler) Week(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	date, ok := dateParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	weekStart, days, err := h.planner.OccurrencesForWeek(r.Context(), userID, date)
	if err != nil {
		h.logger.Error("calendar week", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load calendar")
		return
	}

	compact := r.URL.Query().Get("mode") == "compact"
	expanded := expandedGaps(r)

	// Shared visible range across the whole week.
	var allItems []layout.Item
	for day, occs := range days {
		allItems = append(allItems, layoutItems(day, occs)...)
	}
	startHour, endHour := layout.VisibleHours(allItems)

	views := make(map[string]dayView, len(days))
	for day, occs := range days {
		view := h.renderDayInRange(day, occs, startHour, endHour, compact, expanded)
		views[day] = view
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"week_start": weekStart,
		"days":       views,
	})
}

func (h *CalendarHandler) renderDay(date string, occs []schedule.Occurrence, compact bool, expanded map[string]bool) dayView {
	items := layoutItems(date, occs)
	startHour, endHour := layout.VisibleHours(items)
	return h.renderDayInRange(date, occs, startHour, endHour, compact, expanded)
}

func (h *CalendarHandler) renderDayInRange(date string, occs []schedule.Occurrence, startHour, endHour int, compact bool, expanded map[string]bool) dayView {
	items := layoutItems(date, occs)

	view := dayView{
		Date:             date,
		VisibleStartHour: startHour,
		VisibleEndHour:   endHour,
		Untimed:          untimed(occs),
	}

	if compact {
		segs := h.layout.BuildSegments(items, startHour*60, endHour*60, expanded)
		view.Segments = segs
		view.TotalHeight = layout.TotalHeight(segs)
		view.Items = h.layout.PlaceCompact(items, segs)
	} else {
		view.Items = h.layout.Place(items, startHour)
	}
	if view.Items == nil {
		view.Items = []layout.Positioned{}
	}
	return view
}

// layoutItems converts the day's timed occurrences into layout items.
// Untimed occurrences are listed separately, not placed on the axis.
func layoutItems(date string, occs []schedule.Occurrence) []layout.Item {
	var items []layout.Item
	for _, o := range occs {
		if o.Date != date || o.StartTime == nil {
			continue
		}
		start, err := schedule.ParseClock(*o.StartTime)
		if err != nil {
			continue
		}
		end := 0
		if o.EndTime != nil {
			if m, err := schedule.ParseClock(*o.EndTime); err == nil {
				end = m
			}
		}
		items = append(items, layout.Item{
			ID:       occurrenceItemID(o),
			StartMin: start,
			EndMin:   end,
		})
	}
	return items
}

func occurrenceItemID(o schedule.Occurrence) string {
	if o.CommitmentID != nil {
		return fmt.Sprintf("c-%s-%d", o.CommitmentID, o.Instance)
	}
	if o.TaskRecordID != nil {
		return fmt.Sprintf("t-%s", o.TaskRecordID)
	}
	return fmt.Sprintf("o-%s-%d", o.Date, o.Instance)
}

func untimed(occs []schedule.Occurrence) []schedule.Occurrence {
	out := make([]schedule.Occurrence, 0)
	for _, o := range occs {
		if o.StartTime == nil {
			out = append(out, o)
		}
	}
	return out
}

// expandedGaps parses the comma-separated "expanded" query parameter of
// gap segment IDs.
func expandedGaps(r *http.Request) map[string]bool {
	raw := r.URL.Query().Get("expanded")
	if raw == "" {
		return nil
	}
	out := make(map[string]bool)
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out[id] = true
		}
	}
	return out
}
