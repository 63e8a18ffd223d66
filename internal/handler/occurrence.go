package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/fennwick/trellis/internal/auth"
	"github.com/fennwick/trellis/internal/planner"
	"github.com/fennwick/trellis/internal/schedule"
	"github.com/fennwick/trellis/internal/websocket"
)

type OccurrenceHandler struct {
	planner *planner.Service
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewOccurrenceHandler(plan *planner.Service, hub *websocket.Hub, logger *slog.Logger) *OccurrenceHandler {
	return &OccurrenceHandler{planner: plan, hub: hub, logger: logger}
}

// dateParam reads the "date" query parameter, defaulting to today. Week
// endpoints accept "start" as an alias.
func dateParam(r *http.Request) (string, bool) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = r.URL.Query().Get("start")
	}
	if date == "" {
		return schedule.DateKey(time.Now()), true
	}
	if _, err := schedule.ParseDate(date); err != nil {
		return "", false
	}
	return date, true
}

// Day handles GET /api/occurrences?date=YYYY-MM-DD
func (h *OccurrenceHandler) Day(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	date, ok := dateParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	occs, err := h.planner.OccurrencesForDate(r.Context(), userID, date)
	if err != nil {
		h.logger.Error("occurrences for date", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load occurrences")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":        date,
		"occurrences": occs,
	})
}

// Week handles GET /api/occurrences/week?date=YYYY-MM-DD — the Monday
// week containing the date, grouped by day.
func (h *OccurrenceHandler) Week(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	date, ok := dateParam(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	weekStart, days, err := h.planner.OccurrencesForWeek(r.Context(), userID, date)
	if err != nil {
		h.logger.Error("occurrences for week", "date", date, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load occurrences")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"week_start": weekStart,
		"days":       days,
	})
}

// Toggle handles POST /api/occurrences/toggle
func (h *OccurrenceHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var ref planner.OccurrenceRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if ref.CommitmentID != nil {
		if _, err := schedule.ParseDate(ref.Date); err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}

	completed, err := h.planner.ToggleCompletion(r.Context(), userID, ref)
	if err != nil {
		h.logger.Error("toggle completion", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	extra := map[string]any{"date": ref.Date, "completed": completed}
	if ref.CommitmentID != nil {
		h.hub.Broadcast(userID, websocket.NewMessage("occurrence", "toggled", *ref.CommitmentID, extra))
	} else if ref.TaskRecordID != nil {
		h.hub.Broadcast(userID, websocket.NewMessage("task", "toggled", *ref.TaskRecordID, extra))
	}
	writeJSON(w, http.StatusOK, map[string]any{"completed": completed})
}

// Detach handles POST /api/occurrences/detach and
// POST /api/commitments/{id}/detach — permanently decouples one
// occurrence from its template and returns the materialized copy.
func (h *OccurrenceHandler) Detach(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var ref planner.OccurrenceRef
	if err := json.NewDecoder(r.Body).Decode(&ref); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if ref.CommitmentID == nil {
		if id, err := parseUUIDParam(r, "id"); err == nil {
			ref.CommitmentID = &id
		}
	}
	if ref.CommitmentID == nil {
		writeError(w, http.StatusBadRequest, "commitment_id is required")
		return
	}
	if _, err := schedule.ParseDate(ref.Date); err != nil {
		writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
		return
	}

	rec, err := h.planner.DetachOccurrence(r.Context(), userID, ref)
	if err != nil {
		h.logger.Error("detach occurrence", "error", err)
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("task", "created", rec.ID,
		map[string]any{"date": rec.Date, "detached_from": ref.CommitmentID}))
	writeJSON(w, http.StatusCreated, rec)
}
