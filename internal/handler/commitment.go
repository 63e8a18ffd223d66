package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/auth"
	"github.com/fennwick/trellis/internal/model"
	"github.com/fennwick/trellis/internal/planner"
	"github.com/fennwick/trellis/internal/schedule"
	"github.com/fennwick/trellis/internal/store"
	"github.com/fennwick/trellis/internal/websocket"
)

type CommitmentHandler struct {
	commitments *store.CommitmentStore
	records     *store.TaskRecordStore
	planner     *planner.Service
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewCommitmentHandler(cs *store.CommitmentStore, rs *store.TaskRecordStore, plan *planner.Service, hub *websocket.Hub, logger *slog.Logger) *CommitmentHandler {
	return &CommitmentHandler{commitments: cs, records: rs, planner: plan, hub: hub, logger: logger}
}

type commitmentRequest struct {
	GoalID          *uuid.UUID    `json:"goal_id,omitempty"`
	Title           string        `json:"title"`
	Cadence         model.Cadence `json:"cadence"`
	ActiveDays      []int         `json:"active_days"`
	TimesPerWeek    int           `json:"times_per_week"`
	InstancesPerDay int           `json:"instances_per_day"`
	StartTime       *string       `json:"start_time,omitempty"`
	EndTime         *string       `json:"end_time,omitempty"`
	StartDate       *string       `json:"start_date,omitempty"`
	EndDate         *string       `json:"end_date,omitempty"`
}

func (req commitmentRequest) toModel() model.Commitment {
	return model.Commitment{
		GoalID:          req.GoalID,
		Title:           req.Title,
		Cadence:         req.Cadence,
		ActiveDays:      req.ActiveDays,
		TimesPerWeek:    req.TimesPerWeek,
		InstancesPerDay: req.InstancesPerDay,
		StartTime:       req.StartTime,
		EndTime:         req.EndTime,
		StartDate:       req.StartDate,
		EndDate:         req.EndDate,
	}
}

// List handles GET /api/commitments and GET /api/goals/{id}/commitments
func (h *CommitmentHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var commitments []model.Commitment
	var err error
	if goalID, perr := parseUUIDParam(r, "id"); perr == nil {
		commitments, err = h.commitments.ListByGoal(userID, goalID)
	} else {
		commitments, err = h.commitments.List(userID)
	}
	if err != nil {
		h.logger.Error("list commitments", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list commitments")
		return
	}
	if commitments == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, commitments)
}

// Get handles GET /api/commitments/{id}
func (h *CommitmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	c, err := h.commitments.GetByID(userID, id)
	if err != nil {
		h.logger.Error("get commitment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get commitment")
		return
	}
	if c == nil {
		writeError(w, http.StatusNotFound, "commitment not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// Create handles POST /api/commitments
func (h *CommitmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req commitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	c := req.toModel()
	if err := schedule.ValidateRule(c); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	created, err := h.commitments.Create(userID, c)
	if err != nil {
		h.logger.Error("create commitment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create commitment")
		return
	}

	h.planner.Invalidate(userID)
	h.hub.Broadcast(userID, websocket.NewMessage("commitment", "created", created.ID, nil))
	writeJSON(w, http.StatusCreated, created)
}

// Update handles PUT /api/commitments/{id}. The recurrence rule change
// takes effect on all future renders; existing exception records stay
// put and simply stop rendering where the rule no longer generates
// their occurrence.
func (h *CommitmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req commitmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	updated, err := h.planner.UpdateRule(r.Context(), userID, id, req.toModel())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "commitment not found")
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("commitment", "updated", updated.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

// Delete handles DELETE /api/commitments/{id}. A commitment with history
// is deactivated and its records soft-deleted, preserving the rows for
// the retention window; one that was never acted on is removed outright.
func (h *CommitmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	n, err := h.records.CountByCommitment(userID, id)
	if err != nil {
		h.logger.Error("count commitment records", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete commitment")
		return
	}

	if n > 0 {
		if err := h.records.SoftDeleteByCommitment(userID, id); err != nil {
			h.logger.Error("soft delete commitment records", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to delete commitment")
			return
		}
		err = h.commitments.Deactivate(userID, id)
	} else {
		err = h.commitments.Delete(userID, id)
	}
	if err != nil {
		h.logger.Error("delete commitment", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete commitment")
		return
	}

	h.planner.Invalidate(userID)
	h.hub.Broadcast(userID, websocket.NewMessage("commitment", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}
