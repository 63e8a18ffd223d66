package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fennwick/trellis/internal/auth"
	"github.com/fennwick/trellis/internal/model"
	"github.com/fennwick/trellis/internal/planner"
	"github.com/fennwick/trellis/internal/schedule"
	"github.com/fennwick/trellis/internal/store"
	"github.com/fennwick/trellis/internal/websocket"
)

type TaskHandler struct {
	records *store.TaskRecordStore
	planner *planner.Service
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewTaskHandler(rs *store.TaskRecordStore, plan *planner.Service, hub *websocket.Hub, logger *slog.Logger) *TaskHandler {
	return &TaskHandler{records: rs, planner: plan, hub: hub, logger: logger}
}

type taskRequest struct {
	Date      string  `json:"date"`
	Title     string  `json:"title"`
	StartTime *string `json:"start_time,omitempty"`
	EndTime   *string `json:"end_time,omitempty"`
}

func (req taskRequest) validate() string {
	if req.Title == "" {
		return "title is required"
	}
	if _, err := schedule.ParseDate(req.Date); err != nil {
		return "date must be YYYY-MM-DD"
	}
	if req.StartTime != nil {
		if _, err := schedule.ParseClock(*req.StartTime); err != nil {
			return "start_time must be HH:MM"
		}
	}
	if req.EndTime != nil {
		if _, err := schedule.ParseClock(*req.EndTime); err != nil {
			return "end_time must be HH:MM"
		}
	}
	return ""
}

// Create handles POST /api/tasks — a one-off task independent of any
// commitment.
func (h *TaskHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	rec, err := h.records.Create(userID, model.TaskRecord{
		Date:      req.Date,
		Title:     req.Title,
		StartTime: req.StartTime,
		EndTime:   req.EndTime,
	})
	if err != nil {
		h.logger.Error("create task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create task")
		return
	}

	h.planner.Invalidate(userID)
	h.hub.Broadcast(userID, websocket.NewMessage("task", "created", rec.ID, nil))
	writeJSON(w, http.StatusCreated, rec)
}

// Get handles GET /api/tasks/{id}
func (h *TaskHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	rec, err := h.records.GetByID(userID, id)
	if err != nil {
		h.logger.Error("get task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get task")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Update handles PUT /api/tasks/{id}
func (h *TaskHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req taskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	rec, err := h.records.Update(userID, id, req.Title, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		h.logger.Error("update task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update task")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}

	h.planner.Invalidate(userID)
	h.hub.Broadcast(userID, websocket.NewMessage("task", "updated", rec.ID, nil))
	writeJSON(w, http.StatusOK, rec)
}

// Delete handles DELETE /api/tasks/{id}. Soft-deletes; the retention
// sweep removes the row for good after the grace window.
func (h *TaskHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.records.SoftDelete(userID, id); err != nil {
		h.logger.Error("delete task", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete task")
		return
	}

	h.planner.Invalidate(userID)
	h.hub.Broadcast(userID, websocket.NewMessage("task", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Convert handles POST /api/tasks/{id}/convert — turns a one-off task
// into the first occurrence of a new recurring commitment.
func (h *TaskHandler) Convert(w http.ResponseWriter, r *http.Request) {
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

	c, err := h.planner.ConvertToRecurring(r.Context(), userID, id, req.toModel())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("commitment", "created", c.ID, nil))
	writeJSON(w, http.StatusCreated, c)
}
