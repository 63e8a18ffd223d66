package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/auth"
	"github.com/fennwick/trellis/internal/execstate"
	"github.com/fennwick/trellis/internal/model"
	"github.com/fennwick/trellis/internal/store"
	"github.com/fennwick/trellis/internal/websocket"
)

type VisionHandler struct {
	visions     *store.VisionStore
	goals       *store.GoalStore
	commitments *store.CommitmentStore
	records     *store.TaskRecordStore
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewVisionHandler(vs *store.VisionStore, gs *store.GoalStore, cs *store.CommitmentStore, rs *store.TaskRecordStore, hub *websocket.Hub, logger *slog.Logger) *VisionHandler {
	return &VisionHandler{visions: vs, goals: gs, commitments: cs, records: rs, hub: hub, logger: logger}
}

type visionRequest struct {
	PillarID    uuid.UUID `json:"pillar_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

// List handles GET /api/visions and GET /api/pillars/{id}/visions
func (h *VisionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var (
		visions []model.Vision
		err     error
	)
	if pillarID, perr := parseUUIDParam(r, "id"); perr == nil {
		visions, err = h.visions.ListByPillar(userID, pillarID)
	} else {
		visions, err = h.visions.List(userID)
	}
	if err != nil {
		h.logger.Error("list visions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list visions")
		return
	}
	if visions == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, visions)
}

// Create handles POST /api/visions
func (h *VisionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req visionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" || req.PillarID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "pillar_id and title are required")
		return
	}

	vision, err := h.visions.Create(userID, req.PillarID, req.Title, req.Description)
	if err != nil {
		h.logger.Error("create vision", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create vision")
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("vision", "created", vision.ID, nil))
	writeJSON(w, http.StatusCreated, vision)
}

// Update handles PUT /api/visions/{id}
func (h *VisionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req visionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}

	vision, err := h.visions.Update(userID, id, req.Title, req.Description)
	if err != nil {
		h.logger.Error("update vision", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update vision")
		return
	}
	if vision == nil {
		writeError(w, http.StatusNotFound, "vision not found")
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("vision", "updated", vision.ID, nil))
	writeJSON(w, http.StatusOK, vision)
}

// Archive handles DELETE /api/visions/{id}
func (h *VisionHandler) Archive(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.visions.Archive(userID, id); err != nil {
		h.logger.Error("archive vision", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to archive vision")
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("vision", "archived", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

// Execution handles GET /api/visions/{id}/execution. The vision's state
// is the most-alive state among its goals.
func (h *VisionHandler) Execution(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	goals, err := h.goals.ListByVision(userID, id)
	if err != nil {
		h.logger.Error("list goals for vision", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute execution state")
		return
	}

	states := make([]execstate.State, 0, len(goals))
	for _, g := range goals {
		state, err := goalState(h.goals, h.commitments, h.records, userID, g.ID)
		if err != nil {
			h.logger.Error("goal execution state", "goal_id", g.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to compute execution state")
			return
		}
		states = append(states, state)
	}

	writeJSON(w, http.StatusOK, map[string]any{"state": execstate.Rollup(states)})
}
