package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fennwick/trellis/internal/auth"
	"github.com/fennwick/trellis/internal/store"
	"github.com/fennwick/trellis/internal/websocket"
)

type PillarHandler struct {
	pillars *store.PillarStore
	hub     *websocket.Hub
	logger  *slog.Logger
}

func NewPillarHandler(ps *store.PillarStore, hub *websocket.Hub, logger *slog.Logger) *PillarHandler {
	return &PillarHandler{pillars: ps, hub: hub, logger: logger}
}

type pillarRequest struct {
	Name      string `json:"name"`
	SortOrder int    `json:"sort_order"`
}

// List handles GET /api/pillars
func (h *PillarHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	pillars, err := h.pillars.List(userID)
	if err != nil {
		h.logger.Error("list pillars", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list pillars")
		return
	}
	if pillars == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, pillars)
}

// Create handles POST /api/pillars
func (h *PillarHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req pillarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	pillar, err := h.pillars.Create(userID, req.Name, req.SortOrder)
	if err != nil {
		h.logger.Error("create pillar", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create pillar")
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("pillar", "created", pillar.ID, nil))
	writeJSON(w, http.StatusCreated, pillar)
}

// Update handles PUT /api/pillars/{id}
func (h *PillarHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req pillarRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	pillar, err := h.pillars.Update(userID, id, req.Name, req.SortOrder)
	if err != nil {
		h.logger.Error("update pillar", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update pillar")
		return
	}
	if pillar == nil {
		writeError(w, http.StatusNotFound, "pillar not found")
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("pillar", "updated", pillar.ID, nil))
	writeJSON(w, http.StatusOK, pillar)
}

// Archive handles DELETE /api/pillars/{id}
func (h *PillarHandler) Archive(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.pillars.Archive(userID, id); err != nil {
		h.logger.Error("archive pillar", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to archive pillar")
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("pillar", "archived", id, nil))
	w.WriteHeader(http.StatusNoContent)
}
