package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/auth"
	"github.com/fennwick/trellis/internal/execstate"
	"github.com/fennwick/trellis/internal/model"
	"github.com/fennwick/trellis/internal/store"
	"github.com/fennwick/trellis/internal/websocket"
)

type GoalHandler struct {
	goals       *store.GoalStore
	commitments *store.CommitmentStore
	records     *store.TaskRecordStore
	hub         *websocket.Hub
	logger      *slog.Logger
}

func NewGoalHandler(gs *store.GoalStore, cs *store.CommitmentStore, rs *store.TaskRecordStore, hub *websocket.Hub, logger *slog.Logger) *GoalHandler {
	return &GoalHandler{goals: gs, commitments: cs, records: rs, hub: hub, logger: logger}
}

type goalRequest struct {
	VisionID     uuid.UUID         `json:"vision_id"`
	ParentGoalID *uuid.UUID        `json:"parent_goal_id,omitempty"`
	Title        string            `json:"title"`
	Horizon      model.GoalHorizon `json:"horizon"`
	TargetDate   *string           `json:"target_date,omitempty"`
}

func validHorizon(h model.GoalHorizon) bool {
	switch h {
	case model.HorizonThreeYear, model.HorizonOneYear, model.HorizonNinetyDay:
		return true
	}
	return false
}

// List handles GET /api/goals and GET /api/visions/{id}/goals
func (h *GoalHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var (
		goals []model.Goal
		err   error
	)
	if visionID, perr := parseUUIDParam(r, "id"); perr == nil {
		goals, err = h.goals.ListByVision(userID, visionID)
	} else {
		goals, err = h.goals.List(userID)
	}
	if err != nil {
		h.logger.Error("list goals", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list goals")
		return
	}
	if goals == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, goals)
}

// Create handles POST /api/goals
func (h *GoalHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" || req.VisionID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "vision_id and title are required")
		return
	}
	if !validHorizon(req.Horizon) {
		writeError(w, http.StatusBadRequest, "horizon must be three_year, one_year, or ninety_day")
		return
	}

	goal, err := h.goals.Create(userID, model.Goal{
		VisionID:     req.VisionID,
		ParentGoalID: req.ParentGoalID,
		Title:        req.Title,
		Horizon:      req.Horizon,
		TargetDate:   req.TargetDate,
	})
	if err != nil {
		h.logger.Error("create goal", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create goal")
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("goal", "created", goal.ID, nil))
	writeJSON(w, http.StatusCreated, goal)
}

// Update handles PUT /api/goals/{id}
func (h *GoalHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	var req goalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "title is required")
		return
	}
	if !validHorizon(req.Horizon) {
		writeError(w, http.StatusBadRequest, "horizon must be three_year, one_year, or ninety_day")
		return
	}

	goal, err := h.goals.Update(userID, id, model.Goal{
		VisionID:     req.VisionID,
		ParentGoalID: req.ParentGoalID,
		Title:        req.Title,
		Horizon:      req.Horizon,
		TargetDate:   req.TargetDate,
	})
	if err != nil {
		h.logger.Error("update goal", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update goal")
		return
	}
	if goal == nil {
		writeError(w, http.StatusNotFound, "goal not found")
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("goal", "updated", goal.ID, nil))
	writeJSON(w, http.StatusOK, goal)
}

// Archive handles DELETE /api/goals/{id}
func (h *GoalHandler) Archive(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.goals.Archive(userID, id); err != nil {
		h.logger.Error("archive goal", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to archive goal")
		return
	}

	h.hub.Broadcast(userID, websocket.NewMessage("goal", "archived", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

type commitmentStreak struct {
	CommitmentID    uuid.UUID `json:"commitment_id"`
	Title           string    `json:"title"`
	Streak          int       `json:"streak"`
	ExpectedPerWeek int       `json:"expected_per_week"`
}

// Execution handles GET /api/goals/{id}/execution. Returns the goal's
// derived execution state plus the current streak of each commitment.
func (h *GoalHandler) Execution(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	state, err := goalState(h.goals, h.commitments, h.records, userID, id)
	if err != nil {
		h.logger.Error("goal execution state", "goal_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute execution state")
		return
	}

	commitments, err := h.commitments.ListByGoal(userID, id)
	if err != nil {
		h.logger.Error("list commitments for goal", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to compute execution state")
		return
	}

	now := time.Now()
	streaks := make([]commitmentStreak, 0, len(commitments))
	for _, c := range commitments {
		completions, err := h.records.CompletionTimesByCommitment(userID, c.ID)
		if err != nil {
			h.logger.Error("completion times", "commitment_id", c.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to compute execution state")
			return
		}
		streaks = append(streaks, commitmentStreak{
			CommitmentID:    c.ID,
			Title:           c.Title,
			Streak:          execstate.Streak(c, completions, now),
			ExpectedPerWeek: execstate.ExpectedPerWeek(c),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":   state,
		"streaks": streaks,
	})
}

// goalState classifies a goal from its own commitments and completion
// history, rolled up with the states of its child goals. Nesting is at
// most three levels (three-year → one-year → ninety-day).
func goalState(gs *store.GoalStore, cs *store.CommitmentStore, rs *store.TaskRecordStore, userID, goalID uuid.UUID) (execstate.State, error) {
	commitments, err := cs.ListByGoal(userID, goalID)
	if err != nil {
		return execstate.StateNone, err
	}
	completions, err := rs.CompletionTimesByGoal(userID, goalID)
	if err != nil {
		return execstate.StateNone, err
	}
	states := []execstate.State{execstate.Classify(commitments, completions, time.Now())}

	children, err := gs.ListChildren(userID, goalID)
	if err != nil {
		return execstate.StateNone, err
	}
	for _, child := range children {
		state, err := goalState(gs, cs, rs, userID, child.ID)
		if err != nil {
			return execstate.StateNone, err
		}
		states = append(states, state)
	}
	return execstate.Rollup(states), nil
}
