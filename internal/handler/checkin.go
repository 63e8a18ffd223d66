package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/fennwick/trellis/internal/auth"
	"github.com/fennwick/trellis/internal/model"
	"github.com/fennwick/trellis/internal/schedule"
	"github.com/fennwick/trellis/internal/store"
)

type CheckInHandler struct {
	checkins *store.CheckInStore
	logger   *slog.Logger
}

func NewCheckInHandler(ws *store.CheckInStore, logger *slog.Logger) *CheckInHandler {
	return &CheckInHandler{checkins: ws, logger: logger}
}

// Week handles GET /api/checkins?week=YYYY-MM-DD. The week parameter is
// snapped to its Monday; it defaults to the current week.
func (h *CheckInHandler) Week(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	week := r.URL.Query().Get("week")
	day := time.Now()
	if week != "" {
		parsed, err := schedule.ParseDate(week)
		if err != nil {
			writeError(w, http.StatusBadRequest, "week must be YYYY-MM-DD")
			return
		}
		day = parsed
	}
	weekStart := schedule.DateKey(schedule.WeekStart(day))

	checkins, err := h.checkins.ListForWeek(userID, weekStart)
	if err != nil {
		h.logger.Error("list checkins", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list check-ins")
		return
	}
	if checkins == nil {
		checkins = []model.WeeklyCheckIn{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"week_start": weekStart,
		"checkins":   checkins,
	})
}
