package handler

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/fennwick/trellis/internal/auth"
	"github.com/fennwick/trellis/internal/backup"
	"github.com/fennwick/trellis/internal/store"
)

type BackupHandler struct {
	manager *backup.Manager
	backups *store.BackupStore
	logger  *slog.Logger
}

func NewBackupHandler(m *backup.Manager, bs *store.BackupStore, logger *slog.Logger) *BackupHandler {
	return &BackupHandler{manager: m, backups: bs, logger: logger}
}

// List handles GET /api/backups
func (h *BackupHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	backups, err := h.backups.ListCompleted(userID)
	if err != nil {
		h.logger.Error("list backups", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list backups")
		return
	}
	if backups == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, backups)
}

// RunNow handles POST /api/backups
func (h *BackupHandler) RunNow(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserID(r.Context())

	if !h.manager.Enabled() {
		writeError(w, http.StatusConflict, "backups not configured")
		return
	}

	id, err := h.manager.RunNow(r.Context(), userID)
	if err != nil {
		h.logger.Error("run backup", "error", err)
		writeError(w, http.StatusInternalServerError, "backup failed")
		return
	}

	record, err := h.backups.GetByID(id)
	if err != nil || record == nil {
		writeError(w, http.StatusInternalServerError, "backup record missing")
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// Download handles GET /api/backups/{id}/download — streams the
// encrypted snapshot as stored; decryption happens client-side with the
// configured passphrase.
func (h *BackupHandler) Download(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	body, size, err := h.manager.Download(r.Context(), id)
	if err != nil {
		h.logger.Error("download backup", "error", err)
		writeError(w, http.StatusNotFound, "backup not available")
		return
	}
	defer body.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	if size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(size, 10))
	}
	io.Copy(w, body)
}

// Restore handles POST /api/backups/{id}/restore. On success the process
// replaces its database file and exits for a supervised restart.
func (h *BackupHandler) Restore(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := h.manager.Restore(r.Context(), id); err != nil {
		h.logger.Error("restore backup", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
}
