package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/fennwick/trellis/internal/backup"
	"github.com/fennwick/trellis/internal/handler"
	"github.com/fennwick/trellis/internal/layout"
	"github.com/fennwick/trellis/internal/middleware"
	"github.com/fennwick/trellis/internal/planner"
	"github.com/fennwick/trellis/internal/push"
	"github.com/fennwick/trellis/internal/store"
	ws "github.com/fennwick/trellis/internal/websocket"
)

type Server struct {
	db            *sql.DB
	hub           *ws.Hub
	pillarH       *handler.PillarHandler
	visionH       *handler.VisionHandler
	goalH         *handler.GoalHandler
	commitmentH   *handler.CommitmentHandler
	taskH         *handler.TaskHandler
	occurrenceH   *handler.OccurrenceHandler
	calendarH     *handler.CalendarHandler
	checkinH      *handler.CheckInHandler
	pushH         *handler.PushHandler
	backupH       *handler.BackupHandler
	userStore     *store.UserStore
	recordStore   *store.TaskRecordStore
	plannerSvc    *planner.Service
	rateLimiter   *middleware.RateLimiter
	backupManager *backup.Manager
	pushService   *push.Service
	pushScheduler *push.Scheduler
	logger        *slog.Logger
}

func New(db *sql.DB, backupCfg backup.Config, pushCfg push.Config, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))

	pillarStore := store.NewPillarStore(db)
	visionStore := store.NewVisionStore(db)
	goalStore := store.NewGoalStore(db)
	commitmentStore := store.NewCommitmentStore(db)
	recordStore := store.NewTaskRecordStore(db)
	checkinStore := store.NewCheckInStore(db)
	userStore := store.NewUserStore(db)

	plannerSvc := planner.NewService(logger.With("component", "planner"),
		commitmentStore, recordStore, goalStore, checkinStore)

	backupStore := store.NewBackupStore(db)
	backupMgr := backup.NewManager(backupCfg, db, backupStore, logger.With("component", "backup"))

	pushStore := store.NewPushStore(db)
	var pushSvc *push.Service
	var pushSched *push.Scheduler
	var pushH *handler.PushHandler
	if pushCfg.VAPIDPublicKey != "" && pushCfg.VAPIDPrivateKey != "" {
		pushLogger := logger.With("component", "push")
		pushSvc = push.NewService(pushCfg)
		pushSched = push.NewScheduler(pushSvc, pushStore, plannerSvc, pushLogger)
		pushH = handler.NewPushHandler(pushStore, pushSvc, pushLogger)
	}

	return &Server{
		db:            db,
		hub:           hub,
		pillarH:       handler.NewPillarHandler(pillarStore, hub, logger.With("component", "pillar")),
		visionH:       handler.NewVisionHandler(visionStore, goalStore, commitmentStore, recordStore, hub, logger.With("component", "vision")),
		goalH:         handler.NewGoalHandler(goalStore, commitmentStore, recordStore, hub, logger.With("component", "goal")),
		commitmentH:   handler.NewCommitmentHandler(commitmentStore, recordStore, plannerSvc, hub, logger.With("component", "commitment")),
		taskH:         handler.NewTaskHandler(recordStore, plannerSvc, hub, logger.With("component", "task")),
		occurrenceH:   handler.NewOccurrenceHandler(plannerSvc, hub, logger.With("component", "occurrence")),
		calendarH:     handler.NewCalendarHandler(plannerSvc, layout.Config{}, logger.With("component", "calendar")),
		checkinH:      handler.NewCheckInHandler(checkinStore, logger.With("component", "checkin")),
		pushH:         pushH,
		backupH:       handler.NewBackupHandler(backupMgr, backupStore, logger.With("component", "backup_handler")),
		userStore:     userStore,
		recordStore:   recordStore,
		plannerSvc:    plannerSvc,
		rateLimiter:   middleware.NewRateLimiter(),
		backupManager: backupMgr,
		pushService:   pushSvc,
		pushScheduler: pushSched,
		logger:        logger,
	}
}

// RateLimiter returns the auth rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

// BackupManager returns the backup manager.
func (s *Server) BackupManager() *backup.Manager {
	return s.backupManager
}

// PushScheduler returns the reminder scheduler, nil when VAPID keys are
// not configured.
func (s *Server) PushScheduler() *push.Scheduler {
	return s.pushScheduler
}

// TaskRecordStore returns the task record store for retention sweeps.
func (s *Server) TaskRecordStore() *store.TaskRecordStore {
	return s.recordStore
}

func (s *Server) Router() http.Handler {
	outerMux := http.NewServeMux()

	// Public routes (no auth required)
	outerMux.HandleFunc("GET /health", s.healthHandler)

	// Protected routes — wrapped with RequireAuth middleware
	protectedMux := http.NewServeMux()
	s.registerProtectedRoutes(protectedMux)

	authMiddleware := middleware.RequireAuth(s.userStore, s.rateLimiter)
	outerMux.Handle("/", authMiddleware(protectedMux))

	return middleware.RequestLogger(s.logger.With("component", "http"))(outerMux)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) registerProtectedRoutes(mux *http.ServeMux) {
	// Pillar API routes
	mux.HandleFunc("GET /api/pillars", s.pillarH.List)
	mux.HandleFunc("POST /api/pillars", s.pillarH.Create)
	mux.HandleFunc("PUT /api/pillars/{id}", s.pillarH.Update)
	mux.HandleFunc("DELETE /api/pillars/{id}", s.pillarH.Archive)

	// Vision API routes
	mux.HandleFunc("GET /api/visions", s.visionH.List)
	mux.HandleFunc("GET /api/pillars/{id}/visions", s.visionH.List)
	mux.HandleFunc("POST /api/visions", s.visionH.Create)
	mux.HandleFunc("PUT /api/visions/{id}", s.visionH.Update)
	mux.HandleFunc("DELETE /api/visions/{id}", s.visionH.Archive)
	mux.HandleFunc("GET /api/visions/{id}/execution", s.visionH.Execution)

	// Goal API routes
	mux.HandleFunc("GET /api/goals", s.goalH.List)
	mux.HandleFunc("GET /api/visions/{id}/goals", s.goalH.List)
	mux.HandleFunc("POST /api/goals", s.goalH.Create)
	mux.HandleFunc("PUT /api/goals/{id}", s.goalH.Update)
	mux.HandleFunc("DELETE /api/goals/{id}", s.goalH.Archive)
	mux.HandleFunc("GET /api/goals/{id}/execution", s.goalH.Execution)

	// Commitment API routes
	mux.HandleFunc("GET /api/commitments", s.commitmentH.List)
	mux.HandleFunc("GET /api/goals/{id}/commitments", s.commitmentH.List)
	mux.HandleFunc("GET /api/commitments/{id}", s.commitmentH.Get)
	mux.HandleFunc("POST /api/commitments", s.commitmentH.Create)
	mux.HandleFunc("PUT /api/commitments/{id}", s.commitmentH.Update)
	mux.HandleFunc("PUT /api/commitments/{id}/rule", s.commitmentH.Update)
	mux.HandleFunc("DELETE /api/commitments/{id}", s.commitmentH.Delete)
	mux.HandleFunc("POST /api/commitments/{id}/detach", s.occurrenceH.Detach)

	// Independent task API routes
	mux.HandleFunc("POST /api/tasks", s.taskH.Create)
	mux.HandleFunc("GET /api/tasks/{id}", s.taskH.Get)
	mux.HandleFunc("PUT /api/tasks/{id}", s.taskH.Update)
	mux.HandleFunc("DELETE /api/tasks/{id}", s.taskH.Delete)
	mux.HandleFunc("POST /api/tasks/{id}/convert", s.taskH.Convert)

	// Occurrence API routes (expanded planner views)
	mux.HandleFunc("GET /api/occurrences", s.occurrenceH.Day)
	mux.HandleFunc("GET /api/occurrences/week", s.occurrenceH.Week)
	mux.HandleFunc("POST /api/occurrences/toggle", s.occurrenceH.Toggle)
	mux.HandleFunc("POST /api/occurrences/detach", s.occurrenceH.Detach)

	// Calendar layout API routes
	mux.HandleFunc("GET /api/calendar/day", s.calendarH.Day)
	mux.HandleFunc("GET /api/calendar/week", s.calendarH.Week)

	// Weekly check-in API routes
	mux.HandleFunc("GET /api/checkins", s.checkinH.Week)

	// Push notification API routes
	if s.pushH != nil {
		mux.HandleFunc("POST /api/push/subscriptions", s.pushH.Subscribe)
		mux.HandleFunc("DELETE /api/push/subscriptions", s.pushH.Unsubscribe)
		mux.HandleFunc("GET /api/push/subscriptions", s.pushH.ListSubscriptions)
		mux.HandleFunc("GET /api/push/vapid-key", s.pushH.GetVAPIDKey)
	}

	// Backup API routes
	mux.HandleFunc("GET /api/backups", s.backupH.List)
	mux.HandleFunc("POST /api/backups", s.backupH.RunNow)
	mux.HandleFunc("GET /api/backups/{id}/download", s.backupH.Download)
	mux.HandleFunc("POST /api/backups/{id}/restore", s.backupH.Restore)

	// WebSocket
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, s.logger.With("component", "websocket")))
}
