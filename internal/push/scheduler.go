package push

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
	"github.com/fennwick/trellis/internal/planner"
	"github.com/fennwick/trellis/internal/schedule"
	"github.com/fennwick/trellis/internal/store"
)

// reminderLead is how far before an occurrence's start time the
// reminder fires.
const reminderLead = 10 * time.Minute

// Scheduler wakes every minute and sends a reminder for each timed,
// uncompleted occurrence starting within the lead window. Each
// occurrence is reminded at most once per day; the dedupe set is
// in-memory, so a restart may re-send at worst one reminder.
type Scheduler struct {
	mu       sync.Mutex
	service  *Service
	push     *store.PushStore
	plan     *planner.Service
	log      *slog.Logger
	interval time.Duration
	sent     map[string]struct{}
	sentDay  string
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewScheduler creates a reminder scheduler.
func NewScheduler(svc *Service, pushStore *store.PushStore, plan *planner.Service, log *slog.Logger) *Scheduler {
	return &Scheduler{
		service:  svc,
		push:     pushStore,
		plan:     plan,
		log:      log,
		interval: 60 * time.Second,
		sent:     make(map[string]struct{}),
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx, time.Now())
			}
		}
	}()
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (s *Scheduler) tick(ctx context.Context, now time.Time) {
	subs, err := s.push.ListAll()
	if err != nil {
		s.log.Error("reminder scheduler: list subscriptions", "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	byUser := make(map[uuid.UUID][]model.PushSubscription)
	for _, sub := range subs {
		byUser[sub.UserID] = append(byUser[sub.UserID], sub)
	}

	today := schedule.DateKey(now)
	s.resetDedupe(today)

	for userID, userSubs := range byUser {
		occs, err := s.plan.OccurrencesForDate(ctx, userID, today)
		if err != nil {
			s.log.Error("reminder scheduler: occurrences", "user_id", userID, "error", err)
			continue
		}
		for _, occ := range occs {
			if occ.Completed || occ.StartTime == nil {
				continue
			}
			startMin, err := schedule.ParseClock(*occ.StartTime)
			if err != nil {
				continue
			}
			start := time.Date(now.Year(), now.Month(), now.Day(), 0, startMin, 0, 0, now.Location())
			if start.Before(now) || start.After(now.Add(reminderLead)) {
				continue
			}

			payload := NewReminder(userID, occ)
			if s.alreadySent(payload.Tag) {
				continue
			}

			for i := range userSubs {
				if err := s.service.Send(&userSubs[i], payload); err != nil {
					if errors.Is(err, ErrExpired) {
						if derr := s.push.DeleteByEndpoint(userSubs[i].Endpoint); derr != nil {
							s.log.Error("reminder scheduler: drop expired subscription", "error", derr)
						}
					} else {
						s.log.Error("reminder scheduler: send", "error", err)
					}
				}
			}
			s.markSent(payload.Tag)
		}
	}
}

// resetDedupe clears the sent set when the day rolls over.
func (s *Scheduler) resetDedupe(today string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sentDay != today {
		s.sent = make(map[string]struct{})
		s.sentDay = today
	}
}

func (s *Scheduler) alreadySent(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sent[key]
	return ok
}

func (s *Scheduler) markSent(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[key] = struct{}{}
}
