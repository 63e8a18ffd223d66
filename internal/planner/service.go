package planner

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fennwick/trellis/internal/execstate"
	"github.com/fennwick/trellis/internal/model"
	"github.com/fennwick/trellis/internal/schedule"
	"github.com/fennwick/trellis/internal/store"
)

// Service computes occurrence views over the commitment and task record
// stores, caching resolved ranges per user.
type Service struct {
	log         *slog.Logger
	commitments *store.CommitmentStore
	records     *store.TaskRecordStore
	goals       *store.GoalStore
	checkins    *store.CheckInStore
	cache       *rangeCache
}

func NewService(log *slog.Logger, commitments *store.CommitmentStore, records *store.TaskRecordStore, goals *store.GoalStore, checkins *store.CheckInStore) *Service {
	return &Service{
		log:         log,
		commitments: commitments,
		records:     records,
		goals:       goals,
		checkins:    checkins,
		cache:       newRangeCache(),
	}
}

// OccurrenceRef names one occurrence for a mutation. Recurring
// occurrences are addressed by (commitment, date, instance); independent
// tasks by their record ID.
type OccurrenceRef struct {
	CommitmentID *uuid.UUID `json:"commitment_id,omitempty"`
	TaskRecordID *uuid.UUID `json:"task_record_id,omitempty"`
	Date         string     `json:"date"`
	Instance     int        `json:"instance"`
}

// OccurrencesForDate returns the resolved occurrences of one day, sorted
// by start time.
func (s *Service) OccurrencesForDate(ctx context.Context, userID uuid.UUID, date string) ([]schedule.Occurrence, error) {
	day, err := schedule.ParseDate(date)
	if err != nil {
		return nil, fmt.Errorf("parse date: %w", err)
	}

	key := cacheKey{userID: userID, kind: kindDay, start: date}
	if occs, ok := s.cache.get(key); ok {
		return occs, nil
	}

	gen := s.cache.generation(userID)
	occs, err := s.loadRange(ctx, userID, day, day)
	if err != nil {
		return nil, err
	}
	s.cache.put(key, occs, gen)
	return occs, nil
}

// OccurrencesForWeek returns the resolved occurrences for the Monday
// week containing the given date, grouped by day. The returned week
// start identifies the range actually fetched.
func (s *Service) OccurrencesForWeek(ctx context.Context, userID uuid.UUID, date string) (string, map[string][]schedule.Occurrence, error) {
	day, err := schedule.ParseDate(date)
	if err != nil {
		return "", nil, fmt.Errorf("parse date: %w", err)
	}
	start := schedule.WeekStart(day)
	end := start.AddDate(0, 0, 6)
	weekKey := schedule.DateKey(start)

	key := cacheKey{userID: userID, kind: kindWeek, start: weekKey}
	occs, ok := s.cache.get(key)
	if !ok {
		gen := s.cache.generation(userID)
		occs, err = s.loadRange(ctx, userID, start, end)
		if err != nil {
			return "", nil, err
		}
		s.cache.put(key, occs, gen)
	}

	days := make(map[string][]schedule.Occurrence, 7)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		days[schedule.DateKey(d)] = nil
	}
	for _, o := range occs {
		days[o.Date] = append(days[o.Date], o)
	}
	return weekKey, days, nil
}

// loadRange fetches everything a range needs in parallel — commitments
// intersecting the range, exception and independent records, completion
// flags, and goal titles — then resolves each day.
func (s *Service) loadRange(ctx context.Context, userID uuid.UUID, start, end time.Time) ([]schedule.Occurrence, error) {
	startKey, endKey := schedule.DateKey(start), schedule.DateKey(end)

	var (
		commitments []model.Commitment
		records     []model.TaskRecord
		completions []model.TaskCompletion
		goalTitles  map[uuid.UUID]string
	)

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		commitments, err = s.commitments.ListForRange(userID, startKey, endKey)
		return err
	})
	g.Go(func() error {
		var err error
		records, err = s.records.ListRange(userID, startKey, endKey)
		return err
	})
	g.Go(func() error {
		var err error
		completions, err = s.records.ListInstanceCompletions(userID, startKey, endKey)
		return err
	})
	g.Go(func() error {
		var err error
		goalTitles, err = s.goals.TitlesByID(userID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load range %s..%s: %w", startKey, endKey, err)
	}

	completed := make(map[uuid.UUID]bool, len(completions))
	for _, c := range completions {
		completed[c.TaskRecordID] = true
	}

	var occs []schedule.Occurrence
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		for _, c := range commitments {
			occs = append(occs, schedule.Resolve(c, day, records)...)
		}
	}
	for _, r := range records {
		if r.CommitmentID != nil {
			continue
		}
		occs = append(occs, schedule.ResolveIndependent(r, completed[r.ID]))
	}

	for i := range occs {
		if occs[i].GoalID != nil {
			occs[i].GoalTitle = goalTitles[*occs[i].GoalID]
		}
	}
	sortOccurrences(occs)
	return occs, nil
}

// sortOccurrences orders by date, then start time with untimed items
// last, then title for a stable display order.
func sortOccurrences(occs []schedule.Occurrence) {
	sort.SliceStable(occs, func(i, j int) bool {
		a, b := occs[i], occs[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		am, aerr := clockOf(a.StartTime)
		bm, berr := clockOf(b.StartTime)
		switch {
		case aerr == nil && berr != nil:
			return true
		case aerr != nil && berr == nil:
			return false
		case aerr == nil && berr == nil && am != bm:
			return am < bm
		}
		if a.Title != b.Title {
			return a.Title < b.Title
		}
		return a.Instance < b.Instance
	})
}

func clockOf(t *string) (int, error) {
	if t == nil {
		return 0, fmt.Errorf("no time")
	}
	return schedule.ParseClock(*t)
}

// ToggleCompletion flips an occurrence's completed state and returns the
// new state. The cache is updated optimistically before the write; if
// persistence fails the user's cache is invalidated so the next read
// reflects the database again.
//
// Toggling a recurring occurrence also moves the week's check-in counter.
func (s *Service) ToggleCompletion(ctx context.Context, userID uuid.UUID, ref OccurrenceRef) (bool, error) {
	if ref.CommitmentID != nil {
		return s.toggleRecurring(ctx, userID, ref)
	}
	if ref.TaskRecordID != nil {
		return s.toggleIndependent(ctx, userID, *ref.TaskRecordID)
	}
	return false, fmt.Errorf("occurrence ref names neither a commitment nor a record")
}

func (s *Service) toggleRecurring(ctx context.Context, userID uuid.UUID, ref OccurrenceRef) (bool, error) {
	commitmentID := *ref.CommitmentID
	instance := ref.Instance
	if instance < 1 {
		instance = 1
	}

	c, err := s.commitments.GetByID(userID, commitmentID)
	if err != nil {
		return false, err
	}
	if c == nil {
		return false, fmt.Errorf("commitment %s not found", commitmentID)
	}
	day, err := schedule.ParseDate(ref.Date)
	if err != nil {
		return false, err
	}

	// Only occurrences the rule actually generates may be toggled;
	// anything else would plant an orphan exception record and skew the
	// week's check-in counter.
	occurs, count := schedule.OccursOn(*c, day)
	if !occurs || instance > count {
		return false, fmt.Errorf("commitment %s has no occurrence %d on %s", commitmentID, instance, ref.Date)
	}

	rec, err := s.records.GetOccurrence(userID, commitmentID, ref.Date, instance)
	if err != nil {
		return false, err
	}
	newState := rec == nil || !rec.IsCompleted

	s.cache.mutate(userID, func(o *schedule.Occurrence) {
		if o.CommitmentID != nil && *o.CommitmentID == commitmentID &&
			o.Date == ref.Date && o.Instance == instance {
			o.Completed = newState
		}
	})

	if err := s.persistToggle(ctx, userID, *c, ref.Date, instance, rec, newState); err != nil {
		s.log.Error("toggle persist failed, invalidating cache",
			"user_id", userID, "commitment_id", commitmentID, "date", ref.Date, "error", err)
		s.cache.invalidate(userID)
		return false, err
	}
	return newState, nil
}

func (s *Service) persistToggle(_ context.Context, userID uuid.UUID, c model.Commitment, date string, instance int, rec *model.TaskRecord, newState bool) error {
	if rec == nil {
		if _, err := s.records.Create(userID, model.TaskRecord{
			CommitmentID: &c.ID,
			Date:         date,
			Instance:     instance,
			Title:        c.Title,
			IsCompleted:  newState,
		}); err != nil {
			return err
		}
	} else if err := s.records.SetCompleted(userID, rec.ID, newState); err != nil {
		return err
	}

	day, err := schedule.ParseDate(date)
	if err != nil {
		return err
	}
	delta := 1
	if !newState {
		delta = -1
	}
	weekStart := schedule.DateKey(schedule.WeekStart(day))
	planned := execstate.ExpectedPerWeek(c)
	if _, err := s.checkins.Adjust(userID, c.ID, weekStart, planned, delta); err != nil {
		return err
	}
	return nil
}

func (s *Service) toggleIndependent(_ context.Context, userID, recordID uuid.UUID) (bool, error) {
	rec, err := s.records.GetByID(userID, recordID)
	if err != nil {
		return false, err
	}
	if rec == nil || rec.DeletedAt != nil {
		return false, fmt.Errorf("task record %s not found", recordID)
	}

	cur, err := s.instanceCompleted(userID, rec)
	if err != nil {
		return false, err
	}
	newState := !cur

	s.cache.mutate(userID, func(o *schedule.Occurrence) {
		if o.CommitmentID == nil && o.TaskRecordID != nil && *o.TaskRecordID == recordID {
			o.Completed = newState
		}
	})

	if newState {
		err = s.records.SetInstanceCompleted(userID, recordID)
	} else {
		err = s.records.ClearInstanceCompleted(userID, recordID)
	}
	if err != nil {
		s.log.Error("toggle persist failed, invalidating cache",
			"user_id", userID, "task_record_id", recordID, "error", err)
		s.cache.invalidate(userID)
		return false, err
	}
	return newState, nil
}

// DetachOccurrence permanently decouples one occurrence from its
// template: the exception record (created if absent) is marked detached
// and a materialized independent copy takes its place on the calendar.
func (s *Service) DetachOccurrence(ctx context.Context, userID uuid.UUID, ref OccurrenceRef) (*model.TaskRecord, error) {
	if ref.CommitmentID == nil {
		return nil, fmt.Errorf("only recurring occurrences can be detached")
	}
	commitmentID := *ref.CommitmentID
	instance := ref.Instance
	if instance < 1 {
		instance = 1
	}

	c, err := s.commitments.GetByID(userID, commitmentID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("commitment %s not found", commitmentID)
	}

	// A detached exception means the copy already exists; repeating the
	// detach would materialize a duplicate.
	detached, err := s.records.HasDetached(userID, commitmentID, ref.Date, instance)
	if err != nil {
		return nil, err
	}
	if detached {
		return nil, fmt.Errorf("occurrence %d of commitment %s on %s is already detached", instance, commitmentID, ref.Date)
	}

	rec, err := s.records.GetOccurrence(userID, commitmentID, ref.Date, instance)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec, err = s.records.Create(userID, model.TaskRecord{
			CommitmentID: &commitmentID,
			Date:         ref.Date,
			Instance:     instance,
			Title:        c.Title,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := s.records.Detach(userID, rec.ID); err != nil {
		return nil, err
	}

	// The copy keeps whatever the occurrence was showing: record
	// overrides when present, template defaults otherwise.
	title := c.Title
	startTime, endTime := c.StartTime, c.EndTime
	if rec.Title != "" {
		title = rec.Title
	}
	if rec.StartTime != nil {
		startTime, endTime = rec.StartTime, rec.EndTime
	}
	copyRec, err := s.records.Create(userID, model.TaskRecord{
		Date:        ref.Date,
		Title:       title,
		StartTime:   startTime,
		EndTime:     endTime,
		IsCompleted: rec.IsCompleted,
	})
	if err != nil {
		return nil, err
	}
	if rec.IsCompleted {
		if err := s.records.SetInstanceCompleted(userID, copyRec.ID); err != nil {
			return nil, err
		}
	}

	s.cache.invalidate(userID)
	return copyRec, nil
}

// UpdateRule validates and applies a recurrence rule change. Existing
// exception records keep their dates even if the new rule no longer
// generates them; they simply stop rendering.
func (s *Service) UpdateRule(ctx context.Context, userID, commitmentID uuid.UUID, c model.Commitment) (*model.Commitment, error) {
	if err := schedule.ValidateRule(c); err != nil {
		return nil, err
	}
	updated, err := s.commitments.Update(userID, commitmentID, c)
	if err != nil {
		return nil, err
	}
	s.cache.invalidate(userID)
	return updated, nil
}

// ConvertToRecurring turns an independent task into the first occurrence
// of a new commitment built from the given rule.
func (s *Service) ConvertToRecurring(ctx context.Context, userID, recordID uuid.UUID, rule model.Commitment) (*model.Commitment, error) {
	rec, err := s.records.GetByID(userID, recordID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.DeletedAt != nil {
		return nil, fmt.Errorf("task record %s not found", recordID)
	}
	if rec.CommitmentID != nil {
		return nil, fmt.Errorf("task record %s already belongs to a commitment", recordID)
	}

	if rule.Title == "" {
		rule.Title = rec.Title
	}
	if rule.StartTime == nil {
		rule.StartTime, rule.EndTime = rec.StartTime, rec.EndTime
	}
	if rule.StartDate == nil {
		d := rec.Date
		rule.StartDate = &d
	}
	if err := schedule.ValidateRule(rule); err != nil {
		return nil, err
	}

	// Independent tasks track completion in the instance-completion
	// table, recurring records on the record itself. Carry the flag
	// across so the first occurrence keeps its completed state, and
	// drop the now-meaningless instance row.
	completed, err := s.instanceCompleted(userID, rec)
	if err != nil {
		return nil, err
	}

	c, err := s.commitments.Create(userID, rule)
	if err != nil {
		return nil, err
	}
	if err := s.records.SetCommitment(userID, recordID, c.ID); err != nil {
		return nil, err
	}
	if completed {
		if err := s.records.SetCompleted(userID, recordID, true); err != nil {
			return nil, err
		}
		if err := s.records.ClearInstanceCompleted(userID, recordID); err != nil {
			return nil, err
		}
	}

	s.cache.invalidate(userID)
	return c, nil
}

// instanceCompleted reports whether an independent task has an
// instance-completion row.
func (s *Service) instanceCompleted(userID uuid.UUID, rec *model.TaskRecord) (bool, error) {
	completions, err := s.records.ListInstanceCompletions(userID, rec.Date, rec.Date)
	if err != nil {
		return false, err
	}
	for _, c := range completions {
		if c.TaskRecordID == rec.ID {
			return true, nil
		}
	}
	return false, nil
}

// Invalidate drops a user's cached ranges. Called by handlers after any
// write that changes what a range would resolve to.
func (s *Service) Invalidate(userID uuid.UUID) {
	s.cache.invalidate(userID)
}
