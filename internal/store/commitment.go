package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
)

type CommitmentStore struct {
	db *sql.DB
}

func NewCommitmentStore(db *sql.DB) *CommitmentStore {
	return &CommitmentStore{db: db}
}

const commitmentCols = `id, user_id, goal_id, title, cadence, active_days, times_per_week,
	instances_per_day, start_time, end_time, start_date, end_date, is_active,
	deleted_at, created_at, updated_at`

func scanCommitment(sc scanner) (*model.Commitment, error) {
	var c model.Commitment
	var id, userID string
	var goalID, startTime, endTime, startDate, endDate sql.NullString
	var activeDays string
	var deletedAt sql.NullTime

	err := sc.Scan(
		&id, &userID, &goalID, &c.Title, &c.Cadence, &activeDays, &c.TimesPerWeek,
		&c.InstancesPerDay, &startTime, &endTime, &startDate, &endDate, &c.IsActive,
		&deletedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if c.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse commitment id: %w", err)
	}
	if c.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if c.GoalID, err = parseNullUUID(goalID); err != nil {
		return nil, fmt.Errorf("parse goal id: %w", err)
	}
	c.ActiveDays = parseDays(activeDays)
	c.StartTime = fromNullString(startTime)
	c.EndTime = fromNullString(endTime)
	c.StartDate = fromNullString(startDate)
	c.EndDate = fromNullString(endDate)
	if deletedAt.Valid {
		c.DeletedAt = &deletedAt.Time
	}
	return &c, nil
}

// Create inserts a commitment. ID and timestamps are assigned here; the
// caller provides the rule fields already validated.
func (s *CommitmentStore) Create(userID uuid.UUID, c model.Commitment) (*model.Commitment, error) {
	id := uuid.New()
	_, err := s.db.Exec(
		`INSERT INTO commitments (id, user_id, goal_id, title, cadence, active_days,
			times_per_week, instances_per_day, start_time, end_time, start_date, end_date, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), userID.String(), nullUUID(c.GoalID), c.Title, string(c.Cadence),
		joinDays(c.ActiveDays), c.TimesPerWeek, c.InstancesPerDay,
		nullString(c.StartTime), nullString(c.EndTime),
		nullString(c.StartDate), nullString(c.EndDate), true,
	)
	if err != nil {
		return nil, fmt.Errorf("insert commitment: %w", err)
	}
	return s.GetByID(userID, id)
}

func (s *CommitmentStore) GetByID(userID, id uuid.UUID) (*model.Commitment, error) {
	row := s.db.QueryRow(
		`SELECT `+commitmentCols+` FROM commitments WHERE id = ? AND user_id = ?`,
		id.String(), userID.String(),
	)
	c, err := scanCommitment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get commitment: %w", err)
	}
	return c, nil
}

// List returns all non-deleted commitments for the user, active or not.
func (s *CommitmentStore) List(userID uuid.UUID) ([]model.Commitment, error) {
	rows, err := s.db.Query(
		`SELECT `+commitmentCols+` FROM commitments
		WHERE user_id = ? AND deleted_at IS NULL ORDER BY created_at ASC`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list commitments: %w", err)
	}
	defer rows.Close()
	return collectCommitments(rows)
}

// ListForRange returns active commitments whose date bounds intersect the
// inclusive [startDate, endDate] range. Unbounded templates always match.
func (s *CommitmentStore) ListForRange(userID uuid.UUID, startDate, endDate string) ([]model.Commitment, error) {
	rows, err := s.db.Query(
		`SELECT `+commitmentCols+` FROM commitments
		WHERE user_id = ? AND deleted_at IS NULL AND is_active = 1
			AND (start_date IS NULL OR start_date <= ?)
			AND (end_date IS NULL OR end_date >= ?)
		ORDER BY created_at ASC`,
		userID.String(), endDate, startDate,
	)
	if err != nil {
		return nil, fmt.Errorf("list commitments for range: %w", err)
	}
	defer rows.Close()
	return collectCommitments(rows)
}

func (s *CommitmentStore) ListByGoal(userID, goalID uuid.UUID) ([]model.Commitment, error) {
	rows, err := s.db.Query(
		`SELECT `+commitmentCols+` FROM commitments
		WHERE user_id = ? AND goal_id = ? AND deleted_at IS NULL ORDER BY created_at ASC`,
		userID.String(), goalID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list commitments by goal: %w", err)
	}
	defer rows.Close()
	return collectCommitments(rows)
}

func collectCommitments(rows *sql.Rows) ([]model.Commitment, error) {
	var commitments []model.Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan commitment: %w", err)
		}
		commitments = append(commitments, *c)
	}
	return commitments, rows.Err()
}

// Update replaces the commitment's editable fields (title, goal link, and
// the full recurrence rule).
func (s *CommitmentStore) Update(userID, id uuid.UUID, c model.Commitment) (*model.Commitment, error) {
	_, err := s.db.Exec(
		`UPDATE commitments SET goal_id = ?, title = ?, cadence = ?, active_days = ?,
			times_per_week = ?, instances_per_day = ?, start_time = ?, end_time = ?,
			start_date = ?, end_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		nullUUID(c.GoalID), c.Title, string(c.Cadence), joinDays(c.ActiveDays),
		c.TimesPerWeek, c.InstancesPerDay, nullString(c.StartTime), nullString(c.EndTime),
		nullString(c.StartDate), nullString(c.EndDate),
		id.String(), userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("update commitment: %w", err)
	}
	return s.GetByID(userID, id)
}

// Deactivate soft-deletes a commitment: the template stops generating
// occurrences but its history stays queryable.
func (s *CommitmentStore) Deactivate(userID, id uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE commitments SET is_active = 0, deleted_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		time.Now().UTC(), id.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("deactivate commitment: %w", err)
	}
	return nil
}

// Delete removes a commitment outright. Only used for templates that were
// never instantiated; otherwise Deactivate preserves history.
func (s *CommitmentStore) Delete(userID, id uuid.UUID) error {
	_, err := s.db.Exec(
		`DELETE FROM commitments WHERE id = ? AND user_id = ?`,
		id.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("delete commitment: %w", err)
	}
	return nil
}
