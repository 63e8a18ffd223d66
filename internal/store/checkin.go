package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
)

type CheckInStore struct {
	db *sql.DB
}

func NewCheckInStore(db *sql.DB) *CheckInStore {
	return &CheckInStore{db: db}
}

const checkInCols = `id, user_id, commitment_id, week_start, planned_count, actual_count,
	created_at, updated_at`

func scanCheckIn(sc scanner) (*model.WeeklyCheckIn, error) {
	var w model.WeeklyCheckIn
	var id, userID, commitmentID string

	err := sc.Scan(&id, &userID, &commitmentID, &w.WeekStart, &w.PlannedCount, &w.ActualCount,
		&w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if w.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse checkin id: %w", err)
	}
	if w.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if w.CommitmentID, err = uuid.Parse(commitmentID); err != nil {
		return nil, fmt.Errorf("parse commitment id: %w", err)
	}
	return &w, nil
}

func (s *CheckInStore) Get(userID, commitmentID uuid.UUID, weekStart string) (*model.WeeklyCheckIn, error) {
	row := s.db.QueryRow(
		`SELECT `+checkInCols+` FROM weekly_checkins
		WHERE user_id = ? AND commitment_id = ? AND week_start = ?`,
		userID.String(), commitmentID.String(), weekStart,
	)
	w, err := scanCheckIn(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get checkin: %w", err)
	}
	return w, nil
}

func (s *CheckInStore) ListForWeek(userID uuid.UUID, weekStart string) ([]model.WeeklyCheckIn, error) {
	rows, err := s.db.Query(
		`SELECT `+checkInCols+` FROM weekly_checkins
		WHERE user_id = ? AND week_start = ? ORDER BY created_at ASC`,
		userID.String(), weekStart,
	)
	if err != nil {
		return nil, fmt.Errorf("list checkins: %w", err)
	}
	defer rows.Close()

	var checkins []model.WeeklyCheckIn
	for rows.Next() {
		w, err := scanCheckIn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan checkin: %w", err)
		}
		checkins = append(checkins, *w)
	}
	return checkins, rows.Err()
}

// Adjust moves a week's actual count by delta (+1 on completion, -1 on
// undo), creating the row lazily with the given planned count. The actual
// count is clamped at zero.
func (s *CheckInStore) Adjust(userID, commitmentID uuid.UUID, weekStart string, plannedCount, delta int) (*model.WeeklyCheckIn, error) {
	_, err := s.db.Exec(
		`INSERT INTO weekly_checkins (id, user_id, commitment_id, week_start, planned_count, actual_count)
		VALUES (?, ?, ?, ?, ?, MAX(0, ?))
		ON CONFLICT (commitment_id, week_start) DO UPDATE SET
			actual_count = MAX(0, actual_count + ?),
			updated_at = CURRENT_TIMESTAMP`,
		uuid.New().String(), userID.String(), commitmentID.String(), weekStart,
		plannedCount, delta, delta,
	)
	if err != nil {
		return nil, fmt.Errorf("adjust checkin: %w", err)
	}
	return s.Get(userID, commitmentID, weekStart)
}
