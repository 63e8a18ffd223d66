package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
)

type GoalStore struct {
	db *sql.DB
}

func NewGoalStore(db *sql.DB) *GoalStore {
	return &GoalStore{db: db}
}

const goalCols = `id, user_id, vision_id, parent_goal_id, title, horizon, target_date,
	archived_at, created_at, updated_at`

func scanGoal(sc scanner) (*model.Goal, error) {
	var g model.Goal
	var id, userID, visionID string
	var parentID, targetDate sql.NullString
	var archivedAt sql.NullTime

	err := sc.Scan(&id, &userID, &visionID, &parentID, &g.Title, &g.Horizon, &targetDate,
		&archivedAt, &g.CreatedAt, &g.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if g.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse goal id: %w", err)
	}
	if g.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if g.VisionID, err = uuid.Parse(visionID); err != nil {
		return nil, fmt.Errorf("parse vision id: %w", err)
	}
	if g.ParentGoalID, err = parseNullUUID(parentID); err != nil {
		return nil, fmt.Errorf("parse parent goal id: %w", err)
	}
	g.TargetDate = fromNullString(targetDate)
	if archivedAt.Valid {
		g.ArchivedAt = &archivedAt.Time
	}
	return &g, nil
}

func (s *GoalStore) Create(userID uuid.UUID, g model.Goal) (*model.Goal, error) {
	id := uuid.New()
	_, err := s.db.Exec(
		`INSERT INTO goals (id, user_id, vision_id, parent_goal_id, title, horizon, target_date)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id.String(), userID.String(), g.VisionID.String(), nullUUID(g.ParentGoalID),
		g.Title, string(g.Horizon), nullString(g.TargetDate),
	)
	if err != nil {
		return nil, fmt.Errorf("insert goal: %w", err)
	}
	return s.GetByID(userID, id)
}

func (s *GoalStore) GetByID(userID, id uuid.UUID) (*model.Goal, error) {
	row := s.db.QueryRow(
		`SELECT `+goalCols+` FROM goals WHERE id = ? AND user_id = ?`,
		id.String(), userID.String(),
	)
	g, err := scanGoal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get goal: %w", err)
	}
	return g, nil
}

func (s *GoalStore) List(userID uuid.UUID) ([]model.Goal, error) {
	rows, err := s.db.Query(
		`SELECT `+goalCols+` FROM goals
		WHERE user_id = ? AND archived_at IS NULL ORDER BY created_at ASC`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list goals: %w", err)
	}
	defer rows.Close()
	return collectGoals(rows)
}

func (s *GoalStore) ListByVision(userID, visionID uuid.UUID) ([]model.Goal, error) {
	rows, err := s.db.Query(
		`SELECT `+goalCols+` FROM goals
		WHERE user_id = ? AND vision_id = ? AND archived_at IS NULL ORDER BY created_at ASC`,
		userID.String(), visionID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list goals by vision: %w", err)
	}
	defer rows.Close()
	return collectGoals(rows)
}

func (s *GoalStore) ListChildren(userID, parentGoalID uuid.UUID) ([]model.Goal, error) {
	rows, err := s.db.Query(
		`SELECT `+goalCols+` FROM goals
		WHERE user_id = ? AND parent_goal_id = ? AND archived_at IS NULL ORDER BY created_at ASC`,
		userID.String(), parentGoalID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list child goals: %w", err)
	}
	defer rows.Close()
	return collectGoals(rows)
}

func collectGoals(rows *sql.Rows) ([]model.Goal, error) {
	var goals []model.Goal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, fmt.Errorf("scan goal: %w", err)
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// TitlesByID returns goal titles keyed by ID. Loaded alongside occurrence
// data so the calendar can label commitment cards without per-row joins.
func (s *GoalStore) TitlesByID(userID uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := s.db.Query(
		`SELECT id, title FROM goals WHERE user_id = ?`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("goal titles: %w", err)
	}
	defer rows.Close()

	titles := make(map[uuid.UUID]string)
	for rows.Next() {
		var id, title string
		if err := rows.Scan(&id, &title); err != nil {
			return nil, fmt.Errorf("scan goal title: %w", err)
		}
		gid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse goal id: %w", err)
		}
		titles[gid] = title
	}
	return titles, rows.Err()
}

func (s *GoalStore) Update(userID, id uuid.UUID, g model.Goal) (*model.Goal, error) {
	_, err := s.db.Exec(
		`UPDATE goals SET title = ?, horizon = ?, target_date = ?, parent_goal_id = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		g.Title, string(g.Horizon), nullString(g.TargetDate), nullUUID(g.ParentGoalID),
		id.String(), userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("update goal: %w", err)
	}
	return s.GetByID(userID, id)
}

func (s *GoalStore) Archive(userID, id uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE goals SET archived_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		time.Now().UTC(), id.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("archive goal: %w", err)
	}
	return nil
}
