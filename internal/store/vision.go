package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
)

type VisionStore struct {
	db *sql.DB
}

func NewVisionStore(db *sql.DB) *VisionStore {
	return &VisionStore{db: db}
}

const visionCols = `id, user_id, pillar_id, title, description, archived_at, created_at, updated_at`

func scanVision(sc scanner) (*model.Vision, error) {
	var v model.Vision
	var id, userID, pillarID string
	var archivedAt sql.NullTime

	err := sc.Scan(&id, &userID, &pillarID, &v.Title, &v.Description, &archivedAt, &v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if v.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse vision id: %w", err)
	}
	if v.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if v.PillarID, err = uuid.Parse(pillarID); err != nil {
		return nil, fmt.Errorf("parse pillar id: %w", err)
	}
	if archivedAt.Valid {
		v.ArchivedAt = &archivedAt.Time
	}
	return &v, nil
}

func (s *VisionStore) Create(userID, pillarID uuid.UUID, title, description string) (*model.Vision, error) {
	id := uuid.New()
	_, err := s.db.Exec(
		`INSERT INTO visions (id, user_id, pillar_id, title, description) VALUES (?, ?, ?, ?, ?)`,
		id.String(), userID.String(), pillarID.String(), title, description,
	)
	if err != nil {
		return nil, fmt.Errorf("insert vision: %w", err)
	}
	return s.GetByID(userID, id)
}

func (s *VisionStore) GetByID(userID, id uuid.UUID) (*model.Vision, error) {
	row := s.db.QueryRow(
		`SELECT `+visionCols+` FROM visions WHERE id = ? AND user_id = ?`,
		id.String(), userID.String(),
	)
	v, err := scanVision(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get vision: %w", err)
	}
	return v, nil
}

func (s *VisionStore) ListByPillar(userID, pillarID uuid.UUID) ([]model.Vision, error) {
	rows, err := s.db.Query(
		`SELECT `+visionCols+` FROM visions
		WHERE user_id = ? AND pillar_id = ? AND archived_at IS NULL ORDER BY created_at ASC`,
		userID.String(), pillarID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list visions: %w", err)
	}
	defer rows.Close()
	return collectVisions(rows)
}

func (s *VisionStore) List(userID uuid.UUID) ([]model.Vision, error) {
	rows, err := s.db.Query(
		`SELECT `+visionCols+` FROM visions
		WHERE user_id = ? AND archived_at IS NULL ORDER BY created_at ASC`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list visions: %w", err)
	}
	defer rows.Close()
	return collectVisions(rows)
}

func collectVisions(rows *sql.Rows) ([]model.Vision, error) {
	var visions []model.Vision
	for rows.Next() {
		v, err := scanVision(rows)
		if err != nil {
			return nil, fmt.Errorf("scan vision: %w", err)
		}
		visions = append(visions, *v)
	}
	return visions, rows.Err()
}

func (s *VisionStore) Update(userID, id uuid.UUID, title, description string) (*model.Vision, error) {
	_, err := s.db.Exec(
		`UPDATE visions SET title = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		title, description, id.String(), userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("update vision: %w", err)
	}
	return s.GetByID(userID, id)
}

func (s *VisionStore) Archive(userID, id uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE visions SET archived_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		time.Now().UTC(), id.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("archive vision: %w", err)
	}
	return nil
}
