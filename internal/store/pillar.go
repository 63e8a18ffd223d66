package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
)

type PillarStore struct {
	db *sql.DB
}

func NewPillarStore(db *sql.DB) *PillarStore {
	return &PillarStore{db: db}
}

const pillarCols = `id, user_id, name, sort_order, archived_at, created_at, updated_at`

func scanPillar(sc scanner) (*model.Pillar, error) {
	var p model.Pillar
	var id, userID string
	var archivedAt sql.NullTime

	err := sc.Scan(&id, &userID, &p.Name, &p.SortOrder, &archivedAt, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	if p.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse pillar id: %w", err)
	}
	if p.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if archivedAt.Valid {
		p.ArchivedAt = &archivedAt.Time
	}
	return &p, nil
}

func (s *PillarStore) Create(userID uuid.UUID, name string, sortOrder int) (*model.Pillar, error) {
	id := uuid.New()
	_, err := s.db.Exec(
		`INSERT INTO pillars (id, user_id, name, sort_order) VALUES (?, ?, ?, ?)`,
		id.String(), userID.String(), name, sortOrder,
	)
	if err != nil {
		return nil, fmt.Errorf("insert pillar: %w", err)
	}
	return s.GetByID(userID, id)
}

func (s *PillarStore) GetByID(userID, id uuid.UUID) (*model.Pillar, error) {
	row := s.db.QueryRow(
		`SELECT `+pillarCols+` FROM pillars WHERE id = ? AND user_id = ?`,
		id.String(), userID.String(),
	)
	p, err := scanPillar(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pillar: %w", err)
	}
	return p, nil
}

func (s *PillarStore) List(userID uuid.UUID) ([]model.Pillar, error) {
	rows, err := s.db.Query(
		`SELECT `+pillarCols+` FROM pillars
		WHERE user_id = ? AND archived_at IS NULL ORDER BY sort_order ASC, name ASC`,
		userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list pillars: %w", err)
	}
	defer rows.Close()

	var pillars []model.Pillar
	for rows.Next() {
		p, err := scanPillar(rows)
		if err != nil {
			return nil, fmt.Errorf("scan pillar: %w", err)
		}
		pillars = append(pillars, *p)
	}
	return pillars, rows.Err()
}

func (s *PillarStore) Update(userID, id uuid.UUID, name string, sortOrder int) (*model.Pillar, error) {
	_, err := s.db.Exec(
		`UPDATE pillars SET name = ?, sort_order = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		name, sortOrder, id.String(), userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("update pillar: %w", err)
	}
	return s.GetByID(userID, id)
}

func (s *PillarStore) Archive(userID, id uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE pillars SET archived_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		time.Now().UTC(), id.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("archive pillar: %w", err)
	}
	return nil
}
