package store

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
)

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userCols = `id, name, token_hash, created_at`

func scanUser(sc scanner) (*model.User, error) {
	var u model.User
	var id string

	err := sc.Scan(&id, &u.Name, &u.TokenHash, &u.CreatedAt)
	if err != nil {
		return nil, err
	}
	if u.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	return &u, nil
}

func (s *UserStore) Create(name, tokenHash string) (*model.User, error) {
	id := uuid.New()
	_, err := s.db.Exec(
		`INSERT INTO users (id, name, token_hash) VALUES (?, ?, ?)`,
		id.String(), name, tokenHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	return s.GetByID(id)
}

func (s *UserStore) GetByID(id uuid.UUID) (*model.User, error) {
	row := s.db.QueryRow(`SELECT `+userCols+` FROM users WHERE id = ?`, id.String())
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// First returns the oldest user, nil when none exist. The single-tenant
// deployment uses it to pick the backup owner on startup.
func (s *UserStore) First() (*model.User, error) {
	row := s.db.QueryRow(`SELECT ` + userCols + ` FROM users ORDER BY created_at, id LIMIT 1`)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("first user: %w", err)
	}
	return u, nil
}

func (s *UserStore) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}
