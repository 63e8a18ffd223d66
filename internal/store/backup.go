package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
)

type BackupStore struct {
	db *sql.DB
}

func NewBackupStore(db *sql.DB) *BackupStore {
	return &BackupStore{db: db}
}

const backupCols = `id, user_id, s3_key, size_bytes, status, error_message, completed_at, created_at`

func scanBackup(sc scanner) (*model.Backup, error) {
	var b model.Backup
	var id, userID string
	var completedAt sql.NullTime

	err := sc.Scan(&id, &userID, &b.S3Key, &b.SizeBytes, &b.Status, &b.ErrorMessage,
		&completedAt, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	if b.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse backup id: %w", err)
	}
	if b.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if completedAt.Valid {
		b.CompletedAt = &completedAt.Time
	}
	return &b, nil
}

func (s *BackupStore) Create(userID uuid.UUID, s3Key string) (*model.Backup, error) {
	id := uuid.New()
	_, err := s.db.Exec(
		`INSERT INTO backups (id, user_id, s3_key, status) VALUES (?, ?, ?, ?)`,
		id.String(), userID.String(), s3Key, string(model.BackupStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("insert backup: %w", err)
	}
	return s.GetByID(id)
}

func (s *BackupStore) GetByID(id uuid.UUID) (*model.Backup, error) {
	row := s.db.QueryRow(`SELECT `+backupCols+` FROM backups WHERE id = ?`, id.String())
	b, err := scanBackup(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get backup: %w", err)
	}
	return b, nil
}

func (s *BackupStore) MarkUploading(id uuid.UUID) error {
	return s.setStatus(id, model.BackupStatusUploading, "")
}

func (s *BackupStore) MarkCompleted(id uuid.UUID, sizeBytes int64) error {
	now := time.Now().UTC()
	_, err := s.db.Exec(
		`UPDATE backups SET status = ?, size_bytes = ?, completed_at = ? WHERE id = ?`,
		string(model.BackupStatusCompleted), sizeBytes, now, id.String(),
	)
	if err != nil {
		return fmt.Errorf("mark backup completed: %w", err)
	}
	return nil
}

func (s *BackupStore) MarkFailed(id uuid.UUID, message string) error {
	return s.setStatus(id, model.BackupStatusFailed, message)
}

func (s *BackupStore) setStatus(id uuid.UUID, status model.BackupStatus, message string) error {
	_, err := s.db.Exec(
		`UPDATE backups SET status = ?, error_message = ? WHERE id = ?`,
		string(status), message, id.String(),
	)
	if err != nil {
		return fmt.Errorf("set backup status: %w", err)
	}
	return nil
}

// ListCompleted returns completed backups, newest first, for retention
// pruning and the backup listing endpoint.
func (s *BackupStore) ListCompleted(userID uuid.UUID) ([]model.Backup, error) {
	rows, err := s.db.Query(
		`SELECT `+backupCols+` FROM backups
		WHERE user_id = ? AND status = ? ORDER BY created_at DESC`,
		userID.String(), string(model.BackupStatusCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	defer rows.Close()

	var backups []model.Backup
	for rows.Next() {
		b, err := scanBackup(rows)
		if err != nil {
			return nil, fmt.Errorf("scan backup: %w", err)
		}
		backups = append(backups, *b)
	}
	return backups, rows.Err()
}

func (s *BackupStore) Delete(id uuid.UUID) error {
	_, err := s.db.Exec(`DELETE FROM backups WHERE id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete backup: %w", err)
	}
	return nil
}
