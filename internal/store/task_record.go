package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
)

type TaskRecordStore struct {
	db *sql.DB
}

func NewTaskRecordStore(db *sql.DB) *TaskRecordStore {
	return &TaskRecordStore{db: db}
}

const taskRecordCols = `id, user_id, commitment_id, date, instance, title, start_time, end_time,
	is_completed, is_detached, deleted_at, created_at, updated_at`

func scanTaskRecord(sc scanner) (*model.TaskRecord, error) {
	var r model.TaskRecord
	var id, userID string
	var commitmentID, startTime, endTime sql.NullString
	var deletedAt sql.NullTime

	err := sc.Scan(
		&id, &userID, &commitmentID, &r.Date, &r.Instance, &r.Title, &startTime, &endTime,
		&r.IsCompleted, &r.IsDetached, &deletedAt, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("parse record id: %w", err)
	}
	if r.UserID, err = uuid.Parse(userID); err != nil {
		return nil, fmt.Errorf("parse user id: %w", err)
	}
	if r.CommitmentID, err = parseNullUUID(commitmentID); err != nil {
		return nil, fmt.Errorf("parse commitment id: %w", err)
	}
	r.StartTime = fromNullString(startTime)
	r.EndTime = fromNullString(endTime)
	if deletedAt.Valid {
		r.DeletedAt = &deletedAt.Time
	}
	return &r, nil
}

func (s *TaskRecordStore) Create(userID uuid.UUID, r model.TaskRecord) (*model.TaskRecord, error) {
	id := uuid.New()
	instance := r.Instance
	if instance < 1 {
		instance = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO task_records (id, user_id, commitment_id, date, instance, title,
			start_time, end_time, is_completed, is_detached)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id.String(), userID.String(), nullUUID(r.CommitmentID), r.Date, instance, r.Title,
		nullString(r.StartTime), nullString(r.EndTime), r.IsCompleted, r.IsDetached,
	)
	if err != nil {
		return nil, fmt.Errorf("insert task record: %w", err)
	}
	return s.GetByID(userID, id)
}

func (s *TaskRecordStore) GetByID(userID, id uuid.UUID) (*model.TaskRecord, error) {
	row := s.db.QueryRow(
		`SELECT `+taskRecordCols+` FROM task_records WHERE id = ? AND user_id = ?`,
		id.String(), userID.String(),
	)
	r, err := scanTaskRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get task record: %w", err)
	}
	return r, nil
}

// GetOccurrence fetches the live (non-deleted, non-detached) exception
// record for one occurrence of a commitment, if any exists yet.
func (s *TaskRecordStore) GetOccurrence(userID, commitmentID uuid.UUID, date string, instance int) (*model.TaskRecord, error) {
	row := s.db.QueryRow(
		`SELECT `+taskRecordCols+` FROM task_records
		WHERE user_id = ? AND commitment_id = ? AND date = ? AND instance = ?
			AND is_detached = 0 AND deleted_at IS NULL`,
		userID.String(), commitmentID.String(), date, instance,
	)
	r, err := scanTaskRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get occurrence record: %w", err)
	}
	return r, nil
}

// HasDetached reports whether an occurrence has already been decoupled
// from its commitment. Detachment is permanent, so a second detach of
// the same occurrence must be refused rather than materialize another
// copy.
func (s *TaskRecordStore) HasDetached(userID, commitmentID uuid.UUID, date string, instance int) (bool, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM task_records
		WHERE user_id = ? AND commitment_id = ? AND date = ? AND instance = ?
			AND is_detached = 1 AND deleted_at IS NULL`,
		userID.String(), commitmentID.String(), date, instance,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check detached record: %w", err)
	}
	return n > 0, nil
}

// ListRange returns all live records — exception records and independent
// tasks — whose date falls in the inclusive [startDate, endDate] range.
func (s *TaskRecordStore) ListRange(userID uuid.UUID, startDate, endDate string) ([]model.TaskRecord, error) {
	rows, err := s.db.Query(
		`SELECT `+taskRecordCols+` FROM task_records
		WHERE user_id = ? AND date >= ? AND date <= ? AND deleted_at IS NULL
		ORDER BY date ASC, instance ASC`,
		userID.String(), startDate, endDate,
	)
	if err != nil {
		return nil, fmt.Errorf("list task records: %w", err)
	}
	defer rows.Close()

	var records []model.TaskRecord
	for rows.Next() {
		r, err := scanTaskRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task record: %w", err)
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// CountByCommitment reports how many records — live or soft-deleted — ever
// referenced the commitment. Used to decide deactivate-vs-delete.
func (s *TaskRecordStore) CountByCommitment(userID, commitmentID uuid.UUID) (int, error) {
	var n int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM task_records WHERE user_id = ? AND commitment_id = ?`,
		userID.String(), commitmentID.String(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

func (s *TaskRecordStore) SetCompleted(userID, id uuid.UUID, completed bool) error {
	_, err := s.db.Exec(
		`UPDATE task_records SET is_completed = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		completed, id.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("set completed: %w", err)
	}
	return nil
}

// Detach permanently decouples the record's occurrence from its template.
func (s *TaskRecordStore) Detach(userID, id uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE task_records SET is_detached = 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		id.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("detach record: %w", err)
	}
	return nil
}

// SetCommitment re-points an independent record at a template, used when
// converting a one-off task into a recurring commitment.
func (s *TaskRecordStore) SetCommitment(userID, id, commitmentID uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE task_records SET commitment_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		commitmentID.String(), id.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("set record commitment: %w", err)
	}
	return nil
}

// Update replaces an independent record's editable fields.
func (s *TaskRecordStore) Update(userID, id uuid.UUID, title string, date string, startTime, endTime *string) (*model.TaskRecord, error) {
	_, err := s.db.Exec(
		`UPDATE task_records SET title = ?, date = ?, start_time = ?, end_time = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		title, date, nullString(startTime), nullString(endTime),
		id.String(), userID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("update task record: %w", err)
	}
	return s.GetByID(userID, id)
}

func (s *TaskRecordStore) SoftDelete(userID, id uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE task_records SET deleted_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND user_id = ?`,
		time.Now().UTC(), id.String(), userID.String(),
	)
	if err != nil {
		return fmt.Errorf("soft delete record: %w", err)
	}
	return nil
}

// SoftDeleteByCommitment soft-deletes every live record of a commitment,
// used when the template itself is removed.
func (s *TaskRecordStore) SoftDeleteByCommitment(userID, commitmentID uuid.UUID) error {
	_, err := s.db.Exec(
		`UPDATE task_records SET deleted_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND commitment_id = ? AND deleted_at IS NULL`,
		time.Now().UTC(), userID.String(), commitmentID.String(),
	)
	if err != nil {
		return fmt.Errorf("soft delete by commitment: %w", err)
	}
	return nil
}

// PurgeDeletedBefore hard-deletes records soft-deleted before the cutoff.
// Runs from the retention sweep.
func (s *TaskRecordStore) PurgeDeletedBefore(cutoff time.Time) (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM task_records WHERE deleted_at IS NOT NULL AND deleted_at < ?`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("purge records: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// CompletionTimesByGoal returns the dates of completed occurrences for
// every commitment linked to the goal, for execution-state classification.
func (s *TaskRecordStore) CompletionTimesByGoal(userID, goalID uuid.UUID) ([]time.Time, error) {
	rows, err := s.db.Query(
		`SELECT tr.date FROM task_records tr
		JOIN commitments c ON c.id = tr.commitment_id
		WHERE tr.user_id = ? AND c.goal_id = ? AND tr.is_completed = 1 AND tr.deleted_at IS NULL`,
		userID.String(), goalID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("completion times by goal: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan completion date: %w", err)
		}
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// CompletionTimesByCommitment returns the dates of one commitment's
// completed occurrences, for streak computation.
func (s *TaskRecordStore) CompletionTimesByCommitment(userID, commitmentID uuid.UUID) ([]time.Time, error) {
	rows, err := s.db.Query(
		`SELECT date FROM task_records
		WHERE user_id = ? AND commitment_id = ? AND is_completed = 1 AND deleted_at IS NULL`,
		userID.String(), commitmentID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("completion times by commitment: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, fmt.Errorf("scan completion date: %w", err)
		}
		t, err := time.Parse("2006-01-02", date)
		if err != nil {
			continue
		}
		times = append(times, t)
	}
	return times, rows.Err()
}

// --- Instance-completion flags for independent tasks ---

func (s *TaskRecordStore) SetInstanceCompleted(userID, recordID uuid.UUID) error {
	_, err := s.db.Exec(
		`INSERT INTO task_completions (id, user_id, task_record_id) VALUES (?, ?, ?)
		ON CONFLICT (task_record_id) DO NOTHING`,
		uuid.New().String(), userID.String(), recordID.String(),
	)
	if err != nil {
		return fmt.Errorf("set instance completed: %w", err)
	}
	return nil
}

func (s *TaskRecordStore) ClearInstanceCompleted(userID, recordID uuid.UUID) error {
	_, err := s.db.Exec(
		`DELETE FROM task_completions WHERE user_id = ? AND task_record_id = ?`,
		userID.String(), recordID.String(),
	)
	if err != nil {
		return fmt.Errorf("clear instance completed: %w", err)
	}
	return nil
}

// ListInstanceCompletions returns the completion flags for independent
// tasks dated within the inclusive range.
func (s *TaskRecordStore) ListInstanceCompletions(userID uuid.UUID, startDate, endDate string) ([]model.TaskCompletion, error) {
	rows, err := s.db.Query(
		`SELECT tc.id, tc.user_id, tc.task_record_id, tc.completed_at
		FROM task_completions tc
		JOIN task_records tr ON tr.id = tc.task_record_id
		WHERE tc.user_id = ? AND tr.date >= ? AND tr.date <= ?`,
		userID.String(), startDate, endDate,
	)
	if err != nil {
		return nil, fmt.Errorf("list instance completions: %w", err)
	}
	defer rows.Close()

	var completions []model.TaskCompletion
	for rows.Next() {
		var c model.TaskCompletion
		var id, uid, rid string
		if err := rows.Scan(&id, &uid, &rid, &c.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan instance completion: %w", err)
		}
		if c.ID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse completion id: %w", err)
		}
		if c.UserID, err = uuid.Parse(uid); err != nil {
			return nil, fmt.Errorf("parse user id: %w", err)
		}
		if c.TaskRecordID, err = uuid.Parse(rid); err != nil {
			return nil, fmt.Errorf("parse record id: %w", err)
		}
		completions = append(completions, c)
	}
	return completions, rows.Err()
}
