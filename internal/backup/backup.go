package backup

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/store"
)

// s3Client is an interface for testability.
type s3Client interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, input *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, input *s3.DeleteObjectInput, opts ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Config holds S3-compatible storage configuration.
type S3Config struct {
	Endpoint  string
	Bucket    string
	Region    string
	AccessKey string
	SecretKey string
}

// Config holds backup manager configuration. Passphrase comes from the
// environment at startup; there is no way to recover an encrypted
// backup without it.
type Config struct {
	S3            S3Config
	DBPath        string
	Passphrase    string
	ScheduleHour  int
	RetentionDays int
}

// Manager produces encrypted database snapshots and uploads them to
// S3-compatible storage on a daily schedule.
type Manager struct {
	mu     sync.Mutex
	cfg    Config
	db     *sql.DB
	store  *store.BackupStore
	client s3Client
	log    *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager creates a backup manager. It is disabled (Enabled returns
// false) unless S3 credentials and a passphrase are configured.
func NewManager(cfg Config, db *sql.DB, bs *store.BackupStore, log *slog.Logger) *Manager {
	m := &Manager{
		cfg:   cfg,
		db:    db,
		store: bs,
		log:   log,
	}
	if cfg.S3.Bucket != "" && cfg.S3.AccessKey != "" && cfg.S3.SecretKey != "" && cfg.Passphrase != "" {
		m.client = newS3Client(cfg.S3)
	}
	return m
}

func newS3Client(cfg S3Config) *s3.Client {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		UsePathStyle: true,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	return s3.New(opts)
}

// Enabled reports whether backups are configured.
func (m *Manager) Enabled() bool {
	return m.client != nil
}

// Start begins the scheduled backup loop. Backups run once a day at the
// configured hour, for the given owner.
func (m *Manager) Start(ctx context.Context, ownerID uuid.UUID) {
	if !m.Enabled() {
		return
	}

	m.mu.Lock()
	ctx, m.cancel = context.WithCancel(ctx)
	m.done = make(chan struct{})
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now().UTC()
				if now.Hour() != m.cfg.ScheduleHour || now.Minute() != 0 {
					continue
				}
				if _, err := m.RunNow(ctx, ownerID); err != nil {
					m.log.Error("scheduled backup failed", "error", err)
				}
				if err := m.Cleanup(ctx, ownerID); err != nil {
					m.log.Error("backup cleanup failed", "error", err)
				}
			}
		}
	}()
}

// Stop gracefully stops the backup loop.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// RunNow takes a snapshot, encrypts it, and uploads it. Returns the
// backup record's ID.
func (m *Manager) RunNow(ctx context.Context, ownerID uuid.UUID) (uuid.UUID, error) {
	if !m.Enabled() {
		return uuid.Nil, fmt.Errorf("backups not configured")
	}

	timestamp := time.Now().UTC().Format("2006-01-02T150405Z")
	s3Key := fmt.Sprintf("%s/backup-%s.db.enc", ownerID, timestamp)

	record, err := m.store.Create(ownerID, s3Key)
	if err != nil {
		return uuid.Nil, fmt.Errorf("create backup record: %w", err)
	}

	data, err := m.snapshot(ctx, record.ID)
	if err != nil {
		m.store.MarkFailed(record.ID, err.Error())
		return uuid.Nil, err
	}

	salt, err := GenerateSalt()
	if err != nil {
		m.store.MarkFailed(record.ID, err.Error())
		return uuid.Nil, err
	}
	encrypted, err := Encrypt(data, m.cfg.Passphrase, salt)
	if err != nil {
		m.store.MarkFailed(record.ID, err.Error())
		return uuid.Nil, fmt.Errorf("encrypt snapshot: %w", err)
	}

	if err := m.store.MarkUploading(record.ID); err != nil {
		return uuid.Nil, err
	}
	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.cfg.S3.Bucket),
		Key:           aws.String(s3Key),
		Body:          bytes.NewReader(encrypted),
		ContentLength: aws.Int64(int64(len(encrypted))),
	})
	if err != nil {
		m.store.MarkFailed(record.ID, err.Error())
		return uuid.Nil, fmt.Errorf("upload to s3: %w", err)
	}

	if err := m.store.MarkCompleted(record.ID, int64(len(encrypted))); err != nil {
		return uuid.Nil, err
	}
	m.log.Info("backup completed", "backup_id", record.ID, "size_bytes", len(encrypted))
	return record.ID, nil
}

// snapshot writes a consistent copy of the database via VACUUM INTO and
// returns its bytes. The temp file is always removed.
func (m *Manager) snapshot(ctx context.Context, backupID uuid.UUID) ([]byte, error) {
	path := filepath.Join(os.TempDir(), fmt.Sprintf("trellis-backup-%s.db", backupID))
	defer os.Remove(path)

	if _, err := m.db.ExecContext(ctx, "VACUUM INTO ?", path); err != nil {
		return nil, fmt.Errorf("vacuum into: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return data, nil
}

// Download streams an encrypted backup from S3.
func (m *Manager) Download(ctx context.Context, backupID uuid.UUID) (io.ReadCloser, int64, error) {
	if !m.Enabled() {
		return nil, 0, fmt.Errorf("backups not configured")
	}

	record, err := m.store.GetByID(backupID)
	if err != nil {
		return nil, 0, fmt.Errorf("get backup: %w", err)
	}
	if record == nil {
		return nil, 0, fmt.Errorf("backup not found")
	}

	result, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.cfg.S3.Bucket),
		Key:    aws.String(record.S3Key),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("download from s3: %w", err)
	}
	return result.Body, record.SizeBytes, nil
}

// Restore downloads a backup, decrypts it, verifies SQLite integrity,
// replaces the database file, and exits so the supervisor restarts the
// process on the restored data.
func (m *Manager) Restore(ctx context.Context, backupID uuid.UUID) error {
	if !m.Enabled() {
		return fmt.Errorf("backups not configured")
	}

	body, _, err := m.Download(ctx, backupID)
	if err != nil {
		return err
	}
	defer body.Close()

	encrypted, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read backup: %w", err)
	}
	plaintext, err := Decrypt(encrypted, m.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("decrypt backup: %w", err)
	}

	decFile := filepath.Join(os.TempDir(), fmt.Sprintf("trellis-restore-%s.db", backupID))
	defer os.Remove(decFile)
	if err := os.WriteFile(decFile, plaintext, 0600); err != nil {
		return fmt.Errorf("write restored db: %w", err)
	}

	tmpDB, err := sql.Open("sqlite", decFile)
	if err != nil {
		return fmt.Errorf("open restored db: %w", err)
	}
	var integrity string
	if err := tmpDB.QueryRow("PRAGMA integrity_check").Scan(&integrity); err != nil {
		tmpDB.Close()
		return fmt.Errorf("integrity check: %w", err)
	}
	tmpDB.Close()
	if integrity != "ok" {
		return fmt.Errorf("integrity check failed: %s", integrity)
	}

	if err := os.WriteFile(m.cfg.DBPath, plaintext, 0600); err != nil {
		return fmt.Errorf("replace database: %w", err)
	}
	os.Remove(m.cfg.DBPath + "-wal")
	os.Remove(m.cfg.DBPath + "-shm")

	m.log.Info("restore complete, exiting for restart")
	os.Exit(0)
	return nil // unreachable
}

// Cleanup deletes completed backups older than the retention period,
// both the S3 objects and their records.
func (m *Manager) Cleanup(ctx context.Context, ownerID uuid.UUID) error {
	if !m.Enabled() {
		return nil
	}
	retention := m.cfg.RetentionDays
	if retention <= 0 {
		retention = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -retention)

	backups, err := m.store.ListCompleted(ownerID)
	if err != nil {
		return fmt.Errorf("list backups: %w", err)
	}
	for _, b := range backups {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		if _, err := m.client.DeleteObject(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(m.cfg.S3.Bucket),
			Key:    aws.String(b.S3Key),
		}); err != nil {
			m.log.Error("delete s3 object", "key", b.S3Key, "error", err)
			continue
		}
		if err := m.store.Delete(b.ID); err != nil {
			m.log.Error("delete backup record", "backup_id", b.ID, "error", err)
		}
	}
	return nil
}
