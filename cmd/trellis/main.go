package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/fennwick/trellis/internal/backup"
	"github.com/fennwick/trellis/internal/database"
	"github.com/fennwick/trellis/internal/logging"
	"github.com/fennwick/trellis/internal/model"
	"github.com/fennwick/trellis/internal/push"
	"github.com/fennwick/trellis/internal/server"
	"github.com/fennwick/trellis/internal/store"
)

const recordRetention = 30 * 24 * time.Hour

func main() {
	port := os.Getenv("TRELLIS_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("TRELLIS_DB_PATH")
	if dbPath == "" {
		dbPath = "trellis.db"
	}

	logger := logging.Setup(os.Getenv("TRELLIS_LOG_LEVEL"))

	db, err := database.Open(dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	users := store.NewUserStore(db)
	owner, err := bootstrapUser(users)
	if err != nil {
		log.Fatalf("failed to bootstrap user: %v", err)
	}

	backupCfg := backup.Config{
		S3: backup.S3Config{
			Endpoint:  os.Getenv("TRELLIS_BACKUP_S3_ENDPOINT"),
			Bucket:    os.Getenv("TRELLIS_BACKUP_S3_BUCKET"),
			Region:    os.Getenv("TRELLIS_BACKUP_S3_REGION"),
			AccessKey: os.Getenv("TRELLIS_BACKUP_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("TRELLIS_BACKUP_S3_SECRET_KEY"),
		},
		DBPath:        dbPath,
		Passphrase:    os.Getenv("TRELLIS_BACKUP_PASSPHRASE"),
		ScheduleHour:  envInt("TRELLIS_BACKUP_HOUR", 3),
		RetentionDays: envInt("TRELLIS_BACKUP_RETENTION_DAYS", 30),
	}

	pushCfg := push.Config{
		VAPIDPublicKey:  os.Getenv("TRELLIS_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("TRELLIS_VAPID_PRIVATE_KEY"),
	}

	srv := server.New(db, backupCfg, pushCfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if sched := srv.PushScheduler(); sched != nil {
		sched.Start(ctx)
		defer sched.Stop()
	}

	srv.BackupManager().Start(ctx, owner.ID)
	defer srv.BackupManager().Stop()

	// Expired rate-limit buckets and soft-deleted task records are
	// cleaned up in the background.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		records := srv.TaskRecordStore()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
				cutoff := time.Now().UTC().Add(-recordRetention)
				if n, err := records.PurgeDeletedBefore(cutoff); err != nil {
					logger.Error("purge deleted records", "error", err)
				} else if n > 0 {
					logger.Info("purged deleted records", "count", n)
				}
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("trellis listening", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

// bootstrapUser creates the initial account on first run and prints its
// API token once. The token is never recoverable afterwards; only the
// bcrypt hash of the secret is stored.
func bootstrapUser(users *store.UserStore) (*model.User, error) {
	existing, err := users.First()
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	name := os.Getenv("TRELLIS_USER_NAME")
	if name == "" {
		name = "owner"
	}

	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	secret := hex.EncodeToString(buf)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash token secret: %w", err)
	}

	user, err := users.Create(name, string(hash))
	if err != nil {
		return nil, err
	}

	fmt.Printf("Created user %q. API token (shown once):\n  %s.%s\n", name, user.ID, secret)
	return user, nil
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
