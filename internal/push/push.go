package push

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"

	"github.com/fennwick/trellis/internal/model"
	"github.com/fennwick/trellis/internal/schedule"
)

// ErrExpired is returned when the push service reports the subscription
// gone; the caller should drop it from the store.
var ErrExpired = errors.New("push subscription expired")

// Config holds the VAPID key pair identifying this server to browser
// push services.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
}

const (
	// subscriber is the VAPID contact address sent with each push.
	subscriber = "mailto:noreply@trellis.app"
	// reminderTTL bounds how long the push service retains an
	// undelivered reminder, in seconds. One day; after that the
	// occurrence it announced has passed.
	reminderTTL = 86400
)

// Payload is the notification body the service worker displays.
type Payload struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	URL   string `json:"url,omitempty"`
	Tag   string `json:"tag,omitempty"`
}

// NewReminder builds the notification for an occurrence about to start.
// The tag names the occurrence uniquely within the user's day: it is
// the scheduler's dedupe key, and the browser collapses repeats that
// slip through anyway.
func NewReminder(userID uuid.UUID, occ schedule.Occurrence) Payload {
	body := occ.Title
	if occ.StartTime != nil {
		body = fmt.Sprintf("%s at %s", occ.Title, *occ.StartTime)
	}
	return Payload{
		Title: "Upcoming task",
		Body:  body,
		URL:   "/planner",
		Tag:   reminderTag(userID, occ),
	}
}

func reminderTag(userID uuid.UUID, occ schedule.Occurrence) string {
	if occ.CommitmentID != nil {
		return fmt.Sprintf("%s-%s-%s-%d", userID, occ.CommitmentID, occ.Date, occ.Instance)
	}
	if occ.TaskRecordID != nil {
		return fmt.Sprintf("%s-%s", userID, occ.TaskRecordID)
	}
	return fmt.Sprintf("%s-%s-%d", userID, occ.Date, occ.Instance)
}

// Service sends web push notifications signed with the server's VAPID
// keys.
type Service struct {
	cfg Config
}

func NewService(cfg Config) *Service {
	return &Service{cfg: cfg}
}

// VAPIDPublicKey returns the public key clients need to subscribe.
func (s *Service) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

// Send delivers one payload to one subscription.
func (s *Service) Send(sub *model.PushSubscription, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotification(body, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dhKey, Auth: sub.AuthKey},
	}, &webpush.Options{
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		Subscriber:      subscriber,
		TTL:             reminderTTL,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		return ErrExpired
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys produces a fresh P-256 pair in the base64url form
// the browser Push API expects. Run once at deployment; the keys go
// into TRELLIS_VAPID_PUBLIC_KEY / TRELLIS_VAPID_PRIVATE_KEY.
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate ECDSA key: %w", err)
	}

	point := elliptic.Marshal(elliptic.P256(), key.PublicKey.X, key.PublicKey.Y)
	return base64.RawURLEncoding.EncodeToString(point),
		base64.RawURLEncoding.EncodeToString(key.D.Bytes()),
		nil
}
