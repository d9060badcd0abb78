package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/sharif418/edupro-notify/internal/notification/domain"
)

// PushConfig holds web-push VAPID settings
type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	// Subscriber is the contact address announced to push services,
	// usually a mailto: URL.
	Subscriber string
	TTL        int
}

// PushSender delivers PUSH jobs to a browser push subscription carried in
// the job payload.
type PushSender struct {
	config *PushConfig
	logger *slog.Logger
}

// pushMessage is the JSON body handed to the service worker on the client.
type pushMessage struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

// NewPushSender creates a web-push sender
func NewPushSender(cfg *PushConfig, logger *slog.Logger) (*PushSender, error) {
	if cfg.VAPIDPublicKey == "" || cfg.VAPIDPrivateKey == "" {
		return nil, fmt.Errorf("vapid keys are required")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 60
	}

	return &PushSender{
		config: cfg,
		logger: logger,
	}, nil
}

// Channel implements Sender
func (s *PushSender) Channel() domain.Channel {
	return domain.ChannelPush
}

// Deliver encrypts and posts the message to the subscription endpoint.
// A missing or incomplete subscription is a permanent failure, as is a
// subscription the push service reports gone.
func (s *PushSender) Deliver(ctx context.Context, job *domain.Job) Result {
	if err := job.Payload.Validate(domain.ChannelPush); err != nil {
		return FailedPermanently(err)
	}

	message, err := json.Marshal(pushMessage{
		Title: job.Subject,
		Body:  job.Content,
		Data:  job.Payload.Meta,
	})
	if err != nil {
		return FailedPermanently(fmt.Errorf("failed to encode push message: %w", err))
	}

	sub := job.Payload.Push.Subscription
	resp, err := webpush.SendNotificationWithContext(ctx, message, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.config.Subscriber,
		VAPIDPublicKey:  s.config.VAPIDPublicKey,
		VAPIDPrivateKey: s.config.VAPIDPrivateKey,
		TTL:             s.config.TTL,
	})
	if err != nil {
		return Failed(fmt.Errorf("push send failed: %w", err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// Subscription no longer exists; retrying cannot succeed.
		return FailedPermanently(fmt.Errorf("push subscription gone (status %d)", resp.StatusCode))
	case resp.StatusCode >= http.StatusBadRequest:
		return Failed(fmt.Errorf("push service returned status %d", resp.StatusCode))
	}

	s.logger.Debug("Push delivered",
		slog.String("job_id", job.ID),
		slog.Int("status", resp.StatusCode),
	)
	return Succeeded()
}
