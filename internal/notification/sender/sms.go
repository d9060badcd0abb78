package sender

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/twilio/twilio-go"
	twilioapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/sharif418/edupro-notify/internal/notification/domain"
)

// SMSConfig holds SMS gateway credentials
type SMSConfig struct {
	AccountSID string
	AuthToken  string
	From       string
}

// SMSSender delivers SMS jobs through the Twilio gateway.
type SMSSender struct {
	client *twilio.RestClient
	from   string
	logger *slog.Logger
}

// NewSMSSender creates a Twilio-backed SMS sender
func NewSMSSender(cfg *SMSConfig, logger *slog.Logger) (*SMSSender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("sms gateway credentials are required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("sms from number is required")
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})

	return &SMSSender{
		client: client,
		from:   cfg.From,
		logger: logger,
	}, nil
}

// Channel implements Sender
func (s *SMSSender) Channel() domain.Channel {
	return domain.ChannelSMS
}

// Deliver sends the job content as a text message; the recipient is an
// E.164 phone number.
func (s *SMSSender) Deliver(ctx context.Context, job *domain.Job) Result {
	params := &twilioapi.CreateMessageParams{}
	params.SetTo(job.Recipient)
	params.SetFrom(s.from)
	params.SetBody(job.Content)

	// The Twilio client has no context support; run the call aside so the
	// worker's per-job timeout still applies.
	errChan := make(chan error, 1)
	go func() {
		_, err := s.client.Api.CreateMessage(params)
		errChan <- err
	}()

	select {
	case <-ctx.Done():
		return Failed(fmt.Errorf("sms send aborted: %w", ctx.Err()))
	case err := <-errChan:
		if err != nil {
			return Failed(fmt.Errorf("sms send failed: %w", err))
		}
	}

	s.logger.Debug("SMS delivered",
		slog.String("job_id", job.ID),
		slog.String("recipient", job.Recipient),
	)
	return Succeeded()
}
