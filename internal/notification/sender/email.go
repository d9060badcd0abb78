package sender

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/gomail.v2"

	"github.com/sharif418/edupro-notify/internal/notification/domain"
)

const defaultEmailSubject = "Notification"

// EmailConfig holds SMTP transport settings
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// EmailSender delivers EMAIL jobs over SMTP.
type EmailSender struct {
	dialer *gomail.Dialer
	from   string
	logger *slog.Logger
}

// NewEmailSender creates an SMTP email sender
func NewEmailSender(cfg *EmailConfig, logger *slog.Logger) (*EmailSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}

	return &EmailSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
		logger: logger,
	}, nil
}

// Channel implements Sender
func (s *EmailSender) Channel() domain.Channel {
	return domain.ChannelEmail
}

// Deliver sends the job content as an HTML email to the recipient address.
func (s *EmailSender) Deliver(ctx context.Context, job *domain.Job) Result {
	subject := job.Subject
	if subject == "" {
		subject = defaultEmailSubject
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", s.from)
	msg.SetHeader("To", job.Recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", job.Content)

	// gomail has no context support; run the send aside so the worker's
	// per-job timeout still applies.
	errChan := make(chan error, 1)
	go func() {
		errChan <- s.dialer.DialAndSend(msg)
	}()

	select {
	case <-ctx.Done():
		return Failed(fmt.Errorf("smtp send aborted: %w", ctx.Err()))
	case err := <-errChan:
		if err != nil {
			return Failed(fmt.Errorf("smtp send failed: %w", err))
		}
	}

	s.logger.Debug("Email delivered",
		slog.String("job_id", job.ID),
		slog.String("recipient", job.Recipient),
	)
	return Succeeded()
}
