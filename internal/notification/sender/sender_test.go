package sender

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharif418/edupro-notify/internal/notification/domain"
)

type stubSender struct {
	channel domain.Channel
}

func (s *stubSender) Channel() domain.Channel { return s.channel }

func (s *stubSender) Deliver(context.Context, *domain.Job) Result { return Succeeded() }

func TestRegistry(t *testing.T) {
	email := &stubSender{channel: domain.ChannelEmail}
	push := &stubSender{channel: domain.ChannelPush}
	reg := NewRegistry(email, push)

	got, ok := reg.For(domain.ChannelEmail)
	assert.True(t, ok)
	assert.Same(t, Sender(email), got)

	_, ok = reg.For(domain.ChannelSMS)
	assert.False(t, ok, "unregistered channels must not resolve")

	assert.ElementsMatch(t, []domain.Channel{domain.ChannelEmail, domain.ChannelPush}, reg.Channels())
}

func TestResultHelpers(t *testing.T) {
	ok := Succeeded()
	assert.True(t, ok.Success)
	assert.Empty(t, ok.Error)

	transient := Failed(errors.New("timeout"))
	assert.False(t, transient.Success)
	assert.Equal(t, "timeout", transient.Error)
	assert.False(t, transient.Permanent)

	permanent := FailedPermanently(errors.New("unknown recipient"))
	assert.False(t, permanent.Success)
	assert.True(t, permanent.Permanent)
}

func TestNewEmailSenderValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewEmailSender(&EmailConfig{From: "noreply@school.edu"}, logger)
	assert.Error(t, err, "SMTP host is required")

	_, err = NewEmailSender(&EmailConfig{Host: "smtp.school.edu"}, logger)
	assert.Error(t, err, "sender address is required")

	snd, err := NewEmailSender(&EmailConfig{
		Host: "smtp.school.edu",
		Port: 587,
		From: "noreply@school.edu",
	}, logger)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelEmail, snd.Channel())
}

func TestNewPushSenderValidation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, err := NewPushSender(&PushConfig{VAPIDPublicKey: "pub"}, logger)
	assert.Error(t, err, "both VAPID keys are required")

	snd, err := NewPushSender(&PushConfig{
		VAPIDPublicKey:  "pub",
		VAPIDPrivateKey: "priv",
		Subscriber:      "mailto:admin@school.edu",
	}, logger)
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelPush, snd.Channel())
}

func TestPushSender_MissingSubscriptionIsPermanent(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	snd, err := NewPushSender(&PushConfig{
		VAPIDPublicKey:  "pub",
		VAPIDPrivateKey: "priv",
	}, logger)
	require.NoError(t, err)

	job := &domain.Job{
		ID:      "job-1",
		Channel: domain.ChannelPush,
		Subject: "Class cancelled",
		Content: "Period 3 is cancelled today.",
	}

	result := snd.Deliver(context.Background(), job)
	assert.False(t, result.Success)
	assert.True(t, result.Permanent, "a job without a push subscription can never deliver")
}
