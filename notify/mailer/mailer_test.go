package mailer_test

import (
	"bytes"
	"context"
	"testing"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/notify/mailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type captureSender struct {
	sent []*gomail.Message
}

func (c *captureSender) DialAndSend(m ...*gomail.Message) error {
	c.sent = append(c.sent, m...)
	return nil
}

func newTestMailer(t *testing.T) (*mailer.Mailer, *captureSender) {
	t.Helper()
	m, err := mailer.New(mailer.Config{
		Host:    "smtp.example.com",
		Port:    587,
		From:    "no-reply@example.com",
		BaseURL: "https://app.example.com/",
	})
	require.NoError(t, err)

	sender := &captureSender{}
	return m.WithSender(sender), sender
}

func TestSendConfirmation(t *testing.T) {
	m, sender := newTestMailer(t)

	err := m.SendConfirmation(context.Background(), identity.ConfirmationNotice{
		Token:   "tok-123",
		Pin:     "482910",
		Channel: identity.ChannelEmail,
		Address: "new@example.com",
	})
	require.NoError(t, err)
	require.Len(t, sender.sent, 1)

	msg := sender.sent[0]
	assert.Equal(t, []string{"new@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"no-reply@example.com"}, msg.GetHeader("From"))

	var buf bytes.Buffer
	_, err = msg.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "482910")
	assert.Contains(t, buf.String(), "https://app.example.com/login/tok-123")
}

func TestSendConfirmationRejectsMobile(t *testing.T) {
	m, sender := newTestMailer(t)

	err := m.SendConfirmation(context.Background(), identity.ConfirmationNotice{
		Channel: identity.ChannelMobile,
		Address: "15550100",
	})
	assert.True(t, identity.IsKind(err, identity.TextCodeUnsupportedChannel))
	assert.Empty(t, sender.sent)
}

func TestSendPasswordResetRequiresRecipient(t *testing.T) {
	m, sender := newTestMailer(t)

	err := m.SendPasswordReset(context.Background(), identity.PasswordResetNotice{Pin: "111111"})
	require.Error(t, err)
	assert.Empty(t, sender.sent)
}

func TestConfigValidate(t *testing.T) {
	_, err := mailer.New(mailer.Config{Host: "smtp.example.com"})
	require.Error(t, err)
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv("SMTP_HOST", "mail.internal")
	t.Setenv("SMTP_FROM", "ops@example.com")

	cfg, err := mailer.ConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "mail.internal", cfg.Host)
	assert.Equal(t, 587, cfg.Port)
	assert.NoError(t, cfg.Validate())
}
