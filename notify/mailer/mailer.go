// Package mailer delivers identity notices over SMTP.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"gopkg.in/gomail.v2"
)

// Config holds SMTP settings and the links embedded in messages.
type Config struct {
	Host     string `env:"SMTP_HOST" yaml:"host"`
	Port     int    `env:"SMTP_PORT" yaml:"port"`
	Username string `env:"SMTP_USERNAME" yaml:"username"`
	Password string `env:"SMTP_PASSWORD" yaml:"password"`
	From     string `env:"SMTP_FROM" yaml:"from"`
	// BaseURL prefixes the login and reset links.
	BaseURL string `env:"SMTP_LINK_BASE_URL" yaml:"base_url"`
}

// DefaultPort is the SMTP submission port.
const DefaultPort = 587

// ConfigFromEnv reads Config from SMTP_* variables.
func ConfigFromEnv() (Config, error) {
	cfg := Config{Port: DefaultPort}
	if err := env.Parse(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	missing := []string{}
	if c.Host == "" {
		missing = append(missing, "host")
	}
	if c.Port == 0 {
		missing = append(missing, "port")
	}
	if c.From == "" {
		missing = append(missing, "from")
	}
	if len(missing) > 0 {
		return goerrors.New("incomplete smtp configuration", goerrors.CategoryValidation).
			WithMetadata(map[string]any{"missing": missing})
	}
	return nil
}

// Sender sends composed messages. *gomail.Dialer implements it.
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Mailer implements identity.Notifier for the email channel. Mobile
// confirmations are rejected with identity.ErrUnsupportedChannel.
type Mailer struct {
	config Config
	sender Sender
}

var _ identity.Notifier = (*Mailer)(nil)

func New(cfg Config) (*Mailer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	return &Mailer{config: cfg, sender: dialer}, nil
}

// WithSender replaces the SMTP dialer.
func (m *Mailer) WithSender(sender Sender) *Mailer {
	if sender != nil {
		m.sender = sender
	}
	return m
}

func (m *Mailer) SendConfirmation(ctx context.Context, msg identity.ConfirmationNotice) error {
	if msg.Channel != identity.ChannelEmail {
		return identity.ErrUnsupportedChannel
	}

	body := fmt.Sprintf(
		"Your confirmation code is %s.\n\nOr confirm this address by following the link:\n%s\n",
		msg.Pin, m.link("login", msg.Token),
	)
	return m.send(ctx, msg.Address, "Confirm your email address", body)
}

func (m *Mailer) SendPasswordReset(ctx context.Context, msg identity.PasswordResetNotice) error {
	body := fmt.Sprintf(
		"A password reset was requested for your account.\n\nYour reset code is %s.\n\nOr choose a new password here:\n%s\n\nIf you did not request this you can ignore this message.\n",
		msg.Pin, m.link("password-reset", msg.Token),
	)
	return m.send(ctx, msg.Address, "Reset your password", body)
}

func (m *Mailer) send(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return goerrors.New("no recipient specified", goerrors.CategoryBadInput)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.config.From)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	if err := m.sender.DialAndSend(msg); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to send email")
	}
	return nil
}

func (m *Mailer) link(path, token string) string {
	base := strings.TrimRight(m.config.BaseURL, "/")
	return fmt.Sprintf("%s/%s/%s", base, path, token)
}
