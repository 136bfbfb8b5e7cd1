// Package natsbus publishes identity activity and delivery notices to NATS
// subjects, so auditing and SMS or mail workers can run out of process.
package natsbus

import (
	"context"
	"encoding/json"
	"strings"

	goerrors "github.com/goliatone/go-errors"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
	"github.com/nats-io/nats.go"
)

const (
	DefaultActivitySubject      = "identity.activity"
	DefaultConfirmationSubject  = "identity.notify.confirmation"
	DefaultPasswordResetSubject = "identity.notify.password_reset"
)

// Publisher is the part of *nats.Conn the bus uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Connect dials url with a client name and reconnect handling.
func Connect(url, name string) (*nats.Conn, error) {
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "nats connect failed")
	}
	return conn, nil
}

// Bus implements identity.ActivitySink and identity.Notifier.
type Bus struct {
	conn                 Publisher
	activitySubject      string
	confirmationSubject  string
	passwordResetSubject string
	entryOptions         []activitymap.Option
}

var (
	_ identity.ActivitySink = (*Bus)(nil)
	_ identity.Notifier     = (*Bus)(nil)
)

func New(conn Publisher) *Bus {
	return &Bus{
		conn:                 conn,
		activitySubject:      DefaultActivitySubject,
		confirmationSubject:  DefaultConfirmationSubject,
		passwordResetSubject: DefaultPasswordResetSubject,
	}
}

// WithActivitySubject sets the subject prefix activity is published under.
// The event verb is appended, so subscribers can filter with wildcards.
func (b *Bus) WithActivitySubject(subject string) *Bus {
	if subject != "" {
		b.activitySubject = subject
	}
	return b
}

func (b *Bus) WithNotifySubjects(confirmation, passwordReset string) *Bus {
	if confirmation != "" {
		b.confirmationSubject = confirmation
	}
	if passwordReset != "" {
		b.passwordResetSubject = passwordReset
	}
	return b
}

// WithEntryOptions customizes the activity entries Record publishes.
func (b *Bus) WithEntryOptions(opts ...activitymap.Option) *Bus {
	b.entryOptions = append(b.entryOptions, opts...)
	return b
}

// Record publishes the event as an activitymap.Entry.
func (b *Bus) Record(_ context.Context, event identity.ActivityEvent) error {
	return b.publish(b.ActivitySubject(event.EventType), activitymap.Map(event, b.entryOptions...))
}

// ActivitySubject returns the subject an event type is published on.
func (b *Bus) ActivitySubject(eventType identity.ActivityEventType) string {
	verb := strings.TrimPrefix(string(eventType), "identity.")
	return b.activitySubject + "." + verb
}

// ConfirmationMessage is the payload published for a confirmation notice.
type ConfirmationMessage struct {
	UserID  string `json:"user_id"`
	Channel string `json:"channel"`
	Address string `json:"address"`
	Token   string `json:"token"`
	Pin     string `json:"pin"`
}

// PasswordResetMessage is the payload published for a password reset notice.
type PasswordResetMessage struct {
	UserID  string `json:"user_id"`
	Address string `json:"address"`
	Token   string `json:"token"`
	Pin     string `json:"pin"`
}

func (b *Bus) SendConfirmation(_ context.Context, msg identity.ConfirmationNotice) error {
	return b.publish(b.confirmationSubject, ConfirmationMessage{
		UserID:  userID(msg.User),
		Channel: string(msg.Channel),
		Address: msg.Address,
		Token:   msg.Token,
		Pin:     msg.Pin,
	})
}

func (b *Bus) SendPasswordReset(_ context.Context, msg identity.PasswordResetNotice) error {
	return b.publish(b.passwordResetSubject, PasswordResetMessage{
		UserID:  userID(msg.User),
		Address: msg.Address,
		Token:   msg.Token,
		Pin:     msg.Pin,
	})
}

func (b *Bus) publish(subject string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode nats payload")
	}
	if err := b.conn.Publish(subject, data); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to publish to "+subject)
	}
	return nil
}

func userID(user *identity.User) string {
	if user == nil {
		return ""
	}
	return user.ID.String()
}
