// Package activitymap turns engine activity events into flat audit entries
// that name both sides of an impersonated action.
package activitymap

import (
	"strings"
	"time"

	identity "github.com/goliatone/go-identity"
)

const (
	defaultSource      = "identity"
	defaultSystemActor = "system"
)

// Transition is the session state change an event caused.
type Transition struct {
	From identity.SessionState `json:"from,omitempty"`
	To   identity.SessionState `json:"to,omitempty"`
}

// Entry is the published shape of an activity event.
//
// RootUserID is who acted. ActiveUserID is whose identity the action ran
// under. They differ only while impersonating, which Impersonated reports.
type Entry struct {
	Event          string                  `json:"event"`
	Source         string                  `json:"source"`
	RootUserID     string                  `json:"root_user_id"`
	ActiveUserID   string                  `json:"active_user_id,omitempty"`
	ActorKind      string                  `json:"actor_kind,omitempty"`
	Impersonated   bool                    `json:"impersonated"`
	TokenKind      identity.TokenKind      `json:"token_kind,omitempty"`
	IdentifierKind identity.IdentifierKind `json:"identifier_kind,omitempty"`
	Channel        identity.Channel        `json:"channel,omitempty"`
	Transition     *Transition             `json:"transition,omitempty"`
	Attributes     map[string]any          `json:"attributes,omitempty"`
	OccurredAt     time.Time               `json:"occurred_at"`
}

// Option customizes Map.
type Option func(*options)

type options struct {
	source      string
	systemActor string
	now         func() time.Time
}

// WithSource sets the Source of every entry.
func WithSource(source string) Option {
	return func(o *options) {
		if source = strings.TrimSpace(source); source != "" {
			o.source = source
		}
	}
}

// WithSystemActor names the actor recorded when an event has none, such as
// a permission change made by an operator tool.
func WithSystemActor(id string) Option {
	return func(o *options) {
		if id = strings.TrimSpace(id); id != "" {
			o.systemActor = id
		}
	}
}

// WithClock sets the time used for events that carry no timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// Map converts event into an Entry. Well known metadata keys are lifted into
// typed fields and the rest is kept in Attributes. event is not modified.
func Map(event identity.ActivityEvent, opts ...Option) Entry {
	o := options{
		source:      defaultSource,
		systemActor: defaultSystemActor,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}

	entry := Entry{
		Event:        string(event.EventType),
		Source:       o.source,
		RootUserID:   strings.TrimSpace(event.Actor.ID),
		ActiveUserID: strings.TrimSpace(event.UserID),
		ActorKind:    strings.TrimSpace(event.Actor.Type),
		OccurredAt:   event.OccurredAt,
	}

	if entry.RootUserID == "" {
		if entry.ActorKind == "user" || entry.ActorKind == "" {
			entry.RootUserID = entry.ActiveUserID
		}
		if entry.RootUserID == "" {
			entry.RootUserID = o.systemActor
		}
	}
	entry.Impersonated = impersonated(event, entry)

	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = o.now().UTC()
	}

	if event.FromState != "" || event.ToState != "" {
		entry.Transition = &Transition{From: event.FromState, To: event.ToState}
	}

	for key, value := range event.Metadata {
		text, _ := value.(string)
		switch key {
		case identity.MetadataTokenKind:
			entry.TokenKind = identity.TokenKind(text)
		case identity.MetadataIdentifierKind:
			entry.IdentifierKind = identity.IdentifierKind(text)
		case identity.MetadataChannel:
			entry.Channel = identity.Channel(text)
		default:
			if entry.Attributes == nil {
				entry.Attributes = make(map[string]any, len(event.Metadata))
			}
			entry.Attributes[key] = value
		}
	}

	return entry
}

// impersonated reports whether a user acted under another user's identity.
// A denied switch never ran under the target identity.
func impersonated(event identity.ActivityEvent, entry Entry) bool {
	if event.EventType == identity.ActivityEventImpersonationDenied {
		return false
	}
	if entry.ActorKind != "user" || entry.ActiveUserID == "" {
		return false
	}
	return entry.RootUserID != entry.ActiveUserID
}
