package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventLoginSuccess        ActivityEventType = "identity.login.success"
	ActivityEventLoginFailure        ActivityEventType = "identity.login.failure"
	ActivityEventLoginTokenRedeemed  ActivityEventType = "identity.login_token.redeemed"
	ActivityEventRefresh             ActivityEventType = "identity.session.refreshed"
	ActivityEventLogout              ActivityEventType = "identity.session.logout"
	ActivityEventContextChanged      ActivityEventType = "identity.session.context_changed"
	ActivityEventImpersonationStart  ActivityEventType = "identity.impersonation.start"
	ActivityEventImpersonationEnd    ActivityEventType = "identity.impersonation.end"
	ActivityEventImpersonationDenied ActivityEventType = "identity.impersonation.denied"
	ActivityEventPinIssued           ActivityEventType = "identity.pin.issued"
	ActivityEventPinValidated        ActivityEventType = "identity.pin.validated"
	ActivityEventPinFailed           ActivityEventType = "identity.pin.failed"
	ActivityEventContactConfirmed    ActivityEventType = "identity.contact.confirmed"
	ActivityEventPasswordChanged     ActivityEventType = "identity.password.changed"
	ActivityEventPasswordResetIssued ActivityEventType = "identity.password.reset_requested"
	ActivityEventPermissionsChanged  ActivityEventType = "identity.permissions.changed"
	ActivityEventUserRegistered      ActivityEventType = "identity.user.registered"
)

// Metadata keys shared by engine events and their consumers.
const (
	MetadataTokenKind      = "token_kind"
	MetadataIdentifierKind = "identifier_kind"
	MetadataChannel        = "channel"
	MetadataReason         = "reason"
	MetadataMethod         = "method"
)

// ActorRef identifies who or what triggered an event.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action. When a
// session is impersonating, UserID is the impersonated user and Actor is the
// root user.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	FromState  SessionState
	ToState    SessionState
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// MultiActivitySink fans an event out to every sink, returning the first
// error after all of them ran.
type MultiActivitySink []ActivitySink

func (m MultiActivitySink) Record(ctx context.Context, event ActivityEvent) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Record(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

func actorFromUser(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{ID: user.ID.String(), Type: "user"}
}

// actorFromClaims attributes an action to the root user when impersonating.
func actorFromClaims(claims *Claims) ActorRef {
	if claims == nil {
		return ActorRef{Type: "unknown"}
	}
	if claims.Switched() {
		return ActorRef{ID: claims.RootUserID, Type: "user"}
	}
	return ActorRef{ID: claims.RegisteredClaims.Subject, Type: "user"}
}
