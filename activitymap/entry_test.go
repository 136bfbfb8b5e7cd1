package activitymap_test

import (
	"encoding/json"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapImpersonatedRefresh(t *testing.T) {
	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := identity.ActivityEvent{
		EventType: identity.ActivityEventRefresh,
		Actor:     identity.ActorRef{ID: "admin-42", Type: "user"},
		UserID:    "user-100",
		FromState: identity.StateRefresh,
		ToState:   identity.StateSwitched,
		Metadata: map[string]any{
			identity.MetadataTokenKind: string(identity.TokenRefresh),
			"ticket":                   "SEC-204",
		},
		OccurredAt: ts,
	}

	entry := activitymap.Map(event)

	assert.Equal(t, string(identity.ActivityEventRefresh), entry.Event)
	assert.Equal(t, "identity", entry.Source)
	assert.Equal(t, "admin-42", entry.RootUserID)
	assert.Equal(t, "user-100", entry.ActiveUserID)
	assert.True(t, entry.Impersonated)
	assert.Equal(t, identity.TokenRefresh, entry.TokenKind)
	require.NotNil(t, entry.Transition)
	assert.Equal(t, identity.StateRefresh, entry.Transition.From)
	assert.Equal(t, identity.StateSwitched, entry.Transition.To)
	assert.Equal(t, map[string]any{"ticket": "SEC-204"}, entry.Attributes)
	assert.True(t, entry.OccurredAt.Equal(ts))

	assert.Len(t, event.Metadata, 2, "source metadata is not modified")
}

func TestMapLoginLiftsIdentifierKind(t *testing.T) {
	entry := activitymap.Map(identity.ActivityEvent{
		EventType: identity.ActivityEventLoginSuccess,
		Actor:     identity.ActorRef{ID: "user-1", Type: "user"},
		UserID:    "user-1",
		Metadata: map[string]any{
			identity.MetadataIdentifierKind: string(identity.IdentifierEmail),
			identity.MetadataMethod:         "pin",
		},
	})

	assert.False(t, entry.Impersonated)
	assert.Equal(t, "user-1", entry.RootUserID)
	assert.Equal(t, identity.IdentifierEmail, entry.IdentifierKind)
	assert.Empty(t, entry.TokenKind)
	assert.Nil(t, entry.Transition)
	assert.Equal(t, "pin", entry.Attributes[identity.MetadataMethod])
	assert.False(t, entry.OccurredAt.IsZero())
}

func TestMapAttribution(t *testing.T) {
	tests := []struct {
		name         string
		event        identity.ActivityEvent
		opts         []activitymap.Option
		root         string
		impersonated bool
	}{
		{
			name:  "user acting as themselves",
			event: identity.ActivityEvent{Actor: identity.ActorRef{ID: "u-1", Type: "user"}, UserID: "u-1"},
			root:  "u-1",
		},
		{
			name:         "root user acting as another",
			event:        identity.ActivityEvent{Actor: identity.ActorRef{ID: "root", Type: "user"}, UserID: "u-2"},
			root:         "root",
			impersonated: true,
		},
		{
			name: "denied switch",
			event: identity.ActivityEvent{
				EventType: identity.ActivityEventImpersonationDenied,
				Actor:     identity.ActorRef{ID: "root", Type: "user"},
				UserID:    "u-2",
			},
			root: "root",
		},
		{
			name:  "system change",
			event: identity.ActivityEvent{Actor: identity.ActorRef{Type: "system"}, UserID: "u-3"},
			root:  "system",
		},
		{
			name:  "configured system actor",
			event: identity.ActivityEvent{Actor: identity.ActorRef{Type: "system"}, UserID: "u-3"},
			opts:  []activitymap.Option{activitymap.WithSystemActor("identityctl")},
			root:  "identityctl",
		},
		{
			name:  "failed login without a user",
			event: identity.ActivityEvent{Actor: identity.ActorRef{Type: "unknown"}},
			root:  "system",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := activitymap.Map(tt.event, tt.opts...)
			assert.Equal(t, tt.root, entry.RootUserID)
			assert.Equal(t, tt.impersonated, entry.Impersonated)
		})
	}
}

func TestMapOptions(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entry := activitymap.Map(identity.ActivityEvent{
		EventType: identity.ActivityEventPinIssued,
		Actor:     identity.ActorRef{ID: "u-1", Type: "user"},
		UserID:    "u-1",
		Metadata:  map[string]any{identity.MetadataChannel: string(identity.ChannelMobile)},
	},
		activitymap.WithSource("security"),
		activitymap.WithClock(func() time.Time { return fixed }),
	)

	assert.Equal(t, "security", entry.Source)
	assert.Equal(t, identity.ChannelMobile, entry.Channel)
	assert.Nil(t, entry.Attributes)
	assert.True(t, entry.OccurredAt.Equal(fixed))

	raw, err := json.Marshal(entry)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"channel":"mobile"`)
	assert.Contains(t, string(raw), `"impersonated":false`)
}
