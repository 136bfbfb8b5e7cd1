package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/permissions"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), Version)
}

func TestParseGrants(t *testing.T) {
	perms, err := parseGrants([]string{"admin:read|write", "billing", "admin:impersonate"})
	require.NoError(t, err)

	assert.True(t, perms.Equal(permissions.Map{
		"admin":   permissions.NewSet("read", "write", "impersonate"),
		"billing": permissions.NewSet(),
	}))

	_, err = parseGrants([]string{":read"})
	assert.Error(t, err)
}

func TestDecodeToken(t *testing.T) {
	cfg := identity.Config{SigningKey: []byte("cli-test-key")}.WithDefaults()
	ts := identity.NewTokenService(cfg, nil).WithLogger(identity.NopLogger())

	user := &identity.User{ID: uuid.New(), Permissions: permissions.Map{"admin": permissions.NewSet("read")}}
	issued, err := ts.Encode(context.Background(), user, identity.TokenAccess, identity.EncodeOptions{TTL: time.Minute})
	require.NoError(t, err)

	claims, err := decodeToken(cfg, "  "+issued.Token+"\n")
	require.NoError(t, err)
	assert.Equal(t, user.ID.String(), claims.Subject)

	other := identity.Config{SigningKey: []byte("other-key")}.WithDefaults()
	_, err = decodeToken(other, issued.Token)
	assert.True(t, identity.IsKind(err, identity.TextCodeInvalidSignature))
}

func TestChannelNotifierRoutesByChannel(t *testing.T) {
	var email, mobile int
	n := channelNotifier{
		email: identity.NotifierFuncs{Confirmation: func(context.Context, identity.ConfirmationNotice) error {
			email++
			return nil
		}},
		mobile: identity.NotifierFuncs{Confirmation: func(context.Context, identity.ConfirmationNotice) error {
			mobile++
			return nil
		}},
		logger: identity.NopLogger(),
	}

	ctx := context.Background()
	require.NoError(t, n.SendConfirmation(ctx, identity.ConfirmationNotice{Channel: identity.ChannelEmail}))
	require.NoError(t, n.SendConfirmation(ctx, identity.ConfirmationNotice{Channel: identity.ChannelMobile}))
	require.NoError(t, n.SendConfirmation(ctx, identity.ConfirmationNotice{Channel: identity.ChannelMobile}))

	assert.Equal(t, 1, email)
	assert.Equal(t, 2, mobile)

	empty := channelNotifier{logger: identity.NopLogger()}
	assert.NoError(t, empty.SendPasswordReset(ctx, identity.PasswordResetNotice{}))
}
