package identity_test

import (
	"errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), identity.TextCodeInternal},
		{"invalid credentials", identity.ErrInvalidCredentials, identity.TextCodeInvalidCreds},
		{"wrapped with fmt", fmt.Errorf("login: %w", identity.ErrTokenRevoked), identity.TextCodeTokenRevoked},
		{"forbidden", identity.ErrForbidden, identity.TextCodeForbidden},
		{"not switched", identity.ErrNotSwitched, identity.TextCodeNotSwitched},
		{"internal sentinel", identity.ErrInternal, identity.TextCodeInternal},
		{"immutable claim", identity.ErrImmutableClaimMutation, identity.TextCodeInternal},
		{"wrapped internal", goerrors.Wrap(errors.New("db down"), goerrors.CategoryInternal, "fetch"), identity.TextCodeInternal},
		{"validation", identity.NewValidationError(identity.FieldErrors{"email": {"required"}}), identity.TextCodeValidation},
		{"mismatch", identity.NewPasswordMismatchError(), identity.TextCodePasswordMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, identity.Kind(tt.err))
		})
	}
}

func TestPublicError(t *testing.T) {
	assert.Nil(t, identity.PublicError(nil))

	internal := identity.PublicError(goerrors.Wrap(errors.New("dsn=postgres://secret"), goerrors.CategoryInternal, "query"))
	require.NotNil(t, internal)
	assert.Equal(t, identity.TextCodeInternal, internal.TextCode)
	assert.NotContains(t, internal.Error(), "secret")

	forbidden := identity.PublicError(identity.ErrForbidden.Clone().WithMetadata(map[string]any{"reason": "policy"}))
	assert.Equal(t, identity.TextCodeForbidden, forbidden.TextCode)
	assert.Empty(t, forbidden.Metadata)

	validation := identity.PublicError(identity.NewPasswordMismatchError())
	assert.Equal(t, identity.TextCodePasswordMismatch, validation.TextCode)
	fields, ok := identity.ValidationFields(validation)
	require.True(t, ok)
	assert.Equal(t, []string{identity.MessageMismatch}, fields["confirmation"])
}

func TestFieldErrors(t *testing.T) {
	fields := identity.FieldErrors{}
	fields.Add("username", identity.MessageUsernameTaken).Add("email", identity.MessageRequired)
	fields.Add("email", identity.MessageInvalidEmail)

	assert.Equal(t, []string{"email", "username"}, fields.Fields())
	assert.Equal(t, []string{identity.MessageRequired, identity.MessageInvalidEmail}, fields["email"])

	_, ok := identity.ValidationFields(identity.ErrForbidden)
	assert.False(t, ok)
}
