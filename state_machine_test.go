package identity_test

import (
	"testing"

	"github.com/goliatone/go-identity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestOperationAccepts(t *testing.T) {
	all := []identity.TokenKind{
		identity.TokenAccess,
		identity.TokenRefresh,
		identity.TokenLogin,
		identity.TokenPasswordReset,
	}

	accepted := map[identity.Operation][]identity.TokenKind{
		identity.OpAuthorize:      {identity.TokenAccess},
		identity.OpRedeemLogin:    {identity.TokenLogin},
		identity.OpRefresh:        {identity.TokenRefresh},
		identity.OpUpdatePassword: {identity.TokenAccess, identity.TokenPasswordReset},
		identity.OpSwitchUser:     {identity.TokenAccess, identity.TokenRefresh},
		identity.OpResetUser:      {identity.TokenAccess, identity.TokenRefresh},
		identity.OpSetContext:     {identity.TokenAccess, identity.TokenRefresh},
		identity.OpClearContext:   {identity.TokenAccess, identity.TokenRefresh},
		identity.OpLogout:         all,
	}

	for op, kinds := range accepted {
		for _, kind := range all {
			assert.Equal(t, contains(kinds, kind), op.Accepts(kind), "%s with %s", op, kind)
		}
	}

	assert.False(t, identity.Operation("delete_account").Accepts(identity.TokenAccess))
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		name   string
		claims *identity.Claims
		want   identity.SessionState
	}{
		{"nil", nil, identity.StateAnonymous},
		{"access", &identity.Claims{Kind: identity.TokenAccess}, identity.StateAccess},
		{"switched", &identity.Claims{Kind: identity.TokenAccess, RootUserID: uuid.NewString()}, identity.StateSwitched},
		{"refresh", &identity.Claims{Kind: identity.TokenRefresh}, identity.StateRefresh},
		{"login", &identity.Claims{Kind: identity.TokenLogin}, identity.StateLoginPending},
		{"reset", &identity.Claims{Kind: identity.TokenPasswordReset}, identity.StatePasswordReset},
		{"unknown", &identity.Claims{Kind: "other"}, identity.StateAnonymous},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, identity.StateOf(tt.claims))
		})
	}
}

func contains(kinds []identity.TokenKind, kind identity.TokenKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
