package identity

// SessionState is the position of a token holder in the session lifecycle.
type SessionState string

const (
	StateAnonymous     SessionState = "anonymous"
	StateAccess        SessionState = "access"
	StateRefresh       SessionState = "refresh"
	StateSwitched      SessionState = "switched_access"
	StateLoginPending  SessionState = "login_pending"
	StatePasswordReset SessionState = "password_reset"
)

// Operation names an engine operation that consumes a token.
type Operation string

const (
	OpAuthorize      Operation = "authorize"
	OpRedeemLogin    Operation = "redeem_login"
	OpRefresh        Operation = "refresh"
	OpUpdatePassword Operation = "update_password"
	OpSwitchUser     Operation = "switch_user"
	OpResetUser      Operation = "reset_user"
	OpSetContext     Operation = "set_context"
	OpClearContext   Operation = "clear_context"
	OpLogout         Operation = "logout"
)

// acceptedKinds lists the token kinds each operation consumes.
var acceptedKinds = map[Operation]map[TokenKind]struct{}{
	OpAuthorize:      {TokenAccess: {}},
	OpRedeemLogin:    {TokenLogin: {}},
	OpRefresh:        {TokenRefresh: {}},
	OpUpdatePassword: {TokenAccess: {}, TokenPasswordReset: {}},
	OpSwitchUser:     {TokenAccess: {}, TokenRefresh: {}},
	OpResetUser:      {TokenAccess: {}, TokenRefresh: {}},
	OpSetContext:     {TokenAccess: {}, TokenRefresh: {}},
	OpClearContext:   {TokenAccess: {}, TokenRefresh: {}},
	OpLogout: {
		TokenAccess:        {},
		TokenRefresh:       {},
		TokenLogin:         {},
		TokenPasswordReset: {},
	},
}

// Accepts reports whether op can consume a token of kind.
func (op Operation) Accepts(kind TokenKind) bool {
	kinds, ok := acceptedKinds[op]
	if !ok {
		return false
	}
	_, ok = kinds[kind]
	return ok
}

// requireKind fails with ErrBadClaim when claims cannot be used for op.
func requireKind(op Operation, claims *Claims) error {
	if claims == nil {
		return ErrTokenMalformed
	}
	if !op.Accepts(claims.Kind) {
		return withMetadata(ErrBadClaim, map[string]any{
			"operation": string(op),
			"kind":      string(claims.Kind),
		})
	}
	return nil
}

// StateOf maps claims to the session state they represent.
func StateOf(claims *Claims) SessionState {
	if claims == nil {
		return StateAnonymous
	}
	switch claims.Kind {
	case TokenAccess:
		if claims.Switched() {
			return StateSwitched
		}
		return StateAccess
	case TokenRefresh:
		return StateRefresh
	case TokenLogin:
		return StateLoginPending
	case TokenPasswordReset:
		return StatePasswordReset
	default:
		return StateAnonymous
	}
}
