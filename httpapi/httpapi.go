// Package httpapi exposes the session engine over JSON HTTP using fiber.
package httpapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/middleware/sessionware"
	"github.com/google/uuid"
)

// API wires engine operations and command handlers to routes.
type API struct {
	engine        *identity.Engine
	register      *identity.RegisterUserHandler
	confirmation  *identity.RequestConfirmationHandler
	resetRequest  *identity.RequestPasswordResetHandler
	resetFinalize *identity.FinalizePasswordResetHandler
	logger        identity.Logger
}

func New(engine *identity.Engine, notifier identity.Notifier) *API {
	return &API{
		engine:        engine,
		register:      identity.NewRegisterUserHandler(engine),
		confirmation:  identity.NewRequestConfirmationHandler(engine, notifier),
		resetRequest:  identity.NewRequestPasswordResetHandler(engine, notifier),
		resetFinalize: identity.NewFinalizePasswordResetHandler(engine),
		logger:        identity.NopLogger(),
	}
}

func (a *API) WithLogger(logger identity.Logger) *API {
	if logger != nil {
		a.logger = logger
	}
	return a
}

// Mount registers the routes on r.
func (a *API) Mount(r fiber.Router) {
	r.Post("/users", a.Register)
	r.Post("/auth/login", a.Login)
	r.Post("/auth/login-token", a.RedeemLoginToken)
	r.Post("/auth/refresh", a.Refresh)
	r.Post("/auth/logout", a.Logout)
	r.Post("/password-reset", a.RequestPasswordReset)
	r.Post("/password-reset/finalize", a.FinalizePasswordReset)

	me := r.Group("/me")
	me.Get("/", a.protect(identity.OpAuthorize, true), a.Me)
	me.Post("/password", a.protect(identity.OpUpdatePassword, false), a.UpdatePassword)
	me.Post("/switch/:id", a.protect(identity.OpSwitchUser, false), a.SwitchUser)
	me.Post("/reset", a.protect(identity.OpResetUser, false), a.ResetUser)
	me.Put("/context", a.protect(identity.OpSetContext, false), a.SetContext)
	me.Delete("/context", a.protect(identity.OpClearContext, false), a.ClearContext)
	me.Post("/contact", a.protect(identity.OpAuthorize, true), a.RequestConfirmation)
	me.Post("/contact/confirm", a.protect(identity.OpAuthorize, true), a.ConfirmContact)
}

func (a *API) protect(op identity.Operation, resolve bool) fiber.Handler {
	cfg := sessionware.Config{
		Verifier:  identity.TokenVerifierFunc(a.engine.Verify),
		Operation: op,
	}
	if resolve {
		cfg.Resolver = a.engine.Resolver()
	}
	return sessionware.New(cfg)
}

// TokenResponse is the public shape of an issued token.
type TokenResponse struct {
	Token     string    `json:"token"`
	Kind      string    `json:"kind"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SessionResponse is returned by every operation producing a session.
type SessionResponse struct {
	Access  *TokenResponse `json:"access"`
	Refresh *TokenResponse `json:"refresh,omitempty"`
	User    *UserResponse  `json:"user,omitempty"`
}

// UserResponse hides secrets and PIN state.
type UserResponse struct {
	ID              uuid.UUID           `json:"id"`
	Username        string              `json:"username,omitempty"`
	Email           string              `json:"email,omitempty"`
	Mobile          string              `json:"mobile,omitempty"`
	RequestedEmail  string              `json:"requested_email,omitempty"`
	RequestedMobile string              `json:"requested_mobile,omitempty"`
	Permissions     map[string][]string `json:"permissions,omitempty"`
}

func toToken(issued *identity.IssuedToken) *TokenResponse {
	if issued == nil {
		return nil
	}
	out := &TokenResponse{Token: issued.Token, ExpiresAt: issued.ExpiresAt()}
	if issued.Claims != nil {
		out.Kind = string(issued.Claims.Kind)
	}
	return out
}

func toSession(s *identity.Session) SessionResponse {
	return SessionResponse{
		Access:  toToken(s.Access),
		Refresh: toToken(s.Refresh),
		User:    toUser(s.User),
	}
}

func toUser(u *identity.User) *UserResponse {
	if u == nil {
		return nil
	}
	out := &UserResponse{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Mobile:          u.Mobile,
		RequestedEmail:  u.RequestedEmail,
		RequestedMobile: u.RequestedMobile,
	}
	if len(u.Permissions) > 0 {
		out.Permissions = make(map[string][]string, len(u.Permissions))
		for scope, actions := range u.Permissions {
			out.Permissions[scope] = actions.Slice()
		}
	}
	return out
}

func badBody() error {
	return identity.NewValidationError(identity.FieldErrors{"body": {"invalid_json"}})
}
