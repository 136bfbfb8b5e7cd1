package identity

import (
	"context"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/permissions"
	"github.com/google/uuid"
)

const dummySecret = "identity-dummy-secret"

// Engine runs the session lifecycle: login, token redemption, refresh,
// impersonation, context changes, logout, PIN proofs and permission edits.
type Engine struct {
	config       Config
	store        UserStore
	hasher       Hasher
	tokens       *TokenService
	verifier     TokenVerifier
	pins         *PinVerifier
	resolver     *Resolver
	logger       Logger
	activitySink ActivitySink
	now          func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewEngine returns an Engine using bcrypt and an in-memory denylist.
func NewEngine(cfg Config, store UserStore) *Engine {
	cfg = cfg.WithDefaults()
	hasher := normalizeHasher(nil)
	tokens := NewTokenService(cfg, nil)

	return &Engine{
		config:       cfg,
		store:        store,
		hasher:       hasher,
		tokens:       tokens,
		verifier:     tokens,
		pins:         NewPinVerifier(store, hasher),
		resolver:     NewResolver(store),
		logger:       defLogger{},
		activitySink: noopActivitySink{},
		now:          time.Now,
	}
}

func (e *Engine) WithLogger(logger Logger) *Engine {
	e.logger = normalizeLogger(logger)
	e.tokens.WithLogger(e.logger)
	e.resolver.WithLogger(e.logger)
	return e
}

// WithHasher sets the Hasher used for passwords and PINs.
func (e *Engine) WithHasher(hasher Hasher) *Engine {
	e.hasher = normalizeHasher(hasher)
	e.pins = NewPinVerifier(e.store, e.hasher).WithClock(e.now)
	e.dummyOnce = sync.Once{}
	return e
}

// WithDenylist sets the revocation registry.
func (e *Engine) WithDenylist(denylist Denylist) *Engine {
	if denylist != nil {
		e.tokens.denylist = denylist
	}
	return e
}

// WithVerifier replaces the verifier used for incoming tokens, typically a
// MultiTokenVerifier accepting a retired signing key. Tokens are always
// issued by the engine's own TokenService.
func (e *Engine) WithVerifier(verifier TokenVerifier) *Engine {
	if verifier != nil {
		e.verifier = verifier
	}
	return e
}

// WithActivitySink configures an ActivitySink for emitting identity events.
func (e *Engine) WithActivitySink(sink ActivitySink) *Engine {
	e.activitySink = normalizeActivitySink(sink)
	return e
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching tokens.
func (e *Engine) WithClaimsDecorator(decorator ClaimsDecorator) *Engine {
	e.tokens.WithClaimsDecorator(decorator)
	return e
}

// WithClock injects a custom clock (useful for tests).
func (e *Engine) WithClock(now func() time.Time) *Engine {
	if now != nil {
		e.now = now
		e.tokens.WithClock(now)
		e.pins.WithClock(now)
	}
	return e
}

// Tokens returns the TokenService used by this engine.
func (e *Engine) Tokens() *TokenService {
	return e.tokens
}

// Resolver returns the Resolver used by this engine.
func (e *Engine) Resolver() *Resolver {
	return e.resolver
}

// Store returns the user store.
func (e *Engine) Store() UserStore {
	return e.store
}

// Config returns a copy of the engine configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Authenticate verifies credentials and issues an access token, plus a
// refresh token when Remember is set. Every failure to match an account
// surfaces as ErrInvalidCredentials.
func (e *Engine) Authenticate(ctx context.Context, creds Credentials) (*Session, error) {
	if err := creds.Validate(); err != nil {
		return nil, validationError(err)
	}

	kind, key := creds.Identifier()
	user, err := e.lookup(ctx, kind, key)
	if err != nil {
		if goerrors.IsNotFound(err) {
			e.dummyCompare(creds)
			e.loginFailed(ctx, nil, kind, "unknown_identifier")
			return nil, ErrInvalidCredentials
		}
		return nil, e.fail("authenticate lookup failed", err, "identifier_kind", kind)
	}

	if creds.UsesPin() {
		user, err = e.verifyPinLogin(ctx, user, kind, key, creds.Pin)
	} else {
		err = e.verifyPassword(ctx, user, creds.Password)
	}
	if err != nil {
		if IsKind(err, TextCodeInvalidCreds) {
			return nil, ErrInvalidCredentials
		}
		return nil, e.fail("authenticate verification failed", err, "user_id", user.ID)
	}

	session, err := e.issueSession(ctx, user, creds.Remember, EncodeOptions{})
	if err != nil {
		return nil, e.fail("authenticate issue session failed", err, "user_id", user.ID)
	}

	e.emit(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
		FromState: StateAnonymous,
		ToState:   StateAccess,
		Metadata: map[string]any{
			MetadataIdentifierKind: string(kind),
			MetadataMethod:         loginMethod(creds),
		},
	})

	return session, nil
}

func (e *Engine) verifyPassword(ctx context.Context, user *User, password string) error {
	if err := e.hasher.Compare(password, user.PasswordHash); err != nil {
		if IsMismatch(err) {
			e.loginFailed(ctx, user, "", "wrong_password")
			return ErrInvalidCredentials
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare password")
	}
	return nil
}

func (e *Engine) verifyPinLogin(ctx context.Context, user *User, kind IdentifierKind, key, pin string) (*User, error) {
	channel := pinChannel(kind)

	var opts []ValidateOption
	if kind != IdentifierUsername {
		opts = append(opts, SentTo(key))
	}
	if _, pending := user.Contact(channel); pending != "" && pending == key {
		opts = append(opts, ConfirmingValue(key))
	}

	updated, err := e.ValidatePin(ctx, user, channel, pin, opts...)
	if err != nil {
		switch Kind(err) {
		case TextCodeNoPin, TextCodePinExpired, TextCodeWrongPin:
			e.loginFailed(ctx, user, kind, Kind(err))
			return nil, ErrInvalidCredentials
		case TextCodeValidation:
			e.logger.Warn("pin login contact promotion rejected",
				"error", err, "user_id", user.ID, "channel", channel)
			e.loginFailed(ctx, user, kind, "contact_conflict")
			return nil, ErrInvalidCredentials
		default:
			return nil, err
		}
	}
	return updated, nil
}

// RedeemLoginToken exchanges a single use login token for an access token.
// A contact confirmation carried by the token is applied only while the
// pending value it names is still the current one.
func (e *Engine) RedeemLoginToken(ctx context.Context, raw string) (*Session, error) {
	claims, err := e.verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := requireKind(OpRedeemLogin, claims); err != nil {
		return nil, err
	}

	user, err := e.subject(ctx, claims)
	if err != nil {
		return nil, err
	}

	if err := e.tokens.Consume(ctx, claims); err != nil {
		return nil, e.fail("redeem login token consume failed", err, "token_id", claims.TokenID())
	}

	if cnf := claims.Confirmation; !cnf.IsZero() && confirmationApplies(user, cnf) {
		user, err = e.store.Update(ctx, user.ID, func(u *User) error {
			applyConfirmation(u, cnf)
			return nil
		})
		if err != nil {
			return nil, e.fail("redeem login token confirmation failed", err, "user_id", claims.RegisteredClaims.Subject)
		}
		e.emit(ctx, ActivityEvent{
			EventType: ActivityEventContactConfirmed,
			Actor:     actorFromUser(user),
			UserID:    user.ID.String(),
			Metadata:  map[string]any{MetadataMethod: "login_token"},
		})
	}

	session, err := e.issueSession(ctx, user, false, EncodeOptions{})
	if err != nil {
		return nil, e.fail("redeem login token issue failed", err, "user_id", user.ID)
	}

	e.emit(ctx, ActivityEvent{
		EventType: ActivityEventLoginTokenRedeemed,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
		FromState: StateLoginPending,
		ToState:   StateAccess,
	})

	return session, nil
}

// Refresh issues a new access token from a refresh token. The subject is
// read again so the permission snapshot reflects the current record; the
// root user and context are carried over.
func (e *Engine) Refresh(ctx context.Context, raw string) (*IssuedToken, error) {
	claims, err := e.verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if err := requireKind(OpRefresh, claims); err != nil {
		return nil, err
	}

	user, err := e.subject(ctx, claims)
	if err != nil {
		return nil, err
	}

	if rootID, ok := claims.RootID(); ok {
		if _, err := e.fetchUser(ctx, rootID); err != nil {
			return nil, err
		}
	}

	access, err := e.tokens.Encode(ctx, user, TokenAccess, EncodeOptions{
		RootUserID: claims.RootUserID,
		SwitchID:   claims.SwitchID,
		Context:    claims.Context,
	})
	if err != nil {
		return nil, e.fail("refresh encode failed", err, "user_id", user.ID)
	}

	e.emit(ctx, ActivityEvent{
		EventType: ActivityEventRefresh,
		Actor:     actorFromClaims(claims),
		UserID:    user.ID.String(),
		FromState: StateRefresh,
		ToState:   StateOf(access.Claims),
		Metadata:  map[string]any{MetadataTokenKind: string(claims.Kind)},
	})

	return access, nil
}

// UpdatePassword changes the subject's password. A password_reset token
// skips the old password check and is consumed once the new password
// passes validation.
func (e *Engine) UpdatePassword(ctx context.Context, claims *Claims, change PasswordChange) (*User, error) {
	if err := e.authorize(ctx, OpUpdatePassword, claims); err != nil {
		return nil, err
	}

	user, err := e.subject(ctx, claims)
	if err != nil {
		return nil, err
	}

	if claims.Kind != TokenPasswordReset {
		if err := e.hasher.Compare(change.OldPassword, user.PasswordHash); err != nil {
			if IsMismatch(err) {
				return nil, ErrWrongPassword
			}
			return nil, e.fail("update password compare failed", err, "user_id", user.ID)
		}
	}

	if change.NewPassword != change.Confirmation {
		return nil, NewPasswordMismatchError()
	}

	if err := e.validatePassword(change.NewPassword); err != nil {
		return nil, err
	}

	if claims.Kind == TokenPasswordReset {
		if err := e.tokens.Consume(ctx, claims); err != nil {
			return nil, e.fail("update password consume reset token failed", err, "token_id", claims.TokenID())
		}
	}

	hash, err := e.hasher.Hash(change.NewPassword)
	if err != nil {
		return nil, e.fail("update password hash failed", err, "user_id", user.ID)
	}

	updated, err := e.store.Update(ctx, user.ID, func(u *User) error {
		u.PasswordHash = hash
		return nil
	})
	if err != nil {
		return nil, e.fail("update password store failed", err, "user_id", user.ID)
	}

	e.emit(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Actor:     actorFromClaims(claims),
		UserID:    updated.ID.String(),
		Metadata:  map[string]any{MetadataTokenKind: string(claims.Kind)},
	})

	return updated, nil
}

func (e *Engine) validatePassword(password string) error {
	err := validation.Validate(password,
		validation.Required.Error(MessageRequired),
		validation.Length(e.config.PasswordMinLength, 0).Error(MessageTooShort),
	)
	if err != nil {
		return NewValidationError(FieldErrors{"password": {err.Error()}})
	}
	return nil
}

// SwitchUser issues an access token for target with the caller recorded as
// root. Impersonation is single level and subject to the configured policy.
// A caller holding a refresh token also receives a switched refresh token.
// Both tokens share one impersonation session that ResetUser ends.
func (e *Engine) SwitchUser(ctx context.Context, claims *Claims, targetID uuid.UUID) (*Session, error) {
	if err := e.authorize(ctx, OpSwitchUser, claims); err != nil {
		return nil, err
	}

	if claims.Switched() {
		e.switchDenied(ctx, claims, targetID, "already_switched")
		return nil, withMetadata(ErrForbidden, map[string]any{"reason": "already_switched"})
	}

	if !e.config.Impersonation.Permits(claims.Permissions) {
		e.switchDenied(ctx, claims, targetID, "policy")
		return nil, ErrForbidden
	}

	root, err := e.subject(ctx, claims)
	if err != nil {
		return nil, err
	}
	if root.ID == targetID {
		e.switchDenied(ctx, claims, targetID, "self")
		return nil, withMetadata(ErrForbidden, map[string]any{"reason": "self"})
	}

	target, err := e.store.FetchByID(ctx, targetID)
	if err != nil {
		return nil, e.fail("switch user fetch target failed", err, "target_id", targetID)
	}

	switchID, err := newTokenID()
	if err != nil {
		return nil, e.fail("switch user session id failed", err, "target_id", targetID)
	}

	session, err := e.issueSession(ctx, target, claims.Kind == TokenRefresh, EncodeOptions{
		RootUserID: root.ID.String(),
		SwitchID:   switchID,
	})
	if err != nil {
		return nil, e.fail("switch user issue failed", err, "target_id", targetID)
	}

	e.emit(ctx, ActivityEvent{
		EventType: ActivityEventImpersonationStart,
		Actor:     actorFromUser(root),
		UserID:    target.ID.String(),
		FromState: StateOf(claims),
		ToState:   StateSwitched,
		Metadata:  map[string]any{MetadataTokenKind: string(claims.Kind)},
	})

	return session, nil
}

// ResetUser ends impersonation: it issues a token for the root user without
// a root marker and revokes every token of the impersonation session.
func (e *Engine) ResetUser(ctx context.Context, claims *Claims) (*Session, error) {
	if err := e.authorize(ctx, OpResetUser, claims); err != nil {
		return nil, err
	}

	rootID, ok := claims.RootID()
	if !ok {
		return nil, ErrNotSwitched
	}

	root, err := e.fetchUser(ctx, rootID)
	if err != nil {
		return nil, err
	}

	session, err := e.issueSession(ctx, root, claims.Kind == TokenRefresh, EncodeOptions{})
	if err != nil {
		return nil, e.fail("reset user issue failed", err, "root_id", rootID)
	}

	if err := e.tokens.Revoke(ctx, claims); err != nil {
		e.logger.Error("reset user revoke switched token failed", "error", err, "token_id", claims.TokenID())
	}
	if err := e.tokens.EndSwitch(ctx, claims); err != nil {
		e.logger.Error("reset user end impersonation failed", "error", err, "switch_id", claims.SwitchID)
	}

	e.emit(ctx, ActivityEvent{
		EventType: ActivityEventImpersonationEnd,
		Actor:     actorFromUser(root),
		UserID:    claims.RegisteredClaims.Subject,
		FromState: StateOf(claims),
		ToState:   StateAccess,
		Metadata:  map[string]any{MetadataTokenKind: string(claims.Kind)},
	})

	return session, nil
}

func (e *Engine) switchDenied(ctx context.Context, claims *Claims, targetID uuid.UUID, reason string) {
	e.emit(ctx, ActivityEvent{
		EventType: ActivityEventImpersonationDenied,
		Actor:     actorFromClaims(claims),
		UserID:    targetID.String(),
		FromState: StateOf(claims),
		Metadata:  map[string]any{MetadataReason: reason},
	})
}

// SetContext re-issues the current token with its context replaced. The
// identity record is not touched and the expiry is kept.
func (e *Engine) SetContext(ctx context.Context, claims *Claims, blob map[string]any) (*IssuedToken, error) {
	return e.changeContext(ctx, OpSetContext, claims, blob)
}

// ClearContext re-issues the current token without context.
func (e *Engine) ClearContext(ctx context.Context, claims *Claims) (*IssuedToken, error) {
	return e.changeContext(ctx, OpClearContext, claims, nil)
}

func (e *Engine) changeContext(ctx context.Context, op Operation, claims *Claims, blob map[string]any) (*IssuedToken, error) {
	if err := e.authorize(ctx, op, claims); err != nil {
		return nil, err
	}

	issued, err := e.tokens.Reissue(claims, func(next *Claims) {
		next.Context = cloneContext(blob)
		if len(next.Context) == 0 {
			next.Context = nil
		}
	})
	if err != nil {
		return nil, e.fail("context reissue failed", err, "token_id", claims.TokenID())
	}

	e.emit(ctx, ActivityEvent{
		EventType: ActivityEventContextChanged,
		Actor:     actorFromClaims(claims),
		UserID:    claims.RegisteredClaims.Subject,
		Metadata: map[string]any{
			"operation":       string(op),
			MetadataTokenKind: string(claims.Kind),
		},
	})

	return issued, nil
}

// Logout revokes every given token. It always succeeds: tokens that are
// already invalid have nothing left to revoke.
func (e *Engine) Logout(ctx context.Context, raws ...string) error {
	for _, raw := range raws {
		claims, err := e.decode(raw)
		if err != nil {
			e.logger.Debug("logout skipped undecodable token", "error", Kind(err))
			continue
		}
		if err := e.tokens.Revoke(ctx, claims); err != nil {
			e.logger.Error("logout revoke failed", "error", err, "token_id", claims.TokenID())
			continue
		}
		e.emit(ctx, ActivityEvent{
			EventType: ActivityEventLogout,
			Actor:     actorFromClaims(claims),
			UserID:    claims.RegisteredClaims.Subject,
			FromState: StateOf(claims),
			ToState:   StateAnonymous,
			Metadata:  map[string]any{MetadataTokenKind: string(claims.Kind)},
		})
	}
	return nil
}

// Verify decodes a raw token and checks it has not been revoked.
func (e *Engine) Verify(ctx context.Context, raw string) (*Claims, error) {
	return e.verify(ctx, raw)
}

// verify runs the configured verifier and then checks liveness against the
// engine's own denylist, which is where Logout records revocations.
func (e *Engine) verify(ctx context.Context, raw string) (*Claims, error) {
	claims, err := e.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if e.verifier == TokenVerifier(e.tokens) {
		return claims, nil
	}
	if err := e.tokens.CheckLive(ctx, claims); err != nil {
		return nil, e.fail("token liveness check failed", err, "token_id", claims.TokenID())
	}
	return claims, nil
}

// decode reads a token signed with any key the verifier accepts.
func (e *Engine) decode(raw string) (*Claims, error) {
	if decoder, ok := e.verifier.(TokenDecoder); ok {
		return decoder.Decode(raw)
	}
	return e.tokens.Decode(raw)
}

// Resolve maps claims to the active and root users.
func (e *Engine) Resolve(ctx context.Context, claims *Claims) (*Resolution, error) {
	return e.resolver.Resolve(ctx, claims)
}

// IssueToken mints a token of kind for user with the configured defaults.
func (e *Engine) IssueToken(ctx context.Context, user *User, kind TokenKind, opts EncodeOptions) (*IssuedToken, error) {
	return e.tokens.Encode(ctx, user, kind, opts)
}

// IssuePin issues a code for channel. A zero ttl uses the configured PIN TTL.
func (e *Engine) IssuePin(ctx context.Context, user *User, channel Channel, ttl time.Duration, opts ...IssueOption) (string, *User, error) {
	if ttl == 0 {
		ttl = e.config.PinTTL
	}

	pin, updated, err := e.pins.Issue(ctx, user, channel, ttl, opts...)
	if err != nil {
		return "", nil, e.fail("issue pin failed", err, "channel", channel)
	}

	e.emit(ctx, ActivityEvent{
		EventType: ActivityEventPinIssued,
		Actor:     actorFromUser(updated),
		UserID:    updated.ID.String(),
		Metadata:  map[string]any{MetadataChannel: string(channel)},
	})

	return pin, updated, nil
}

// ValidatePin checks candidate for channel and consumes the code. With
// WithConfirmation the pending contact value is promoted in the same update.
func (e *Engine) ValidatePin(ctx context.Context, user *User, channel Channel, candidate string, opts ...ValidateOption) (*User, error) {
	if user == nil {
		return nil, ErrIdentityNotFound
	}

	updated, err := e.pins.Validate(ctx, user, channel, candidate, opts...)
	if err != nil {
		e.emit(ctx, ActivityEvent{
			EventType: ActivityEventPinFailed,
			Actor:     actorFromUser(user),
			UserID:    user.ID.String(),
			Metadata: map[string]any{
				MetadataChannel: string(channel),
				MetadataReason:  Kind(err),
			},
		})
		return nil, e.fail("validate pin failed", err, "user_id", user.ID, "channel", channel)
	}

	e.emit(ctx, ActivityEvent{
		EventType: ActivityEventPinValidated,
		Actor:     actorFromUser(updated),
		UserID:    updated.ID.String(),
		Metadata:  map[string]any{MetadataChannel: string(channel)},
	})

	if confirmed, _ := updated.Contact(channel); confirmed != "" {
		if before, _ := user.Contact(channel); before != confirmed {
			e.emit(ctx, ActivityEvent{
				EventType: ActivityEventContactConfirmed,
				Actor:     actorFromUser(updated),
				UserID:    updated.ID.String(),
				Metadata: map[string]any{
					MetadataChannel: string(channel),
					MetadataMethod:  "pin",
				},
			})
		}
	}

	return updated, nil
}

// HasPermission evaluates req against the user's live permission map.
func HasPermission(user *User, req permissions.Requirement) bool {
	if user == nil {
		return req == nil
	}
	return permissions.Check(user.Permissions, req)
}

// AddPermissions merges additions into the user's permissions scope by
// scope and persists the result.
func (e *Engine) AddPermissions(ctx context.Context, user *User, additions permissions.Map) (*User, error) {
	return e.changePermissions(ctx, user, "add", func(current permissions.Map) permissions.Map {
		return current.Merge(additions)
	})
}

// DropPermission removes scope from the user's permissions and persists
// the result.
func (e *Engine) DropPermission(ctx context.Context, user *User, scope string) (*User, error) {
	return e.changePermissions(ctx, user, "drop", func(current permissions.Map) permissions.Map {
		return current.Without(scope)
	})
}

func (e *Engine) changePermissions(ctx context.Context, user *User, op string, change func(permissions.Map) permissions.Map) (*User, error) {
	if user == nil {
		return nil, ErrIdentityNotFound
	}

	updated, err := e.store.Update(ctx, user.ID, func(u *User) error {
		u.Permissions = change(u.Permissions)
		return nil
	})
	if err != nil {
		return nil, e.fail("change permissions failed", err, "user_id", user.ID, "operation", op)
	}

	e.emit(ctx, ActivityEvent{
		EventType: ActivityEventPermissionsChanged,
		Actor:     ActorRef{Type: "system"},
		UserID:    updated.ID.String(),
		Metadata: map[string]any{
			"operation": op,
			"scopes":    updated.Permissions.Scopes(),
		},
	})

	return updated, nil
}

func (e *Engine) issueSession(ctx context.Context, user *User, withRefresh bool, opts EncodeOptions) (*Session, error) {
	access, err := e.tokens.Encode(ctx, user, TokenAccess, opts)
	if err != nil {
		return nil, err
	}

	session := &Session{Access: access, User: user}
	if withRefresh {
		refresh, err := e.tokens.Encode(ctx, user, TokenRefresh, opts)
		if err != nil {
			return nil, err
		}
		session.Refresh = refresh
	}

	return session, nil
}

// authorize checks the kind and liveness of claims for op.
func (e *Engine) authorize(ctx context.Context, op Operation, claims *Claims) error {
	if err := requireKind(op, claims); err != nil {
		return err
	}
	if err := e.tokens.CheckLive(ctx, claims); err != nil {
		return e.fail("token liveness check failed", err, "token_id", claims.TokenID())
	}
	return nil
}

// subject fetches the user claims authenticate as. A vanished subject is an
// authentication failure.
func (e *Engine) subject(ctx context.Context, claims *Claims) (*User, error) {
	id, err := claims.SubjectID()
	if err != nil {
		return nil, ErrTokenMalformed
	}
	return e.fetchUser(ctx, id)
}

func (e *Engine) fetchUser(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := e.store.FetchByID(ctx, id)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, e.fail("fetch user failed", err, "user_id", id)
	}
	return user, nil
}

func (e *Engine) lookup(ctx context.Context, kind IdentifierKind, key string) (*User, error) {
	switch kind {
	case IdentifierUsername:
		return e.store.FetchByUsername(ctx, key)
	case IdentifierEmail:
		return e.store.FetchByEmail(ctx, key)
	default:
		return e.store.FetchByMobile(ctx, key)
	}
}

// dummyCompare spends the same hashing work on unknown identifiers as on
// known ones.
func (e *Engine) dummyCompare(creds Credentials) {
	e.dummyOnce.Do(func() {
		hash, err := e.hasher.Hash(dummySecret)
		if err != nil {
			e.logger.Warn("dummy hash generation failed", "error", err)
			return
		}
		e.dummyHash = hash
	})
	if e.dummyHash == "" {
		return
	}
	secret := creds.Password
	if secret == "" {
		secret = creds.Pin
	}
	_ = e.hasher.Compare(secret, e.dummyHash)
}

func (e *Engine) loginFailed(ctx context.Context, user *User, kind IdentifierKind, reason string) {
	event := ActivityEvent{
		EventType: ActivityEventLoginFailure,
		Actor:     actorFromUser(user),
		Metadata:  map[string]any{MetadataReason: reason},
	}
	if user != nil {
		event.UserID = user.ID.String()
	}
	if kind != "" {
		event.Metadata[MetadataIdentifierKind] = string(kind)
	}
	e.logger.Info("login failed", "reason", reason, "user_id", event.UserID)
	e.emit(ctx, event)
}

// fail passes public domain errors through. Anything else is logged with
// its context and replaced by ErrInternal.
func (e *Engine) fail(msg string, err error, args ...any) error {
	if Kind(err) != TextCodeInternal {
		return err
	}
	e.logger.Error(msg, append(args, "error", err)...)
	return ErrInternal
}

func (e *Engine) emit(ctx context.Context, event ActivityEvent) {
	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = e.now()
	}
	if err := e.activitySink.Record(ctx, event); err != nil {
		e.logger.Warn("activity sink record error", "error", err, "event", event.EventType)
	}
}

func pinChannel(kind IdentifierKind) Channel {
	if kind == IdentifierEmail {
		return ChannelEmail
	}
	return ChannelMobile
}

func loginMethod(creds Credentials) string {
	if creds.UsesPin() {
		return "pin"
	}
	return "password"
}

func confirmationApplies(user *User, cnf *Confirmation) bool {
	return (cnf.Email != "" && user.RequestedEmail == cnf.Email) ||
		(cnf.Mobile != "" && user.RequestedMobile == cnf.Mobile)
}

// applyConfirmation promotes each pending value the confirmation still
// matches and clears that channel's PIN.
func applyConfirmation(u *User, cnf *Confirmation) {
	if cnf.Email != "" && u.RequestedEmail == cnf.Email {
		u.promoteContact(ChannelEmail)
		u.EmailPinHash, u.EmailPinExpiresAt = "", nil
	}
	if cnf.Mobile != "" && u.RequestedMobile == cnf.Mobile {
		u.promoteContact(ChannelMobile)
		u.PinHash, u.PinExpiresAt = "", nil
	}
}
