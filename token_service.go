package identity

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// EncodeOptions controls how a token is minted.
type EncodeOptions struct {
	// Context is copied verbatim into the ctx claim.
	Context map[string]any
	// RootUserID marks the token as produced by impersonation.
	RootUserID string
	// SwitchID ties the token to an impersonation session.
	SwitchID string
	// Confirmation names the pending contact value a login token proves.
	Confirmation *Confirmation
	// TTL overrides the default lifetime for the token kind.
	TTL time.Duration
	// ExpiresAt pins an absolute expiry and wins over TTL.
	ExpiresAt time.Time
}

// IssuedToken pairs a signed token with the claims it carries.
type IssuedToken struct {
	Token  string  `json:"token"`
	Claims *Claims `json:"-"`
}

// ExpiresAt returns the expiry of the token.
func (t *IssuedToken) ExpiresAt() time.Time {
	if t == nil || t.Claims == nil {
		return time.Time{}
	}
	return t.Claims.Expires()
}

// TokenService encodes, decodes and revokes signed claim sets.
type TokenService struct {
	config    Config
	denylist  Denylist
	decorator ClaimsDecorator
	logger    Logger
	now       func() time.Time
}

// NewTokenService returns a TokenService signing with HS256. A nil denylist
// uses an in-memory one.
func NewTokenService(cfg Config, denylist Denylist) *TokenService {
	if denylist == nil {
		denylist = NewMemoryDenylist()
	}
	return &TokenService{
		config:    cfg.WithDefaults(),
		denylist:  denylist,
		decorator: noopClaimsDecorator{},
		logger:    defLogger{},
		now:       time.Now,
	}
}

func (ts *TokenService) WithLogger(logger Logger) *TokenService {
	ts.logger = normalizeLogger(logger)
	return ts
}

// WithClock overrides the time source used to stamp and verify tokens.
func (ts *TokenService) WithClock(now func() time.Time) *TokenService {
	if now != nil {
		ts.now = now
	}
	return ts
}

// WithClaimsDecorator configures a ClaimsDecorator for enriching tokens.
func (ts *TokenService) WithClaimsDecorator(decorator ClaimsDecorator) *TokenService {
	ts.decorator = normalizeClaimsDecorator(decorator)
	return ts
}

// Encode builds the claim set for user and kind and signs it. The
// permission snapshot is taken from user as given.
func (ts *TokenService) Encode(ctx context.Context, user *User, kind TokenKind, opts EncodeOptions) (*IssuedToken, error) {
	if user == nil {
		return nil, ErrIdentityNotFound
	}
	if !kind.Valid() {
		return nil, goerrors.New(fmt.Sprintf("unknown token kind %q", kind), goerrors.CategoryBadInput).
			WithTextCode(TextCodeBadClaim).
			WithCode(goerrors.CodeBadRequest)
	}

	now := ts.now()
	expiresAt, err := ts.expiry(kind, now, opts)
	if err != nil {
		return nil, err
	}

	tokenID, err := newTokenID()
	if err != nil {
		return nil, err
	}

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Issuer:    ts.config.Issuer,
			Subject:   user.ID.String(),
			Audience:  ts.audience(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Kind:        kind,
		Permissions: user.Permissions.Clone(),
		RootUserID:  opts.RootUserID,
		SwitchID:    opts.SwitchID,
		Context:     cloneContext(opts.Context),
	}

	if !opts.Confirmation.IsZero() {
		cnf := *opts.Confirmation
		claims.Confirmation = &cnf
	}

	snapshot := captureImmutableClaims(claims)
	if err := ts.decorator.Decorate(ctx, user, claims); err != nil {
		ts.logger.Error("claims decorator failed", "error", err, "user_id", user.ID)
		return nil, err
	}

	if err := snapshot.validate(claims); err != nil {
		ts.logger.Error("claims decorator mutated immutable claims", "error", err, "user_id", user.ID)
		return nil, err
	}

	return ts.sign(claims)
}

// Reissue signs a copy of claims under a fresh token id, keeping subject,
// kind, permission snapshot and expiry. mutate may change the copy's
// Context before signing.
func (ts *TokenService) Reissue(claims *Claims, mutate func(*Claims)) (*IssuedToken, error) {
	if claims == nil {
		return nil, ErrTokenMalformed
	}

	tokenID, err := newTokenID()
	if err != nil {
		return nil, err
	}

	next := claims.Clone()
	next.RegisteredClaims.ID = tokenID
	next.RegisteredClaims.IssuedAt = jwt.NewNumericDate(ts.now())
	if mutate != nil {
		mutate(next)
	}

	return ts.sign(next)
}

// Decode verifies signature and expiry and returns the claim set. It never
// consults the denylist or the user store.
func (ts *TokenService) Decode(raw string) (*Claims, error) {
	if raw == "" {
		return nil, ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.config.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.config.Issuer))
	}
	if len(ts.config.Audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(ts.config.Audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			ts.logger.Warn("token decode encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return ts.config.SigningKey, nil
	}, parserOptions...)

	if err != nil {
		return nil, mapParseError(err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !claims.Kind.Valid() || claims.RegisteredClaims.Subject == "" {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}

// Revoke registers the token behind claims as no longer valid until its
// natural expiry.
func (ts *TokenService) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.TokenID() == "" {
		return nil
	}
	if err := ts.denylist.Revoke(ctx, claims.Kind, claims.TokenID(), claims.Expires()); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke token")
	}
	return nil
}

// Consume revokes a single use token and fails with ErrTokenRevoked when
// another caller got there first. Only one of any number of concurrent
// calls for the same token succeeds.
func (ts *TokenService) Consume(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.TokenID() == "" {
		return ErrTokenMalformed
	}
	revoked, err := ts.denylist.RevokeIfAbsent(ctx, claims.Kind, claims.TokenID(), claims.Expires())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume token")
	}
	if !revoked {
		return ErrTokenRevoked
	}
	return nil
}

// EndSwitch revokes every token carrying the impersonation session of
// claims. Entries outlive the longest token the session could have minted.
func (ts *TokenService) EndSwitch(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.SwitchID == "" {
		return nil
	}
	expiresAt := ts.now().Add(ts.config.TTL(TokenRefresh))
	if exp := claims.Expires(); exp.After(expiresAt) {
		expiresAt = exp
	}
	if err := ts.denylist.Revoke(ctx, switchSessionKind, claims.SwitchID, expiresAt); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to end impersonation session")
	}
	return nil
}

// CheckLive fails with ErrTokenRevoked when claims, or the impersonation
// session they belong to, were revoked.
func (ts *TokenService) CheckLive(ctx context.Context, claims *Claims) error {
	revoked, err := ts.denylist.IsRevoked(ctx, claims.Kind, claims.TokenID())
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check token revocation")
	}
	if revoked {
		return ErrTokenRevoked
	}

	if claims.SwitchID == "" {
		return nil
	}
	revoked, err = ts.denylist.IsRevoked(ctx, switchSessionKind, claims.SwitchID)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check impersonation session")
	}
	if revoked {
		return ErrTokenRevoked
	}
	return nil
}

// Verify decodes raw and checks it has not been revoked.
func (ts *TokenService) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims, err := ts.Decode(raw)
	if err != nil {
		return nil, err
	}
	if err := ts.CheckLive(ctx, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (ts *TokenService) sign(claims *Claims) (*IssuedToken, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString(ts.config.SigningKey)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign token")
	}

	return &IssuedToken{Token: signed, Claims: claims}, nil
}

func (ts *TokenService) expiry(kind TokenKind, now time.Time, opts EncodeOptions) (time.Time, error) {
	if !opts.ExpiresAt.IsZero() {
		return opts.ExpiresAt, nil
	}

	ttl := opts.TTL
	if ttl == 0 {
		ttl = ts.config.TTL(kind)
	}
	if ttl < 0 {
		return time.Time{}, goerrors.New("token TTL must be non-negative", goerrors.CategoryBadInput).
			WithCode(goerrors.CodeBadRequest)
	}

	return now.Add(ttl), nil
}

func (ts *TokenService) audience() jwt.ClaimStrings {
	if len(ts.config.Audience) == 0 {
		return nil
	}
	aud := make(jwt.ClaimStrings, len(ts.config.Audience))
	copy(aud, ts.config.Audience)
	return aud
}

func newTokenID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token id")
	}
	return id.String(), nil
}

func mapParseError(err error) error {
	switch {
	case goerrors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	case goerrors.Is(err, jwt.ErrTokenSignatureInvalid),
		goerrors.Is(err, jwt.ErrTokenUnverifiable):
		return ErrTokenInvalidSignature
	default:
		return ErrTokenMalformed
	}
}
