package identity

import (
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-identity/permissions"
)

const (
	DefaultAccessTTL        = time.Hour
	DefaultRefreshTTL       = 180 * 24 * time.Hour
	DefaultLoginTTL         = 12 * time.Hour
	DefaultPasswordResetTTL = 12 * time.Hour
	DefaultPinTTL           = 15 * time.Minute
	DefaultPasswordMinLen   = 8
)

// ImpersonationMode selects how switch-user requests are authorized.
type ImpersonationMode string

const (
	ImpersonationDisabled   ImpersonationMode = "disabled"
	ImpersonationAllowed    ImpersonationMode = "allowed"
	ImpersonationPermission ImpersonationMode = "permission"
)

// ImpersonationPolicy decides whether a caller may switch to another user.
type ImpersonationPolicy struct {
	Mode ImpersonationMode
	// Requirement is evaluated against the caller's permission snapshot when
	// Mode is ImpersonationPermission.
	Requirement permissions.Requirement
}

// Permits reports whether a caller holding granted may impersonate.
func (p ImpersonationPolicy) Permits(granted permissions.Map) bool {
	switch p.Mode {
	case ImpersonationAllowed:
		return true
	case ImpersonationPermission:
		if p.Requirement == nil {
			return false
		}
		return permissions.Check(granted, p.Requirement)
	default:
		return false
	}
}

// Config holds the process wide engine settings. It is built once at startup
// and copied into the components that need it.
type Config struct {
	SigningKey        []byte
	Issuer            string
	Audience          []string
	AccessTTL         time.Duration
	RefreshTTL        time.Duration
	LoginTTL          time.Duration
	PasswordResetTTL  time.Duration
	PinTTL            time.Duration
	PasswordMinLength int
	Impersonation     ImpersonationPolicy
}

// WithDefaults fills zero durations and lengths with the package defaults.
func (c Config) WithDefaults() Config {
	if c.AccessTTL == 0 {
		c.AccessTTL = DefaultAccessTTL
	}
	if c.RefreshTTL == 0 {
		c.RefreshTTL = DefaultRefreshTTL
	}
	if c.LoginTTL == 0 {
		c.LoginTTL = DefaultLoginTTL
	}
	if c.PasswordResetTTL == 0 {
		c.PasswordResetTTL = DefaultPasswordResetTTL
	}
	if c.PinTTL == 0 {
		c.PinTTL = DefaultPinTTL
	}
	if c.PasswordMinLength == 0 {
		c.PasswordMinLength = DefaultPasswordMinLen
	}
	if c.Impersonation.Mode == "" {
		c.Impersonation.Mode = ImpersonationDisabled
	}
	if len(c.Audience) > 0 {
		c.Audience = append([]string(nil), c.Audience...)
	}
	if len(c.SigningKey) > 0 {
		c.SigningKey = append([]byte(nil), c.SigningKey...)
	}
	return c
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	fields := FieldErrors{}
	if len(c.SigningKey) == 0 {
		fields.Add("signing_key", MessageRequired)
	}
	for name, ttl := range map[string]time.Duration{
		"access_ttl":         c.AccessTTL,
		"refresh_ttl":        c.RefreshTTL,
		"login_ttl":          c.LoginTTL,
		"password_reset_ttl": c.PasswordResetTTL,
		"pin_ttl":            c.PinTTL,
	} {
		if ttl <= 0 {
			fields.Add(name, "must_be_positive")
		}
	}
	if c.PasswordMinLength < 1 {
		fields.Add("password_min_length", "must_be_positive")
	}
	switch c.Impersonation.Mode {
	case ImpersonationDisabled, ImpersonationAllowed:
	case ImpersonationPermission:
		if c.Impersonation.Requirement == nil {
			fields.Add("impersonation", MessageRequired)
		}
	default:
		fields.Add("impersonation", "unknown_mode")
	}

	if len(fields) > 0 {
		return goerrors.New("invalid identity configuration", goerrors.CategoryValidation).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest).
			WithMetadata(map[string]any{"fields": fields})
	}
	return nil
}

// TTL returns the default lifetime for kind.
func (c Config) TTL(kind TokenKind) time.Duration {
	switch kind {
	case TokenAccess:
		return c.AccessTTL
	case TokenRefresh:
		return c.RefreshTTL
	case TokenLogin:
		return c.LoginTTL
	case TokenPasswordReset:
		return c.PasswordResetTTL
	default:
		return 0
	}
}
