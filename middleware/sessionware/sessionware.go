// Package sessionware authenticates fiber requests with identity tokens.
//
// The middleware extracts a raw token, verifies it (signature, expiry and
// revocation), checks the token kind against the configured operation,
// optionally resolves the active and root users, and stores the result in
// both fiber locals and the request's user context.
package sessionware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/permissions"
)

var (
	defaultTokenLookup         = "header:" + fiber.HeaderAuthorization
	ErrTokenMissingOrMalformed = errors.New("missing or malformed token")
)

// ValidationListener is invoked after a token has been verified but before
// the permission check.
type ValidationListener func(c *fiber.Ctx, claims *identity.Claims) error

type Config struct {
	Filter         func(*fiber.Ctx) bool
	SuccessHandler fiber.Handler
	ErrorHandler   fiber.ErrorHandler
	// Verifier is required.
	Verifier identity.TokenVerifier
	// Resolver loads the users behind the claims. Without it only the
	// claims are stored.
	Resolver *identity.Resolver
	// Operation decides which token kinds are accepted. Defaults to
	// identity.OpAuthorize, which accepts access tokens only.
	Operation identity.Operation
	// Requirement is checked against the permission snapshot of the token.
	Requirement permissions.Requirement
	ContextKey  string
	ClaimsKey   string
	TokenLookup string
	AuthScheme  string

	ValidationListeners []ValidationListener
}

func New(config ...Config) fiber.Handler {
	cfg := GetDefaultConfig(config...)
	extractors := GetExtractors(cfg.TokenLookup, cfg.AuthScheme)

	return func(c *fiber.Ctx) error {
		if cfg.Filter != nil && cfg.Filter(c) {
			return c.Next()
		}

		raw, err := ExtractRawToken(c, extractors)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		ctx := c.UserContext()
		claims, err := cfg.Verifier.Verify(ctx, raw)
		if err != nil {
			return cfg.ErrorHandler(c, err)
		}

		if !cfg.Operation.Accepts(claims.Kind) {
			return cfg.ErrorHandler(c, identity.ErrBadClaim)
		}

		for _, listener := range cfg.ValidationListeners {
			if listener == nil {
				continue
			}
			if err := listener(c, claims); err != nil {
				return cfg.ErrorHandler(c, err)
			}
		}

		if !claims.HasPermission(cfg.Requirement) {
			return cfg.ErrorHandler(c, identity.ErrForbidden)
		}

		c.Locals(cfg.ClaimsKey, claims)
		ctx = identity.WithClaimsContext(ctx, claims)

		if cfg.Resolver != nil {
			res, err := cfg.Resolver.Resolve(ctx, claims)
			if err != nil {
				return cfg.ErrorHandler(c, err)
			}
			c.Locals(cfg.ContextKey, res)
			ctx = identity.WithContext(ctx, res)
		}

		c.SetUserContext(ctx)

		return cfg.SuccessHandler(c)
	}
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(c *fiber.Ctx) error {
			return c.Next()
		}
	}

	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = WriteError
	}

	if cfg.Verifier == nil {
		panic("IDENTITY: session middleware configuration: Verifier is required.")
	}

	if cfg.Operation == "" {
		cfg.Operation = identity.OpAuthorize
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "identity"
	}

	if cfg.ClaimsKey == "" {
		cfg.ClaimsKey = "claims"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	return cfg
}

// Claims returns the verified claims stored under the default key.
func Claims(c *fiber.Ctx) (*identity.Claims, bool) {
	claims, ok := c.Locals("claims").(*identity.Claims)
	return claims, ok && claims != nil
}

// Resolution returns the resolved identity stored under the default key.
func Resolution(c *fiber.Ctx) (*identity.Resolution, bool) {
	res, ok := c.Locals("identity").(*identity.Resolution)
	return res, ok && res != nil
}

func ExtractRawToken(c *fiber.Ctx, extractors []Extractor) (string, error) {
	err := ErrTokenMissingOrMalformed
	for _, extractor := range extractors {
		raw, xerr := extractor(c)
		if raw != "" && xerr == nil {
			return raw, nil
		}
		err = xerr
	}
	return "", err
}

type Extractor func(c *fiber.Ctx) (string, error)

// GetExtractors parses a lookup such as
// "header:Authorization,cookie:identity_token,query:token".
func GetExtractors(tokenLookup string, authScheme string) []Extractor {
	extractors := make([]Extractor, 0)

	for _, rootPart := range strings.Split(tokenLookup, ",") {
		parts := strings.SplitN(strings.TrimSpace(rootPart), ":", 2)
		if len(parts) != 2 {
			continue
		}
		source, name := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])

		switch source {
		case "header":
			extractors = append(extractors, fromHeader(name, authScheme))
		case "query":
			extractors = append(extractors, fromQuery(name))
		case "param":
			extractors = append(extractors, fromParam(name))
		case "cookie":
			extractors = append(extractors, fromCookie(name))
		}
	}

	return extractors
}

func fromHeader(header string, authScheme string) Extractor {
	authScheme = strings.TrimSpace(authScheme)
	return func(c *fiber.Ctx) (string, error) {
		a := c.Get(header)
		l := len(authScheme)
		if l == 0 {
			if a == "" {
				return "", ErrTokenMissingOrMalformed
			}
			return strings.TrimSpace(a), nil
		}
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrTokenMissingOrMalformed
	}
}

func fromQuery(param string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Query(param)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func fromParam(param string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Params(param)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}

func fromCookie(name string) Extractor {
	return func(c *fiber.Ctx) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrTokenMissingOrMalformed
		}
		return token, nil
	}
}
