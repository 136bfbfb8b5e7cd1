package sessionware_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/middleware/sessionware"
	"github.com/goliatone/go-identity/permissions"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine *identity.Engine
	admin  *identity.User
	member *identity.User
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store := identity.NewMemoryStore()
	engine := identity.NewEngine(identity.Config{
		SigningKey:    []byte("sessionware-test-key"),
		Impersonation: identity.ImpersonationPolicy{Mode: identity.ImpersonationAllowed},
	}, store).WithLogger(identity.NopLogger())

	ctx := context.Background()
	admin, err := store.Create(ctx, &identity.User{
		Username:    "admin",
		Permissions: permissions.Map{"admin": permissions.NewSet("read", "write")},
	})
	require.NoError(t, err)

	member, err := store.Create(ctx, &identity.User{Username: "member"})
	require.NoError(t, err)

	return &fixture{engine: engine, admin: admin, member: member}
}

func (f *fixture) token(t *testing.T, user *identity.User, kind identity.TokenKind) string {
	t.Helper()
	issued, err := f.engine.IssueToken(context.Background(), user, kind, identity.EncodeOptions{})
	require.NoError(t, err)
	return issued.Token
}

func newApp(cfg sessionware.Config) *fiber.App {
	app := fiber.New()
	app.Get("/me", sessionware.New(cfg), func(c *fiber.Ctx) error {
		out := fiber.Map{}
		if claims, ok := sessionware.Claims(c); ok {
			out["sub"] = claims.Subject
		}
		if res, ok := identity.FromContext(c.UserContext()); ok {
			out["username"] = res.Active.Username
			out["actor"] = res.Actor().Username
		}
		return c.JSON(out)
	})
	return app
}

func doGet(t *testing.T, app *fiber.App, header string) (*http.Response, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set(fiber.HeaderAuthorization, header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp, body
}

func TestMiddlewareAcceptsAccessToken(t *testing.T) {
	f := newFixture(t)
	app := newApp(sessionware.Config{
		Verifier: f.engine.Tokens(),
		Resolver: f.engine.Resolver(),
	})

	resp, body := doGet(t, app, "Bearer "+f.token(t, f.admin, identity.TokenAccess))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, f.admin.ID.String(), body["sub"])
	assert.Equal(t, "admin", body["username"])
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	f := newFixture(t)
	app := newApp(sessionware.Config{Verifier: f.engine.Tokens()})

	resp, body := doGet(t, app, "")
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, identity.TextCodeTokenMalformed, body["error"].(map[string]any)["code"])
}

func TestMiddlewareRejectsWrongKind(t *testing.T) {
	f := newFixture(t)
	app := newApp(sessionware.Config{Verifier: f.engine.Tokens()})

	resp, body := doGet(t, app, "Bearer "+f.token(t, f.admin, identity.TokenRefresh))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, identity.TextCodeBadClaim, body["error"].(map[string]any)["code"])
}

func TestMiddlewareRejectsRevokedToken(t *testing.T) {
	f := newFixture(t)
	app := newApp(sessionware.Config{Verifier: f.engine.Tokens()})

	raw := f.token(t, f.admin, identity.TokenAccess)
	require.NoError(t, f.engine.Logout(context.Background(), raw))

	resp, body := doGet(t, app, "Bearer "+raw)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, identity.TextCodeTokenRevoked, body["error"].(map[string]any)["code"])
}

func TestMiddlewareRequirement(t *testing.T) {
	f := newFixture(t)
	app := newApp(sessionware.Config{
		Verifier:    f.engine.Tokens(),
		Requirement: permissions.Require("admin", "write"),
	})

	resp, _ := doGet(t, app, "Bearer "+f.token(t, f.admin, identity.TokenAccess))
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, body := doGet(t, app, "Bearer "+f.token(t, f.member, identity.TokenAccess))
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	assert.Equal(t, identity.TextCodeForbidden, body["error"].(map[string]any)["code"])
}

func TestMiddlewareResolvesImpersonation(t *testing.T) {
	f := newFixture(t)
	app := newApp(sessionware.Config{
		Verifier: f.engine.Tokens(),
		Resolver: f.engine.Resolver(),
	})

	ctx := context.Background()
	claims, err := f.engine.Verify(ctx, f.token(t, f.admin, identity.TokenAccess))
	require.NoError(t, err)

	switched, err := f.engine.SwitchUser(ctx, claims, f.member.ID)
	require.NoError(t, err)

	resp, body := doGet(t, app, "Bearer "+switched.Access.Token)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "member", body["username"])
	assert.Equal(t, "admin", body["actor"])
}

func TestMiddlewareFilterSkips(t *testing.T) {
	f := newFixture(t)
	app := newApp(sessionware.Config{
		Verifier: f.engine.Tokens(),
		Filter:   func(*fiber.Ctx) bool { return true },
	})

	resp, body := doGet(t, app, "")
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Empty(t, body)
}

func TestGetExtractors(t *testing.T) {
	extractors := sessionware.GetExtractors("header:Authorization, cookie:identity_token,query:token,bogus", "Bearer")
	assert.Len(t, extractors, 3)
}

func TestGetDefaultConfigRequiresVerifier(t *testing.T) {
	assert.Panics(t, func() {
		sessionware.GetDefaultConfig(sessionware.Config{})
	})
}
