package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/httpapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type outbox struct {
	mu            sync.Mutex
	confirmations []identity.ConfirmationNotice
	resets        []identity.PasswordResetNotice
}

func (o *outbox) notifier() identity.Notifier {
	return identity.NotifierFuncs{
		Confirmation: func(_ context.Context, msg identity.ConfirmationNotice) error {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.confirmations = append(o.confirmations, msg)
			return nil
		},
		PasswordReset: func(_ context.Context, msg identity.PasswordResetNotice) error {
			o.mu.Lock()
			defer o.mu.Unlock()
			o.resets = append(o.resets, msg)
			return nil
		},
	}
}

func newTestApp(t *testing.T) (*fiber.App, *outbox) {
	t.Helper()

	engine := identity.NewEngine(identity.Config{SigningKey: []byte("httpapi-test-key")}, identity.NewMemoryStore()).
		WithHasher(identity.NewBcryptHasher(4)).
		WithLogger(identity.NopLogger())

	box := &outbox{}
	app := fiber.New()
	httpapi.New(engine, box.notifier()).Mount(app)
	return app, box
}

func call(t *testing.T, app *fiber.App, method, path, bearer string, body any) (int, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)

	out := map[string]any{}
	if resp.ContentLength != 0 && resp.StatusCode != fiber.StatusNoContent {
		_ = json.NewDecoder(resp.Body).Decode(&out)
	}
	return resp.StatusCode, out
}

func accessToken(t *testing.T, body map[string]any) string {
	t.Helper()
	access, ok := body["access"].(map[string]any)
	require.True(t, ok, "missing access token in %v", body)
	return access["token"].(string)
}

func errorCode(body map[string]any) string {
	detail, _ := body["error"].(map[string]any)
	code, _ := detail["code"].(string)
	return code
}

func TestRegisterLoginAndMe(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := call(t, app, http.MethodPost, "/users", "", map[string]any{
		"email":    "Ada@Example.com",
		"password": "correct-horse",
	})
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "ada", body["username"])
	assert.Equal(t, "ada@example.com", body["requested_email"])

	status, body = call(t, app, http.MethodPost, "/auth/login", "", map[string]any{
		"username": "ada",
		"password": "correct-horse",
	})
	require.Equal(t, fiber.StatusOK, status)
	token := accessToken(t, body)

	status, body = call(t, app, http.MethodGet, "/me", token, nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["switched"])
}

func TestLoginFailureIsGeneric(t *testing.T) {
	app, _ := newTestApp(t)

	status, _ := call(t, app, http.MethodPost, "/users", "", map[string]any{
		"username": "grace",
		"password": "correct-horse",
	})
	require.Equal(t, fiber.StatusCreated, status)

	status, wrongPassword := call(t, app, http.MethodPost, "/auth/login", "", map[string]any{
		"username": "grace",
		"password": "wrong-horse",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, unknownUser := call(t, app, http.MethodPost, "/auth/login", "", map[string]any{
		"username": "nobody",
		"password": "wrong-horse",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, wrongPassword, unknownUser)
	assert.Equal(t, identity.TextCodeInvalidCreds, errorCode(unknownUser))
}

func TestRegisterValidation(t *testing.T) {
	app, _ := newTestApp(t)

	status, body := call(t, app, http.MethodPost, "/users", "", map[string]any{
		"username": "linus",
		"email":    "not-an-email",
		"password": "short",
	})
	require.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, identity.TextCodeValidation, errorCode(body))

	fields := body["error"].(map[string]any)["fields"].(map[string]any)
	assert.Equal(t, []any{identity.MessageInvalidEmail}, fields["email"])
	assert.Equal(t, []any{identity.MessageTooShort}, fields["password"])
}

func TestSwitchUserDisabledByDefault(t *testing.T) {
	app, _ := newTestApp(t)

	_, target := call(t, app, http.MethodPost, "/users", "", map[string]any{"username": "target", "password": "correct-horse"})
	call(t, app, http.MethodPost, "/users", "", map[string]any{"username": "caller", "password": "correct-horse"})

	_, body := call(t, app, http.MethodPost, "/auth/login", "", map[string]any{"username": "caller", "password": "correct-horse"})
	token := accessToken(t, body)

	status, body := call(t, app, http.MethodPost, "/me/switch/"+target["id"].(string), token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, identity.TextCodeForbidden, errorCode(body))

	status, body = call(t, app, http.MethodPost, "/me/reset", token, nil)
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, identity.TextCodeNotSwitched, errorCode(body))
}

func TestPasswordResetFlow(t *testing.T) {
	app, box := newTestApp(t)

	call(t, app, http.MethodPost, "/users", "", map[string]any{"email": "reset@example.com", "password": "first-password"})

	status, _ := call(t, app, http.MethodPost, "/password-reset", "", map[string]any{"email": "reset@example.com"})
	require.Equal(t, fiber.StatusAccepted, status)

	status, _ = call(t, app, http.MethodPost, "/password-reset", "", map[string]any{"email": "ghost@example.com"})
	require.Equal(t, fiber.StatusAccepted, status, "unknown emails look the same")

	require.Len(t, box.resets, 1)
	notice := box.resets[0]

	status, _ = call(t, app, http.MethodPost, "/password-reset/finalize", "", map[string]any{
		"token":        notice.Token,
		"password":     "second-password",
		"confirmation": "second-password",
	})
	require.Equal(t, fiber.StatusNoContent, status)

	status, body := call(t, app, http.MethodPost, "/password-reset/finalize", "", map[string]any{
		"token":        notice.Token,
		"password":     "third-password",
		"confirmation": "third-password",
	})
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, identity.TextCodeTokenRevoked, errorCode(body))

	status, _ = call(t, app, http.MethodPost, "/auth/login", "", map[string]any{"email": "reset@example.com", "password": "second-password"})
	assert.Equal(t, fiber.StatusOK, status)
}

func TestContactConfirmationWithPin(t *testing.T) {
	app, box := newTestApp(t)

	call(t, app, http.MethodPost, "/users", "", map[string]any{"username": "mo", "password": "correct-horse"})
	_, body := call(t, app, http.MethodPost, "/auth/login", "", map[string]any{"username": "mo", "password": "correct-horse"})
	token := accessToken(t, body)

	status, _ := call(t, app, http.MethodPost, "/me/contact", token, map[string]any{"channel": "mobile", "value": "+1 (555) 010-0200"})
	require.Equal(t, fiber.StatusAccepted, status)
	require.Len(t, box.confirmations, 1)
	assert.Equal(t, "15550100200", box.confirmations[0].Address)

	status, body = call(t, app, http.MethodPost, "/me/contact/confirm", token, map[string]any{"channel": "mobile", "pin": box.confirmations[0].Pin})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "15550100200", body["mobile"])
	assert.Nil(t, body["requested_mobile"])
}

func TestLogoutRevokesBearer(t *testing.T) {
	app, _ := newTestApp(t)

	call(t, app, http.MethodPost, "/users", "", map[string]any{"username": "bye", "password": "correct-horse"})
	_, body := call(t, app, http.MethodPost, "/auth/login", "", map[string]any{"username": "bye", "password": "correct-horse"})
	token := accessToken(t, body)

	status, _ := call(t, app, http.MethodPost, "/auth/logout", token, nil)
	require.Equal(t, fiber.StatusNoContent, status)

	status, body = call(t, app, http.MethodGet, "/me", token, nil)
	assert.Equal(t, fiber.StatusUnauthorized, status)
	assert.Equal(t, identity.TextCodeTokenRevoked, errorCode(body))
}
