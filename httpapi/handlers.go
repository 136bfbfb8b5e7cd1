package httpapi

import (
	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/middleware/sessionware"
	"github.com/google/uuid"
)

type tokenRequest struct {
	Token string `json:"token"`
}

type logoutRequest struct {
	Tokens []string `json:"tokens"`
}

type contactRequest struct {
	Channel identity.Channel `json:"channel"`
	Value   string           `json:"value"`
	Pin     string           `json:"pin"`
}

func (a *API) fail(c *fiber.Ctx, err error) error {
	if identity.IsKind(err, identity.TextCodeInternal) {
		a.logger.Error("request failed", "path", c.Path(), "error", err)
	}
	return sessionware.WriteError(c, err)
}

func (a *API) Register(c *fiber.Ctx) error {
	var msg identity.RegisterUserMessage
	if err := c.BodyParser(&msg); err != nil {
		return a.fail(c, badBody())
	}
	msg.UseHashid = false
	msg.Permissions = nil

	var created *identity.User
	msg.OnResponse = func(user *identity.User) { created = user }

	if err := a.register.Execute(c.UserContext(), msg); err != nil {
		return a.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(toUser(created))
}

func (a *API) Login(c *fiber.Ctx) error {
	var creds identity.Credentials
	if err := c.BodyParser(&creds); err != nil {
		return a.fail(c, badBody())
	}

	session, err := a.engine.Authenticate(c.UserContext(), creds)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(toSession(session))
}

func (a *API) RedeemLoginToken(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return a.fail(c, badBody())
	}

	session, err := a.engine.RedeemLoginToken(c.UserContext(), req.Token)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(toSession(session))
}

func (a *API) Refresh(c *fiber.Ctx) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return a.fail(c, badBody())
	}

	access, err := a.engine.Refresh(c.UserContext(), req.Token)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(SessionResponse{Access: toToken(access)})
}

// Logout revokes the bearer token and any tokens listed in the body.
func (a *API) Logout(c *fiber.Ctx) error {
	var req logoutRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return a.fail(c, badBody())
		}
	}

	extractors := sessionware.GetExtractors("header:"+fiber.HeaderAuthorization, "Bearer")
	if raw, err := sessionware.ExtractRawToken(c, extractors); err == nil {
		req.Tokens = append(req.Tokens, raw)
	}

	_ = a.engine.Logout(c.UserContext(), req.Tokens...)
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *API) RequestPasswordReset(c *fiber.Ctx) error {
	var msg identity.RequestPasswordResetMessage
	if err := c.BodyParser(&msg); err != nil {
		return a.fail(c, badBody())
	}
	if err := a.resetRequest.Execute(c.UserContext(), msg); err != nil {
		return a.fail(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (a *API) FinalizePasswordReset(c *fiber.Ctx) error {
	var msg identity.FinalizePasswordResetMessage
	if err := c.BodyParser(&msg); err != nil {
		return a.fail(c, badBody())
	}
	if err := a.resetFinalize.Execute(c.UserContext(), msg); err != nil {
		return a.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (a *API) Me(c *fiber.Ctx) error {
	res, ok := sessionware.Resolution(c)
	if !ok {
		return a.fail(c, identity.ErrInvalidCredentials)
	}

	out := fiber.Map{
		"user":     toUser(res.Active),
		"switched": res.Switched(),
		"context":  res.Claims.Context,
	}
	if res.Root != nil {
		out["root"] = toUser(res.Root)
	}
	return c.JSON(out)
}

func (a *API) UpdatePassword(c *fiber.Ctx) error {
	claims, _ := sessionware.Claims(c)

	var change identity.PasswordChange
	if err := c.BodyParser(&change); err != nil {
		return a.fail(c, badBody())
	}

	user, err := a.engine.UpdatePassword(c.UserContext(), claims, change)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(toUser(user))
}

func (a *API) SwitchUser(c *fiber.Ctx) error {
	claims, _ := sessionware.Claims(c)

	target, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return a.fail(c, identity.NewValidationError(identity.FieldErrors{"id": {"invalid_uuid"}}))
	}

	session, err := a.engine.SwitchUser(c.UserContext(), claims, target)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(toSession(session))
}

func (a *API) ResetUser(c *fiber.Ctx) error {
	claims, _ := sessionware.Claims(c)

	session, err := a.engine.ResetUser(c.UserContext(), claims)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(toSession(session))
}

func (a *API) SetContext(c *fiber.Ctx) error {
	claims, _ := sessionware.Claims(c)

	var blob map[string]any
	if err := c.BodyParser(&blob); err != nil {
		return a.fail(c, badBody())
	}

	issued, err := a.engine.SetContext(c.UserContext(), claims, blob)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(toToken(issued))
}

func (a *API) ClearContext(c *fiber.Ctx) error {
	claims, _ := sessionware.Claims(c)

	issued, err := a.engine.ClearContext(c.UserContext(), claims)
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(toToken(issued))
}

// RequestConfirmation stores a pending contact value for the caller and
// sends its proof.
func (a *API) RequestConfirmation(c *fiber.Ctx) error {
	res, _ := sessionware.Resolution(c)

	var req contactRequest
	if err := c.BodyParser(&req); err != nil {
		return a.fail(c, badBody())
	}

	err := a.confirmation.Execute(c.UserContext(), identity.RequestConfirmationMessage{
		UserID:  res.Active.ID,
		Channel: req.Channel,
		Value:   req.Value,
	})
	if err != nil {
		return a.fail(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// ConfirmContact promotes the caller's pending contact value with a PIN.
func (a *API) ConfirmContact(c *fiber.Ctx) error {
	res, _ := sessionware.Resolution(c)

	var req contactRequest
	if err := c.BodyParser(&req); err != nil {
		return a.fail(c, badBody())
	}

	_, pending := res.Active.Contact(req.Channel)
	user, err := a.engine.ValidatePin(c.UserContext(), res.Active, req.Channel, req.Pin, identity.ConfirmingValue(pending))
	if err != nil {
		return a.fail(c, err)
	}
	return c.JSON(toUser(user))
}
