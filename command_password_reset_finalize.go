package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// FinalizePasswordResetMessage proves the reset either with the token from
// the notice or with the email and its PIN.
type FinalizePasswordResetMessage struct {
	Token        string `json:"token"`
	Email        string `json:"email"`
	Pin          string `json:"pin"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
	OnResponse   func(user *User) `json:"-"`
}

func (m FinalizePasswordResetMessage) Type() string { return "user.password_reset.finalize" }

type FinalizePasswordResetHandler struct {
	engine *Engine
}

func NewFinalizePasswordResetHandler(engine *Engine) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{engine: engine}
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	claims, err := h.resetClaims(ctx, event)
	if err != nil {
		return err
	}

	user, err := h.engine.UpdatePassword(ctx, claims, PasswordChange{
		NewPassword:  event.Password,
		Confirmation: event.Confirmation,
	})
	if err != nil {
		return err
	}

	if event.OnResponse != nil {
		event.OnResponse(user)
	}
	return nil
}

// resetClaims returns password_reset claims from the token, or mints them
// after the email PIN checks out.
func (h *FinalizePasswordResetHandler) resetClaims(ctx context.Context, event FinalizePasswordResetMessage) (*Claims, error) {
	if event.Token != "" {
		return h.engine.Verify(ctx, event.Token)
	}

	if event.Email == "" || event.Pin == "" {
		return nil, NewValidationError(FieldErrors{"token": {MessageRequired}})
	}

	email := NormalizeEmail(event.Email)
	user, err := h.engine.store.FetchByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrInvalidCredentials
		}
		return nil, h.engine.fail("password reset lookup failed", err)
	}

	if _, err := h.engine.ValidatePin(ctx, user, ChannelEmail, event.Pin, SentTo(email)); err != nil {
		if IsKind(err, TextCodeInternal) {
			return nil, err
		}
		return nil, ErrInvalidCredentials
	}

	issued, err := h.engine.tokens.Encode(ctx, user, TokenPasswordReset, EncodeOptions{})
	if err != nil {
		return nil, h.engine.fail("password reset token failed", err, "user_id", user.ID)
	}
	return issued.Claims, nil
}
