package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

type RequestPasswordResetMessage struct {
	Email string `json:"email"`
}

func (m RequestPasswordResetMessage) Type() string { return "user.password_reset.request" }

// RequestPasswordResetHandler issues a password_reset token and an email PIN
// and hands both to the Notifier. It succeeds whether or not the account
// exists.
type RequestPasswordResetHandler struct {
	engine   *Engine
	notifier Notifier
}

func NewRequestPasswordResetHandler(engine *Engine, notifier Notifier) *RequestPasswordResetHandler {
	return &RequestPasswordResetHandler{
		engine:   engine,
		notifier: normalizeNotifier(notifier),
	}
}

func (h *RequestPasswordResetHandler) Execute(ctx context.Context, event RequestPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestPasswordResetHandler) execute(ctx context.Context, event RequestPasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	email := NormalizeEmail(event.Email)
	if email == "" {
		return NewValidationError(FieldErrors{"email": {MessageRequired}})
	}

	user, err := h.engine.store.FetchByEmail(ctx, email)
	if err != nil {
		if goerrors.IsNotFound(err) {
			h.engine.logger.Info("password reset requested for unknown email")
			return nil
		}
		return h.engine.fail("password reset lookup failed", err)
	}

	token, err := h.engine.tokens.Encode(ctx, user, TokenPasswordReset, EncodeOptions{})
	if err != nil {
		return h.engine.fail("password reset token failed", err, "user_id", user.ID)
	}

	pin, user, err := h.engine.IssuePin(ctx, user, ChannelEmail, 0, ForAddress(email))
	if err != nil {
		return err
	}

	h.engine.emit(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetIssued,
		Actor:     actorFromUser(user),
		UserID:    user.ID.String(),
		ToState:   StatePasswordReset,
	})

	if err := h.notifier.SendPasswordReset(ctx, PasswordResetNotice{
		User:    user,
		Token:   token.Token,
		Pin:     pin,
		Address: email,
	}); err != nil {
		h.engine.logger.Error("password reset notification failed", "error", err, "user_id", user.ID)
	}

	return nil
}
