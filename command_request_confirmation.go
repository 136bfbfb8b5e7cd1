package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// RequestConfirmationMessage asks for proof of a contact value. An empty
// Value re-sends the proof for the current pending value.
type RequestConfirmationMessage struct {
	UserID  uuid.UUID `json:"user_id"`
	Channel Channel   `json:"channel"`
	Value   string    `json:"value"`
}

func (m RequestConfirmationMessage) Type() string { return "user.contact.confirm" }

// RequestConfirmationHandler stores the requested contact value as pending,
// issues a PIN for the channel and a login token naming the pending value,
// and hands both to the Notifier.
type RequestConfirmationHandler struct {
	engine   *Engine
	notifier Notifier
}

func NewRequestConfirmationHandler(engine *Engine, notifier Notifier) *RequestConfirmationHandler {
	return &RequestConfirmationHandler{
		engine:   engine,
		notifier: normalizeNotifier(notifier),
	}
}

func (h *RequestConfirmationHandler) Execute(ctx context.Context, event RequestConfirmationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during confirmation request",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestConfirmationHandler) execute(ctx context.Context, event RequestConfirmationMessage) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	value, err := normalizeContact(event.Channel, event.Value)
	if err != nil {
		return err
	}

	user, err := h.engine.store.FetchByID(ctx, event.UserID)
	if err != nil {
		return h.engine.fail("confirmation request lookup failed", err, "user_id", event.UserID)
	}

	if value != "" {
		user, err = h.engine.store.Update(ctx, user.ID, func(u *User) error {
			return u.RequestContactChange(event.Channel, value)
		})
		if err != nil {
			return h.engine.fail("confirmation request update failed", err, "user_id", event.UserID)
		}
	}

	_, pending := user.Contact(event.Channel)
	if pending == "" {
		return NewValidationError(FieldErrors{"value": {MessageRequired}})
	}

	pin, user, err := h.engine.IssuePin(ctx, user, event.Channel, 0, ForAddress(pending))
	if err != nil {
		return err
	}

	token, err := h.engine.tokens.Encode(ctx, user, TokenLogin, EncodeOptions{
		Confirmation: confirmationFor(event.Channel, pending),
	})
	if err != nil {
		return h.engine.fail("confirmation login token failed", err, "user_id", user.ID)
	}

	if err := h.notifier.SendConfirmation(ctx, ConfirmationNotice{
		User:    user,
		Token:   token.Token,
		Pin:     pin,
		Channel: event.Channel,
		Address: pending,
	}); err != nil {
		h.engine.logger.Error("confirmation notification failed", "error", err, "user_id", user.ID)
	}

	return nil
}

func normalizeContact(channel Channel, value string) (string, error) {
	switch channel {
	case ChannelEmail:
		return NormalizeEmail(value), nil
	case ChannelMobile:
		return NormalizeMobile(value), nil
	default:
		return "", ErrUnsupportedChannel
	}
}

func confirmationFor(channel Channel, value string) *Confirmation {
	if channel == ChannelEmail {
		return &Confirmation{Email: value}
	}
	return &Confirmation{Mobile: value}
}
