package sessionware

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
)

// ErrorBody is the JSON envelope of every failed request.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string               `json:"code"`
	Message string               `json:"message"`
	Fields  identity.FieldErrors `json:"fields,omitempty"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	if errors.Is(err, ErrTokenMissingOrMalformed) {
		return fiber.StatusUnauthorized
	}

	switch identity.Kind(err) {
	case identity.TextCodeValidation,
		identity.TextCodePasswordMismatch,
		identity.TextCodeEmptyPassword,
		identity.TextCodeUnsupportedChannel:
		return fiber.StatusBadRequest
	case identity.TextCodeInvalidCreds,
		identity.TextCodeWrongPin,
		identity.TextCodeNoPin,
		identity.TextCodePinExpired,
		identity.TextCodeWrongPassword,
		identity.TextCodeBadClaim,
		identity.TextCodeInvalidSignature,
		identity.TextCodeTokenExpired,
		identity.TextCodeTokenMalformed,
		identity.TextCodeTokenRevoked:
		return fiber.StatusUnauthorized
	case identity.TextCodeForbidden, identity.TextCodeNotSwitched:
		return fiber.StatusForbidden
	case identity.TextCodeNotFound:
		return fiber.StatusNotFound
	default:
		return fiber.StatusInternalServerError
	}
}

// WriteError renders err in its public shape. Internal detail never reaches
// the response.
func WriteError(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrTokenMissingOrMalformed) {
		err = identity.ErrTokenMalformed
	}

	public := identity.PublicError(err)
	body := ErrorBody{Error: ErrorDetail{
		Code:    public.TextCode,
		Message: public.Message,
	}}
	if fields, ok := identity.ValidationFields(public); ok {
		body.Error.Fields = fields
	}

	return c.Status(StatusFor(err)).JSON(body)
}
