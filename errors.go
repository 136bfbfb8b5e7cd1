package identity

import (
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes identify the error kind surfaced to callers.
const (
	TextCodeValidation         = "VALIDATION_FAILED"
	TextCodePasswordMismatch   = "PASSWORD_MISMATCH"
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeWrongPin           = "WRONG_PIN"
	TextCodeNoPin              = "NO_PIN"
	TextCodePinExpired         = "PIN_EXPIRED"
	TextCodeWrongPassword      = "WRONG_PASSWORD"
	TextCodeBadClaim           = "BAD_CLAIM"
	TextCodeInvalidSignature   = "TOKEN_INVALID_SIGNATURE"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeTokenRevoked       = "TOKEN_REVOKED"
	TextCodeForbidden          = "FORBIDDEN"
	TextCodeNotSwitched        = "NOT_SWITCHED"
	TextCodeNotFound           = "NOT_FOUND"
	TextCodeInternal           = "INTERNAL_ERROR"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeImmutableClaim     = "IMMUTABLE_CLAIM_MUTATION"
	TextCodeUnsupportedChannel = "UNSUPPORTED_CHANNEL"
)

// Field validation messages.
const (
	MessageRequired      = "required"
	MessageTooShort      = "too_short"
	MessageInvalidEmail  = "invalid_email"
	MessageInvalidMobile = "invalid_mobile"
	MessageUsernameTaken = "username_taken"
	MessageEmailTaken    = "email_taken"
	MessageMobileTaken   = "mobile_taken"
	MessageMismatch      = "mismatch"
)

// ErrIdentityNotFound is returned when a user record does not exist.
var ErrIdentityNotFound = goerrors.New("identity not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInvalidCredentials is returned by every login path regardless of which
// factor failed, so callers cannot tell a wrong secret from a missing account.
var ErrInvalidCredentials = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

var ErrWrongPin = goerrors.New("the pin provided is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongPin).
	WithCode(goerrors.CodeUnauthorized)

var ErrNoPin = goerrors.New("no pin has been issued", goerrors.CategoryAuth).
	WithTextCode(TextCodeNoPin).
	WithCode(goerrors.CodeUnauthorized)

var ErrPinExpired = goerrors.New("the pin has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodePinExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrWrongPassword = goerrors.New("the current password is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeWrongPassword).
	WithCode(goerrors.CodeUnauthorized)

// ErrBadClaim is returned when a token of the wrong kind is presented.
var ErrBadClaim = goerrors.New("token is not valid for this operation", goerrors.CategoryAuth).
	WithTextCode(TextCodeBadClaim).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenInvalidSignature = goerrors.New("token signature is invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidSignature).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

var ErrTokenRevoked = goerrors.New("token has been revoked", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(goerrors.CodeUnauthorized)

var ErrForbidden = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeForbidden).
	WithCode(goerrors.CodeForbidden)

// ErrNotSwitched is returned when resetting a session that is not impersonating.
var ErrNotSwitched = goerrors.New("access denied", goerrors.CategoryAuthz).
	WithTextCode(TextCodeNotSwitched).
	WithCode(goerrors.CodeForbidden)

// ErrInternal is the only error shape internal failures are reported as.
var ErrInternal = goerrors.New("an unexpected error occurred", goerrors.CategoryInternal).
	WithTextCode(TextCodeInternal).
	WithCode(goerrors.CodeInternal)

// ErrNoEmptyString is returned when hashing an empty secret.
var ErrNoEmptyString = goerrors.New("secret cannot be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrImmutableClaimMutation is returned when a decorator touches protected claims.
var ErrImmutableClaimMutation = goerrors.New("immutable claim mutated", goerrors.CategoryInternal).
	WithTextCode(TextCodeImmutableClaim).
	WithCode(goerrors.CodeInternal)

// ErrUnsupportedChannel is returned for unknown PIN channels.
var ErrUnsupportedChannel = goerrors.New("unsupported contact channel", goerrors.CategoryBadInput).
	WithTextCode(TextCodeUnsupportedChannel).
	WithCode(goerrors.CodeBadRequest)

// FieldErrors maps a field name to its validation messages.
type FieldErrors map[string][]string

// Add appends a message for field.
func (f FieldErrors) Add(field, message string) FieldErrors {
	f[field] = append(f[field], message)
	return f
}

// Fields returns the field names sorted.
func (f FieldErrors) Fields() []string {
	out := make([]string, 0, len(f))
	for field := range f {
		out = append(out, field)
	}
	sort.Strings(out)
	return out
}

// NewValidationError builds a validation error carrying field level messages.
func NewValidationError(fields FieldErrors) *goerrors.Error {
	return newValidationError(TextCodeValidation, "validation failed", fields)
}

// NewPasswordMismatchError is the validation error for a confirmation that
// does not match the new password.
func NewPasswordMismatchError() *goerrors.Error {
	return newValidationError(
		TextCodePasswordMismatch,
		"password confirmation does not match",
		FieldErrors{"confirmation": {MessageMismatch}},
	)
}

func newValidationError(textCode, message string, fields FieldErrors) *goerrors.Error {
	return goerrors.New(message, goerrors.CategoryValidation).
		WithTextCode(textCode).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{"fields": fields})
}

// ValidationFields extracts the field messages from a validation error.
func ValidationFields(err error) (FieldErrors, bool) {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryValidation {
		return nil, false
	}
	fields, ok := richErr.Metadata["fields"].(FieldErrors)
	return fields, ok
}

// Kind returns the text code of a domain error, or TextCodeInternal for
// anything that is not one.
func Kind(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.TextCode != "" && isPublic(richErr) {
		return richErr.TextCode
	}
	return TextCodeInternal
}

// IsKind reports whether err carries the given text code.
func IsKind(err error, textCode string) bool {
	return Kind(err) == textCode
}

// PublicError converts err into the shape safe to hand to a caller: domain
// errors keep their kind and message (metadata other than validation fields
// is dropped), anything else collapses into ErrInternal.
func PublicError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.TextCode == "" || !isPublic(richErr) {
		return ErrInternal.Clone()
	}

	out := goerrors.New(richErr.Message, richErr.Category).
		WithTextCode(richErr.TextCode).
		WithCode(richErr.Code)

	if fields, ok := ValidationFields(richErr); ok {
		out = out.WithMetadata(map[string]any{"fields": fields})
	}

	return out
}

func isPublic(richErr *goerrors.Error) bool {
	switch richErr.Category {
	case goerrors.CategoryValidation,
		goerrors.CategoryAuth,
		goerrors.CategoryAuthz,
		goerrors.CategoryNotFound,
		goerrors.CategoryBadInput:
		return true
	default:
		return false
	}
}

// withMetadata attaches metadata to a copy of a sentinel, keeping errors.Is
// working against the sentinel.
func withMetadata(base *goerrors.Error, metadata map[string]any) *goerrors.Error {
	clone := base.Clone()
	if clone == nil {
		return base
	}
	clone.Source = base
	return clone.WithMetadata(metadata)
}

// IsTokenExpiredError reports whether err is an expired token error.
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if IsKind(err, TextCodeTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError reports whether err is a malformed token error.
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if IsKind(err, TextCodeTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed")
}
