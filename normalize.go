package identity

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/nyaruka/phonenumbers"
)

// NormalizeUsername trims and case folds a username.
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail trims and case folds an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizeMobile reduces a mobile number to its digits.
func NormalizeMobile(mobile string) string {
	return phonenumbers.NormalizeDigitsOnly(strings.TrimSpace(mobile))
}

// IdentifierKind names the lookup key a login attempt uses.
type IdentifierKind string

const (
	IdentifierUsername IdentifierKind = "username"
	IdentifierEmail    IdentifierKind = "email"
	IdentifierMobile   IdentifierKind = "mobile"
)

// fieldErrorsFrom converts ozzo validation errors into FieldErrors. Nested
// rule errors keep their message, which is one of the Message* constants.
func fieldErrorsFrom(err error) (FieldErrors, bool) {
	verrs, ok := err.(validation.Errors)
	if !ok {
		return nil, false
	}
	fields := FieldErrors{}
	for field, ferr := range verrs {
		if ferr == nil {
			continue
		}
		fields.Add(field, ferr.Error())
	}
	return fields, len(fields) > 0
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	if fields, ok := fieldErrorsFrom(err); ok {
		return NewValidationError(fields)
	}
	return err
}
