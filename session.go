package identity

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
)

// Session is the result of a successful login or identity change.
type Session struct {
	Access  *IssuedToken `json:"access"`
	Refresh *IssuedToken `json:"refresh,omitempty"`
	User    *User        `json:"user,omitempty"`
}

// Credentials is a login attempt. Exactly one of Username, Email or Mobile
// identifies the user, and exactly one of Password or Pin proves it.
type Credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Mobile   string `json:"mobile"`
	Password string `json:"password"`
	Pin      string `json:"pin"`
	// Remember also issues a refresh token.
	Remember bool `json:"remember"`
}

// Validate checks the shape of the attempt, not its correctness.
func (c Credentials) Validate() error {
	var identifierRules, secretRules []validation.Rule
	if c.Username == "" && c.Email == "" && c.Mobile == "" {
		identifierRules = append(identifierRules, validation.Required.Error(MessageRequired))
	}
	if c.Password == "" && c.Pin == "" {
		secretRules = append(secretRules, validation.Required.Error(MessageRequired))
	}

	return validation.ValidateStruct(&c,
		validation.Field(&c.Username, identifierRules...),
		validation.Field(&c.Password, secretRules...),
	)
}

// Identifier returns the lookup key of the attempt, preferring username,
// then email, then mobile.
func (c Credentials) Identifier() (IdentifierKind, string) {
	switch {
	case c.Username != "":
		return IdentifierUsername, NormalizeUsername(c.Username)
	case c.Email != "":
		return IdentifierEmail, NormalizeEmail(c.Email)
	default:
		return IdentifierMobile, NormalizeMobile(c.Mobile)
	}
}

// UsesPin reports whether the attempt is proven by a PIN.
func (c Credentials) UsesPin() bool {
	return c.Password == "" && c.Pin != ""
}

// PasswordChange carries the fields of a password update.
type PasswordChange struct {
	OldPassword  string `json:"old_password"`
	NewPassword  string `json:"password"`
	Confirmation string `json:"confirmation"`
}

// String hides the secrets.
func (c Credentials) String() string {
	kind, key := c.Identifier()
	return fmt.Sprintf("credentials %s=%s pin=%t remember=%t", kind, key, c.UsesPin(), c.Remember)
}

// ExpiresIn returns how long the access token of the session stays valid.
func (s *Session) ExpiresIn(now time.Time) time.Duration {
	if s == nil || s.Access == nil {
		return 0
	}
	return s.Access.ExpiresAt().Sub(now)
}
