package identity

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-identity/permissions"
	"github.com/google/uuid"
)

// Confirmation is the contact proof a login token carries. It names the
// pending value the token was issued for.
type Confirmation struct {
	Email  string `json:"email,omitempty"`
	Mobile string `json:"mobile,omitempty"`
}

// IsZero reports whether no contact value is being confirmed.
func (c *Confirmation) IsZero() bool {
	return c == nil || (c.Email == "" && c.Mobile == "")
}

// Claims is the decoded claim set of a signed token.
type Claims struct {
	jwt.RegisteredClaims
	Kind         TokenKind       `json:"knd"`
	Permissions  permissions.Map `json:"perms,omitempty"`
	RootUserID   string          `json:"root,omitempty"`
	// SwitchID is shared by every token minted inside one impersonation, so
	// ending it revokes the whole set.
	SwitchID     string          `json:"sw,omitempty"`
	Context      map[string]any  `json:"ctx,omitempty"`
	Confirmation *Confirmation   `json:"cnf,omitempty"`
}

// SubjectID returns the subject as a UUID.
func (c *Claims) SubjectID() (uuid.UUID, error) {
	return uuid.Parse(c.RegisteredClaims.Subject)
}

// RootID returns the root user id when the claims were produced by
// impersonation.
func (c *Claims) RootID() (uuid.UUID, bool) {
	if c.RootUserID == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(c.RootUserID)
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// Switched reports whether the claims belong to an impersonated session.
func (c *Claims) Switched() bool {
	return c.RootUserID != ""
}

// TokenID returns the jti claim.
func (c *Claims) TokenID() string {
	return c.RegisteredClaims.ID
}

// Expires returns the expiration time
func (c *Claims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *Claims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// HasPermission evaluates req against the permission snapshot.
func (c *Claims) HasPermission(req permissions.Requirement) bool {
	return permissions.Check(c.Permissions, req)
}

// Clone returns a deep copy of the claims.
func (c *Claims) Clone() *Claims {
	if c == nil {
		return nil
	}
	out := *c
	if len(c.RegisteredClaims.Audience) > 0 {
		out.RegisteredClaims.Audience = append(jwt.ClaimStrings(nil), c.RegisteredClaims.Audience...)
	}
	out.Permissions = c.Permissions.Clone()
	out.Context = cloneContext(c.Context)
	if c.Confirmation != nil {
		cnf := *c.Confirmation
		out.Confirmation = &cnf
	}
	return &out
}

func cloneContext(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
