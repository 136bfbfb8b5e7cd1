package identity

import (
	"time"

	"github.com/goliatone/go-identity/permissions"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TokenKind is the role a token plays.
type TokenKind string

const (
	TokenAccess        TokenKind = "access"
	TokenRefresh       TokenKind = "refresh"
	TokenLogin         TokenKind = "login"
	TokenPasswordReset TokenKind = "password_reset"
)

// Valid reports whether k is a known token kind.
func (k TokenKind) Valid() bool {
	switch k {
	case TokenAccess, TokenRefresh, TokenLogin, TokenPasswordReset:
		return true
	default:
		return false
	}
}

// Channel is a contact channel a PIN can prove.
type Channel string

const (
	ChannelEmail  Channel = "email"
	ChannelMobile Channel = "mobile"
)

// User is the user model. Username, Email and Mobile are stored normalized.
// Email and Mobile hold confirmed values only; unconfirmed values live in
// RequestedEmail and RequestedMobile until proven.
type User struct {
	bun.BaseModel     `bun:"table:users,alias:usr"`
	ID                uuid.UUID       `bun:"id,pk,type:uuid" json:"id"`
	Username          string          `bun:"username,nullzero,unique" json:"username,omitempty"`
	Email             string          `bun:"email,nullzero,unique" json:"email,omitempty"`
	RequestedEmail    string          `bun:"requested_email,nullzero" json:"requested_email,omitempty"`
	Mobile            string          `bun:"mobile,nullzero,unique" json:"mobile,omitempty"`
	RequestedMobile   string          `bun:"requested_mobile,nullzero" json:"requested_mobile,omitempty"`
	PasswordHash      string          `bun:"password_hash,nullzero" json:"-"`
	Permissions       permissions.Map `bun:"permissions,type:jsonb" json:"permissions,omitempty"`
	PinHash           string          `bun:"pin_hash,nullzero" json:"-"`
	PinTarget         string          `bun:"pin_target,nullzero" json:"-"`
	PinExpiresAt      *time.Time      `bun:"pin_expires_at,nullzero" json:"-"`
	EmailPinHash      string          `bun:"email_pin_hash,nullzero" json:"-"`
	EmailPinTarget    string          `bun:"email_pin_target,nullzero" json:"-"`
	EmailPinExpiresAt *time.Time      `bun:"email_pin_expires_at,nullzero" json:"-"`
	Version           int64           `bun:"version,notnull,default:0" json:"-"`
	CreatedAt         *time.Time      `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt         *time.Time      `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Clone returns a deep copy so store implementations never share state
// with callers.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	out := *u
	out.Permissions = u.Permissions.Clone()
	out.PinExpiresAt = cloneTime(u.PinExpiresAt)
	out.EmailPinExpiresAt = cloneTime(u.EmailPinExpiresAt)
	out.CreatedAt = cloneTime(u.CreatedAt)
	out.UpdatedAt = cloneTime(u.UpdatedAt)
	return &out
}

// Contact returns the confirmed and pending values for a channel.
func (u *User) Contact(channel Channel) (confirmed, pending string) {
	switch channel {
	case ChannelEmail:
		return u.Email, u.RequestedEmail
	case ChannelMobile:
		return u.Mobile, u.RequestedMobile
	default:
		return "", ""
	}
}

// Address returns where a message for channel should be sent: the pending
// value when there is one, the confirmed value otherwise.
func (u *User) Address(channel Channel) string {
	confirmed, pending := u.Contact(channel)
	if pending != "" {
		return pending
	}
	return confirmed
}

// RequestContactChange stores value as the pending value for channel. A
// value equal to the confirmed one clears the pending field instead.
func (u *User) RequestContactChange(channel Channel, value string) error {
	switch channel {
	case ChannelEmail:
		u.RequestedEmail = pendingValue(u.Email, value)
	case ChannelMobile:
		u.RequestedMobile = pendingValue(u.Mobile, value)
	default:
		return ErrUnsupportedChannel
	}
	return nil
}

// promoteContact makes the pending value for channel the confirmed one.
func (u *User) promoteContact(channel Channel) bool {
	switch channel {
	case ChannelEmail:
		if u.RequestedEmail == "" {
			return false
		}
		u.Email, u.RequestedEmail = u.RequestedEmail, ""
	case ChannelMobile:
		if u.RequestedMobile == "" {
			return false
		}
		u.Mobile, u.RequestedMobile = u.RequestedMobile, ""
	default:
		return false
	}
	return true
}

// pinSlot points at the stored code for one channel. target is the address
// the code was delivered to.
type pinSlot struct {
	hash      *string
	target    *string
	expiresAt **time.Time
}

func (s pinSlot) clear() {
	*s.hash = ""
	*s.target = ""
	*s.expiresAt = nil
}

func (u *User) pinSlot(channel Channel) (pinSlot, error) {
	switch channel {
	case ChannelMobile:
		return pinSlot{hash: &u.PinHash, target: &u.PinTarget, expiresAt: &u.PinExpiresAt}, nil
	case ChannelEmail:
		return pinSlot{hash: &u.EmailPinHash, target: &u.EmailPinTarget, expiresAt: &u.EmailPinExpiresAt}, nil
	default:
		return pinSlot{}, ErrUnsupportedChannel
	}
}

func pendingValue(confirmed, requested string) string {
	if requested == confirmed {
		return ""
	}
	return requested
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
