package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// UserStore is the persistence collaborator for user identities.
// Lookup keys are expected to be normalized by the caller.
type UserStore interface {
	FetchByUsername(ctx context.Context, username string) (*User, error)
	// FetchByEmail matches the confirmed email first, then the pending one.
	FetchByEmail(ctx context.Context, email string) (*User, error)
	// FetchByMobile matches the confirmed mobile first, then the pending one.
	FetchByMobile(ctx context.Context, mobile string) (*User, error)
	FetchByID(ctx context.Context, id uuid.UUID) (*User, error)
	Create(ctx context.Context, user *User) (*User, error)
	// Update applies fn to the current record and persists the result as a
	// single atomic read-modify-write. Returning an error from fn aborts the
	// update without writing.
	Update(ctx context.Context, id uuid.UUID, fn func(*User) error) (*User, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Hasher hashes and compares secrets (passwords and PINs).
type Hasher interface {
	Hash(secret string) (string, error)
	Compare(secret, hash string) error
}

// Denylist tracks tokens revoked ahead of their natural expiry.
type Denylist interface {
	IsRevoked(ctx context.Context, kind TokenKind, tokenID string) (bool, error)
	Revoke(ctx context.Context, kind TokenKind, tokenID string, expiresAt time.Time) error
	// RevokeIfAbsent revokes the id unless a live entry exists, as one
	// atomic step. It reports whether this call added the entry.
	RevokeIfAbsent(ctx context.Context, kind TokenKind, tokenID string, expiresAt time.Time) (bool, error)
}

// Notifier delivers confirmation and password reset messages.
type Notifier interface {
	SendConfirmation(ctx context.Context, msg ConfirmationNotice) error
	SendPasswordReset(ctx context.Context, msg PasswordResetNotice) error
}

// ConfirmationNotice is handed to a Notifier when a contact value needs proof.
type ConfirmationNotice struct {
	User    *User
	Token   string
	Pin     string
	Channel Channel
	Address string
}

// PasswordResetNotice is handed to a Notifier when a reset was requested.
type PasswordResetNotice struct {
	User    *User
	Token   string
	Pin     string
	Address string
}

type defLogger struct{}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Println("[DBG] IDENTITY " + formatLog(msg, args...))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Println("[INF] IDENTITY " + formatLog(msg, args...))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Println("[WRN] IDENTITY " + formatLog(msg, args...))
}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Println("[ERR] IDENTITY " + formatLog(msg, args...))
}

func formatLog(msg string, args ...any) string {
	if len(args) == 0 {
		return msg
	}

	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		b.WriteString(" ")
		if i+1 < len(args) {
			fmt.Fprintf(&b, "%v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, "%v", args[i])
	}
	return b.String()
}

func normalizeLogger(l Logger) Logger {
	if l == nil {
		return defLogger{}
	}
	return l
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a Logger that discards everything.
func NopLogger() Logger {
	return nopLogger{}
}
