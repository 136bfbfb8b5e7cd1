package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// Resolution is the identity a request acts as. Root is set only while
// impersonating.
type Resolution struct {
	Active *User
	Root   *User
	Claims *Claims
}

// Switched reports whether the resolution comes from an impersonated session.
func (r *Resolution) Switched() bool {
	return r != nil && r.Root != nil
}

// Actor returns the user responsible for the request: the root user when
// impersonating, the active user otherwise.
func (r *Resolution) Actor() *User {
	if r == nil {
		return nil
	}
	if r.Root != nil {
		return r.Root
	}
	return r.Active
}

// Resolver maps claims back to the users they name.
type Resolver struct {
	store  UserStore
	logger Logger
}

func NewResolver(store UserStore) *Resolver {
	return &Resolver{
		store:  store,
		logger: defLogger{},
	}
}

func (r *Resolver) WithLogger(logger Logger) *Resolver {
	r.logger = normalizeLogger(logger)
	return r
}

// Resolve fetches the active user and, for switched claims, the root user.
// A subject or root that no longer exists fails with ErrInvalidCredentials.
func (r *Resolver) Resolve(ctx context.Context, claims *Claims) (*Resolution, error) {
	if claims == nil {
		return nil, ErrTokenMalformed
	}

	activeID, err := claims.SubjectID()
	if err != nil {
		return nil, ErrTokenMalformed
	}

	active, err := r.fetch(ctx, activeID)
	if err != nil {
		return nil, err
	}

	out := &Resolution{Active: active, Claims: claims}
	if !claims.Switched() {
		return out, nil
	}

	rootID, ok := claims.RootID()
	if !ok {
		return nil, ErrTokenMalformed
	}

	out.Root, err = r.fetch(ctx, rootID)
	if err != nil {
		return nil, err
	}

	return out, nil
}

func (r *Resolver) fetch(ctx context.Context, id uuid.UUID) (*User, error) {
	user, err := r.store.FetchByID(ctx, id)
	if err == nil {
		return user, nil
	}
	if goerrors.IsNotFound(err) {
		r.logger.Info("resolve identity missing", "user_id", id)
		return nil, ErrInvalidCredentials
	}
	r.logger.Error("resolve identity failed", "error", err, "user_id", id)
	return nil, ErrInternal
}
