package identity

import "context"

// ClaimsDecorator can add extension data to claims before a token is signed.
// Implementations may only touch Context and must leave registered claims,
// the kind, the permission snapshot and the root user id untouched.
type ClaimsDecorator interface {
	Decorate(ctx context.Context, user *User, claims *Claims) error
}

// ClaimsDecoratorFunc adapts a function into a ClaimsDecorator.
type ClaimsDecoratorFunc func(ctx context.Context, user *User, claims *Claims) error

// Decorate satisfies the ClaimsDecorator interface.
func (f ClaimsDecoratorFunc) Decorate(ctx context.Context, user *User, claims *Claims) error {
	if f == nil {
		return nil
	}
	return f(ctx, user, claims)
}

type noopClaimsDecorator struct{}

func (noopClaimsDecorator) Decorate(context.Context, *User, *Claims) error {
	return nil
}

func normalizeClaimsDecorator(d ClaimsDecorator) ClaimsDecorator {
	if d == nil {
		return noopClaimsDecorator{}
	}
	return d
}
