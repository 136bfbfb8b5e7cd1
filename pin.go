package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	pinMin = 100000
	pinMax = 999999
)

// PinVerifier issues and validates single use numeric codes, one slot per
// channel. Both operations run inside UserStore.Update so a code is consumed
// at most once.
type PinVerifier struct {
	store  UserStore
	hasher Hasher
	now    func() time.Time
}

// NewPinVerifier returns a verifier backed by store.
func NewPinVerifier(store UserStore, hasher Hasher) *PinVerifier {
	return &PinVerifier{
		store:  store,
		hasher: normalizeHasher(hasher),
		now:    time.Now,
	}
}

// WithClock overrides the time source.
func (p *PinVerifier) WithClock(now func() time.Time) *PinVerifier {
	if now != nil {
		p.now = now
	}
	return p
}

type issueOptions struct {
	address string
}

// IssueOption customizes PinVerifier.Issue.
type IssueOption func(*issueOptions)

// ForAddress records address as the destination of the code. By default the
// code is bound to the channel's pending value, or the confirmed one when
// nothing is pending.
func ForAddress(address string) IssueOption {
	return func(o *issueOptions) {
		o.address = address
	}
}

type validateOptions struct {
	confirm  bool
	expected string
	sentTo   string
}

// ValidateOption customizes PinVerifier.Validate.
type ValidateOption func(*validateOptions)

// WithConfirmation promotes the pending contact value for the channel once
// the code is accepted.
func WithConfirmation() ValidateOption {
	return func(o *validateOptions) {
		o.confirm = true
	}
}

// ConfirmingValue promotes the pending value only if it still equals value.
// A pending value that changed in the meantime is left untouched.
func ConfirmingValue(value string) ValidateOption {
	return func(o *validateOptions) {
		o.confirm = true
		o.expected = value
	}
}

// SentTo rejects the code with ErrWrongPin unless it was delivered to
// address. The stored code is left in place.
func SentTo(address string) ValidateOption {
	return func(o *validateOptions) {
		o.sentTo = address
	}
}

// Issue generates a code for channel, stores its hash and destination with
// an absolute expiry and returns the plaintext code exactly once.
func (p *PinVerifier) Issue(ctx context.Context, user *User, channel Channel, ttl time.Duration, opts ...IssueOption) (string, *User, error) {
	if user == nil {
		return "", nil, ErrIdentityNotFound
	}
	if ttl <= 0 {
		return "", nil, goerrors.New("pin ttl must be positive", goerrors.CategoryBadInput).
			WithTextCode(TextCodeValidation).
			WithCode(goerrors.CodeBadRequest)
	}

	pin, err := generatePin()
	if err != nil {
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate pin")
	}

	hash, err := p.hasher.Hash(pin)
	if err != nil {
		return "", nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash pin")
	}

	options := issueOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	expiresAt := p.now().Add(ttl)
	updated, err := p.store.Update(ctx, user.ID, func(u *User) error {
		slot, err := u.pinSlot(channel)
		if err != nil {
			return err
		}
		target := options.address
		if target == "" {
			target = u.Address(channel)
		}
		*slot.hash = hash
		*slot.target = target
		*slot.expiresAt = &expiresAt
		return nil
	})
	if err != nil {
		return "", nil, err
	}

	return pin, updated, nil
}

// Validate checks candidate against the stored code for channel. On success
// the code is cleared, and with WithConfirmation the pending contact value
// is promoted in the same update. Promotion only happens when the code was
// delivered to that pending value.
func (p *PinVerifier) Validate(ctx context.Context, user *User, channel Channel, candidate string, opts ...ValidateOption) (*User, error) {
	if user == nil {
		return nil, ErrIdentityNotFound
	}

	options := validateOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	return p.store.Update(ctx, user.ID, func(u *User) error {
		slot, err := u.pinSlot(channel)
		if err != nil {
			return err
		}

		if *slot.hash == "" {
			return ErrNoPin
		}

		if *slot.expiresAt == nil || p.now().After(**slot.expiresAt) {
			return ErrPinExpired
		}

		if options.sentTo != "" && options.sentTo != *slot.target {
			return ErrWrongPin
		}

		if err := p.hasher.Compare(candidate, *slot.hash); err != nil {
			if IsMismatch(err) {
				return ErrWrongPin
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to compare pin")
		}

		target := *slot.target
		slot.clear()

		if options.confirm {
			_, pending := u.Contact(channel)
			if pending != "" && target == pending &&
				(options.expected == "" || options.expected == pending) {
				u.promoteContact(channel)
			}
		}

		return nil
	})
}

func generatePin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(pinMax-pinMin+1))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+pinMin), nil
}
