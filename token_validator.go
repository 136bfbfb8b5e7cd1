package identity

import "context"

// TokenVerifier decodes a raw token and checks it is still live.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// TokenVerifierFunc adapts a function into a TokenVerifier.
type TokenVerifierFunc func(ctx context.Context, raw string) (*Claims, error)

// Verify satisfies the TokenVerifier interface.
func (f TokenVerifierFunc) Verify(ctx context.Context, raw string) (*Claims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(ctx, raw)
}

// MultiTokenVerifier tries verifiers in order until one succeeds. A token
// signed with a key the current verifier does not know moves on to the next
// one, which is how retired signing keys keep verifying during rotation.
type MultiTokenVerifier struct {
	verifiers []TokenVerifier
}

// NewMultiTokenVerifier filters nil verifiers and returns a composite verifier.
func NewMultiTokenVerifier(verifiers ...TokenVerifier) *MultiTokenVerifier {
	filtered := make([]TokenVerifier, 0, len(verifiers))
	for _, v := range verifiers {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenVerifier{verifiers: filtered}
}

// Verify satisfies the TokenVerifier interface.
func (m *MultiTokenVerifier) Verify(ctx context.Context, raw string) (*Claims, error) {
	var lastErr error
	for _, v := range m.verifiers {
		claims, err := v.Verify(ctx, raw)
		if err == nil {
			return claims, nil
		}
		if IsKind(err, TextCodeInvalidSignature) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenMalformed
}

// TokenDecoder decodes a raw token without checking revocation.
type TokenDecoder interface {
	Decode(raw string) (*Claims, error)
}

// Decode satisfies the TokenDecoder interface. Verifiers that cannot decode
// on their own are skipped.
func (m *MultiTokenVerifier) Decode(raw string) (*Claims, error) {
	var lastErr error
	for _, v := range m.verifiers {
		decoder, ok := v.(TokenDecoder)
		if !ok {
			continue
		}
		claims, err := decoder.Decode(raw)
		if err == nil {
			return claims, nil
		}
		if IsKind(err, TextCodeInvalidSignature) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenMalformed
}
