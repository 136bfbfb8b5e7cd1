package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-identity/permissions"
)

type immutableClaimsSnapshot struct {
	subject      string
	issuer       string
	tokenID      string
	audience     []string
	kind         TokenKind
	rootUserID   string
	switchID     string
	permissions  permissions.Map
	confirmation Confirmation
	issuedAt     time.Time
	hasIssuedAt  bool
	expiresAt    time.Time
	hasExpires   bool
}

func captureImmutableClaims(claims *Claims) immutableClaimsSnapshot {
	var audienceCopy []string
	if len(claims.RegisteredClaims.Audience) > 0 {
		audienceCopy = append(audienceCopy, claims.RegisteredClaims.Audience...)
	}

	snap := immutableClaimsSnapshot{
		subject:     claims.RegisteredClaims.Subject,
		issuer:      claims.RegisteredClaims.Issuer,
		tokenID:     claims.RegisteredClaims.ID,
		audience:    audienceCopy,
		kind:        claims.Kind,
		rootUserID:  claims.RootUserID,
		switchID:    claims.SwitchID,
		permissions: claims.Permissions.Clone(),
	}

	if claims.Confirmation != nil {
		snap.confirmation = *claims.Confirmation
	}

	if claims.RegisteredClaims.IssuedAt != nil {
		snap.issuedAt = claims.RegisteredClaims.IssuedAt.Time
		snap.hasIssuedAt = true
	}

	if claims.RegisteredClaims.ExpiresAt != nil {
		snap.expiresAt = claims.RegisteredClaims.ExpiresAt.Time
		snap.hasExpires = true
	}

	return snap
}

func (snap immutableClaimsSnapshot) validate(claims *Claims) error {
	if claims.RegisteredClaims.Subject != snap.subject {
		return immutableClaimViolation("sub")
	}

	if claims.RegisteredClaims.Issuer != snap.issuer {
		return immutableClaimViolation("iss")
	}

	if claims.RegisteredClaims.ID != snap.tokenID {
		return immutableClaimViolation("jti")
	}

	if !audienceEqual(claims.RegisteredClaims.Audience, snap.audience) {
		return immutableClaimViolation("aud")
	}

	if claims.Kind != snap.kind {
		return immutableClaimViolation("knd")
	}

	if claims.RootUserID != snap.rootUserID {
		return immutableClaimViolation("root")
	}

	if claims.SwitchID != snap.switchID {
		return immutableClaimViolation("sw")
	}

	if !claims.Permissions.Equal(snap.permissions) {
		return immutableClaimViolation("perms")
	}

	var cnf Confirmation
	if claims.Confirmation != nil {
		cnf = *claims.Confirmation
	}
	if cnf != snap.confirmation {
		return immutableClaimViolation("cnf")
	}

	if err := compareNumericDate(claims.RegisteredClaims.IssuedAt, snap.issuedAt, snap.hasIssuedAt, "iat"); err != nil {
		return err
	}

	if err := compareNumericDate(claims.RegisteredClaims.ExpiresAt, snap.expiresAt, snap.hasExpires, "exp"); err != nil {
		return err
	}

	return nil
}

func compareNumericDate(date *jwt.NumericDate, expected time.Time, expectedSet bool, field string) error {
	if !expectedSet {
		if date != nil {
			return immutableClaimViolation(field)
		}
		return nil
	}

	if date == nil || !date.Time.Equal(expected) {
		return immutableClaimViolation(field)
	}

	return nil
}

func audienceEqual(a jwt.ClaimStrings, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func immutableClaimViolation(field string) error {
	clone := ErrImmutableClaimMutation.Clone()
	if clone == nil {
		return ErrImmutableClaimMutation
	}
	clone.Message = fmt.Sprintf("immutable claim mutated: %s", field)
	clone.Source = ErrImmutableClaimMutation
	return clone.WithMetadata(map[string]any{"claim": field})
}
