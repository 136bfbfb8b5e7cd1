// Package identity issues and verifies the signed tokens that carry a user's
// identity between requests, and drives the session lifecycle built on them.
//
// Token kinds:
//   - access tokens authorize requests and carry a permissions snapshot.
//   - refresh tokens mint fresh access tokens from the current user record.
//   - login tokens are single use links that sign a user in and can confirm
//     a pending email or mobile.
//   - password_reset tokens are single use and only accepted by
//     UpdatePassword.
//
// Every Engine operation checks the kind of the token it is handed against
// the Operation table in state_machine.go and fails with ErrBadClaim when the
// kind does not match.
//
// Impersonation:
//   - SwitchUser lets a caller act as another user when the configured
//     ImpersonationPolicy permits it. The resulting claims keep the root user
//     id, and ResetUser returns to the root identity. Nested switches are
//     denied.
//
// PINs:
//   - PinVerifier issues short numeric codes per contact channel, stores only
//     their hash and consumes them on first successful use. A code only
//     confirms the address it was sent to.
//
// Persistence is behind UserStore. MemoryStore serves tests and single
// process deployments and UsersRepository persists users with bun.
package identity
