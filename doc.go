// Package auth implements credential authentication with rotating refresh
// tokens and reuse detection.
//
// Access tokens are short-lived JWTs verified statelessly at the gate.
// Refresh tokens are long-lived JWTs bound to a server-side session row that
// tracks the fingerprint of the one currently valid token. Every refresh
// rotates that fingerprint inside a serializable transaction; presenting a
// superseded token outside the grace window revokes the session.
//
// The main pieces:
//
//   - TokenService mints and verifies the two token classes.
//   - PasswordVault hashes credentials and enforces the password policy.
//   - RepositoryManager persists users and sessions through bun.
//   - Authenticator handles register, login, logout, and account deletion.
//   - RotationCoordinator runs the refresh rotation protocol.
//   - RefreshCoalescer deduplicates concurrent refresh calls per process.
//   - AuthController and RequireAuthenticated expose it all over fiber.
package auth
