package auth

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes exposed to API clients for programmatic handling
const (
	TextCodeInvalidToken       = "INVALID_TOKEN"
	TextCodeInvalidCredentials = "INVALID_CREDENTIALS"
	TextCodeSessionNotActive   = "SESSION_NOT_ACTIVE"
	TextCodeTokenReuse         = "REFRESH_TOKEN_REUSE"
	TextCodePasswordPolicy     = "PASSWORD_POLICY_VIOLATION"
)

// metadataSilentKey marks unauthorized errors that describe an expected,
// non-alarming condition (missing cookie, stale session). Boundary layers
// must not log these above debug level.
const metadataSilentKey = "silent"

// ErrInvalidCredentials is returned for unknown emails and bad passwords
// alike so the two cases are indistinguishable to a caller.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCredentials).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenExpired signals a structurally valid but expired token.
var ErrTokenExpired = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed signals a token that failed signature or structural checks.
var ErrTokenMalformed = goerrors.New("invalid or expired token", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidToken).
	WithCode(goerrors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is returned when a password does not match its hash.
var ErrMismatchedHashAndPassword = goerrors.New("password does not match", goerrors.CategoryAuth).
	WithCode(goerrors.CodeUnauthorized)

// ErrNoEmptyString rejects empty passwords before they reach bcrypt.
var ErrNoEmptyString = goerrors.New("value should not be an empty string", goerrors.CategoryBadInput).
	WithCode(goerrors.CodeBadRequest)

// NewUnauthorized creates an auth failure that boundary layers log loudly.
func NewUnauthorized(reason string) *goerrors.Error {
	return goerrors.New(reason, goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized)
}

// NewSilentUnauthorized creates an auth failure for expected conditions,
// e.g. a refresh call without a cookie. Same HTTP mapping as NewUnauthorized
// but flagged so it never reaches warn/error logs.
func NewSilentUnauthorized(reason string) *goerrors.Error {
	return goerrors.New(reason, goerrors.CategoryAuth).
		WithCode(goerrors.CodeUnauthorized).
		WithMetadata(map[string]any{metadataSilentKey: true})
}

// NewInvalidOperation reports a domain rule violation, e.g. a password
// policy failure.
func NewInvalidOperation(reason string) *goerrors.Error {
	return goerrors.New(reason, goerrors.CategoryValidation).
		WithTextCode(TextCodePasswordPolicy).
		WithCode(goerrors.CodeBadRequest)
}

// NewInternal wraps storage or transaction failures. These always map to 500
// and are always logged with full context; they are never silent.
func NewInternal(err error, msg string) *goerrors.Error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, msg).
		WithCode(goerrors.CodeInternal)
}

// IsSilent reports whether err carries the silent marker.
func IsSilent(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	if richErr.Metadata == nil {
		return false
	}
	silent, ok := richErr.Metadata[metadataSilentKey].(bool)
	return ok && silent
}

// IsUnauthorized reports whether err maps to a 401 response.
func IsUnauthorized(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryAuth
}
