package auth

import (
	"github.com/golang-jwt/jwt/v5"
)

// TokenClass identifies which of the two token families a token belongs to.
// Access and refresh tokens are signed with independent secrets so a token
// of one class can never verify as the other.
type TokenClass string

const (
	// TokenClassAccess is the short-lived bearer token for protected requests
	TokenClassAccess TokenClass = "access"
	// TokenClassRefresh is the long-lived rotating token bound to a session
	TokenClassRefresh TokenClass = "refresh"
)

// AccessClaims are carried inside access tokens. They are transient: never
// persisted, only verified.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"uid"`
	Email  string `json:"email"`
}

// RefreshClaims are carried inside refresh tokens. SessionID binds the token
// to the session row whose hash chain it must match.
type RefreshClaims struct {
	jwt.RegisteredClaims
	UserID    string `json:"uid"`
	Email     string `json:"email"`
	SessionID string `json:"sid"`
}
