package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

// TokenService issues and verifies signed bearer tokens for both token
// classes. Issuance and verification happen inside the same trust boundary,
// so a shared HMAC secret per class is sufficient.
type TokenService interface {
	IssueAccessToken(userID, email string) (string, error)
	IssueRefreshToken(userID, email, sessionID string) (string, error)
	VerifyAccessToken(token string) (*AccessClaims, error)
	VerifyRefreshToken(token string) (*RefreshClaims, error)
}

var signingMethod = jwt.SigningMethodHS512

type tokenClassOptions struct {
	secret []byte
	ttl    time.Duration
}

// TokenServiceImpl implements the TokenService interface
type TokenServiceImpl struct {
	access  tokenClassOptions
	refresh tokenClassOptions
	issuer  string
	logger  Logger
}

// NewTokenService creates a new TokenService instance
func NewTokenService(cfg Config, logger Logger) TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenServiceImpl{
		access: tokenClassOptions{
			secret: []byte(cfg.GetAccessTokenSecret()),
			ttl:    cfg.GetAccessTokenTTL(),
		},
		refresh: tokenClassOptions{
			secret: []byte(cfg.GetRefreshTokenSecret()),
			ttl:    cfg.GetRefreshTokenTTL(),
		},
		issuer: cfg.GetIssuer(),
		logger: logger,
	}
}

func (ts *TokenServiceImpl) options(class TokenClass) tokenClassOptions {
	if class == TokenClassRefresh {
		return ts.refresh
	}
	return ts.access
}

// IssueAccessToken signs a short-lived access token for the given identity.
func (ts *TokenServiceImpl) IssueAccessToken(userID, email string) (string, error) {
	claims := &AccessClaims{
		RegisteredClaims: ts.registeredClaims(userID, TokenClassAccess),
		UserID:           userID,
		Email:            email,
	}
	return ts.sign(claims, TokenClassAccess)
}

// IssueRefreshToken signs a refresh token bound to sessionID.
func (ts *TokenServiceImpl) IssueRefreshToken(userID, email, sessionID string) (string, error) {
	claims := &RefreshClaims{
		RegisteredClaims: ts.registeredClaims(userID, TokenClassRefresh),
		UserID:           userID,
		Email:            email,
		SessionID:        sessionID,
	}
	return ts.sign(claims, TokenClassRefresh)
}

// VerifyAccessToken validates signature, algorithm, and expiry for an access token.
func (ts *TokenServiceImpl) VerifyAccessToken(token string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := ts.parse(token, TokenClassAccess, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

// VerifyRefreshToken validates signature, algorithm, and expiry for a refresh token.
func (ts *TokenServiceImpl) VerifyRefreshToken(token string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := ts.parse(token, TokenClassRefresh, claims); err != nil {
		return nil, err
	}
	return claims, nil
}

func (ts *TokenServiceImpl) registeredClaims(subject string, class TokenClass) jwt.RegisteredClaims {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Issuer:    ts.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ts.options(class).ttl)),
		ID:        uuid.NewString(),
	}
	return claims
}

func (ts *TokenServiceImpl) sign(claims jwt.Claims, class TokenClass) (string, error) {
	token := jwt.NewWithClaims(signingMethod, claims)

	signed, err := token.SignedString(ts.options(class).secret)
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign JWT").
			WithCode(goerrors.CodeInternal)
	}

	return signed, nil
}

// parse rejects algorithm substitution: only the configured HMAC method is
// accepted, regardless of what the token header announces.
func (ts *TokenServiceImpl) parse(raw string, class TokenClass, claims jwt.Claims) error {
	opts := ts.options(class)

	parserOptions := []jwt.ParserOption{
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
	}
	if ts.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(ts.issuer))
	}

	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if t.Method != signingMethod {
			ts.logger.Error("TokenService verify encountered unexpected signing method: %v", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return opts.secret, nil
	}, parserOptions...)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return goerrors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
			WithTextCode(ErrTokenMalformed.TextCode).
			WithCode(goerrors.CodeUnauthorized)
	}

	if !token.Valid {
		ts.logger.Error("TokenService verify produced an invalid token without error")
		return ErrTokenMalformed
	}

	return nil
}
