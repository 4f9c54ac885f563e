package auth

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Authenticator owns the mechanical account operations: registration, login,
// logout, and deletion. The refresh protocol itself lives in
// RotationCoordinator.
type Authenticator struct {
	repo     RepositoryManager
	tokens   TokenService
	vault    *PasswordVault
	logger   Logger
	activity ActivitySink
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(repo RepositoryManager, tokens TokenService, vault *PasswordVault) *Authenticator {
	return &Authenticator{
		repo:     repo,
		tokens:   tokens,
		vault:    vault,
		logger:   defLogger{},
		activity: noopActivitySink{},
	}
}

func (s *Authenticator) WithLogger(logger Logger) *Authenticator {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// WithActivitySink routes audit events to the given sink.
func (s *Authenticator) WithActivitySink(sink ActivitySink) *Authenticator {
	s.activity = normalizeActivitySink(sink)
	return s
}

func (s *Authenticator) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	if err := s.activity.Record(ctx, event); err != nil {
		s.logger.Debug("activity sink error: %s", err)
	}
}

// Register creates a user after enforcing the password policy. Emails are
// case-normalized before the unique check.
func (s *Authenticator) Register(ctx context.Context, email, password string) (*User, error) {
	if err := s.vault.ValidatePolicy(password); err != nil {
		return nil, err
	}

	hash, err := s.vault.Hash(password)
	if err != nil {
		return nil, NewInternal(err, "failed to hash password")
	}

	user, err := s.repo.Users().Register(ctx, &User{
		Email:        email,
		PasswordHash: hash,
	})
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryConflict, "could not create user").
			WithCode(goerrors.CodeConflict)
	}

	s.logger.Info("user registered user_id=%s email=%s", user.ID, user.Email)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventUserRegistered,
		UserID:    user.ID.String(),
	})

	return user, nil
}

// Login verifies credentials, creates a session whose hash chain starts at
// the fingerprint of the first refresh token, and returns the token pair.
func (s *Authenticator) Login(ctx context.Context, email, password string) (*TokenPair, error) {
	email = NormalizeEmail(email)

	user, err := s.repo.Users().FindByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Debug("login attempt for unknown email: %s", email)
			s.record(ctx, ActivityEvent{
				EventType: ActivityEventLoginFailure,
				Metadata:  map[string]any{"email": email},
			})
			return nil, ErrInvalidCredentials
		}
		return nil, NewInternal(err, "user lookup failed")
	}

	if err := s.vault.Verify(password, user.PasswordHash); err != nil {
		s.logger.Debug("login attempt with invalid password: %s", email)
		s.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			UserID:    user.ID.String(),
			Metadata:  map[string]any{"email": email},
		})
		return nil, ErrInvalidCredentials
	}

	sessionID := uuid.New()

	accessToken, err := s.tokens.IssueAccessToken(user.ID.String(), user.Email)
	if err != nil {
		return nil, err
	}

	refreshToken, err := s.tokens.IssueRefreshToken(user.ID.String(), user.Email, sessionID.String())
	if err != nil {
		return nil, err
	}

	_, err = s.repo.Sessions().Create(ctx, &Session{
		ID:                 sessionID,
		UserID:             user.ID,
		CurrentRefreshHash: Fingerprint(refreshToken),
	})
	if err != nil {
		return nil, NewInternal(err, "failed to create session")
	}

	s.logger.Info("user logged in user_id=%s session_id=%s", user.ID, sessionID)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		UserID:    user.ID.String(),
		SessionID: sessionID.String(),
	})

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// Logout revokes the session named by the presented refresh token. It is
// best-effort: absent or invalid tokens are ignored so the endpoint can
// always answer 204.
func (s *Authenticator) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	claims, err := s.tokens.VerifyRefreshToken(refreshToken)
	if err != nil {
		s.logger.Debug("logout with unverifiable token: %s", err)
		return nil
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil
	}

	if err := s.repo.Sessions().Revoke(ctx, sessionID); err != nil {
		return NewInternal(err, "failed to revoke session")
	}

	s.logger.Info("session revoked on logout session_id=%s", claims.SessionID)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventLogout,
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
	})

	return nil
}

// FindUser loads a user by id for the account endpoints.
func (s *Authenticator) FindUser(ctx context.Context, userID string) (*User, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, NewUnauthorized("user not found")
	}

	user, err := s.repo.Users().FindByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, NewUnauthorized("user not found")
		}
		return nil, NewInternal(err, "user lookup failed")
	}

	return user, nil
}

// DeleteAccount removes a user. Sessions go with it through the FK cascade.
func (s *Authenticator) DeleteAccount(ctx context.Context, userID string) error {
	id, err := uuid.Parse(userID)
	if err != nil {
		return NewUnauthorized("user not found")
	}

	if err := s.repo.Users().DeleteAccount(ctx, id); err != nil {
		return NewInternal(err, "failed to delete user")
	}

	s.logger.Info("user deleted user_id=%s", userID)
	s.record(ctx, ActivityEvent{
		EventType: ActivityEventUserDeleted,
		UserID:    userID,
	})

	return nil
}
