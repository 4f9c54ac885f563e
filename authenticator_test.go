package auth

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuthenticatorRegisterNormalizesEmail(t *testing.T) {
	s := newTestStack(t)

	user := s.registerUser(t, "  Mixed.Case@Example.COM ", testPassword)

	assert.Equal(t, "mixed.case@example.com", user.Email)
	assert.NotEqual(t, uuid.Nil, user.ID)
	assert.NotEqual(t, testPassword, user.PasswordHash)
}

func TestAuthenticatorRegisterEnforcesPasswordPolicy(t *testing.T) {
	s := newTestStack(t)

	_, err := s.auth.Register(context.Background(), "weak@example.com", "weak")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least 8 characters")
}

func TestAuthenticatorRegisterRejectsDuplicateEmail(t *testing.T) {
	s := newTestStack(t)

	s.registerUser(t, "dup@example.com", testPassword)

	_, err := s.auth.Register(context.Background(), "DUP@example.com", testPassword)
	assert.Error(t, err)
}

func TestAuthenticatorLoginIssuesSessionAndPair(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.registerUser(t, "login@example.com", testPassword)
	pair := s.login(t, "Login@Example.com", testPassword)

	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)

	claims, err := s.tokens.VerifyRefreshToken(pair.RefreshToken)
	require.NoError(t, err)

	sessionID, err := uuid.Parse(claims.SessionID)
	require.NoError(t, err)

	session, err := s.repo.Sessions().FindByID(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, Fingerprint(pair.RefreshToken), session.CurrentRefreshHash)
	assert.True(t, session.IsActive())
}

func TestAuthenticatorLoginFailuresAreIndistinguishable(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.registerUser(t, "known@example.com", testPassword)

	_, unknownErr := s.auth.Login(ctx, "unknown@example.com", testPassword)
	_, badPassErr := s.auth.Login(ctx, "known@example.com", "Wr0ng!pass")

	require.Error(t, unknownErr)
	require.Error(t, badPassErr)
	assert.ErrorIs(t, unknownErr, ErrInvalidCredentials)
	assert.ErrorIs(t, badPassErr, ErrInvalidCredentials)
	assert.Equal(t, unknownErr.Error(), badPassErr.Error())
}

func TestAuthenticatorLogoutRevokesSession(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	s.registerUser(t, "logout@example.com", testPassword)
	pair := s.login(t, "logout@example.com", testPassword)

	claims, err := s.tokens.VerifyRefreshToken(pair.RefreshToken)
	require.NoError(t, err)
	sessionID, err := uuid.Parse(claims.SessionID)
	require.NoError(t, err)

	require.NoError(t, s.auth.Logout(ctx, pair.RefreshToken))

	session, err := s.repo.Sessions().FindByID(ctx, sessionID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusRevoked, session.Status)
}

func TestAuthenticatorLogoutIsBestEffort(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	assert.NoError(t, s.auth.Logout(ctx, ""))
	assert.NoError(t, s.auth.Logout(ctx, "not-a-token"))
}

func TestAuthenticatorDeleteAccountRemovesUser(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	user := s.registerUser(t, "gone@example.com", testPassword)

	require.NoError(t, s.auth.DeleteAccount(ctx, user.ID.String()))

	_, err := s.auth.FindUser(ctx, user.ID.String())
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
}

func TestAuthenticatorRecordsActivity(t *testing.T) {
	s := newTestStack(t)
	ctx := context.Background()

	var events []ActivityEvent
	s.auth.WithActivitySink(ActivitySinkFunc(func(_ context.Context, ev ActivityEvent) error {
		events = append(events, ev)
		return nil
	}))

	s.registerUser(t, "audit@example.com", testPassword)
	s.login(t, "audit@example.com", testPassword)
	_, err := s.auth.Login(ctx, "audit@example.com", "Wr0ng!pass")
	require.Error(t, err)

	require.Len(t, events, 3)
	assert.Equal(t, ActivityEventUserRegistered, events[0].EventType)
	assert.Equal(t, ActivityEventLoginSuccess, events[1].EventType)
	assert.Equal(t, ActivityEventLoginFailure, events[2].EventType)
	assert.False(t, events[0].OccurredAt.IsZero())
}
