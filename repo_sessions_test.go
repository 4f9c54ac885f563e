package auth

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSessionUser(t *testing.T, repo RepositoryManager) *User {
	t.Helper()

	user, err := repo.Users().Register(context.Background(), &User{
		Email:        "sessions@example.com",
		PasswordHash: "x",
	})
	require.NoError(t, err)
	return user
}

func TestSessionsCreateAppliesDefaults(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepositoryManager(db)
	user := seedSessionUser(t, repo)
	ctx := context.Background()

	session, err := repo.Sessions().Create(ctx, &Session{
		UserID:             user.ID,
		CurrentRefreshHash: Fingerprint("token-1"),
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, session.ID)
	assert.Equal(t, SessionStatusActive, session.Status)
	assert.False(t, session.LastRotatedAt.IsZero())
	assert.Nil(t, session.PrevRefreshHash)
}

func TestSessionsRotateAdvancesHashChain(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepositoryManager(db)
	user := seedSessionUser(t, repo)
	ctx := context.Background()

	oldHash := Fingerprint("token-1")
	newHash := Fingerprint("token-2")

	session, err := repo.Sessions().Create(ctx, &Session{
		UserID:             user.ID,
		CurrentRefreshHash: oldHash,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	grace := 5 * time.Second

	rotated, err := repo.Sessions().Rotate(ctx, session.ID, newHash, grace, now)
	require.NoError(t, err)

	assert.Equal(t, newHash, rotated.CurrentRefreshHash)
	require.NotNil(t, rotated.PrevRefreshHash)
	assert.Equal(t, oldHash, *rotated.PrevRefreshHash)
	require.NotNil(t, rotated.PrevUsableUntil)
	assert.WithinDuration(t, now.Add(grace), *rotated.PrevUsableUntil, time.Second)
}

func TestSessionsRotateMissingSession(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepositoryManager(db)
	ctx := context.Background()

	_, err := repo.Sessions().Rotate(ctx, uuid.New(), Fingerprint("x"), time.Second, time.Now())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionsRotateSkipsRevokedSession(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepositoryManager(db)
	user := seedSessionUser(t, repo)
	ctx := context.Background()

	session, err := repo.Sessions().Create(ctx, &Session{
		UserID:             user.ID,
		CurrentRefreshHash: Fingerprint("token-1"),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Sessions().Revoke(ctx, session.ID))

	_, err = repo.Sessions().Rotate(ctx, session.ID, Fingerprint("token-2"), time.Second, time.Now())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionsAcceptPreviousWithinGrace(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepositoryManager(db)
	user := seedSessionUser(t, repo)
	ctx := context.Background()

	oldHash := Fingerprint("token-1")

	session, err := repo.Sessions().Create(ctx, &Session{
		UserID:             user.ID,
		CurrentRefreshHash: oldHash,
	})
	require.NoError(t, err)

	now := time.Now().UTC()
	grace := 5 * time.Second

	_, err = repo.Sessions().Rotate(ctx, session.ID, Fingerprint("token-2"), grace, now)
	require.NoError(t, err)

	accepted, err := repo.Sessions().AcceptPreviousIfWithinGrace(ctx, session.ID, oldHash, now.Add(time.Second))
	require.NoError(t, err)
	assert.True(t, accepted)

	// Outside the window the same hash is no longer acceptable.
	accepted, err = repo.Sessions().AcceptPreviousIfWithinGrace(ctx, session.ID, oldHash, now.Add(grace+time.Second))
	require.NoError(t, err)
	assert.False(t, accepted)

	// A hash that never was the previous one is rejected inside the window.
	accepted, err = repo.Sessions().AcceptPreviousIfWithinGrace(ctx, session.ID, Fingerprint("other"), now.Add(time.Second))
	require.NoError(t, err)
	assert.False(t, accepted)
}

func TestSessionsRevokeIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepositoryManager(db)
	user := seedSessionUser(t, repo)
	ctx := context.Background()

	session, err := repo.Sessions().Create(ctx, &Session{
		UserID:             user.ID,
		CurrentRefreshHash: Fingerprint("token-1"),
	})
	require.NoError(t, err)

	require.NoError(t, repo.Sessions().Revoke(ctx, session.ID))
	require.NoError(t, repo.Sessions().Revoke(ctx, session.ID))
	require.NoError(t, repo.Sessions().Revoke(ctx, uuid.New()))

	found, err := repo.Sessions().FindByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, SessionStatusRevoked, found.Status)
	assert.False(t, found.IsActive())
}

func TestSessionsCurrentHashIsUnique(t *testing.T) {
	db := newTestDB(t)
	repo := NewRepositoryManager(db)
	user := seedSessionUser(t, repo)
	ctx := context.Background()

	hash := Fingerprint("token-1")

	_, err := repo.Sessions().Create(ctx, &Session{
		UserID:             user.ID,
		CurrentRefreshHash: hash,
	})
	require.NoError(t, err)

	_, err = repo.Sessions().Create(ctx, &Session{
		UserID:             user.ID,
		CurrentRefreshHash: hash,
	})
	assert.Error(t, err)
}
