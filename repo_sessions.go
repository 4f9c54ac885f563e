package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

// rotateSessionSQL advances the hash chain in one atomic statement: the
// current hash becomes the previous one with a bounded grace window, and the
// new fingerprint takes its place. Only active sessions rotate.
var rotateSessionSQL = `UPDATE "user_sessions"
SET
	"prev_refresh_hash" = "current_refresh_hash",
	"prev_usable_until" = ?,
	"current_refresh_hash" = ?,
	"last_rotated_at" = ?,
	"updated_at" = ?
WHERE
	"user_sessions"."id" = ?
AND "user_sessions"."status" = 'active'
RETURNING *;`

var revokeSessionSQL = `UPDATE "user_sessions"
SET
	"status" = 'revoked',
	"updated_at" = ?
WHERE
	"user_sessions"."id" = ?
AND "user_sessions"."status" = 'active';`

// ErrSessionNotFound is returned when a session id has no row.
var ErrSessionNotFound = errors.New("session not found")

// Sessions provides persistence for refresh sessions. All mutations of the
// hash fields go through RotateTx/RevokeTx; nothing else writes them.
type Sessions interface {
	Create(ctx context.Context, session *Session) (*Session, error)
	CreateTx(ctx context.Context, tx bun.IDB, session *Session) (*Session, error)

	FindByID(ctx context.Context, id uuid.UUID) (*Session, error)
	// FindByIDTx loads a session, optionally taking a row-level lock that
	// serializes concurrent rotation attempts for the same session.
	FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID, lockForUpdate bool) (*Session, error)

	Rotate(ctx context.Context, id uuid.UUID, newHash string, grace time.Duration, now time.Time) (*Session, error)
	RotateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, newHash string, grace time.Duration, now time.Time) (*Session, error)

	AcceptPreviousIfWithinGrace(ctx context.Context, id uuid.UUID, presentedHash string, now time.Time) (bool, error)
	AcceptPreviousIfWithinGraceTx(ctx context.Context, tx bun.IDB, id uuid.UUID, presentedHash string, now time.Time) (bool, error)

	Revoke(ctx context.Context, id uuid.UUID) error
	RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type sessions struct {
	db *bun.DB
	// rowLocks is false on SQLite, which has no FOR UPDATE; its single-writer
	// model covers the same guarantee in tests.
	rowLocks bool
}

var _ Sessions = (*sessions)(nil)

func NewSessionsRepository(db *bun.DB) Sessions {
	return &sessions{
		db:       db,
		rowLocks: db.Dialect().Name() != dialect.SQLite,
	}
}

func (s *sessions) Create(ctx context.Context, session *Session) (*Session, error) {
	return s.CreateTx(ctx, s.db, session)
}

func (s *sessions) CreateTx(ctx context.Context, tx bun.IDB, session *Session) (*Session, error) {
	prepareSessionDefaults(session)

	if _, err := tx.NewInsert().Model(session).Exec(ctx); err != nil {
		return nil, err
	}

	return session, nil
}

func (s *sessions) FindByID(ctx context.Context, id uuid.UUID) (*Session, error) {
	return s.FindByIDTx(ctx, s.db, id, false)
}

func (s *sessions) FindByIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID, lockForUpdate bool) (*Session, error) {
	record := &Session{}
	q := tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1)

	if lockForUpdate && s.rowLocks {
		q = q.For("UPDATE")
	}

	if err := q.Scan(ctx); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return record, nil
}

func (s *sessions) Rotate(ctx context.Context, id uuid.UUID, newHash string, grace time.Duration, now time.Time) (*Session, error) {
	return s.RotateTx(ctx, s.db, id, newHash, grace, now)
}

func (s *sessions) RotateTx(ctx context.Context, tx bun.IDB, id uuid.UUID, newHash string, grace time.Duration, now time.Time) (*Session, error) {
	record := &Session{}
	prevUsableUntil := now.Add(grace)

	err := tx.NewRaw(rotateSessionSQL, prevUsableUntil, newHash, now, now, id).Scan(ctx, record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	return record, nil
}

func (s *sessions) AcceptPreviousIfWithinGrace(ctx context.Context, id uuid.UUID, presentedHash string, now time.Time) (bool, error) {
	return s.AcceptPreviousIfWithinGraceTx(ctx, s.db, id, presentedHash, now)
}

func (s *sessions) AcceptPreviousIfWithinGraceTx(ctx context.Context, tx bun.IDB, id uuid.UUID, presentedHash string, now time.Time) (bool, error) {
	record, err := s.FindByIDTx(ctx, tx, id, false)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}

	if !record.PreviousUsableAt(now) {
		return false, nil
	}

	return *record.PrevRefreshHash == presentedHash, nil
}

func (s *sessions) Revoke(ctx context.Context, id uuid.UUID) error {
	return s.RevokeTx(ctx, s.db, id)
}

// RevokeTx is idempotent: revoking a revoked or missing session is a no-op.
func (s *sessions) RevokeTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewRaw(revokeSessionSQL, time.Now(), id).Exec(ctx)
	return err
}

func prepareSessionDefaults(record *Session) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.Status == "" {
		record.Status = SessionStatusActive
	}

	if record.LastRotatedAt.IsZero() {
		record.LastRotatedAt = time.Now()
	}
}
