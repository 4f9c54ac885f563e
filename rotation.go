package auth

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RotationCoordinator implements the refresh-token rotation protocol with
// reuse detection. Each refresh runs in a serializable transaction holding a
// row lock on the session, so of two concurrent presenters of the same
// current token exactly one observes the equal branch; the other lands in
// grace-accept or reuse-reject deterministically.
type RotationCoordinator struct {
	repo        RepositoryManager
	tokens      TokenService
	logger      Logger
	activity    ActivitySink
	graceWindow time.Duration
	txTimeout   time.Duration
	nowFn       func() time.Time
}

// NewRotationCoordinator creates the coordinator with the configured grace
// window and transaction timeout.
func NewRotationCoordinator(repo RepositoryManager, tokens TokenService, cfg Config) *RotationCoordinator {
	return &RotationCoordinator{
		repo:        repo,
		tokens:      tokens,
		logger:      defLogger{},
		activity:    noopActivitySink{},
		graceWindow: cfg.GetGraceWindow(),
		txTimeout:   cfg.GetTransactionTimeout(),
		nowFn:       time.Now,
	}
}

// WithActivitySink routes audit events to the given sink.
func (r *RotationCoordinator) WithActivitySink(sink ActivitySink) *RotationCoordinator {
	r.activity = normalizeActivitySink(sink)
	return r
}

func (r *RotationCoordinator) WithLogger(logger Logger) *RotationCoordinator {
	if logger != nil {
		r.logger = logger
	}
	return r
}

func (r *RotationCoordinator) record(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.nowFn()
	}
	if err := r.activity.Record(ctx, event); err != nil {
		r.logger.Debug("activity sink error: %s", err)
	}
}

// WithClock overrides the time source, mainly for grace-window tests.
func (r *RotationCoordinator) WithClock(nowFn func() time.Time) *RotationCoordinator {
	if nowFn != nil {
		r.nowFn = nowFn
	}
	return r
}

// Refresh validates the presented refresh token against the stored session
// state and either rotates, accepts within grace, or rejects as reuse.
//
// The grace-accept branch mints a fresh pair but deliberately does not
// persist the new fingerprint: the stored current hash stays whatever the
// winning rotation wrote. A token returned from this branch will therefore
// itself resolve through grace-accept or reuse on its next presentation.
func (r *RotationCoordinator) Refresh(ctx context.Context, rawToken string) (*TokenPair, error) {
	claims, err := r.tokens.VerifyRefreshToken(rawToken)
	if err != nil {
		return nil, err
	}

	fingerprint := Fingerprint(rawToken)

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return nil, ErrTokenMalformed
	}

	user, err := r.loadUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}

	pair, err := r.mintPair(user, claims.SessionID)
	if err != nil {
		return nil, err
	}

	newFingerprint := Fingerprint(pair.RefreshToken)
	now := r.nowFn()
	started := now

	// The client may disconnect mid-refresh; the transaction still has to
	// finish or the session would be left half-rotated.
	txCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.txTimeout)
	defer cancel()

	var reuseErr error

	err = r.repo.RunInTx(txCtx, SerializableTxOptions(), func(ctx context.Context, tx bun.Tx) error {
		session, err := r.repo.Sessions().FindByIDTx(ctx, tx, sessionID, true)
		if err != nil {
			if errors.Is(err, ErrSessionNotFound) {
				return NewSilentUnauthorized("session not active")
			}
			return NewInternal(err, "session lookup failed")
		}

		if !session.IsActive() {
			return NewSilentUnauthorized("session not active")
		}

		if session.CurrentRefreshHash == fingerprint {
			if _, err := r.repo.Sessions().RotateTx(ctx, tx, sessionID, newFingerprint, r.graceWindow, now); err != nil {
				return NewInternal(err, "session rotation failed")
			}
			return nil
		}

		accepted, err := r.repo.Sessions().AcceptPreviousIfWithinGraceTx(ctx, tx, sessionID, fingerprint, now)
		if err != nil {
			return NewInternal(err, "grace window check failed")
		}

		if accepted {
			// Benign race: a retried request or duplicate tab presented the
			// immediately-preceding token inside the grace window.
			return nil
		}

		// Neither current nor previous-within-grace: the token was already
		// superseded. Treat as theft and end the session.
		if err := r.repo.Sessions().RevokeTx(ctx, tx, sessionID); err != nil {
			return NewInternal(err, "failed to revoke session after reuse")
		}

		// The closure must return nil so the revoke commits; returning the
		// error here would roll the status change back.
		reuseErr = NewUnauthorized("refresh token reuse detected").
			WithTextCode(TextCodeTokenReuse).
			WithMetadata(map[string]any{
				"session_id": claims.SessionID,
				"user_id":    claims.UserID,
			})
		return nil
	})

	if err == nil {
		err = reuseErr
	}

	if err != nil {
		return nil, r.reportRefreshFailure(ctx, err, claims, time.Since(started))
	}

	r.logger.Info("tokens refreshed user_id=%s session_id=%s tx=%s",
		claims.UserID, claims.SessionID, time.Since(started))
	r.record(ctx, ActivityEvent{
		EventType: ActivityEventTokenRefreshed,
		UserID:    claims.UserID,
		SessionID: claims.SessionID,
	})

	return pair, nil
}

func (r *RotationCoordinator) loadUser(ctx context.Context, userID string) (*User, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return nil, ErrTokenMalformed
	}

	user, err := r.repo.Users().FindByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, NewUnauthorized("user not found").
				WithMetadata(map[string]any{"user_id": userID})
		}
		return nil, NewInternal(err, "user lookup failed")
	}

	return user, nil
}

func (r *RotationCoordinator) mintPair(user *User, sessionID string) (*TokenPair, error) {
	accessToken, err := r.tokens.IssueAccessToken(user.ID.String(), user.Email)
	if err != nil {
		return nil, err
	}

	refreshToken, err := r.tokens.IssueRefreshToken(user.ID.String(), user.Email, sessionID)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// reportRefreshFailure maps transaction errors to the taxonomy and logs
// according to severity: reuse is always audited, silent conditions stay at
// debug, timeouts surface as retryable internal failures.
func (r *RotationCoordinator) reportRefreshFailure(ctx context.Context, err error, claims *RefreshClaims, elapsed time.Duration) error {
	if errors.Is(err, context.DeadlineExceeded) {
		err = NewInternal(err, "refresh transaction timed out")
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		err = NewInternal(err, "refresh transaction failed")
		goerrors.As(err, &richErr)
	}

	switch {
	case IsSilent(err):
		r.logger.Debug("refresh rejected session_id=%s: %s", claims.SessionID, richErr.Message)
	case richErr.TextCode == TextCodeTokenReuse:
		r.logger.Error("refresh token reuse detected, session revoked user_id=%s session_id=%s tx=%s",
			claims.UserID, claims.SessionID, elapsed)
		r.record(ctx, ActivityEvent{
			EventType: ActivityEventTokenReuse,
			UserID:    claims.UserID,
			SessionID: claims.SessionID,
		})
	default:
		r.logger.Error("refresh transaction failed user_id=%s session_id=%s tx=%s: %s",
			claims.UserID, claims.SessionID, elapsed, richErr.Message)
	}

	return err
}
