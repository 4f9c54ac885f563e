package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// SessionStatus is the lifecycle state of a session
type SessionStatus = string

const (
	// SessionStatusActive is the only state in which refreshes are honored
	SessionStatusActive SessionStatus = "active"
	// SessionStatusRevoked is terminal; a revoked session is never reactivated
	SessionStatusRevoked SessionStatus = "revoked"
)

// User is the user model
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Session is one login's refresh-token chain. CurrentRefreshHash is globally
// unique; PrevRefreshHash/PrevUsableUntil are set together on rotation and
// are only meaningful as a pair.
type Session struct {
	bun.BaseModel      `bun:"table:user_sessions,alias:sess"`
	ID                 uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID             uuid.UUID     `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User               *User         `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	CurrentRefreshHash string        `bun:"current_refresh_hash,notnull,unique" json:"-"`
	PrevRefreshHash    *string       `bun:"prev_refresh_hash" json:"-"`
	PrevUsableUntil    *time.Time    `bun:"prev_usable_until" json:"prev_usable_until,omitempty"`
	Status             SessionStatus `bun:"status,notnull,default:'active'" json:"status,omitempty"`
	LastRotatedAt      time.Time     `bun:"last_rotated_at,notnull" json:"last_rotated_at,omitempty"`
	CreatedAt          *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt          *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// IsActive reports whether the session can still rotate tokens.
func (s *Session) IsActive() bool {
	return s != nil && s.Status == SessionStatusActive
}

// PreviousUsableAt reports whether the previous refresh hash is still inside
// its grace window at the given instant.
func (s *Session) PreviousUsableAt(now time.Time) bool {
	if s == nil || s.PrevRefreshHash == nil || s.PrevUsableUntil == nil {
		return false
	}
	return !now.After(*s.PrevUsableUntil)
}
