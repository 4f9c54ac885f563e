package auth

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:?cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, model := range []any{(*User)(nil), (*Session)(nil)} {
		_, err := db.NewCreateTable().Model(model).Exec(ctx)
		require.NoError(t, err)
	}

	return db
}

func newTestConfig() *SimpleConfig {
	cfg := NewDefaultConfig("test-access-secret", "test-refresh-secret")
	cfg.BcryptCost = bcrypt.MinCost
	return cfg
}

type logEntry struct {
	level   string
	message string
}

// capturingLogger records every call so tests can assert on log severity.
type capturingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

func (l *capturingLogger) log(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, message: fmt.Sprintf(format, args...)})
}

func (l *capturingLogger) Debug(format string, args ...any) { l.log("debug", format, args...) }
func (l *capturingLogger) Info(format string, args ...any)  { l.log("info", format, args...) }
func (l *capturingLogger) Error(format string, args ...any) { l.log("error", format, args...) }

func (l *capturingLogger) countLevel(level string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.level == level {
			n++
		}
	}
	return n
}

type testStack struct {
	db       *bun.DB
	cfg      *SimpleConfig
	repo     RepositoryManager
	tokens   TokenService
	vault    *PasswordVault
	auth     *Authenticator
	rotation *RotationCoordinator
	logs     *capturingLogger
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()

	db := newTestDB(t)
	cfg := newTestConfig()
	logs := &capturingLogger{}

	repo := NewRepositoryManager(db)
	tokens := NewTokenService(cfg, logs)
	vault := NewPasswordVault(cfg)

	return &testStack{
		db:       db,
		cfg:      cfg,
		repo:     repo,
		tokens:   tokens,
		vault:    vault,
		auth:     NewAuthenticator(repo, tokens, vault).WithLogger(logs),
		rotation: NewRotationCoordinator(repo, tokens, cfg).WithLogger(logs),
		logs:     logs,
	}
}

func (s *testStack) registerUser(t *testing.T, email, password string) *User {
	t.Helper()

	user, err := s.auth.Register(context.Background(), email, password)
	require.NoError(t, err)
	return user
}

func (s *testStack) login(t *testing.T, email, password string) *TokenPair {
	t.Helper()

	pair, err := s.auth.Login(context.Background(), email, password)
	require.NoError(t, err)
	return pair
}

const testPassword = "Sup3r!pass"
