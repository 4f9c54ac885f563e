package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/spf13/viper"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	auth "github.com/vespertine/go-auth"
)

func main() {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("AUTHD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("server.address", ":3000")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			log.Fatalf("read config: %v", err)
		}
	}

	cfg := auth.NewDefaultConfig(
		v.GetString("auth.access_token_secret"),
		v.GetString("auth.refresh_token_secret"),
	)
	if err := v.UnmarshalKey("auth", cfg); err != nil {
		log.Fatalf("parse auth config: %v", err)
	}

	if cfg.AccessTokenSecret == "" || cfg.RefreshTokenSecret == "" {
		log.Fatal("auth.access_token_secret and auth.refresh_token_secret are required")
	}
	if cfg.AccessTokenSecret == cfg.RefreshTokenSecret {
		log.Fatal("access and refresh token secrets must differ")
	}

	dsn := v.GetString("database.dsn")
	if dsn == "" {
		log.Fatal("database.dsn is required")
	}

	if err := runMigrations(dsn); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	repo := auth.NewRepositoryManager(db)
	repo.MustValidate()

	tokens := auth.NewTokenService(cfg, nil)
	vault := auth.NewPasswordVault(cfg)

	sink := auth.ActivitySinkFunc(func(_ context.Context, ev auth.ActivityEvent) error {
		log.Printf("activity %s user=%s session=%s", ev.EventType, ev.UserID, ev.SessionID)
		return nil
	})

	controller := NewController(cfg, repo, tokens, vault, sink, v.GetBool("server.debug"))

	app := fiber.New(fiber.Config{
		AppName: "authd",
	})

	auth.RegisterAuthRoutes(app, controller)

	addr := v.GetString("server.address")
	log.Printf("authd listening on %s", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}

// NewController wires the domain components behind the HTTP controller.
func NewController(cfg auth.Config, repo auth.RepositoryManager, tokens auth.TokenService, vault *auth.PasswordVault, sink auth.ActivitySink, debug bool) *auth.AuthController {
	return auth.NewAuthController(
		auth.WithDebug(debug),
		func(c *auth.AuthController) *auth.AuthController {
			c.Config = cfg
			c.Tokens = tokens
			c.Auth = auth.NewAuthenticator(repo, tokens, vault).WithActivitySink(sink)
			c.Rotation = auth.NewRotationCoordinator(repo, tokens, cfg).WithActivitySink(sink)
			c.Coalescer = auth.NewRefreshCoalescer(cfg.GetIdempotencyWindow())
			return c
		},
	)
}

func runMigrations(dsn string) error {
	src, err := iofs.New(auth.GetMigrationsFS(), "migrations")
	if err != nil {
		return err
	}

	m, err := migrate.NewWithSourceInstance("iofs", src, dsn)
	if err != nil {
		return err
	}
	defer m.Close()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}
