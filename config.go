package auth

import "time"

// Config holds the options for token issuance, rotation, and cookies
type Config interface {
	GetAccessTokenSecret() string
	GetAccessTokenTTL() time.Duration
	GetRefreshTokenSecret() string
	GetRefreshTokenTTL() time.Duration
	GetGraceWindow() time.Duration
	GetIdempotencyWindow() time.Duration
	GetTransactionTimeout() time.Duration
	GetBcryptCost() int
	GetCookieName() string
	GetCookieSameSite() string
	GetIssuer() string
}

// SimpleConfig is a plain struct implementation of Config
type SimpleConfig struct {
	AccessTokenSecret  string        `json:"access_token_secret" mapstructure:"access_token_secret"`
	AccessTokenTTL     time.Duration `json:"access_token_ttl" mapstructure:"access_token_ttl"`
	RefreshTokenSecret string        `json:"refresh_token_secret" mapstructure:"refresh_token_secret"`
	RefreshTokenTTL    time.Duration `json:"refresh_token_ttl" mapstructure:"refresh_token_ttl"`
	GraceWindow        time.Duration `json:"grace_window" mapstructure:"grace_window"`
	IdempotencyWindow  time.Duration `json:"idempotency_window" mapstructure:"idempotency_window"`
	TransactionTimeout time.Duration `json:"transaction_timeout" mapstructure:"transaction_timeout"`
	BcryptCost         int           `json:"bcrypt_cost" mapstructure:"bcrypt_cost"`
	CookieName         string        `json:"cookie_name" mapstructure:"cookie_name"`
	CookieSameSite     string        `json:"cookie_same_site" mapstructure:"cookie_same_site"`
	Issuer             string        `json:"issuer" mapstructure:"issuer"`
}

var _ Config = (*SimpleConfig)(nil)

// NewDefaultConfig returns a SimpleConfig with sensible defaults. Secrets
// have no default; both must be provided and must differ per token class.
func NewDefaultConfig(accessSecret, refreshSecret string) *SimpleConfig {
	return &SimpleConfig{
		AccessTokenSecret:  accessSecret,
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenSecret: refreshSecret,
		RefreshTokenTTL:    7 * 24 * time.Hour,
		GraceWindow:        5 * time.Second,
		IdempotencyWindow:  2 * time.Second,
		TransactionTimeout: 10 * time.Second,
		BcryptCost:         12,
		CookieName:         "refresh-token",
		CookieSameSite:     "Lax",
		Issuer:             "vespertine",
	}
}

func (c *SimpleConfig) GetAccessTokenSecret() string { return c.AccessTokenSecret }

func (c *SimpleConfig) GetAccessTokenTTL() time.Duration { return c.AccessTokenTTL }

func (c *SimpleConfig) GetRefreshTokenSecret() string { return c.RefreshTokenSecret }

func (c *SimpleConfig) GetRefreshTokenTTL() time.Duration { return c.RefreshTokenTTL }

func (c *SimpleConfig) GetGraceWindow() time.Duration { return c.GraceWindow }

func (c *SimpleConfig) GetIdempotencyWindow() time.Duration { return c.IdempotencyWindow }

func (c *SimpleConfig) GetTransactionTimeout() time.Duration { return c.TransactionTimeout }

func (c *SimpleConfig) GetBcryptCost() int { return c.BcryptCost }

func (c *SimpleConfig) GetCookieName() string { return c.CookieName }

func (c *SimpleConfig) GetCookieSameSite() string { return c.CookieSameSite }

func (c *SimpleConfig) GetIssuer() string { return c.Issuer }
