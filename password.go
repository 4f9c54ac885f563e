package auth

import (
	"regexp"

	validation "github.com/go-ozzo/ozzo-validation"
	"golang.org/x/crypto/bcrypt"
)

const (
	passwordMinLen = 8
	passwordMaxLen = 64
)

var (
	lowercaseRe = regexp.MustCompile(`[a-z]`)
	uppercaseRe = regexp.MustCompile(`[A-Z]`)
	digitRe     = regexp.MustCompile(`[0-9]`)
	specialRe   = regexp.MustCompile(`[!@#$%^&*(),.?":{}|<>]`)
)

const msgPasswordTooShort = "password must be at least 8 characters long"

// passwordPolicyRules are evaluated in order; the first violated rule wins.
// Length comes before character-class checks.
var passwordPolicyRules = []validation.Rule{
	validation.Length(passwordMinLen, 0).Error(msgPasswordTooShort),
	validation.Length(0, passwordMaxLen).Error("password must be at most 64 characters long"),
	validation.Match(lowercaseRe).Error("password must contain at least one lowercase letter"),
	validation.Match(uppercaseRe).Error("password must contain at least one uppercase letter"),
	validation.Match(digitRe).Error("password must contain at least one number"),
	validation.Match(specialRe).Error("password must contain at least one special character"),
}

// PasswordVault hashes and verifies credentials and enforces the password
// policy. The bcrypt cost factor is configurable; hashing embeds a per-hash
// salt so no extra salt storage is needed.
type PasswordVault struct {
	cost int
}

// NewPasswordVault creates a vault with the configured bcrypt cost.
func NewPasswordVault(cfg Config) *PasswordVault {
	cost := cfg.GetBcryptCost()
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &PasswordVault{cost: cost}
}

// Hash generates a password hash
func (v *PasswordVault) Hash(password string) (string, error) {
	if password == "" {
		return "", ErrNoEmptyString
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), v.cost)
	return string(h), err
}

// Verify validates the given cleartext password against the stored hash.
func (v *PasswordVault) Verify(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if err == bcrypt.ErrMismatchedHashAndPassword {
			return ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}

// ValidatePolicy checks the password against the fixed-order policy rules
// and reports the first violation as an InvalidOperation error.
func (v *PasswordVault) ValidatePolicy(password string) error {
	// ozzo skips blank values entirely, so the empty password falls under
	// the minimum-length rule here.
	if password == "" {
		return NewInvalidOperation(msgPasswordTooShort)
	}

	if err := validation.Validate(password, passwordPolicyRules...); err != nil {
		return NewInvalidOperation(err.Error())
	}

	return nil
}
