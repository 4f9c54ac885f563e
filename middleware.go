package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// IdentityLocalsKey is where the gate stores the request Identity in fiber.
const IdentityLocalsKey = "auth:identity"

const bearerScheme = "Bearer"

// RequireAuthenticated is the authentication gate for protected routes. It
// parses the bearer header, verifies the access token, and populates the
// request identity in both fiber locals and the request context.
func RequireAuthenticated(tokens TokenService, logger Logger) fiber.Handler {
	if logger == nil {
		logger = defLogger{}
	}

	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		if header == "" {
			return RespondError(c, logger, NewUnauthorized("authorization header is required"))
		}

		scheme, token, found := strings.Cut(header, " ")
		if !found || scheme != bearerScheme || token == "" {
			return RespondError(c, logger, NewUnauthorized("invalid authorization header format, expected: Bearer <token>"))
		}

		claims, err := tokens.VerifyAccessToken(token)
		if err != nil {
			return RespondError(c, logger, err)
		}

		identity := Identity{
			UserID: claims.UserID,
			Email:  claims.Email,
		}

		c.Locals(IdentityLocalsKey, identity)
		c.SetUserContext(WithIdentityContext(c.UserContext(), identity))

		return c.Next()
	}
}

// IdentityFromRequest retrieves the Identity stashed by RequireAuthenticated.
func IdentityFromRequest(c *fiber.Ctx) (Identity, bool) {
	identity, ok := c.Locals(IdentityLocalsKey).(Identity)
	return identity, ok
}
