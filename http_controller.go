package auth

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

type AuthControllerRoutes struct {
	Sessions       string
	SessionRefresh string
	SessionRevoke  string
	Users          string
	UsersMe        string
}

// AuthController exposes the session and account endpoints over fiber.
type AuthController struct {
	Debug     bool
	Logger    Logger
	Auth      *Authenticator
	Rotation  *RotationCoordinator
	Coalescer *RefreshCoalescer
	Tokens    TokenService
	Config    Config
	Routes    *AuthControllerRoutes
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger: defLogger{},
		Routes: &AuthControllerRoutes{
			Sessions:       "/auth/sessions",
			SessionRefresh: "/auth/sessions/refresh",
			SessionRevoke:  "/auth/sessions/revoke",
			Users:          "/auth/users",
			UsersMe:        "/auth/users/me",
		},
	}

	for _, opt := range opts {
		if opt != nil {
			c = opt(c)
		}
	}

	return c
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// RegisterAuthRoutes mounts the controller routes on the app.
func RegisterAuthRoutes(app *fiber.App, controller *AuthController) {
	gate := RequireAuthenticated(controller.Tokens, controller.Logger)

	app.Post(controller.Routes.Sessions, controller.Login)
	app.Post(controller.Routes.SessionRefresh, controller.Refresh)
	app.Post(controller.Routes.SessionRevoke, controller.Revoke)

	app.Post(controller.Routes.Users, controller.RegisterUser)
	app.Get(controller.Routes.UsersMe, gate, controller.CurrentUser)
	app.Delete(controller.Routes.UsersMe, gate, controller.DeleteUser)
}

type credentialsPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (p credentialsPayload) Validate() error {
	return validation.ValidateStruct(&p,
		validation.Field(&p.Email, validation.Required, is.Email),
		validation.Field(&p.Password, validation.Required),
	)
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func mapUserToResponse(user *User) userResponse {
	resp := userResponse{
		ID:    user.ID.String(),
		Email: user.Email,
	}
	if user.CreatedAt != nil {
		resp.CreatedAt = user.CreatedAt.Format(time.RFC3339)
	}
	return resp
}

// Login authenticates credentials, opens a session, and hands the refresh
// token to the browser as an httpOnly cookie.
func (a *AuthController) Login(c *fiber.Ctx) error {
	payload := credentialsPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return RespondError(c, a.Logger, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return RespondError(c, a.Logger, goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
			WithCode(goerrors.CodeBadRequest))
	}

	pair, err := a.Auth.Login(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return RespondError(c, a.Logger, err)
	}

	a.setRefreshCookie(c, pair.RefreshToken)

	return c.JSON(fiber.Map{"accessToken": pair.AccessToken})
}

// Refresh rotates the refresh token from the cookie. Duplicate in-flight or
// near-duplicate calls are coalesced per fingerprint before they reach the
// rotation protocol.
func (a *AuthController) Refresh(c *fiber.Ctx) error {
	raw := c.Cookies(a.Config.GetCookieName())
	if raw == "" {
		// Expected for anonymous visitors; must not produce a warning log.
		return RespondError(c, a.Logger, NewSilentUnauthorized("refresh token not found"))
	}

	ctx := c.UserContext()

	pair, err := a.Coalescer.Do(Fingerprint(raw), func() (*TokenPair, error) {
		return a.Rotation.Refresh(ctx, raw)
	})
	if err != nil {
		return RespondError(c, a.Logger, err)
	}

	a.setRefreshCookie(c, pair.RefreshToken)

	return c.JSON(fiber.Map{"accessToken": pair.AccessToken})
}

// Revoke is best-effort logout: it always answers 204, whatever the cookie
// contained.
func (a *AuthController) Revoke(c *fiber.Ctx) error {
	raw := c.Cookies(a.Config.GetCookieName())

	if err := a.Auth.Logout(c.UserContext(), raw); err != nil {
		a.Logger.Error("logout revoke failed: %s", err)
	}

	a.clearRefreshCookie(c)

	return c.SendStatus(fiber.StatusNoContent)
}

// RegisterUser creates an account.
func (a *AuthController) RegisterUser(c *fiber.Ctx) error {
	payload := credentialsPayload{}
	if err := c.BodyParser(&payload); err != nil {
		return RespondError(c, a.Logger, goerrors.Wrap(err, goerrors.CategoryBadInput, "unable to parse request body").
			WithCode(goerrors.CodeBadRequest))
	}

	if err := payload.Validate(); err != nil {
		return RespondError(c, a.Logger, goerrors.Wrap(err, goerrors.CategoryValidation, err.Error()).
			WithCode(goerrors.CodeBadRequest))
	}

	user, err := a.Auth.Register(c.UserContext(), payload.Email, payload.Password)
	if err != nil {
		return RespondError(c, a.Logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(mapUserToResponse(user))
}

// CurrentUser returns the authenticated user's profile.
func (a *AuthController) CurrentUser(c *fiber.Ctx) error {
	identity, ok := IdentityFromRequest(c)
	if !ok {
		return RespondError(c, a.Logger, NewUnauthorized("user not authenticated"))
	}

	user, err := a.Auth.FindUser(c.UserContext(), identity.UserID)
	if err != nil {
		return RespondError(c, a.Logger, err)
	}

	return c.JSON(mapUserToResponse(user))
}

// DeleteUser removes the authenticated user's account; sessions cascade.
func (a *AuthController) DeleteUser(c *fiber.Ctx) error {
	identity, ok := IdentityFromRequest(c)
	if !ok {
		return RespondError(c, a.Logger, NewUnauthorized("user not authenticated"))
	}

	if err := a.Auth.DeleteAccount(c.UserContext(), identity.UserID); err != nil {
		return RespondError(c, a.Logger, err)
	}

	a.clearRefreshCookie(c)

	return c.SendStatus(fiber.StatusNoContent)
}

func (a *AuthController) setRefreshCookie(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     a.Config.GetCookieName(),
		Value:    token,
		Path:     "/",
		Expires:  time.Now().Add(a.Config.GetRefreshTokenTTL()),
		MaxAge:   int(a.Config.GetRefreshTokenTTL().Seconds()),
		HTTPOnly: true,
		Secure:   true,
		SameSite: a.Config.GetCookieSameSite(),
	})
}

func (a *AuthController) clearRefreshCookie(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.Config.GetCookieName(),
		Value:    "",
		Path:     "/",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: a.Config.GetCookieSameSite(),
	})
}

// errorResponseName maps error categories to the names clients key on.
func errorResponseName(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return "UnauthorizedAccessError"
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return "OperationNotValidError"
	case goerrors.CategoryConflict:
		return "ResourceConflictError"
	case goerrors.CategoryNotFound:
		return "ResourceNotFoundError"
	default:
		return "InternalServerError"
	}
}

// RespondError maps a typed error to an HTTP response and log severity.
// Silent unauthorized conditions log at debug only; internal failures are
// always logged with full context.
func RespondError(c *fiber.Ctx, logger Logger, err error) error {
	if logger == nil {
		logger = defLogger{}
	}

	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "an unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status == 0 {
		status = fiber.StatusInternalServerError
	}

	switch {
	case IsSilent(err):
		logger.Debug("request rejected path=%s: %s", c.Path(), richErr.Message)
	case richErr.Category == goerrors.CategoryInternal:
		logger.Error("request failed path=%s: %s %s", c.Path(), richErr.Message, print.MaybePrettyJSON(richErr.Metadata))
	default:
		logger.Info("request rejected path=%s category=%s: %s", c.Path(), richErr.Category, richErr.Message)
	}

	return c.Status(status).JSON(fiber.Map{
		"name":    errorResponseName(richErr.Category),
		"message": richErr.Message,
	})
}
