package middleware

import (
	"context"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/auth"
	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/permission"
	"github.com/workaandrey/task-manager/internal/router"
	"github.com/workaandrey/task-manager/internal/session"
	"github.com/workaandrey/task-manager/pkg/logger"
)

// Next is a handler that runs only for an authenticated caller.
type Next func(c *fiber.Ctx, user *models.User, perms permission.Evaluator) error

// Protected is a routed handler that also receives the path captures.
type Protected func(c *fiber.Ctx, user *models.User, perms permission.Evaluator, args ...string) error

// PermissionFactory binds an evaluator to the resolved user.
type PermissionFactory func(user *models.User) permission.Evaluator

type Authenticator interface {
	IsLoggedIn(sess auth.Session) bool
	CurrentUser(ctx context.Context, sess auth.Session) (*models.User, error)
	UserByID(ctx context.Context, id int64) (*models.User, error)
}

type TokenParser interface {
	Parse(raw string) (int64, error)
}

type AuthMiddleware struct {
	auth      Authenticator
	tokens    TokenParser
	perms     PermissionFactory
	loginPath string
}

func NewAuthMiddleware(a Authenticator, tokens TokenParser, perms PermissionFactory, loginPath string) *AuthMiddleware {
	if loginPath == "" {
		loginPath = "/login"
	}
	return &AuthMiddleware{auth: a, tokens: tokens, perms: perms, loginPath: loginPath}
}

// Process redirects anonymous callers to the login page. A session that
// points at a vanished user counts as anonymous.
func (m *AuthMiddleware) Process(c *fiber.Ctx, next Next) error {
	sess := session.FromCtx(c)
	user, err := m.auth.CurrentUser(c.UserContext(), sess)
	if err != nil {
		return err
	}
	if user == nil {
		if m.auth.IsLoggedIn(sess) {
			logger.SecurityLogger.Warn("Session references unknown user", zap.String("path", c.Path()))
			sess.Delete(auth.SessionUserKey)
		}
		logger.SecurityLogger.Info("Redirecting anonymous request", zap.String("path", c.Path()), zap.String("ip", c.IP()))
		return c.Redirect(m.loginPath, fiber.StatusFound)
	}
	return next(c, user, m.perms(user))
}

// ProcessAPI authenticates by bearer token, falling back to the session, and
// answers 401 JSON instead of redirecting.
func (m *AuthMiddleware) ProcessAPI(c *fiber.Ctx, next Next) error {
	user, err := m.apiUser(c)
	if err != nil {
		return err
	}
	if user == nil {
		logger.SecurityLogger.Info("Rejected unauthenticated API request", zap.String("path", c.Path()), zap.String("ip", c.IP()))
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"status":  "error",
			"message": "Authentication required",
		})
	}
	return next(c, user, m.perms(user))
}

func (m *AuthMiddleware) apiUser(c *fiber.Ctx) (*models.User, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header != "" {
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || m.tokens == nil {
			return nil, nil
		}
		id, err := m.tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			logger.SecurityLogger.Warn("Invalid bearer token", zap.String("ip", c.IP()))
			return nil, nil
		}
		return m.auth.UserByID(c.UserContext(), id)
	}
	return m.auth.CurrentUser(c.UserContext(), session.FromCtx(c))
}

// Protect wraps a handler for the router behind Process.
func (m *AuthMiddleware) Protect(h Protected) router.Handler {
	return func(c *fiber.Ctx, args ...string) error {
		return m.Process(c, func(c *fiber.Ctx, user *models.User, perms permission.Evaluator) error {
			return h(c, user, perms, args...)
		})
	}
}

// ProtectAPI wraps a handler for the router behind ProcessAPI.
func (m *AuthMiddleware) ProtectAPI(h Protected) router.Handler {
	return func(c *fiber.Ctx, args ...string) error {
		return m.ProcessAPI(c, func(c *fiber.Ctx, user *models.User, perms permission.Evaluator) error {
			return h(c, user, perms, args...)
		})
	}
}
