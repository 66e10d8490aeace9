package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/auth"
	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/session"
	"github.com/workaandrey/task-manager/internal/view"
	"github.com/workaandrey/task-manager/pkg/logger"
)

// requireFields returns the flash message for the first empty form field.
func requireFields(c *fiber.Ctx, fields ...string) string {
	for _, f := range fields {
		if strings.TrimSpace(c.FormValue(f)) == "" {
			return "The " + f + " field is required"
		}
	}
	return ""
}

func (h *Handlers) ShowLogin(c *fiber.Ctx, _ ...string) error {
	sess := session.FromCtx(c)
	if h.Auth.IsLoggedIn(sess) {
		return c.Redirect("/", fiber.StatusFound)
	}
	return view.Render(c, view.Login, view.Page{Title: "Login", Flashes: sess.Flashes()})
}

func (h *Handlers) Login(c *fiber.Ctx, _ ...string) error {
	if msg := requireFields(c, "username", "password"); msg != "" {
		return redirect(c, "/login", session.FlashError, msg)
	}
	_, err := h.Auth.Login(c.UserContext(), session.FromCtx(c), c.FormValue("username"), c.FormValue("password"))
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return redirect(c, "/login", session.FlashError, err.Error())
	}
	if err != nil {
		logger.ErrorLogger.Error("Error during login", zap.Error(err))
		return redirect(c, "/login", session.FlashError, "Login failed, please try again")
	}
	return redirect(c, "/", session.FlashSuccess, "Login successful")
}

func (h *Handlers) ShowRegister(c *fiber.Ctx, _ ...string) error {
	sess := session.FromCtx(c)
	if h.Auth.IsLoggedIn(sess) {
		return c.Redirect("/", fiber.StatusFound)
	}
	return view.Render(c, view.Register, view.Page{Title: "Register", Flashes: sess.Flashes()})
}

// Register signs the visitor up with the default user role.
func (h *Handlers) Register(c *fiber.Ctx, _ ...string) error {
	ctx := c.UserContext()
	roleID, err := h.Roles.GetRoleID(ctx, models.RoleUser)
	if err != nil {
		logger.ErrorLogger.Error("Error resolving default role", zap.Error(err))
		return redirect(c, "/register", session.FlashError, "Registration failed, please try again")
	}

	_, err = h.Auth.Register(ctx, session.FromCtx(c), auth.Registration{
		Username:        c.FormValue("username"),
		Email:           c.FormValue("email"),
		Password:        c.FormValue("password"),
		ConfirmPassword: c.FormValue("confirm_password"),
		RoleID:          &roleID,
	})
	var verr *auth.ValidationError
	switch {
	case err == nil:
		return redirect(c, "/", session.FlashSuccess, "Registration successful")
	case errors.As(err, &verr), errors.Is(err, auth.ErrDuplicateUser):
		return redirect(c, "/register", session.FlashError, err.Error())
	default:
		logger.ErrorLogger.Error("Error during registration", zap.Error(err))
		return redirect(c, "/register", session.FlashError, "Registration failed, please try again")
	}
}

// Logout drops the session; the flash lands in a fresh one.
func (h *Handlers) Logout(c *fiber.Ctx, _ ...string) error {
	if err := h.Auth.Logout(session.FromCtx(c)); err != nil {
		logger.ErrorLogger.Error("Error destroying session", zap.Error(err))
	}
	return redirect(c, "/login", session.FlashSuccess, "You have been logged out")
}

type tokenRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Password   string `json:"password"`
}

// APILogin exchanges credentials for a bearer token.
func (h *Handlers) APILogin(c *fiber.Ctx, _ ...string) error {
	var req tokenRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Identifier == "" {
		req.Identifier = req.Username
	}
	if req.Identifier == "" || req.Password == "" {
		return failure(c, fiber.StatusBadRequest, "Identifier and password are required")
	}

	user, err := h.Auth.Authenticate(c.UserContext(), req.Identifier, req.Password)
	if errors.Is(err, auth.ErrInvalidCredentials) {
		return failure(c, fiber.StatusUnauthorized, err.Error())
	}
	if err != nil {
		logger.ErrorLogger.Error("Error during API login", zap.Error(err))
		return h.serverError(c, "Login failed", err)
	}

	token, expires, err := h.Tokens.Issue(user.ID)
	if err != nil {
		logger.ErrorLogger.Error("Error generating token", zap.Error(err))
		return h.serverError(c, "Error generating token", err)
	}
	logger.AuditLogger.Info("API token issued", zap.Int64("user_id", user.ID))
	return success(c, fiber.StatusOK, "Login success", fiber.Map{
		"token":      token,
		"expires_at": expires,
		"user":       user,
	})
}
