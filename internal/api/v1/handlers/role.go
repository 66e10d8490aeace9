package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/permission"
	"github.com/workaandrey/task-manager/internal/repository"
	"github.com/workaandrey/task-manager/pkg/logger"
)

type roleRequest struct {
	Name        string  `json:"name" validate:"required,max=50"`
	Description *string `json:"description"`
}

// Role handlers, all restricted to admins.

func (h *Handlers) forbidden(c *fiber.Ctx, user *models.User, perms permission.Evaluator) bool {
	if perms.IsAdmin(c.UserContext()) {
		return false
	}
	logger.SecurityLogger.Warn("Forbidden", zap.Int64("user_id", user.ID), zap.String("path", c.Path()))
	return true
}

func (h *Handlers) RoleIndex(c *fiber.Ctx, user *models.User, perms permission.Evaluator, _ ...string) error {
	if h.forbidden(c, user, perms) {
		return failure(c, fiber.StatusForbidden, "Forbidden")
	}
	roles, err := h.Roles.ReadAll(c.UserContext())
	if err != nil {
		logger.ErrorLogger.Error("Error fetching roles", zap.Error(err))
		return h.serverError(c, "Failed to fetch roles", err)
	}
	return list(c, roles, len(roles))
}

func (h *Handlers) RoleStore(c *fiber.Ctx, user *models.User, perms permission.Evaluator, _ ...string) error {
	if h.forbidden(c, user, perms) {
		return failure(c, fiber.StatusForbidden, "Forbidden")
	}
	var req roleRequest
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := validate.Struct(req); err != nil {
		return failure(c, fiber.StatusBadRequest, "Name is required and must be at most 50 characters")
	}

	ctx := c.UserContext()
	id, err := h.Roles.Create(ctx, req.Name, req.Description)
	if errors.Is(err, repository.ErrDuplicate) {
		return failure(c, fiber.StatusConflict, "Role already exists")
	}
	if err != nil {
		logger.ErrorLogger.Error("Error creating role", zap.Error(err))
		return h.serverError(c, "Failed to create role", err)
	}
	role, err := h.Roles.Read(ctx, id)
	if err != nil {
		return h.serverError(c, "Failed to create role", err)
	}
	logger.AuditLogger.Info("Role created", zap.Int64("role_id", id), zap.Int64("user_id", user.ID))
	return success(c, fiber.StatusCreated, "Role created successfully", role)
}

func (h *Handlers) RoleShow(c *fiber.Ctx, user *models.User, perms permission.Evaluator, args ...string) error {
	if h.forbidden(c, user, perms) {
		return failure(c, fiber.StatusForbidden, "Forbidden")
	}
	id, ok := parseID(args)
	if !ok {
		return failure(c, fiber.StatusNotFound, "Role not found")
	}
	role, err := h.Roles.Read(c.UserContext(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return failure(c, fiber.StatusNotFound, "Role not found")
	}
	if err != nil {
		return h.serverError(c, "Failed to fetch role", err)
	}
	return success(c, fiber.StatusOK, "", role)
}

func (h *Handlers) RoleUpdate(c *fiber.Ctx, user *models.User, perms permission.Evaluator, args ...string) error {
	if h.forbidden(c, user, perms) {
		return failure(c, fiber.StatusForbidden, "Forbidden")
	}
	id, ok := parseID(args)
	if !ok {
		return failure(c, fiber.StatusNotFound, "Role not found")
	}
	var req repository.RoleUpdate
	if err := c.BodyParser(&req); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		req.Name = &name
	}
	if err := validate.Struct(req); err != nil {
		return failure(c, fiber.StatusBadRequest, "Name must be between 1 and 50 characters")
	}

	ctx := c.UserContext()
	err := h.Roles.Update(ctx, id, req)
	switch {
	case errors.Is(err, repository.ErrNothingToUpdate):
		return failure(c, fiber.StatusBadRequest, "Nothing to update")
	case errors.Is(err, repository.ErrNotFound):
		return failure(c, fiber.StatusNotFound, "Role not found")
	case errors.Is(err, repository.ErrDuplicate):
		return failure(c, fiber.StatusConflict, "Role already exists")
	case err != nil:
		logger.ErrorLogger.Error("Error updating role", zap.Int64("role_id", id), zap.Error(err))
		return h.serverError(c, "Failed to update role", err)
	}
	role, err := h.Roles.Read(ctx, id)
	if err != nil {
		return h.serverError(c, "Failed to update role", err)
	}
	logger.AuditLogger.Info("Role updated", zap.Int64("role_id", id), zap.Int64("user_id", user.ID))
	return success(c, fiber.StatusOK, "Role updated successfully", role)
}

func (h *Handlers) RoleDelete(c *fiber.Ctx, user *models.User, perms permission.Evaluator, args ...string) error {
	if h.forbidden(c, user, perms) {
		return failure(c, fiber.StatusForbidden, "Forbidden")
	}
	id, ok := parseID(args)
	if !ok {
		return failure(c, fiber.StatusNotFound, "Role not found")
	}
	err := h.Roles.Delete(c.UserContext(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return failure(c, fiber.StatusNotFound, "Role not found")
	}
	if err != nil {
		logger.ErrorLogger.Error("Error deleting role", zap.Int64("role_id", id), zap.Error(err))
		return h.serverError(c, "Failed to delete role", err)
	}
	logger.AuditLogger.Info("Role deleted", zap.Int64("role_id", id), zap.Int64("user_id", user.ID))
	return success(c, fiber.StatusOK, "Role deleted successfully", nil)
}

func (h *Handlers) RoleUsers(c *fiber.Ctx, user *models.User, perms permission.Evaluator, args ...string) error {
	if h.forbidden(c, user, perms) {
		return failure(c, fiber.StatusForbidden, "Forbidden")
	}
	id, ok := parseID(args)
	if !ok {
		return failure(c, fiber.StatusNotFound, "Role not found")
	}
	ctx := c.UserContext()
	if _, err := h.Roles.Read(ctx, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return failure(c, fiber.StatusNotFound, "Role not found")
		}
		return h.serverError(c, "Failed to fetch users", err)
	}
	users, err := h.Roles.UsersByRole(ctx, id)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching users by role", zap.Int64("role_id", id), zap.Error(err))
		return h.serverError(c, "Failed to fetch users", err)
	}
	return list(c, users, len(users))
}
