package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/permission"
	"github.com/workaandrey/task-manager/internal/view"
	"github.com/workaandrey/task-manager/pkg/logger"
)

const recentTaskLimit = 5

// Dashboard shows the caller's most recent visible tasks.
func (h *Handlers) Dashboard(c *fiber.Ctx, user *models.User, perms permission.Evaluator, _ ...string) error {
	p := h.page(c, "Dashboard", user, perms)
	tasks, err := h.Tasks.ReadAll(c.UserContext(), &user.ID, p.IsAdmin)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching tasks", zap.Int64("user_id", user.ID), zap.Error(err))
		return err
	}
	if len(tasks) > recentTaskLimit {
		tasks = tasks[:recentTaskLimit]
	}
	p.Tasks = tasks
	p.Editable = editable(c, perms, tasks)
	return view.Render(c, view.Dashboard, p)
}
