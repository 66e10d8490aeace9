package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/permission"
	"github.com/workaandrey/task-manager/internal/repository"
	"github.com/workaandrey/task-manager/internal/websocket"
	"github.com/workaandrey/task-manager/pkg/logger"
)

// taskPayload is the JSON body of create and update calls. Absent fields
// keep their current value on update.
type taskPayload struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	AssignedTo  *int64  `json:"assigned_to"`
}

func (p taskPayload) apply(task *models.Task) {
	if p.Title != nil {
		task.Title = strings.TrimSpace(*p.Title)
	}
	if p.Description != nil {
		task.Description = *p.Description
	}
	if p.Status != nil && strings.TrimSpace(*p.Status) != "" {
		task.Status = strings.TrimSpace(*p.Status)
	}
	if p.AssignedTo != nil {
		task.AssignedTo = p.AssignedTo
	}
}

func inputOf(task *models.Task) taskInput {
	return taskInput{Title: task.Title, Description: task.Description, Status: task.Status, AssignedTo: task.AssignedTo}
}

// APIIndex lists the tasks visible to the caller.
func (h *Handlers) APIIndex(c *fiber.Ctx, user *models.User, perms permission.Evaluator, _ ...string) error {
	ctx := c.UserContext()
	tasks, err := h.Tasks.ReadAll(ctx, &user.ID, perms.IsAdmin(ctx))
	if err != nil {
		logger.ErrorLogger.Error("Error fetching tasks", zap.Int64("user_id", user.ID), zap.Error(err))
		return h.serverError(c, "Failed to fetch tasks", err)
	}
	return list(c, tasks, len(tasks))
}

// APIIndexPublic lists every task without authentication.
func (h *Handlers) APIIndexPublic(c *fiber.Ctx, _ ...string) error {
	tasks, err := h.Tasks.ReadAll(c.UserContext(), nil, true)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching tasks", zap.Error(err))
		return h.serverError(c, "Failed to fetch tasks", err)
	}
	return list(c, tasks, len(tasks))
}

func (h *Handlers) APIShow(c *fiber.Ctx, user *models.User, perms permission.Evaluator, args ...string) error {
	ctx := c.UserContext()
	id, ok := parseID(args)
	if !ok {
		return failure(c, fiber.StatusNotFound, "Task not found")
	}
	if !perms.CanViewTask(ctx, id) {
		denied(user, "view_task", id)
		return failure(c, fiber.StatusForbidden, "You do not have permission to view this task")
	}
	task, err := h.Tasks.Read(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return failure(c, fiber.StatusNotFound, "Task not found")
	}
	if err != nil {
		logger.ErrorLogger.Error("Error fetching task", zap.Int64("task_id", id), zap.Error(err))
		return h.serverError(c, "Failed to fetch task", err)
	}
	return success(c, fiber.StatusOK, "", task)
}

func (h *Handlers) APIStore(c *fiber.Ctx, user *models.User, perms permission.Evaluator, _ ...string) error {
	ctx := c.UserContext()
	if !perms.CanCreateTask(ctx) {
		denied(user, "create_task", 0)
		return failure(c, fiber.StatusForbidden, "You do not have permission to create tasks")
	}
	var body taskPayload
	if err := c.BodyParser(&body); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}
	if body.Title == nil || strings.TrimSpace(*body.Title) == "" {
		return failure(c, fiber.StatusBadRequest, "Title is required")
	}

	task := &models.Task{Status: models.TaskStatusPending, CreatedBy: user.ID}
	body.apply(task)
	if msg := inputOf(task).problem(); msg != "" {
		return failure(c, fiber.StatusBadRequest, msg)
	}
	msg, err := h.assigneeProblem(ctx, task.AssignedTo)
	if err != nil {
		return h.serverError(c, "Failed to create task", err)
	}
	if msg != "" {
		return failure(c, fiber.StatusBadRequest, msg)
	}

	id, err := h.Tasks.Create(ctx, task)
	if err != nil {
		logger.ErrorLogger.Error("Error creating task", zap.Error(err))
		return h.serverError(c, "Failed to create task", err)
	}
	created, err := h.Tasks.Read(ctx, id)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching created task", zap.Int64("task_id", id), zap.Error(err))
		return h.serverError(c, "Failed to create task", err)
	}
	logger.AuditLogger.Info("Task created", zap.Int64("task_id", id), zap.Int64("user_id", user.ID))
	h.publish(websocket.EventTaskCreated, id)
	return success(c, fiber.StatusCreated, "Task created successfully", created)
}

// APIUpdate merges the body into the stored task after the edit check.
func (h *Handlers) APIUpdate(c *fiber.Ctx, user *models.User, perms permission.Evaluator, args ...string) error {
	ctx := c.UserContext()
	id, ok := parseID(args)
	if !ok {
		return failure(c, fiber.StatusNotFound, "Task not found")
	}
	if !perms.CanEditTask(ctx, id) {
		denied(user, "edit_task", id)
		return failure(c, fiber.StatusForbidden, "You do not have permission to edit this task")
	}
	var body taskPayload
	if err := c.BodyParser(&body); err != nil {
		return failure(c, fiber.StatusBadRequest, "Invalid request body")
	}

	task, err := h.Tasks.Read(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return failure(c, fiber.StatusNotFound, "Task not found")
	}
	if err != nil {
		return h.serverError(c, "Failed to update task", err)
	}
	body.apply(task)
	if msg := inputOf(task).problem(); msg != "" {
		return failure(c, fiber.StatusBadRequest, msg)
	}
	if body.AssignedTo != nil {
		msg, err := h.assigneeProblem(ctx, task.AssignedTo)
		if err != nil {
			return h.serverError(c, "Failed to update task", err)
		}
		if msg != "" {
			return failure(c, fiber.StatusBadRequest, msg)
		}
	}

	err = h.Tasks.Update(ctx, task)
	if errors.Is(err, repository.ErrNotFound) {
		return failure(c, fiber.StatusNotFound, "Task not found")
	}
	if err != nil {
		logger.ErrorLogger.Error("Error updating task", zap.Int64("task_id", id), zap.Error(err))
		return h.serverError(c, "Failed to update task", err)
	}
	updated, err := h.Tasks.Read(ctx, id)
	if err != nil {
		return h.serverError(c, "Failed to update task", err)
	}
	logger.AuditLogger.Info("Task updated", zap.Int64("task_id", id), zap.Int64("user_id", user.ID))
	h.publish(websocket.EventTaskUpdated, id)
	return success(c, fiber.StatusOK, "Task updated successfully", updated)
}

func (h *Handlers) APIDestroy(c *fiber.Ctx, user *models.User, perms permission.Evaluator, args ...string) error {
	ctx := c.UserContext()
	id, ok := parseID(args)
	if !ok {
		return failure(c, fiber.StatusNotFound, "Task not found")
	}
	if !perms.CanDeleteTask(ctx, id) {
		denied(user, "delete_task", id)
		return failure(c, fiber.StatusForbidden, "You do not have permission to delete this task")
	}
	err := h.Tasks.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return failure(c, fiber.StatusNotFound, "Task not found")
	}
	if err != nil {
		logger.ErrorLogger.Error("Error deleting task", zap.Int64("task_id", id), zap.Error(err))
		return h.serverError(c, "Failed to delete task", err)
	}
	logger.AuditLogger.Info("Task deleted", zap.Int64("task_id", id), zap.Int64("user_id", user.ID))
	h.publish(websocket.EventTaskDeleted, id)
	return success(c, fiber.StatusOK, "Task deleted successfully", nil)
}

// TaskFeed upgrades to the websocket event stream.
func (h *Handlers) TaskFeed(c *fiber.Ctx, user *models.User, _ permission.Evaluator, _ ...string) error {
	if h.Events == nil || !websocket.IsUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return h.Events.Handler(user.ID)(c)
}
