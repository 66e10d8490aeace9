package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/permission"
	"github.com/workaandrey/task-manager/internal/repository"
	"github.com/workaandrey/task-manager/internal/session"
	"github.com/workaandrey/task-manager/internal/view"
	"github.com/workaandrey/task-manager/internal/websocket"
	"github.com/workaandrey/task-manager/pkg/logger"
)

var validate = validator.New()

// taskInput is the editable part of a task as submitted by a form or JSON.
type taskInput struct {
	Title       string `validate:"required,max=255"`
	Description string
	Status      string `validate:"max=50"`
	AssignedTo  *int64 `validate:"omitempty,gt=0"`
}

func (in taskInput) problem() string {
	err := validate.Struct(in)
	if err == nil {
		return ""
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		switch {
		case fe.Field() == "Title" && fe.Tag() == "required":
			return "The title field is required"
		case fe.Field() == "AssignedTo":
			return "Assigned user does not exist"
		}
		return fmt.Sprintf("The %s field is invalid", strings.ToLower(fe.Field()))
	}
	return err.Error()
}

// parseID turns a route capture into a task id; non-numeric captures are
// treated as unknown tasks.
func parseID(args []string) (int64, bool) {
	if len(args) == 0 {
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	return id, err == nil && id > 0
}

func parseAssignee(raw string) (*int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil, false
	}
	return &id, true
}

// assigneeProblem reports a message when the assignee does not resolve.
func (h *Handlers) assigneeProblem(ctx context.Context, id *int64) (string, error) {
	if id == nil {
		return "", nil
	}
	user, err := h.Auth.UserByID(ctx, *id)
	if err != nil {
		return "", err
	}
	if user == nil {
		return "Assigned user does not exist", nil
	}
	return "", nil
}

func formTask(c *fiber.Ctx) (taskInput, string) {
	in := taskInput{
		Title:       strings.TrimSpace(c.FormValue("title")),
		Description: c.FormValue("description"),
		Status:      strings.TrimSpace(c.FormValue("status")),
	}
	assignee, ok := parseAssignee(c.FormValue("assigned_to"))
	if !ok {
		return in, "Assigned user does not exist"
	}
	in.AssignedTo = assignee
	if in.Status == "" {
		in.Status = models.TaskStatusPending
	}
	return in, in.problem()
}

func editable(c *fiber.Ctx, perms permission.Evaluator, tasks []models.Task) map[int64]bool {
	out := make(map[int64]bool, len(tasks))
	for _, t := range tasks {
		out[t.ID] = perms.CanEditTask(c.UserContext(), t.ID)
	}
	return out
}

func denied(user *models.User, action string, taskID int64) {
	logger.SecurityLogger.Warn("Permission denied",
		zap.Int64("user_id", user.ID),
		zap.String("action", action),
		zap.Int64("task_id", taskID),
	)
}

func (h *Handlers) TaskIndex(c *fiber.Ctx, user *models.User, perms permission.Evaluator, _ ...string) error {
	p := h.page(c, "Tasks", user, perms)
	tasks, err := h.Tasks.ReadAll(c.UserContext(), &user.ID, p.IsAdmin)
	if err != nil {
		logger.ErrorLogger.Error("Error fetching tasks", zap.Int64("user_id", user.ID), zap.Error(err))
		return err
	}
	p.Tasks = tasks
	p.Editable = editable(c, perms, tasks)
	return view.Render(c, view.Tasks, p)
}

func (h *Handlers) TaskCreate(c *fiber.Ctx, user *models.User, perms permission.Evaluator, _ ...string) error {
	return view.Render(c, view.TaskForm, h.page(c, "Create task", user, perms))
}

func (h *Handlers) TaskStore(c *fiber.Ctx, user *models.User, perms permission.Evaluator, _ ...string) error {
	ctx := c.UserContext()
	if !perms.CanCreateTask(ctx) {
		denied(user, "create_task", 0)
		return redirect(c, "/tasks", session.FlashError, "You don't have permission to create tasks")
	}
	in, msg := formTask(c)
	if msg == "" {
		var err error
		if msg, err = h.assigneeProblem(ctx, in.AssignedTo); err != nil {
			logger.ErrorLogger.Error("Error resolving assignee", zap.Error(err))
			return redirect(c, "/tasks/create", session.FlashError, "Failed to create task")
		}
	}
	if msg != "" {
		return redirect(c, "/tasks/create", session.FlashError, msg)
	}

	task := &models.Task{
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		CreatedBy:   user.ID,
		AssignedTo:  in.AssignedTo,
	}
	id, err := h.Tasks.Create(ctx, task)
	if err != nil {
		logger.ErrorLogger.Error("Error creating task", zap.Error(err))
		return redirect(c, "/tasks/create", session.FlashError, "Failed to create task")
	}
	logger.AuditLogger.Info("Task created", zap.Int64("task_id", id), zap.Int64("user_id", user.ID))
	h.publish(websocket.EventTaskCreated, id)
	return redirect(c, "/tasks", session.FlashSuccess, "Task created successfully")
}

func (h *Handlers) TaskEdit(c *fiber.Ctx, user *models.User, perms permission.Evaluator, args ...string) error {
	ctx := c.UserContext()
	id, ok := parseID(args)
	if !ok {
		return redirect(c, "/tasks", session.FlashError, "Task not found")
	}
	if !perms.CanEditTask(ctx, id) {
		denied(user, "edit_task", id)
		return redirect(c, "/tasks", session.FlashError, "You don't have permission to edit this task")
	}
	task, err := h.Tasks.Read(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return redirect(c, "/tasks", session.FlashError, "Task not found")
	}
	if err != nil {
		logger.ErrorLogger.Error("Error fetching task", zap.Int64("task_id", id), zap.Error(err))
		return err
	}
	p := h.page(c, "Edit task", user, perms)
	p.Task = task
	return view.Render(c, view.TaskForm, p)
}

// TaskUpdate checks edit rights before touching the store.
func (h *Handlers) TaskUpdate(c *fiber.Ctx, user *models.User, perms permission.Evaluator, args ...string) error {
	ctx := c.UserContext()
	id, ok := parseID(args)
	if !ok {
		return redirect(c, "/tasks", session.FlashError, "Task not found")
	}
	if !perms.CanEditTask(ctx, id) {
		denied(user, "edit_task", id)
		return redirect(c, "/tasks", session.FlashError, "You don't have permission to edit this task")
	}

	editURL := fmt.Sprintf("/tasks/%d/edit", id)
	in, msg := formTask(c)
	if msg == "" {
		var err error
		if msg, err = h.assigneeProblem(ctx, in.AssignedTo); err != nil {
			logger.ErrorLogger.Error("Error resolving assignee", zap.Error(err))
			return redirect(c, editURL, session.FlashError, "Failed to update task")
		}
	}
	if msg != "" {
		return redirect(c, editURL, session.FlashError, msg)
	}

	task := &models.Task{
		ID:          id,
		Title:       in.Title,
		Description: in.Description,
		Status:      in.Status,
		AssignedTo:  in.AssignedTo,
	}
	err := h.Tasks.Update(ctx, task)
	if errors.Is(err, repository.ErrNotFound) {
		return redirect(c, "/tasks", session.FlashError, "Task not found")
	}
	if err != nil {
		logger.ErrorLogger.Error("Error updating task", zap.Int64("task_id", id), zap.Error(err))
		return redirect(c, editURL, session.FlashError, "Failed to update task")
	}
	logger.AuditLogger.Info("Task updated", zap.Int64("task_id", id), zap.Int64("user_id", user.ID))
	h.publish(websocket.EventTaskUpdated, id)
	return redirect(c, "/tasks", session.FlashSuccess, "Task updated successfully")
}

func (h *Handlers) TaskDelete(c *fiber.Ctx, user *models.User, perms permission.Evaluator, args ...string) error {
	ctx := c.UserContext()
	id, ok := parseID(args)
	if !ok {
		return redirect(c, "/tasks", session.FlashError, "Task not found")
	}
	if !perms.CanDeleteTask(ctx, id) {
		denied(user, "delete_task", id)
		return redirect(c, "/tasks", session.FlashError, "You don't have permission to delete this task")
	}
	err := h.Tasks.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return redirect(c, "/tasks", session.FlashError, "Task not found")
	}
	if err != nil {
		logger.ErrorLogger.Error("Error deleting task", zap.Int64("task_id", id), zap.Error(err))
		return redirect(c, "/tasks", session.FlashError, "Failed to delete task")
	}
	logger.AuditLogger.Info("Task deleted", zap.Int64("task_id", id), zap.Int64("user_id", user.ID))
	h.publish(websocket.EventTaskDeleted, id)
	return redirect(c, "/tasks", session.FlashSuccess, "Task deleted successfully")
}
