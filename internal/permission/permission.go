// Package permission answers per-request authorization questions about tasks.
// Every check issues its own query and fails closed on data-access errors.
package permission

import (
	"context"

	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/pkg/logger"
)

// Evaluator is the capability contract handed to handlers.
type Evaluator interface {
	IsAdmin(ctx context.Context) bool
	CanCreateTask(ctx context.Context) bool
	CanViewTask(ctx context.Context, taskID int64) bool
	CanEditTask(ctx context.Context, taskID int64) bool
	CanDeleteTask(ctx context.Context, taskID int64) bool
}

// RoleLookup resolves the role name of a user.
type RoleLookup interface {
	RoleName(ctx context.Context, userID int64) (string, error)
}

// TaskLookup answers task existence questions scoped to a user.
type TaskLookup interface {
	IsCreator(ctx context.Context, taskID, userID int64) (bool, error)
	IsCreatorOrAssignee(ctx context.Context, taskID, userID int64) (bool, error)
}

// Checker is the SQL-backed Evaluator bound to one (possibly nil) user.
type Checker struct {
	roles RoleLookup
	tasks TaskLookup
	user  *models.User
}

func NewChecker(roles RoleLookup, tasks TaskLookup, user *models.User) *Checker {
	return &Checker{roles: roles, tasks: tasks, user: user}
}

func (c *Checker) IsAdmin(ctx context.Context) bool {
	if c.user == nil {
		return false
	}
	name, err := c.roles.RoleName(ctx, c.user.ID)
	if err != nil {
		c.logFailure("is_admin", 0, err)
		return false
	}
	return name == models.RoleAdmin
}

// CanCreateTask is open to every authenticated caller.
func (c *Checker) CanCreateTask(ctx context.Context) bool {
	return true
}

func (c *Checker) CanViewTask(ctx context.Context, taskID int64) bool {
	if c.IsAdmin(ctx) {
		return true
	}
	if c.user == nil {
		return false
	}
	ok, err := c.tasks.IsCreatorOrAssignee(ctx, taskID, c.user.ID)
	if err != nil {
		c.logFailure("view_task", taskID, err)
		return false
	}
	return ok
}

// CanEditTask is reserved to the creator; the admin role grants no bypass.
func (c *Checker) CanEditTask(ctx context.Context, taskID int64) bool {
	if c.user == nil {
		return false
	}
	ok, err := c.tasks.IsCreator(ctx, taskID, c.user.ID)
	if err != nil {
		c.logFailure("edit_task", taskID, err)
		return false
	}
	return ok
}

func (c *Checker) CanDeleteTask(ctx context.Context, taskID int64) bool {
	return c.IsAdmin(ctx)
}

func (c *Checker) logFailure(check string, taskID int64, err error) {
	fields := []zap.Field{zap.String("check", check), zap.Error(err)}
	if c.user != nil {
		fields = append(fields, zap.Int64("user_id", c.user.ID))
	}
	if taskID != 0 {
		fields = append(fields, zap.Int64("task_id", taskID))
	}
	logger.ErrorLogger.Error("Permission check failed", fields...)
}
