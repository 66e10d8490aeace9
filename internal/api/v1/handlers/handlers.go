// Package handlers holds the web and JSON controllers. Every handler has the
// router's signature, optionally wrapped by the auth middleware.
package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/workaandrey/task-manager/internal/auth"
	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/permission"
	"github.com/workaandrey/task-manager/internal/repository"
	"github.com/workaandrey/task-manager/internal/session"
	"github.com/workaandrey/task-manager/internal/view"
	"github.com/workaandrey/task-manager/internal/websocket"
)

type AuthService interface {
	IsLoggedIn(sess auth.Session) bool
	Login(ctx context.Context, sess auth.Session, identifier, password string) (*models.User, error)
	Register(ctx context.Context, sess auth.Session, reg auth.Registration) (*models.User, error)
	Logout(sess auth.Session) error
	Authenticate(ctx context.Context, identifier, password string) (*models.User, error)
	UserByID(ctx context.Context, id int64) (*models.User, error)
}

type TokenIssuer interface {
	Issue(userID int64) (string, time.Time, error)
}

type TaskStore interface {
	Create(ctx context.Context, task *models.Task) (int64, error)
	Read(ctx context.Context, id int64) (*models.Task, error)
	Update(ctx context.Context, task *models.Task) error
	Delete(ctx context.Context, id int64) error
	ReadAll(ctx context.Context, userID *int64, isAdmin bool) ([]models.Task, error)
}

type RoleStore interface {
	Create(ctx context.Context, name string, description *string) (int64, error)
	Read(ctx context.Context, id int64) (*models.Role, error)
	ReadAll(ctx context.Context) ([]models.Role, error)
	Update(ctx context.Context, id int64, data repository.RoleUpdate) error
	Delete(ctx context.Context, id int64) error
	GetRoleID(ctx context.Context, name string) (int64, error)
	UsersByRole(ctx context.Context, roleID int64) ([]models.User, error)
}

// EventHub publishes task changes and serves the websocket feed.
type EventHub interface {
	Publish(evt websocket.TaskEvent)
	Handler(userID int64) fiber.Handler
}

type Handlers struct {
	Auth   AuthService
	Tokens TokenIssuer
	Tasks  TaskStore
	Roles  RoleStore
	Events EventHub

	Production bool
	// PublicTaskList serves GET /api/tasks without authentication, listing
	// every task.
	PublicTaskList bool
}

var taskStatuses = []string{models.TaskStatusPending, models.TaskStatusInProgress, models.TaskStatusCompleted}

func (h *Handlers) publish(kind string, taskID int64) {
	if h.Events == nil {
		return
	}
	h.Events.Publish(websocket.TaskEvent{Type: kind, TaskID: taskID})
}

// page fills the data every authenticated page shares and drains flashes.
func (h *Handlers) page(c *fiber.Ctx, title string, user *models.User, perms permission.Evaluator) view.Page {
	p := view.Page{
		Title:    title,
		User:     user,
		Flashes:  session.FromCtx(c).Flashes(),
		Statuses: taskStatuses,
	}
	if perms != nil {
		p.IsAdmin = perms.IsAdmin(c.UserContext())
	}
	return p
}

// redirect stores an optional flash and sends the browser to url.
func redirect(c *fiber.Ctx, url, kind, message string) error {
	if message != "" {
		session.FromCtx(c).Flash(kind, message)
	}
	return c.Redirect(url, fiber.StatusFound)
}
