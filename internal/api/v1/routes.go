package v1

import (
	"github.com/workaandrey/task-manager/internal/api/v1/handlers"
	"github.com/workaandrey/task-manager/internal/middleware"
	"github.com/workaandrey/task-manager/internal/router"
)

// RegisterRoutes fills r with the web pages, the JSON API and the event feed.
func RegisterRoutes(r *router.Router, h *handlers.Handlers, mw *middleware.AuthMiddleware) {
	// Web
	r.Get("/", mw.Protect(h.Dashboard))
	r.Get("/login", h.ShowLogin)
	r.Post("/login", h.Login)
	r.Get("/register", h.ShowRegister)
	r.Post("/register", h.Register)
	r.Get("/logout", h.Logout)

	r.Get("/tasks", mw.Protect(h.TaskIndex))
	r.Get("/tasks/create", mw.Protect(h.TaskCreate))
	r.Post("/tasks/create", mw.Protect(h.TaskStore))
	r.Get("/tasks/{id}/edit", mw.Protect(h.TaskEdit))
	r.Post("/tasks/{id}/edit", mw.Protect(h.TaskUpdate))
	r.Post("/tasks/{id}/delete", mw.Protect(h.TaskDelete))

	// API
	r.Post("/api/login", h.APILogin)
	if h.PublicTaskList {
		r.Get("/api/tasks", h.APIIndexPublic)
	} else {
		r.Get("/api/tasks", mw.ProtectAPI(h.APIIndex))
	}
	r.Get("/api/tasks/{id}", mw.ProtectAPI(h.APIShow))
	r.Post("/api/tasks", mw.ProtectAPI(h.APIStore))
	r.Post("/api/tasks/{id}", mw.ProtectAPI(h.APIUpdate))
	r.Delete("/api/tasks/{id}", mw.ProtectAPI(h.APIDestroy))

	r.Get("/api/roles", mw.ProtectAPI(h.RoleIndex))
	r.Post("/api/roles", mw.ProtectAPI(h.RoleStore))
	r.Get("/api/roles/{id}", mw.ProtectAPI(h.RoleShow))
	r.Post("/api/roles/{id}", mw.ProtectAPI(h.RoleUpdate))
	r.Delete("/api/roles/{id}", mw.ProtectAPI(h.RoleDelete))
	r.Get("/api/roles/{id}/users", mw.ProtectAPI(h.RoleUsers))

	// Events
	r.Get("/ws/tasks", mw.Protect(h.TaskFeed))

	r.SetNotFound(h.NotFound)
}
