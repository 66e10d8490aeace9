package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/workaandrey/task-manager/internal/middleware"
	"github.com/workaandrey/task-manager/internal/view"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// Response is the JSON envelope of every API answer.
type Response struct {
	Status  string      `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Count   *int        `json:"count,omitempty"`
}

func success(c *fiber.Ctx, code int, message string, data interface{}) error {
	return c.Status(code).JSON(Response{Status: statusSuccess, Message: message, Data: data})
}

func list(c *fiber.Ctx, data interface{}, count int) error {
	return c.JSON(Response{Status: statusSuccess, Data: data, Count: &count})
}

func failure(c *fiber.Ctx, code int, message string) error {
	return c.Status(code).JSON(Response{Status: statusError, Message: message})
}

// serverError hides err from production callers.
func (h *Handlers) serverError(c *fiber.Ctx, message string, err error) error {
	resp := Response{Status: statusError, Message: message}
	if !h.Production && err != nil {
		resp.Error = err.Error()
	}
	return c.Status(fiber.StatusInternalServerError).JSON(resp)
}

// NotFound answers unknown routes with JSON when asked for it and HTML
// otherwise.
func (h *Handlers) NotFound(c *fiber.Ctx) error {
	c.Status(fiber.StatusNotFound)
	if middleware.WantsJSON(c) {
		return c.JSON(Response{Status: statusError, Message: "Endpoint not found"})
	}
	return view.Render(c, view.NotFound, view.Page{Title: "Not found"})
}
