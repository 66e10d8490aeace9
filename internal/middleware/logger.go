package middleware

import (
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/view"
	"github.com/workaandrey/task-manager/pkg/logger"
)

const HeaderRequestID = "X-Request-ID"

// PanicError is a recovered panic together with the stack it unwound.
type PanicError struct {
	Value interface{}
	Stack string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("Recovered from panic: %v", e.Value)
}

// ErrorHandler tags the request with an id, logs it, and turns panics into
// errors for the fiber error handler.
func ErrorHandler() fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		requestID := c.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Locals("request_id", requestID)
		c.Set(HeaderRequestID, requestID)
		start := time.Now()

		defer func() {
			if r := recover(); r != nil {
				pe := &PanicError{Value: r, Stack: string(debug.Stack())}
				logger.ErrorLogger.Error(pe.Error(),
					zap.String("request_id", requestID),
					zap.String("stack", pe.Stack),
				)
				err = pe
			}
		}()

		logger.RequestLogger.Info("Incoming request",
			zap.String("request_id", requestID),
			zap.String("method", c.Method()),
			zap.String("url", c.OriginalURL()),
		)
		err = c.Next()
		logger.RequestLogger.Info("Request handled",
			zap.String("request_id", requestID),
			zap.Int("status", c.Response().StatusCode()),
			zap.Duration("latency", time.Since(start)),
		)
		return err
	}
}

// WantsJSON reports whether the caller asked for a JSON response.
func WantsJSON(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON)
}

// ErrorPage renders errors that escaped the handlers. Production callers see
// a generic message; development adds the error text and any panic stack.
func ErrorPage(production bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
			message = fe.Message
		}
		var stack string
		var pe *PanicError
		if errors.As(err, &pe) {
			stack = pe.Stack
		}

		if code >= fiber.StatusInternalServerError {
			requestID, _ := c.Locals("request_id").(string)
			logger.ErrorLogger.Error("Request failed",
				zap.String("request_id", requestID),
				zap.String("method", c.Method()),
				zap.String("url", c.OriginalURL()),
				zap.Error(err),
			)
		}

		if WantsJSON(c) || strings.HasPrefix(c.Path(), "/api/") {
			body := fiber.Map{"status": "error", "message": message}
			if !production {
				body["error"] = err.Error()
			}
			return c.Status(code).JSON(body)
		}

		page := view.Page{Title: "Error", Status: code, Message: message}
		if !production {
			page.Detail = err.Error()
			page.Stack = stack
		}
		c.Status(code)
		if renderErr := view.Render(c, view.Error, page); renderErr != nil {
			return c.Status(code).SendString(message)
		}
		return nil
	}
}
