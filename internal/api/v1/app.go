package v1

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/internal/api/v1/handlers"
	"github.com/workaandrey/task-manager/internal/middleware"
	"github.com/workaandrey/task-manager/internal/router"
	"github.com/workaandrey/task-manager/internal/session"
	"github.com/workaandrey/task-manager/pkg/logger"
)

type Options struct {
	Handlers *handlers.Handlers
	Auth     *middleware.AuthMiddleware
	Sessions *session.Manager
	// Storage backs the rate limiter; nil uses fiber's in-memory storage.
	Storage      fiber.Storage
	RateLimitMax int
	Production   bool
}

// NewApp builds the fiber application with the router mounted as its only
// route handler.
func NewApp(opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "task-manager",
		ErrorHandler:          middleware.ErrorPage(opts.Production),
		DisableStartupMessage: true,
	})

	app.Use(middleware.ErrorHandler())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	if opts.RateLimitMax > 0 {
		cfg := limiter.Config{
			Max:        opts.RateLimitMax,
			Expiration: 1 * time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				logger.SecurityLogger.Warn("Rate limit reached", zap.String("ip", c.IP()))
				return c.Status(fiber.StatusTooManyRequests).JSON(handlers.Response{
					Status:  "error",
					Message: "Too many requests",
				})
			},
		}
		if opts.Storage != nil {
			cfg.Storage = opts.Storage
		}
		app.Use(limiter.New(cfg))
	}
	app.Use(opts.Sessions.Middleware())

	r := router.New()
	RegisterRoutes(r, opts.Handlers, opts.Auth)
	app.Use(r.Handler())
	return app
}
