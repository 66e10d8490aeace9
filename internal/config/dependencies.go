package config

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/hashicorp/go-multierror"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/configs"
	"github.com/workaandrey/task-manager/internal/api/v1/handlers"
	"github.com/workaandrey/task-manager/internal/auth"
	"github.com/workaandrey/task-manager/internal/middleware"
	"github.com/workaandrey/task-manager/internal/models"
	"github.com/workaandrey/task-manager/internal/permission"
	"github.com/workaandrey/task-manager/internal/repository"
	"github.com/workaandrey/task-manager/internal/session"
	"github.com/workaandrey/task-manager/internal/websocket"
	"github.com/workaandrey/task-manager/pkg/database"
	"github.com/workaandrey/task-manager/pkg/logger"
)

const hubBuffer = 64

// Dependencies is everything the application shares between requests.
type Dependencies struct {
	Config configs.Config
	DB     *sqlx.DB
	// Redis is nil when REDIS_HOST is unset.
	Redis *redis.Client

	Users *repository.UserRepository
	Tasks *repository.TaskRepository
	Roles *repository.RoleRepository

	Auth     *auth.Service
	Tokens   *auth.TokenIssuer
	Hub      *websocket.Hub
	Sessions *session.Manager
	// Storage is shared by sessions and the rate limiter; nil means in-memory.
	Storage fiber.Storage
}

// Build connects the database and Redis, prepares the schema and wires the
// services on top of them.
func Build(ctx context.Context, cfg configs.Config) (*Dependencies, error) {
	db, err := database.ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	d := &Dependencies{Config: cfg, DB: db}

	if err := repository.CreateTableIfNotExists(ctx, db); err != nil {
		d.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	if cfg.AdminPassword != "" {
		if err := repository.CreateAdminUser(ctx, db, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			d.Close()
			return nil, fmt.Errorf("create admin user: %w", err)
		}
	}

	d.Redis, err = database.ConnectRedis(ctx, cfg)
	if err != nil {
		d.Close()
		return nil, err
	}
	if d.Redis != nil {
		d.Storage = session.NewRedisStorage(d.Redis, "task-manager:")
		logger.SystemLogger.Info("Redis connected", zap.String("host", cfg.RedisHost))
	}

	d.Users = repository.NewUserRepository(db)
	d.Tasks = repository.NewTaskRepository(db)
	d.Roles = repository.NewRoleRepository(db)
	d.Auth = auth.NewService(d.Users)
	d.Tokens = auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL)
	d.Hub = websocket.NewHub(hubBuffer)
	d.Sessions = session.NewManager(session.Config{
		Expiration: cfg.SessionTTL,
		Secure:     cfg.IsProduction(),
		Storage:    d.Storage,
	})
	return d, nil
}

// Permissions binds a permission checker to user.
func (d *Dependencies) Permissions(user *models.User) permission.Evaluator {
	return permission.NewChecker(d.Users, d.Tasks, user)
}

func (d *Dependencies) Handlers() *handlers.Handlers {
	return &handlers.Handlers{
		Auth:           d.Auth,
		Tokens:         d.Tokens,
		Tasks:          d.Tasks,
		Roles:          d.Roles,
		Events:         d.Hub,
		Production:     d.Config.IsProduction(),
		PublicTaskList: d.Config.PublicAPITaskList,
	}
}

func (d *Dependencies) AuthMiddleware() *middleware.AuthMiddleware {
	return middleware.NewAuthMiddleware(d.Auth, d.Tokens, d.Permissions, d.Config.LoginPath)
}

// Close releases the connections, reporting every failure.
func (d *Dependencies) Close() error {
	var result *multierror.Error
	if d.Redis != nil {
		if err := d.Redis.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close redis: %w", err))
		}
	}
	if d.DB != nil {
		if err := d.DB.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("close database: %w", err))
		}
	}
	return result.ErrorOrNil()
}
