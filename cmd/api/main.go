package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/workaandrey/task-manager/configs"
	v1 "github.com/workaandrey/task-manager/internal/api/v1"
	"github.com/workaandrey/task-manager/internal/config"
	"github.com/workaandrey/task-manager/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := configs.LoadConfig()

	if err := logger.InitLoggers(cfg.LogDir, cfg.AppDebug); err != nil {
		log.Fatalf("init loggers: %v", err)
	}
	defer logger.SyncLoggers()
	logger.SystemLogger.Info("Starting application",
		zap.String("env", cfg.AppEnv),
		zap.String("db_driver", cfg.DBDriver),
		zap.String("time", time.Now().Format(time.RFC3339)),
	)

	if err := run(cfg); err != nil {
		logger.ErrorLogger.Error("Application stopped with error", zap.Error(err))
		logger.SyncLoggers()
		os.Exit(1)
	}
}

func run(cfg configs.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := config.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.ErrorLogger.Error("Error closing dependencies", zap.Error(err))
		}
	}()
	logger.SystemLogger.Info("Database connected")

	go deps.Hub.Run(ctx)

	app := v1.NewApp(v1.Options{
		Handlers:     deps.Handlers(),
		Auth:         deps.AuthMiddleware(),
		Sessions:     deps.Sessions,
		Storage:      deps.Storage,
		RateLimitMax: cfg.RateLimitMax,
		Production:   cfg.IsProduction(),
	})

	listenErr := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf(":%d", cfg.AppPort)
		logger.SystemLogger.Info("Application ready", zap.String("addr", addr))
		listenErr <- app.Listen(addr)
	}()

	select {
	case err := <-listenErr:
		return err
	case <-ctx.Done():
	}

	logger.SystemLogger.Info("Shutting down")
	return app.ShutdownWithTimeout(shutdownTimeout)
}
