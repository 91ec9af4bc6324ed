package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/example/autolead/internal/app"
	"github.com/example/autolead/internal/cache"
	"github.com/example/autolead/internal/config"
	"github.com/example/autolead/internal/database"
	"github.com/example/autolead/internal/logger"
	"github.com/example/autolead/internal/utils"
)

func main() {
	cfg := config.Load()

	zlog, err := logger.New(logger.ConfigFromEnv())
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zlog.Sync() }()

	utils.SetFolioNode(cfg.SnowflakeNode)

	db, err := database.Connect(cfg.DatabaseURL, zlog)
	if err != nil {
		zlog.Fatal("database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			zlog.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
	}

	srv := app.New(cfg, db, rdb, zlog, app.Overrides{})

	listenErr := make(chan error, 1)
	go func() {
		zlog.Info("starting server", zap.String("port", cfg.AppPort), zap.String("env", cfg.AppEnv))
		listenErr <- srv.Fiber.Listen(":" + cfg.AppPort)
	}()

	select {
	case err := <-listenErr:
		if err != nil {
			zlog.Fatal("fiber.Listen", zap.Error(err))
		}
		return
	case <-ctx.Done():
	}

	zlog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		zlog.Error("shutdown", zap.Error(err))
	}
}
