package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/seiforesti/data-wave-sub013/internal/config"
	"github.com/seiforesti/data-wave-sub013/internal/infra/http"
	"github.com/seiforesti/data-wave-sub013/internal/infra/http/routes"
	"github.com/seiforesti/data-wave-sub013/internal/infra/jobs"
	"github.com/seiforesti/data-wave-sub013/internal/infra/postgres"
	"github.com/seiforesti/data-wave-sub013/internal/infra/redis"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/migrations"
	"github.com/seiforesti/data-wave-sub013/pkg/validator"
)

func main() {
	os.Exit(runApp())
}

func runApp() int {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log := logger.NewDefault()
		log.Error("failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	log.Info("starting application", "app", cfg.App.Name, "env", cfg.App.Env)

	db, err := postgres.New(&cfg.Database)
	if err != nil {
		log.Error("failed to connect to database", "error", err)
		return 1
	}
	defer closeWithLog(db, "database", log)
	log.Info("database connected")

	if cfg.Database.MigrationsDir != "" {
		runner := migrations.NewRunner(db.DB, cfg.Database.MigrationsDir, log)
		if err := runner.Up(ctx); err != nil {
			log.Error("failed to run migrations", "error", err)
			return 1
		}
	}

	redisClient, err := redis.New(&cfg.Redis, log)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		return 1
	}
	defer closeWithLog(redisClient, "redis", log)
	log.Info("redis connected")

	jobClient, err := jobs.NewClient(jobs.ClientConfig{
		RedisAddr:     cfg.Redis.Addr(),
		RedisPassword: cfg.Redis.Password,
		RedisDB:       cfg.Redis.DB,
	}, log)
	if err != nil {
		log.Error("failed to initialize job client", "error", err)
		return 1
	}
	defer closeWithLog(jobClient, "job client", log)

	repos := NewRepositories(db)
	log.Info("repositories initialized")

	services := NewServices(&ServiceDeps{
		Config:   cfg,
		Log:      log,
		Repos:    repos,
		Executor: jobClient,
	})
	log.Info("services initialized")

	// Restore in-flight run tracking after a restart.
	if err := services.Coordinator.Recover(ctx); err != nil {
		log.Error("failed to recover active runs", "error", err)
		return 1
	}

	v := validator.New()
	handlers := NewHandlers(&HandlerDeps{
		Log:         log,
		Validator:   v,
		DB:          db,
		RedisClient: redisClient,
		Services:    services,
	})

	wsCtx, wsCancel := context.WithCancel(ctx)
	defer wsCancel()
	go services.WebSocketHub.Run(wsCtx)
	log.Info("websocket hub started")

	server := http.NewServer(cfg, log)
	routes.Register(server.Router(), handlers, cfg, log)

	workers := NewWorkers(&WorkerDeps{
		Config:      cfg,
		Log:         log,
		Repos:       repos,
		Services:    services,
		RedisClient: redisClient,
	})
	workers.Start(ctx, log)

	go func() {
		if err := server.Start(); err != nil {
			log.Error("server error", "error", err)
		}
	}()
	log.Info("application started", "http_addr", cfg.Server.Addr())

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	wsCancel()
	log.Info("websocket hub stopped")

	workers.Stop(log)

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		return 1
	}

	log.Info("application stopped")
	return 0
}

type closer interface {
	Close() error
}

func closeWithLog(c closer, name string, log *logger.Logger) {
	if err := c.Close(); err != nil {
		log.Error("failed to close "+name, "error", err)
	}
}
