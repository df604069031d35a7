package main

import (
	"context"

	"github.com/seiforesti/data-wave-sub013/internal/app/run"
	"github.com/seiforesti/data-wave-sub013/internal/config"
	"github.com/seiforesti/data-wave-sub013/internal/infra/executor"
	"github.com/seiforesti/data-wave-sub013/internal/infra/jobs"
	"github.com/seiforesti/data-wave-sub013/internal/infra/redis"
	"github.com/seiforesti/data-wave-sub013/internal/infra/websocket"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// Workers holds all background worker instances.
type Workers struct {
	Scheduler    *run.Scheduler
	StaleMonitor *run.StaleMonitor
	JobWorker    *jobs.Worker
	EventRelay   *redis.EventRelay
	Bridge       *websocket.Bridge
}

// WorkerDeps contains dependencies needed to create workers.
type WorkerDeps struct {
	Config      *config.Config
	Log         *logger.Logger
	Repos       *Repositories
	Services    *Services
	RedisClient *redis.Client
}

// NewWorkers initializes all background workers.
func NewWorkers(deps *WorkerDeps) *Workers {
	cfg := deps.Config
	log := deps.Log
	svc := deps.Services

	gateway := executor.NewHTTPGateway(
		cfg.Executor.BaseURL,
		cfg.Auth.ExecutorSecret,
		cfg.Executor.RequestTimeout,
		log,
	)

	return &Workers{
		Scheduler: run.NewScheduler(
			deps.Repos.ScanConfiguration,
			svc.Coordinator,
			svc.Stream,
			cfg.Scheduler.TickInterval,
			cfg.Scheduler.BatchSize,
			log,
		),
		StaleMonitor: run.NewStaleMonitor(
			svc.Coordinator,
			svc.Stream,
			cfg.Executor.StaleGrace,
			cfg.Executor.StaleCheckInterval,
			log,
		),
		JobWorker: jobs.NewWorker(jobs.WorkerConfig{
			RedisAddr:     cfg.Redis.Addr(),
			RedisPassword: cfg.Redis.Password,
			RedisDB:       cfg.Redis.DB,
			Concurrency:   cfg.Worker.Concurrency,
		}, gateway, log),
		EventRelay: redis.NewEventRelay(deps.RedisClient, svc.Stream, log),
		Bridge:     websocket.NewBridge(svc.WebSocketHub, svc.Stream),
	}
}

// Start launches all workers on the given context.
func (w *Workers) Start(ctx context.Context, log *logger.Logger) {
	w.Scheduler.Start(ctx)
	log.Info("scheduler started")

	w.StaleMonitor.Start(ctx)
	log.Info("stale monitor started")

	w.EventRelay.Start(ctx)
	log.Info("event relay started")

	w.Bridge.Start(ctx)
	log.Info("websocket bridge started")

	go func() {
		if err := w.JobWorker.Start(); err != nil {
			log.Error("job worker stopped", "error", err)
		}
	}()
	log.Info("job worker started")
}

// Stop shuts the workers down in reverse start order.
func (w *Workers) Stop(log *logger.Logger) {
	w.JobWorker.Shutdown()
	w.Bridge.Stop()
	w.EventRelay.Stop()
	w.StaleMonitor.Stop()
	w.Scheduler.Stop()
	log.Info("workers stopped")
}
