package main

import (
	"github.com/seiforesti/data-wave-sub013/internal/infra/http/handler"
	"github.com/seiforesti/data-wave-sub013/internal/infra/http/routes"
	"github.com/seiforesti/data-wave-sub013/internal/infra/postgres"
	"github.com/seiforesti/data-wave-sub013/internal/infra/redis"
	"github.com/seiforesti/data-wave-sub013/internal/infra/websocket"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/validator"
)

// HandlerDeps contains dependencies needed to create handlers.
type HandlerDeps struct {
	Log         *logger.Logger
	Validator   *validator.Validator
	DB          *postgres.DB
	RedisClient *redis.Client
	Services    *Services
}

// NewHandlers initializes all HTTP handlers.
func NewHandlers(deps *HandlerDeps) routes.Handlers {
	log := deps.Log
	v := deps.Validator
	svc := deps.Services

	return routes.Handlers{
		Health: handler.NewHealthHandler(
			handler.WithDatabase(deps.DB),
			handler.WithRedis(deps.RedisClient),
		),
		ScanConfig:       handler.NewScanConfigHandler(svc.ScanConfig, svc.Coordinator, svc.Bulk, v, log),
		ScanRun:          handler.NewScanRunHandler(svc.Coordinator, svc.Triage, svc.Discovery, svc.Bulk, svc.Stream, v, log),
		ScanIssue:        handler.NewScanIssueHandler(svc.Triage, v, log),
		Stats:            handler.NewStatsHandler(svc.Stats, log),
		Events:           handler.NewEventsHandler(svc.Stream, log),
		ExecutorCallback: handler.NewExecutorCallbackHandler(svc.Coordinator, svc.Triage, svc.Discovery, v, log),
		WebSocket:        websocket.NewHandler(svc.WebSocketHub, log),
	}
}
