package main

import (
	"github.com/seiforesti/data-wave-sub013/internal/app/bulk"
	"github.com/seiforesti/data-wave-sub013/internal/app/discovery"
	"github.com/seiforesti/data-wave-sub013/internal/app/run"
	appscanconfig "github.com/seiforesti/data-wave-sub013/internal/app/scanconfig"
	"github.com/seiforesti/data-wave-sub013/internal/app/stats"
	"github.com/seiforesti/data-wave-sub013/internal/app/stream"
	"github.com/seiforesti/data-wave-sub013/internal/app/triage"
	"github.com/seiforesti/data-wave-sub013/internal/config"
	"github.com/seiforesti/data-wave-sub013/internal/infra/websocket"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// Services holds all application service instances.
type Services struct {
	Stream       *stream.Stream
	ScanConfig   *appscanconfig.Service
	Coordinator  *run.Coordinator
	Triage       *triage.Service
	Discovery    *discovery.Service
	Stats        *stats.Service
	Bulk         *bulk.Service
	WebSocketHub *websocket.Hub
}

// ServiceDeps contains dependencies needed to create services.
type ServiceDeps struct {
	Config   *config.Config
	Log      *logger.Logger
	Repos    *Repositories
	Executor run.Executor
}

// NewServices initializes all application services.
func NewServices(deps *ServiceDeps) *Services {
	cfg := deps.Config
	log := deps.Log
	repos := deps.Repos

	st := stream.New(cfg.Stream.Capacity, log)

	configSvc := appscanconfig.NewService(repos.ScanConfiguration, repos.ScanRun, log)
	coordinator := run.NewCoordinator(repos.ScanRun, repos.ScanConfiguration, deps.Executor, st, log)

	return &Services{
		Stream:       st,
		ScanConfig:   configSvc,
		Coordinator:  coordinator,
		Triage:       triage.NewService(repos.ScanIssue, repos.ScanRun, st, log),
		Discovery:    discovery.NewService(repos.DiscoveredEntity, repos.ScanRun, log),
		Stats:        stats.NewService(repos.Stats, repos.ScanIssue, log),
		Bulk:         bulk.NewService(configSvc, coordinator, cfg.Bulk.MaxParallel, cfg.Bulk.MaxItems, log),
		WebSocketHub: websocket.NewHub(log),
	}
}
