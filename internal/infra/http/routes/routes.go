// Package routes registers all HTTP routes for the API.
package routes

import (
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/seiforesti/data-wave-sub013/internal/config"
	infrahttp "github.com/seiforesti/data-wave-sub013/internal/infra/http"
	"github.com/seiforesti/data-wave-sub013/internal/infra/http/handler"
	"github.com/seiforesti/data-wave-sub013/internal/infra/http/middleware"
	"github.com/seiforesti/data-wave-sub013/internal/infra/websocket"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// Middleware is an alias to the http package's Middleware type.
type Middleware = infrahttp.Middleware

// Router is an alias to the http package's Router interface.
type Router = infrahttp.Router

// executorMaxBodySize bounds executor completion reports, which carry
// whole findings batches.
const executorMaxBodySize = 32 << 20

// Handlers holds all HTTP handlers for route registration.
type Handlers struct {
	Health           *handler.HealthHandler
	ScanConfig       *handler.ScanConfigHandler
	ScanRun          *handler.ScanRunHandler
	ScanIssue        *handler.ScanIssueHandler
	Stats            *handler.StatsHandler
	Events           *handler.EventsHandler
	ExecutorCallback *handler.ExecutorCallbackHandler
	WebSocket        *websocket.Handler
}

// Register registers all application routes. Route definitions live in
// the infrastructure layer, not in main.
func Register(router Router, h Handlers, cfg *config.Config, log *logger.Logger) {
	// Health routes (public)
	router.GET("/health", h.Health.Health)
	router.GET("/ready", h.Health.Ready)

	// Prometheus metrics
	router.GET("/metrics", promhttp.Handler().ServeHTTP)

	// Real-time updates
	router.GET("/ws", h.WebSocket.ServeWS)

	apiBody := middleware.BodyLimit(cfg.Server.MaxBodySize)

	router.Group("/api/v1", func(r Router) {
		r.GET("/scan-configurations", h.ScanConfig.List)
		r.POST("/scan-configurations", h.ScanConfig.Create)
		r.GET("/scan-configurations/stats", h.ScanConfig.Stats)
		r.POST("/scan-configurations/bulk-update", h.ScanConfig.BulkUpdate)
		r.GET("/scan-configurations/{id}", h.ScanConfig.Get)
		r.PUT("/scan-configurations/{id}", h.ScanConfig.Update)
		r.DELETE("/scan-configurations/{id}", h.ScanConfig.Delete)
		r.POST("/scan-configurations/{id}/clone", h.ScanConfig.Clone)
		r.POST("/scan-configurations/{id}/pause", h.ScanConfig.Pause)
		r.POST("/scan-configurations/{id}/activate", h.ScanConfig.Activate)
		r.POST("/scan-configurations/{id}/schedule/enable", h.ScanConfig.EnableSchedule)
		r.POST("/scan-configurations/{id}/schedule/disable", h.ScanConfig.DisableSchedule)
		r.POST("/scan-configurations/{id}/runs", h.ScanConfig.TriggerRun)
		r.GET("/scan-configurations/{id}/runs", h.ScanConfig.ListRuns)

		r.GET("/scan-runs", h.ScanRun.List)
		r.POST("/scan-runs/bulk-cancel", h.ScanRun.BulkCancel)
		r.GET("/scan-runs/{id}", h.ScanRun.Get)
		r.POST("/scan-runs/{id}/cancel", h.ScanRun.Cancel)
		r.GET("/scan-runs/{id}/results", h.ScanRun.Results)
		r.GET("/scan-runs/{id}/logs", h.ScanRun.Logs)
		r.GET("/scan-runs/{id}/entities", h.ScanRun.Entities)
		r.GET("/scan-runs/{id}/issues", h.ScanRun.Issues)

		r.GET("/scan-issues", h.ScanIssue.List)
		r.GET("/scan-issues/{id}", h.ScanIssue.Get)
		r.PUT("/scan-issues/{id}", h.ScanIssue.Update)
		r.POST("/scan-issues/{id}/assign", h.ScanIssue.Assign)
		r.POST("/scan-issues/{id}/resolve", h.ScanIssue.Resolve)

		r.GET("/scan-metrics/summary", h.Stats.Summary)

		r.GET("/events", h.Events.List)
	}, apiBody)

	// Executor callback surface, bearer-protected with a larger body
	// allowance for completion reports.
	executorAuth := middleware.ExecutorAuth(cfg.Auth.ExecutorSecret, log)
	executorBody := middleware.BodyLimit(executorMaxBodySize)

	router.Group("/executor/runs/{id}", func(r Router) {
		r.POST("/started", h.ExecutorCallback.Started)
		r.POST("/progress", h.ExecutorCallback.Progress)
		r.POST("/complete", h.ExecutorCallback.Complete)
		r.POST("/fail", h.ExecutorCallback.Fail)
	}, executorAuth, executorBody)
}
