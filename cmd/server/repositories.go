package main

import (
	"github.com/seiforesti/data-wave-sub013/internal/infra/postgres"
)

// Repositories holds all repository instances.
type Repositories struct {
	ScanConfiguration *postgres.ScanConfigurationRepository
	ScanRun           *postgres.ScanRunRepository
	ScanIssue         *postgres.ScanIssueRepository
	DiscoveredEntity  *postgres.DiscoveredEntityRepository
	Stats             *postgres.StatsRepository
}

// NewRepositories initializes all repositories.
func NewRepositories(db *postgres.DB) *Repositories {
	return &Repositories{
		ScanConfiguration: postgres.NewScanConfigurationRepository(db),
		ScanRun:           postgres.NewScanRunRepository(db),
		ScanIssue:         postgres.NewScanIssueRepository(db),
		DiscoveredEntity:  postgres.NewDiscoveredEntityRepository(db),
		Stats:             postgres.NewStatsRepository(db),
	}
}
