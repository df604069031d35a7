// Package scanconfig implements the configuration store: validated
// creation, revision-checked mutation, archive semantics and listing
// for scan configurations.
package scanconfig

import (
	"context"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanconfig"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/scanrun"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
	"github.com/seiforesti/data-wave-sub013/pkg/pagination"
)

// Service handles configuration business operations.
type Service struct {
	cfgRepo scanconfig.Repository
	runRepo scanrun.Repository
	logger  *logger.Logger
}

// NewService creates a new Service.
func NewService(cfgRepo scanconfig.Repository, runRepo scanrun.Repository, log *logger.Logger) *Service {
	return &Service{
		cfgRepo: cfgRepo,
		runRepo: runRepo,
		logger:  log.With("service", "scanconfig"),
	}
}

// CreateInput holds the fields for creating a configuration.
type CreateInput struct {
	Name              string
	Description       string
	DataSourceID      int64
	ScanType          string
	Scope             scanconfig.Scope
	Settings          scanconfig.Settings
	ConcurrencyPolicy string
	ScheduleCron      string
	ScheduleTimezone  string
	ScheduleEnabled   bool
	CreatedBy         string
}

// Create validates the input and persists a new active configuration.
func (s *Service) Create(ctx context.Context, input CreateInput) (*scanconfig.ScanConfiguration, error) {
	cfg, err := scanconfig.New(input.Name, input.DataSourceID, scanconfig.ScanType(input.ScanType), input.Settings)
	if err != nil {
		return nil, err
	}

	cfg.Description = input.Description
	cfg.Scope = input.Scope
	cfg.CreatedBy = input.CreatedBy

	if input.ConcurrencyPolicy != "" {
		policy := scanconfig.ConcurrencyPolicy(input.ConcurrencyPolicy)
		if !policy.IsValid() {
			return nil, shared.NewDomainError("VALIDATION", "invalid concurrency_policy", shared.ErrValidation)
		}
		cfg.ConcurrencyPolicy = policy
	}

	if input.ScheduleCron != "" {
		if err := cfg.SetSchedule(input.ScheduleCron, input.ScheduleTimezone, input.ScheduleEnabled); err != nil {
			return nil, err
		}
	}

	if existing, err := s.cfgRepo.GetByName(ctx, cfg.Name); err == nil && existing != nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "configuration name already in use", shared.ErrAlreadyExists)
	}

	if err := s.cfgRepo.Create(ctx, cfg); err != nil {
		return nil, err
	}

	s.logger.Info("configuration created",
		"config_id", cfg.ID.String(),
		"name", cfg.Name,
		"data_source_id", cfg.DataSourceID,
	)
	return cfg, nil
}

// Get retrieves a configuration by ID.
func (s *Service) Get(ctx context.Context, id string) (*scanconfig.ScanConfiguration, error) {
	cfgID, err := shared.IDFromString(id)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid configuration id", shared.ErrValidation)
	}
	return s.cfgRepo.GetByID(ctx, cfgID)
}

// UpdateInput holds a partial patch. Nil fields are left unchanged.
type UpdateInput struct {
	Name              *string
	Description       *string
	ScanType          *string
	Scope             *scanconfig.Scope
	Settings          *scanconfig.Settings
	ConcurrencyPolicy *string
	ScheduleCron      *string
	ScheduleTimezone  *string
	ScheduleEnabled   *bool

	// Revision is the revision the caller read. A mismatch with the
	// stored record fails with a conflict.
	Revision int64
}

// Update applies a partial patch under optimistic concurrency. Changing
// the scan type is rejected while a non-terminal run exists.
func (s *Service) Update(ctx context.Context, id string, input UpdateInput) (*scanconfig.ScanConfiguration, error) {
	cfgID, err := shared.IDFromString(id)
	if err != nil {
		return nil, shared.NewDomainError("VALIDATION", "invalid configuration id", shared.ErrValidation)
	}

	cfg, err := s.cfgRepo.GetByID(ctx, cfgID)
	if err != nil {
		return nil, err
	}
	if cfg.Status == scanconfig.StatusArchived {
		return nil, shared.NewDomainError("CONFLICT", "configuration is archived", shared.ErrConflict)
	}
	if cfg.Revision != input.Revision {
		return nil, shared.NewDomainError("REVISION_MISMATCH", "configuration was modified concurrently, re-read and retry", shared.ErrConflict)
	}

	if input.ScanType != nil && scanconfig.ScanType(*input.ScanType) != cfg.ScanType {
		active, err := s.runRepo.CountActiveByConfiguration(ctx, cfg.ID)
		if err != nil {
			return nil, err
		}
		if active > 0 {
			return nil, shared.NewDomainError("CONFLICT", "cannot change scan type while a run is active", shared.ErrConflict)
		}
		cfg.ScanType = scanconfig.ScanType(*input.ScanType)
	}

	if input.Name != nil {
		cfg.Name = *input.Name
	}
	if input.Description != nil {
		cfg.Description = *input.Description
	}
	if input.Scope != nil {
		cfg.Scope = *input.Scope
	}
	if input.Settings != nil {
		cfg.Settings = *input.Settings
	}
	if input.ConcurrencyPolicy != nil {
		cfg.ConcurrencyPolicy = scanconfig.ConcurrencyPolicy(*input.ConcurrencyPolicy)
	}
	if input.ScheduleCron != nil {
		tz := ""
		if input.ScheduleTimezone != nil {
			tz = *input.ScheduleTimezone
		} else if cfg.Schedule != nil {
			tz = cfg.Schedule.Timezone
		}
		enabled := cfg.Schedule != nil && cfg.Schedule.Enabled
		if input.ScheduleEnabled != nil {
			enabled = *input.ScheduleEnabled
		}
		if err := cfg.SetSchedule(*input.ScheduleCron, tz, enabled); err != nil {
			return nil, err
		}
	} else if input.ScheduleEnabled != nil && cfg.Schedule != nil {
		if *input.ScheduleEnabled {
			if err := cfg.EnableSchedule(); err != nil {
				return nil, err
			}
		} else {
			if err := cfg.DisableSchedule(); err != nil {
				return nil, err
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := s.cfgRepo.Update(ctx, cfg, input.Revision); err != nil {
		return nil, err
	}
	cfg.Revision = input.Revision + 1

	s.logger.Info("configuration updated", "config_id", cfg.ID.String(), "revision", cfg.Revision)
	return cfg, nil
}

// Delete archives a configuration. Fails with a conflict while any
// non-terminal run references it; configurations are never hard-deleted.
func (s *Service) Delete(ctx context.Context, id string) error {
	cfgID, err := shared.IDFromString(id)
	if err != nil {
		return shared.NewDomainError("VALIDATION", "invalid configuration id", shared.ErrValidation)
	}

	cfg, err := s.cfgRepo.GetByID(ctx, cfgID)
	if err != nil {
		return err
	}

	active, err := s.runRepo.CountActiveByConfiguration(ctx, cfg.ID)
	if err != nil {
		return err
	}
	if active > 0 {
		return shared.NewDomainError("CONFLICT", "configuration has active runs", shared.ErrConflict)
	}

	if err := cfg.Archive(); err != nil {
		return err
	}
	if err := s.cfgRepo.Update(ctx, cfg, cfg.Revision); err != nil {
		return err
	}

	s.logger.Info("configuration archived", "config_id", cfg.ID.String(), "name", cfg.Name)
	return nil
}

// List lists configurations with filters and pagination.
func (s *Service) List(ctx context.Context, filter scanconfig.Filter, page pagination.Pagination) (pagination.Result[*scanconfig.ScanConfiguration], error) {
	return s.cfgRepo.List(ctx, filter, page)
}

// Stats returns aggregated configuration counts.
func (s *Service) Stats(ctx context.Context) (*scanconfig.Stats, error) {
	return s.cfgRepo.GetStats(ctx)
}

// Clone duplicates a configuration under a new name.
func (s *Service) Clone(ctx context.Context, id, newName string) (*scanconfig.ScanConfiguration, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	clone, err := cfg.Clone(newName)
	if err != nil {
		return nil, err
	}

	if existing, err := s.cfgRepo.GetByName(ctx, newName); err == nil && existing != nil {
		return nil, shared.NewDomainError("ALREADY_EXISTS", "configuration name already in use", shared.ErrAlreadyExists)
	}

	if err := s.cfgRepo.Create(ctx, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// SetScheduleEnabled flips the schedule on or off.
func (s *Service) SetScheduleEnabled(ctx context.Context, id string, enabled bool) (*scanconfig.ScanConfiguration, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if enabled {
		err = cfg.EnableSchedule()
	} else {
		err = cfg.DisableSchedule()
	}
	if err != nil {
		return nil, err
	}

	if err := s.cfgRepo.Update(ctx, cfg, cfg.Revision); err != nil {
		return nil, err
	}
	cfg.Revision++
	return cfg, nil
}

// Pause pauses a configuration; its schedule stops firing.
func (s *Service) Pause(ctx context.Context, id string) (*scanconfig.ScanConfiguration, error) {
	return s.transition(ctx, id, (*scanconfig.ScanConfiguration).Pause)
}

// Activate reactivates a paused configuration.
func (s *Service) Activate(ctx context.Context, id string) (*scanconfig.ScanConfiguration, error) {
	return s.transition(ctx, id, (*scanconfig.ScanConfiguration).Activate)
}

func (s *Service) transition(ctx context.Context, id string, fn func(*scanconfig.ScanConfiguration) error) (*scanconfig.ScanConfiguration, error) {
	cfg, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(cfg); err != nil {
		return nil, err
	}
	if err := s.cfgRepo.Update(ctx, cfg, cfg.Revision); err != nil {
		return nil, err
	}
	cfg.Revision++
	return cfg, nil
}
