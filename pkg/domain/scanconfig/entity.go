package scanconfig

import (
	"time"

	"github.com/robfig/cron/v3"

	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
)

// Schedule holds the optional cron schedule bound to a configuration.
type Schedule struct {
	Enabled   bool       `json:"enabled"`
	Cron      string     `json:"cron,omitempty"`
	Timezone  string     `json:"timezone,omitempty"`
	NextRunAt *time.Time `json:"next_run_at,omitempty"`
}

// ScanConfiguration is the reusable definition of what and how to scan.
type ScanConfiguration struct {
	ID          shared.ID
	Name        string
	Description string

	// Target
	DataSourceID int64

	// Execution shape
	ScanType ScanType
	Scope    Scope
	Settings Settings

	// Scheduling
	Schedule          *Schedule
	ConcurrencyPolicy ConcurrencyPolicy

	// Lifecycle
	Status Status

	// Optimistic concurrency
	Revision int64

	// Execution statistics
	LastRunID      *shared.ID
	LastRunAt      *time.Time
	LastRunStatus  string
	TotalRuns      int
	SuccessfulRuns int
	FailedRuns     int

	// Audit
	CreatedBy string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// cronParser is the parser used everywhere a schedule expression is
// evaluated, so validation and the scheduler agree on the grammar.
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// New creates a new scan configuration with status active and revision 1.
func New(name string, dataSourceID int64, scanType ScanType, settings Settings) (*ScanConfiguration, error) {
	if name == "" {
		return nil, shared.NewDomainError("VALIDATION", "name is required", shared.ErrValidation)
	}
	if dataSourceID <= 0 {
		return nil, shared.NewDomainError("VALIDATION", "data_source_id is required", shared.ErrValidation)
	}
	if !scanType.IsValid() {
		return nil, shared.NewDomainError("VALIDATION", "invalid scan_type", shared.ErrValidation)
	}
	if settings.Parallelism < 1 {
		return nil, shared.NewDomainError("VALIDATION", "parallelism must be at least 1", shared.ErrValidation)
	}

	now := time.Now()
	return &ScanConfiguration{
		ID:                shared.NewID(),
		Name:              name,
		DataSourceID:      dataSourceID,
		ScanType:          scanType,
		Settings:          settings,
		ConcurrencyPolicy: PolicyReject,
		Status:            StatusActive,
		Revision:          1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// SetSchedule attaches or replaces the cron schedule.
func (c *ScanConfiguration) SetSchedule(cronExpr, timezone string, enabled bool) error {
	if cronExpr == "" {
		return shared.NewDomainError("VALIDATION", "cron expression is required", shared.ErrValidation)
	}
	if _, err := cronParser.Parse(cronExpr); err != nil {
		return shared.NewDomainError("VALIDATION", "cannot parse cron expression: "+err.Error(), shared.ErrValidation)
	}
	if timezone == "" {
		timezone = "UTC"
	}
	if _, err := time.LoadLocation(timezone); err != nil {
		return shared.NewDomainError("VALIDATION", "invalid timezone '"+timezone+"'", shared.ErrValidation)
	}

	c.Schedule = &Schedule{
		Enabled:  enabled,
		Cron:     cronExpr,
		Timezone: timezone,
	}
	c.touch()
	c.computeNextRunAt()
	return nil
}

// EnableSchedule turns the schedule on and recomputes its next fire time.
func (c *ScanConfiguration) EnableSchedule() error {
	if c.Schedule == nil {
		return shared.NewDomainError("VALIDATION", "configuration has no schedule", shared.ErrValidation)
	}
	c.Schedule.Enabled = true
	c.touch()
	c.computeNextRunAt()
	return nil
}

// DisableSchedule turns the schedule off.
func (c *ScanConfiguration) DisableSchedule() error {
	if c.Schedule == nil {
		return shared.NewDomainError("VALIDATION", "configuration has no schedule", shared.ErrValidation)
	}
	c.Schedule.Enabled = false
	c.Schedule.NextRunAt = nil
	c.touch()
	return nil
}

// computeNextRunAt recalculates the schedule's next fire time.
func (c *ScanConfiguration) computeNextRunAt() {
	if c.Schedule == nil || !c.Schedule.Enabled || c.Status != StatusActive {
		if c.Schedule != nil {
			c.Schedule.NextRunAt = nil
		}
		return
	}
	c.Schedule.NextRunAt = c.CalculateNextRunAt(time.Now())
}

// CalculateNextRunAt computes the next fire time after now. Used by the
// scheduler to advance the schedule once a due configuration fires.
func (c *ScanConfiguration) CalculateNextRunAt(now time.Time) *time.Time {
	if c.Schedule == nil || c.Schedule.Cron == "" {
		return nil
	}
	sched, err := cronParser.Parse(c.Schedule.Cron)
	if err != nil {
		return nil
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		loc = time.UTC
	}
	next := sched.Next(now.In(loc))
	return &next
}

// IsDueForExecution returns true if the schedule should fire now.
func (c *ScanConfiguration) IsDueForExecution(now time.Time) bool {
	if c.Status != StatusActive || c.Schedule == nil || !c.Schedule.Enabled {
		return false
	}
	if c.Schedule.NextRunAt == nil {
		return false
	}
	return !now.Before(*c.Schedule.NextRunAt)
}

// Activate activates the configuration.
func (c *ScanConfiguration) Activate() error {
	if c.Status == StatusArchived {
		return shared.NewDomainError("CONFLICT", "cannot activate an archived configuration", shared.ErrConflict)
	}
	if c.Status == StatusActive {
		return nil
	}
	c.Status = StatusActive
	c.touch()
	c.computeNextRunAt()
	return nil
}

// Pause pauses the configuration; scheduled runs stop firing.
func (c *ScanConfiguration) Pause() error {
	if c.Status == StatusArchived {
		return shared.NewDomainError("CONFLICT", "cannot pause an archived configuration", shared.ErrConflict)
	}
	if c.Status == StatusPaused {
		return nil
	}
	c.Status = StatusPaused
	if c.Schedule != nil {
		c.Schedule.NextRunAt = nil
	}
	c.touch()
	return nil
}

// Archive soft-deletes the configuration. Callers must first verify no
// non-terminal run references it.
func (c *ScanConfiguration) Archive() error {
	if c.Status == StatusArchived {
		return nil
	}
	c.Status = StatusArchived
	if c.Schedule != nil {
		c.Schedule.Enabled = false
		c.Schedule.NextRunAt = nil
	}
	c.touch()
	return nil
}

// CanTrigger returns true if a new run may be started.
func (c *ScanConfiguration) CanTrigger() bool {
	return c.Status == StatusActive
}

// RecordRun records the terminal outcome of a run against the rollup stats.
func (c *ScanConfiguration) RecordRun(runID shared.ID, status string) {
	now := time.Now()
	c.LastRunID = &runID
	c.LastRunAt = &now
	c.LastRunStatus = status
	c.TotalRuns++
	switch status {
	case "completed":
		c.SuccessfulRuns++
	case "failed":
		c.FailedRuns++
	}
	c.UpdatedAt = now
}

// Clone creates a copy of the configuration with a new ID, fresh
// statistics and revision 1.
func (c *ScanConfiguration) Clone(newName string) (*ScanConfiguration, error) {
	if newName == "" {
		return nil, shared.NewDomainError("VALIDATION", "name is required", shared.ErrValidation)
	}

	now := time.Now()
	clone := &ScanConfiguration{
		ID:                shared.NewID(),
		Name:              newName,
		Description:       c.Description,
		DataSourceID:      c.DataSourceID,
		ScanType:          c.ScanType,
		Settings:          c.Settings,
		ConcurrencyPolicy: c.ConcurrencyPolicy,
		Status:            StatusActive,
		Revision:          1,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	clone.Scope = Scope{
		Databases: append([]string(nil), c.Scope.Databases...),
		Schemas:   append([]string(nil), c.Scope.Schemas...),
		Tables:    append([]string(nil), c.Scope.Tables...),
	}
	if c.Schedule != nil {
		clone.Schedule = &Schedule{
			Enabled:  c.Schedule.Enabled,
			Cron:     c.Schedule.Cron,
			Timezone: c.Schedule.Timezone,
		}
		clone.computeNextRunAt()
	}
	return clone, nil
}

// Validate validates the configuration.
func (c *ScanConfiguration) Validate() error {
	if c.Name == "" {
		return shared.NewDomainError("VALIDATION", "name is required", shared.ErrValidation)
	}
	if c.DataSourceID <= 0 {
		return shared.NewDomainError("VALIDATION", "data_source_id is required", shared.ErrValidation)
	}
	if !c.ScanType.IsValid() {
		return shared.NewDomainError("VALIDATION", "invalid scan_type", shared.ErrValidation)
	}
	if c.Settings.Parallelism < 1 {
		return shared.NewDomainError("VALIDATION", "parallelism must be at least 1", shared.ErrValidation)
	}
	if !c.ConcurrencyPolicy.IsValid() {
		return shared.NewDomainError("VALIDATION", "invalid concurrency_policy", shared.ErrValidation)
	}
	return nil
}

func (c *ScanConfiguration) touch() {
	c.UpdatedAt = time.Now()
}
