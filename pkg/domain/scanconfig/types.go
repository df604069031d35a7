// Package scanconfig defines the ScanConfiguration domain entity and types.
// A ScanConfiguration binds a data source with a scan scope, settings
// and an optional schedule.
package scanconfig

// ScanType represents how much of the data source a run inspects.
type ScanType string

const (
	// ScanTypeFull inspects every selected entity.
	ScanTypeFull ScanType = "full"
	// ScanTypeIncremental inspects only entities changed since the last run.
	ScanTypeIncremental ScanType = "incremental"
	// ScanTypeSample inspects a bounded sample of each selected entity.
	ScanTypeSample ScanType = "sample"
)

// IsValid checks if the scan type is a known value.
func (t ScanType) IsValid() bool {
	switch t {
	case ScanTypeFull, ScanTypeIncremental, ScanTypeSample:
		return true
	}
	return false
}

// Status represents the configuration lifecycle status.
type Status string

const (
	StatusActive   Status = "active"
	StatusPaused   Status = "paused"
	StatusArchived Status = "archived"
)

// IsValid checks if the status is a known value.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusArchived:
		return true
	}
	return false
}

// ConcurrencyPolicy determines what happens when a trigger arrives while
// a run for the same configuration is still active.
type ConcurrencyPolicy string

const (
	// PolicyQueue holds the new run in pending until the active one finishes.
	PolicyQueue ConcurrencyPolicy = "queue"
	// PolicyReject refuses the trigger with a conflict.
	PolicyReject ConcurrencyPolicy = "reject"
	// PolicyParallel allows concurrent runs.
	PolicyParallel ConcurrencyPolicy = "parallel"
)

// IsValid checks if the policy is a known value.
func (p ConcurrencyPolicy) IsValid() bool {
	switch p {
	case PolicyQueue, PolicyReject, PolicyParallel:
		return true
	}
	return false
}

// Scope selects which parts of the data source a run covers. Empty
// selectors mean "everything at that level".
type Scope struct {
	Databases []string `json:"databases,omitempty"`
	Schemas   []string `json:"schemas,omitempty"`
	Tables    []string `json:"tables,omitempty"`
}

// Settings holds the knobs passed through to the executor.
type Settings struct {
	EnablePIIDetection   bool `json:"enable_pii_detection"`
	EnableClassification bool `json:"enable_classification"`
	EnableLineage        bool `json:"enable_lineage"`
	EnableQuality        bool `json:"enable_quality"`
	SampleSize           int  `json:"sample_size,omitempty"`
	Parallelism          int  `json:"parallelism"`
}
