// Package bulk applies multi-target mutations with per-item outcomes.
// Items are independent: one failure never rolls back the others, and
// the caller gets enough detail to retry only the failed subset.
package bulk

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	appscanconfig "github.com/seiforesti/data-wave-sub013/internal/app/scanconfig"
	"github.com/seiforesti/data-wave-sub013/internal/app/run"
	"github.com/seiforesti/data-wave-sub013/internal/metrics"
	"github.com/seiforesti/data-wave-sub013/pkg/domain/shared"
	"github.com/seiforesti/data-wave-sub013/pkg/logger"
)

// ItemOutcome reports one item's result.
type ItemOutcome struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Result aggregates a bulk operation.
type Result struct {
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Items     []ItemOutcome `json:"items"`
}

// ConfigPatch pairs a configuration ID with its update.
type ConfigPatch struct {
	ID    string
	Patch appscanconfig.UpdateInput
}

// Service fans bulk operations out over a bounded worker pool.
type Service struct {
	configSvc   *appscanconfig.Service
	coordinator *run.Coordinator
	logger      *logger.Logger

	maxParallel int
	maxItems    int
}

// NewService creates a new Service.
func NewService(configSvc *appscanconfig.Service, coordinator *run.Coordinator, maxParallel, maxItems int, log *logger.Logger) *Service {
	if maxParallel <= 0 {
		maxParallel = 4
	}
	if maxItems <= 0 {
		maxItems = 100
	}
	return &Service{
		configSvc:   configSvc,
		coordinator: coordinator,
		logger:      log.With("service", "bulk"),
		maxParallel: maxParallel,
		maxItems:    maxItems,
	}
}

// UpdateConfigurations applies each patch independently.
func (s *Service) UpdateConfigurations(ctx context.Context, patches []ConfigPatch) (*Result, error) {
	if err := s.checkSize(len(patches)); err != nil {
		return nil, err
	}

	result := s.run(ctx, len(patches), func(i int) ItemOutcome {
		patch := patches[i]
		_, err := s.configSvc.Update(ctx, patch.ID, patch.Patch)
		return outcome(patch.ID, err)
	})

	s.record("update_configurations", result)
	return result, nil
}

// CancelRuns cancels each run independently. Runs already in a terminal
// state count as success so retries of a partially applied batch are
// safe.
func (s *Service) CancelRuns(ctx context.Context, ids []string) (*Result, error) {
	if err := s.checkSize(len(ids)); err != nil {
		return nil, err
	}

	result := s.run(ctx, len(ids), func(i int) ItemOutcome {
		id := ids[i]
		_, err := s.coordinator.Cancel(ctx, id)
		if err != nil && shared.IsConflict(err) && s.isTerminal(ctx, id) {
			err = nil
		}
		return outcome(id, err)
	})

	s.record("cancel_runs", result)
	return result, nil
}

func (s *Service) isTerminal(ctx context.Context, id string) bool {
	r, err := s.coordinator.Get(ctx, id)
	return err == nil && r.Status.IsTerminal()
}

// run executes fn for every index on the bounded pool and assembles the
// outcomes in input order.
func (s *Service) run(ctx context.Context, n int, fn func(i int) ItemOutcome) *Result {
	outcomes := make([]ItemOutcome, n)

	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)

	for i := 0; i < n; i++ {
		i := i
		g.Go(func() error {
			out := fn(i)
			mu.Lock()
			outcomes[i] = out
			mu.Unlock()
			return nil
		})
	}
	// workers never return errors, outcomes carry the failures
	_ = g.Wait()

	result := &Result{Items: outcomes}
	for _, out := range outcomes {
		if out.Success {
			result.Succeeded++
		} else {
			result.Failed++
		}
	}
	return result
}

func (s *Service) checkSize(n int) error {
	if n == 0 {
		return shared.NewDomainError("VALIDATION", "empty item list", shared.ErrValidation)
	}
	if n > s.maxItems {
		return shared.NewDomainError("VALIDATION", "too many items in one request", shared.ErrValidation)
	}
	return nil
}

func (s *Service) record(op string, result *Result) {
	metrics.BulkItemsTotal.WithLabelValues(op, "success").Add(float64(result.Succeeded))
	metrics.BulkItemsTotal.WithLabelValues(op, "failure").Add(float64(result.Failed))
	s.logger.Info("bulk operation finished",
		"operation", op,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
	)
}

func outcome(id string, err error) ItemOutcome {
	if err == nil {
		return ItemOutcome{ID: id, Success: true}
	}
	out := ItemOutcome{ID: id, Success: false, Error: err.Error()}
	var derr *shared.DomainError
	switch {
	case shared.IsNotFound(err):
		out.Code = "NOT_FOUND"
	case shared.IsValidation(err):
		out.Code = "VALIDATION"
	case shared.IsConflict(err):
		out.Code = "CONFLICT"
	default:
		out.Code = "INTERNAL"
	}
	if errors.As(err, &derr) && derr.Code != "" {
		out.Code = derr.Code
	}
	return out
}
