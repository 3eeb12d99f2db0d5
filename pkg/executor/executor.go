// Package executor implements the five pipeline steps of spec §4.5,
// each an Executor keyed by its originating job status, registered in
// a Registry — generalized from the teacher's executor.Executor /
// executor.ActionRegistry shape (legacy/processor/processor_test.go,
// FakeExecutor.Execute(ctx, action, alert) error /
// GetActionRegistry() *executor.ActionRegistry).
package executor

import (
	"context"
	"fmt"

	"github.com/stewart-y/photopipeline/pkg/state"
)

// Executor runs the step appropriate for a job's current status and
// returns the state.Updates to apply on success. It does not itself
// perform the transition — the caller (pkg/processor) calls
// state.Transition or Store.UpdateStatus with the returned updates,
// keeping this package free of persistence concerns.
type Executor interface {
	// Execute runs the step for job and returns the target status it
	// reaches plus the field updates to persist alongside it.
	Execute(ctx context.Context, job state.Job) (target state.Status, updates state.Updates, err error)

	// IsHealthy reports whether the executor's dependencies (providers,
	// object store, ...) currently look reachable.
	IsHealthy() bool
}

// Registry maps a job's current status to the Executor responsible for
// advancing it, mirroring the teacher's ActionRegistry lookup-by-key
// pattern.
type Registry struct {
	byStatus map[state.Status]Executor
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byStatus: map[state.Status]Executor{}}
}

// Register binds an Executor to the status it handles. Registering
// twice for the same status replaces the previous binding.
func (r *Registry) Register(from state.Status, e Executor) {
	r.byStatus[from] = e
}

// For returns the Executor registered for status, or an error if none
// is bound — the processor treats this as a configuration fault, not a
// retryable job failure.
func (r *Registry) For(status state.Status) (Executor, error) {
	e, ok := r.byStatus[status]
	if !ok {
		return nil, fmt.Errorf("no executor registered for status %s", status)
	}
	return e, nil
}

// IsHealthy reports whether every registered executor is healthy.
func (r *Registry) IsHealthy() bool {
	for _, e := range r.byStatus {
		if !e.IsHealthy() {
			return false
		}
	}
	return true
}
