// Package processor is the single long-running component (C6) that
// polls the store for runnable jobs, dispatches each to the executor
// registered for its status, and reschedules retryable failures after
// exponential backoff (spec §4.6). Concurrency is bounded the way the
// teacher bounds parallel gathering in intelligence_gatherer.go:
// golang.org/x/sync/errgroup over a fixed-size batch per tick.
package processor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/executor"
	"github.com/stewart-y/photopipeline/pkg/notify"
	"github.com/stewart-y/photopipeline/pkg/state"
	"github.com/stewart-y/photopipeline/pkg/store"
	"github.com/stewart-y/photopipeline/pkg/telemetry"
)

const version = "0.1.0"

// Config tunes the polling loop; its fields mirror internal/config.Config's
// processor-relevant fields, which callers copy across.
type Config struct {
	PollInterval time.Duration
	Concurrency  int
	MaxRetries   int
	LeaseTTL     time.Duration
	Owner        string
}

// Status is the snapshot spec §4.6 requires from the observability
// surface.
type Status struct {
	Running      bool
	ActiveJobIDs []string
	PollInterval time.Duration
	Concurrency  int
	MaxRetries   int
	Version      string
}

// Processor is the polling/leasing/dispatch loop.
type Processor struct {
	store      store.Store
	registry   *executor.Registry
	notifier   notify.Notifier
	metrics    *telemetry.Metrics
	logger     *zap.Logger
	cfg        Config

	mu      sync.Mutex
	running bool
	active  map[string]struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// New builds a Processor. notifier and metrics may be nil; nil-safe
// no-op variants are substituted.
func New(s store.Store, registry *executor.Registry, notifier notify.Notifier, metrics *telemetry.Metrics, logger *zap.Logger, cfg Config) *Processor {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	if metrics == nil {
		metrics = telemetry.NewMetrics()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.Owner == "" {
		cfg.Owner = "processor"
	}
	return &Processor{
		store:    s,
		registry: registry,
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		active:   map[string]struct{}{},
	}
}

// Start begins the polling loop in the background. It returns once the
// loop has been launched; call Stop (or cancel ctx) to end it.
func (p *Processor) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.running = true
	p.done = make(chan struct{})
	p.mu.Unlock()

	go p.loop(loopCtx)
}

// Stop signals the loop to stop accepting new leases and waits up to
// grace for in-flight executors to finish their current suspension
// point (spec §4.6's shutdown policy).
func (p *Processor) Stop(grace time.Duration) {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	cancel := p.cancel
	done := p.done
	p.mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(grace):
		p.logger.Warn("processor stop grace period exceeded; forcing exit")
	}
}

func (p *Processor) loop(ctx context.Context) {
	defer func() {
		p.mu.Lock()
		p.running = false
		close(p.done)
		p.mu.Unlock()
	}()

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Processor) tick(ctx context.Context) {
	p.mu.Lock()
	capacity := p.cfg.Concurrency - len(p.active)
	p.mu.Unlock()
	if capacity <= 0 {
		return
	}

	jobs, err := p.store.LeaseRunnable(ctx, capacity, p.cfg.Owner, p.cfg.LeaseTTL)
	if err != nil {
		p.logger.Error("lease runnable jobs", zap.Error(err))
		return
	}
	if len(jobs) == 0 {
		return
	}

	eg, egCtx := errgroup.WithContext(ctx)
	for _, job := range jobs {
		job := job
		p.markActive(job.ID)
		p.metrics.JobsLeased.Inc()
		eg.Go(func() error {
			defer p.markInactive(job.ID)
			p.runStep(egCtx, job)
			return nil
		})
	}
	_ = eg.Wait() // individual step errors are handled per-job in runStep, never surfaced here
}

func (p *Processor) markActive(id string) {
	p.mu.Lock()
	p.active[id] = struct{}{}
	p.mu.Unlock()
}

func (p *Processor) markInactive(id string) {
	p.mu.Lock()
	delete(p.active, id)
	p.mu.Unlock()
}

func (p *Processor) runStep(ctx context.Context, job state.Job) {
	exec, err := p.registry.For(job.Status)
	if err != nil {
		p.logger.Error("no executor for job status", zap.String("job_id", job.ID), zap.String("status", string(job.Status)), zap.Error(err))
		return
	}

	target, updates, err := exec.Execute(ctx, job)
	if err != nil {
		p.handleFailure(ctx, job, err)
		return
	}

	// A zero Status signals the executor already persisted both of its
	// own transitions (storefront-push's two-hop SHOPIFY_PUSH → DONE).
	if target == "" {
		p.metrics.JobsCompleted.Inc()
		return
	}

	if _, err := p.store.UpdateStatus(ctx, job.ID, target, updates); err != nil {
		p.handleFailure(ctx, job, err)
		return
	}
	if target == state.StatusDone {
		p.metrics.JobsCompleted.Inc()
	}
	if updates.StepName != "" {
		p.metrics.StepDuration.WithLabelValues(updates.StepName).Observe(float64(updates.StepElapsedMs) / 1000.0)
	}
}

func (p *Processor) handleFailure(ctx context.Context, job state.Job, stepErr error) {
	code := errx.As(stepErr)
	p.metrics.JobsFailed.WithLabelValues(string(code)).Inc()

	msg := stepErr.Error()
	failUpdates := state.Updates{
		ErrorCode:    &code,
		ErrorMessage: &msg,
	}
	failed, err := p.store.UpdateStatus(ctx, job.ID, state.StatusFailed, failUpdates)
	if err != nil {
		p.logger.Error("mark job failed", zap.String("job_id", job.ID), zap.Error(err))
		return
	}

	if !state.CanRetry(failed, p.cfg.MaxRetries) {
		// CanRetry is also false for codes that were never retryable to
		// begin with (ProductNotFound, InvalidImage); only the
		// attempt-budget-exhausted case gets promoted to
		// MaxRetriesExceeded (spec §7/§8).
		if failed.Attempt >= p.cfg.MaxRetries && code.Retryable() {
			p.promoteMaxRetriesExceeded(ctx, failed)
		}
		// Only terminal failures are reported; a retryable one is requeued below.
		if notifyErr := p.notifier.JobFailed(ctx, failed); notifyErr != nil {
			p.logger.Warn("job failure notification failed", zap.String("job_id", job.ID), zap.Error(notifyErr))
		}
		return
	}

	delay := state.RetryDelay(failed.Attempt)
	time.AfterFunc(delay, func() {
		if _, err := p.store.Requeue(context.Background(), failed.ID); err != nil {
			p.logger.Warn("requeue after backoff failed", zap.String("job_id", failed.ID), zap.Error(err))
		}
	})
}

// promoteMaxRetriesExceeded re-stamps a FAILED job's error_code once the
// attempt budget is exhausted (spec §7/§8). FAILED is terminal, so this
// goes through SetArtifacts rather than UpdateStatus/Transition: the job
// is not moving to a new state, only its error fields change.
func (p *Processor) promoteMaxRetriesExceeded(ctx context.Context, failed state.Job) {
	exceeded := errx.MaxRetriesExceeded
	msg := fmt.Sprintf("max retries (%d) exceeded: %s", p.cfg.MaxRetries, failed.ErrorMessage)
	_, err := p.store.SetArtifacts(ctx, failed.ID, state.Updates{
		ErrorCode:    &exceeded,
		ErrorMessage: &msg,
	})
	if err != nil {
		p.logger.Error("promote max retries exceeded", zap.String("job_id", failed.ID), zap.Error(err))
	}
}

// StatusSnapshot returns the observability snapshot spec §4.6 names.
func (p *Processor) StatusSnapshot() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.active))
	for id := range p.active {
		ids = append(ids, id)
	}
	return Status{
		Running:      p.running,
		ActiveJobIDs: ids,
		PollInterval: p.cfg.PollInterval,
		Concurrency:  p.cfg.Concurrency,
		MaxRetries:   p.cfg.MaxRetries,
		Version:      version,
	}
}

// IsHealthy reports whether the underlying executor registry is
// healthy.
func (p *Processor) IsHealthy() bool {
	return p.registry.IsHealthy()
}
