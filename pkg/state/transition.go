package state

import (
	"fmt"
	"time"

	"github.com/stewart-y/photopipeline/pkg/errx"
)

// Updates is the partial-update bag a caller proposes alongside a
// target status. Pointer/nil-slice fields mean "leave untouched";
// list-valued fields are overwritten wholesale when provided, never
// appended (spec §4.2 setArtifacts: "list fields are overwritten, not
// appended").
type Updates struct {
	SourceURL *string

	OriginalKey *string
	CutoutKey   *string
	MaskKey     *string

	BackgroundKeys  []string
	CompositeKeys   []string
	DerivativeKeys  []string
	ManifestKey     *string
	ShopifyMediaIDs []string

	ErrorCode    *errx.Code
	ErrorMessage *string
	ErrorStack   *string

	CostDelta float64

	// StepName/StepElapsedMs record one executor's own elapsed-ms
	// measurement (spec §4.5 "each executor stamps its own elapsed-ms
	// field on success").
	StepName      string
	StepElapsedMs int64

	ProviderJobKey   string
	ProviderJobValue string
}

func (u Updates) apply(j *Job) {
	if u.SourceURL != nil {
		j.SourceURL = *u.SourceURL
	}
	if u.OriginalKey != nil {
		j.OriginalKey = *u.OriginalKey
	}
	if u.CutoutKey != nil {
		j.CutoutKey = *u.CutoutKey
	}
	if u.MaskKey != nil {
		j.MaskKey = *u.MaskKey
	}
	if u.BackgroundKeys != nil {
		j.BackgroundKeys = u.BackgroundKeys
	}
	if u.CompositeKeys != nil {
		j.CompositeKeys = u.CompositeKeys
	}
	if u.DerivativeKeys != nil {
		j.DerivativeKeys = u.DerivativeKeys
	}
	if u.ManifestKey != nil {
		j.ManifestKey = *u.ManifestKey
	}
	if u.ShopifyMediaIDs != nil {
		j.ShopifyMediaIDs = u.ShopifyMediaIDs
	}
	if u.ErrorCode != nil {
		j.ErrorCode = *u.ErrorCode
	}
	if u.ErrorMessage != nil {
		j.ErrorMessage = *u.ErrorMessage
	}
	if u.ErrorStack != nil {
		j.ErrorStack = u.ErrorStack
	}
	if u.CostDelta != 0 {
		j.CostUSD += u.CostDelta
	}
	if u.StepName != "" {
		if j.StepDurationsMs == nil {
			j.StepDurationsMs = map[string]int64{}
		}
		j.StepDurationsMs[u.StepName] = u.StepElapsedMs
	}
	if u.ProviderJobKey != "" {
		if j.ProviderJobIDs == nil {
			j.ProviderJobIDs = map[string]string{}
		}
		j.ProviderJobIDs[u.ProviderJobKey] = u.ProviderJobValue
	}
}

// Transition evaluates and, if legal, applies a proposed move from
// job's current status to target with the given updates. It returns
// the full resulting snapshot (the "update set to persist" of spec
// §4.1) or a *errx.PipelineError coded InvalidTransition or
// MissingRequiredFields.
//
// now is injected so callers (and tests) control UpdatedAt/CompletedAt
// precisely; production callers pass time.Now().UTC().
func Transition(job Job, target Status, updates Updates, now time.Time) (Job, error) {
	if !CanTransition(job.Status, target) {
		return Job{}, errx.New(errx.InvalidTransition,
			fmt.Sprintf("cannot transition from %s to %s", job.Status, target))
	}

	next := job.Clone()
	updates.apply(&next)
	if target == StatusFailed {
		next.PriorStatus = job.Status
	}
	next.Status = target
	next.UpdatedAt = now
	// A transition is how an executor hands a job back; the lease it
	// held while working the prior state no longer applies (spec §4.2:
	// "Executors must release the lease by transitioning state").
	next.LeaseOwner = nil
	next.LeaseUntil = nil

	if missingFields := missing(next, target); len(missingFields) > 0 {
		return Job{}, errx.New(errx.MissingRequiredFields,
			fmt.Sprintf("entering %s requires fields %v", target, missingFields))
	}

	if IsTerminal(target) {
		completed := now
		next.CompletedAt = &completed
	}

	return next, nil
}

// canRetryCode delegates to errx.Code.Retryable(), giving call sites in
// this package a local name for the retryable/non-retryable split.
func canRetryCode(code errx.Code) bool {
	return code.Retryable()
}

// CanRetry implements spec §4.1's canRetry(job, max_attempts): true iff
// the job is FAILED, has attempts remaining, and its error code is not
// in the non-retryable set.
func CanRetry(job Job, maxAttempts int) bool {
	if job.Status != StatusFailed {
		return false
	}
	if job.Attempt >= maxAttempts {
		return false
	}
	return canRetryCode(job.ErrorCode)
}

// RetryDelay implements the spec's exponential backoff formula:
// 2000 * 2^attempt milliseconds, base 2s.
func RetryDelay(attempt int) time.Duration {
	ms := 2000 * (1 << uint(attempt))
	return time.Duration(ms) * time.Millisecond
}

// Requeue implements the auto-requeue policy resolved in
// SPEC_FULL.md §9 (Open Question 1): a retryable FAILED job rolls back
// to PriorStatus, the non-terminal state whose executor owns the
// failing step, so that executor runs again on the next lease. It
// bypasses CanTransition (FAILED is otherwise a hard terminal state)
// because this is a distinct, explicitly-modeled recovery operation,
// not a normal forward edge — but it still re-validates PriorStatus's
// required fields, which must still hold by the artifact-monotonicity
// invariant (spec §3).
//
// Callers must check CanRetry first; Requeue itself only reports
// whether PriorStatus is known and still satisfies its gate.
func Requeue(job Job, now time.Time) (Job, error) {
	if job.Status != StatusFailed {
		return Job{}, errx.New(errx.InvalidTransition, "only a FAILED job can be requeued")
	}
	if job.PriorStatus == "" {
		return Job{}, errx.New(errx.InvalidTransition, "job has no recorded prior state to requeue to")
	}

	next := job.Clone()
	next.Status = job.PriorStatus
	next.Attempt++
	next.LeaseOwner = nil
	next.LeaseUntil = nil
	next.ErrorCode = ""
	next.ErrorMessage = ""
	next.ErrorStack = nil
	next.UpdatedAt = now

	if missingFields := missing(next, next.Status); len(missingFields) > 0 {
		return Job{}, errx.New(errx.MissingRequiredFields,
			fmt.Sprintf("requeue target %s missing fields %v", next.Status, missingFields))
	}
	return next, nil
}
