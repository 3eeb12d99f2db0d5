// Package state is the pure core of the pipeline: the job record
// snapshot, the legal state graph, and the functions that decide
// whether a proposed transition is allowed. Nothing in this package
// performs I/O — it is evaluated the same way whether it is called
// from the Store, a Step Executor, or a unit test.
package state

import (
	"time"

	"github.com/stewart-y/photopipeline/pkg/errx"
)

// Status is one of the fixed job lifecycle states (spec §4.1).
type Status string

const (
	// Primary chain.
	StatusNew              Status = "NEW"
	StatusBGRemoved        Status = "BG_REMOVED"
	StatusBackgroundReady  Status = "BACKGROUND_READY"
	StatusComposited       Status = "COMPOSITED"
	StatusDerivatives      Status = "DERIVATIVES"
	StatusShopifyPush      Status = "SHOPIFY_PUSH"
	StatusDone             Status = "DONE"
	StatusFailed           Status = "FAILED"

	// Legacy chain, recognized for historical records only; new jobs
	// are always created in StatusNew.
	StatusQueued       Status = "QUEUED"
	StatusSegmenting   Status = "SEGMENTING"
	StatusBGGenerating Status = "BG_GENERATING"
	StatusCompositing  Status = "COMPOSITING"
)

// Job is the central durable record. The Store persists it verbatim;
// this package only ever reads and copies it.
type Job struct {
	ID        string
	SKU       string
	ImageHash string
	Theme     string

	Status    Status
	Attempt   int
	CreatedAt time.Time
	UpdatedAt time.Time

	// PriorStatus is the non-terminal state the job was in immediately
	// before it last entered FAILED. The Processor's auto-requeue
	// policy rolls a retryable failure back here rather than to a
	// fixed predecessor, since a job can fail from any non-terminal
	// state. Empty until the job has failed at least once.
	PriorStatus Status

	CompletedAt *time.Time
	LeaseUntil  *time.Time
	LeaseOwner  *string

	SourceURL string

	OriginalKey string
	CutoutKey   string
	MaskKey     string

	BackgroundKeys  []string
	CompositeKeys   []string
	DerivativeKeys  []string
	ManifestKey     string
	ShopifyMediaIDs []string

	ErrorCode    errx.Code
	ErrorMessage string
	ErrorStack   *string

	CostUSD         float64
	StepDurationsMs map[string]int64
	ProviderJobIDs  map[string]string
}

// Clone returns a deep-enough copy for transition evaluation: slices
// and maps are copied so mutating the result never aliases the input.
func (j Job) Clone() Job {
	c := j
	c.BackgroundKeys = append([]string(nil), j.BackgroundKeys...)
	c.CompositeKeys = append([]string(nil), j.CompositeKeys...)
	c.DerivativeKeys = append([]string(nil), j.DerivativeKeys...)
	c.ShopifyMediaIDs = append([]string(nil), j.ShopifyMediaIDs...)
	c.StepDurationsMs = cloneMap(j.StepDurationsMs)
	c.ProviderJobIDs = cloneMapStr(j.ProviderJobIDs)
	return c
}

func cloneMap(m map[string]int64) map[string]int64 {
	if m == nil {
		return nil
	}
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneMapStr(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
