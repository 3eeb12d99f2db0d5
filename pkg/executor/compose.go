package executor

import (
	"context"
	"time"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/state"
)

// Compose is the BACKGROUND_READY executor: for each background key,
// run either the AICompositor variant or the DeterministicCompositor,
// writing one composite per background (spec §4.5).
type Compose struct {
	Deps *Deps
}

func (e *Compose) IsHealthy() bool { return e.Deps.DeterministicCompositor != nil }

func (e *Compose) Execute(ctx context.Context, job state.Job) (state.Status, state.Updates, error) {
	start := time.Now()

	composites := make([]string, 0, len(job.BackgroundKeys))
	var totalCost float64

	for _, bgKey := range job.BackgroundKeys {
		var key string
		var cost float64
		var err error

		if e.Deps.AICompositorVariant != "" && e.Deps.AICompositorVariant != "none" {
			result, aerr := e.Deps.AICompositor.Compose(ctx, job.CutoutKey, bgKey, nil)
			key, cost, err = result.CompositeKey, result.CostUSD, aerr
		} else {
			result, derr := e.Deps.DeterministicCompositor.Compose(ctx, job.CutoutKey, bgKey, e.Deps.DefaultCompositeSettings)
			key, cost, err = result.CompositeKey, result.CostUSD, derr
		}

		if err != nil {
			if classified := errx.As(err); classified != errx.Unknown {
				return "", state.Updates{}, err
			}
			return "", state.Updates{}, errx.Wrap(errx.CompositeFailed, "compose cutout onto background", err)
		}
		composites = append(composites, key)
		totalCost += cost
	}

	updates := state.Updates{
		CompositeKeys: composites,
		CostDelta:     totalCost,
		StepName:      "compose",
		StepElapsedMs: time.Since(start).Milliseconds(),
	}
	return state.StatusComposited, updates, nil
}
