package executor

import (
	"context"
	"time"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/state"
)

// BackgroundReady is the BG_REMOVED executor: it either republishes an
// active template's selected assets as this job's backgrounds, or
// invokes BackgroundGenerator N times with the resolved prompt
// (spec §4.5).
type BackgroundReady struct {
	Deps *Deps
}

func (e *BackgroundReady) IsHealthy() bool { return e.Deps.BackgroundGenerator != nil }

func (e *BackgroundReady) Execute(ctx context.Context, job state.Job) (state.Status, state.Updates, error) {
	start := time.Now()

	if e.Deps.Store != nil {
		tpl, found, err := e.Deps.Store.ActiveTemplate(ctx)
		if err != nil {
			return "", state.Updates{}, errx.Wrap(errx.BackgroundFailed, "resolve active template", err)
		}
		if found {
			keys := make([]string, 0, len(tpl.Assets))
			for _, a := range tpl.Assets {
				if a.Selected {
					keys = append(keys, a.Key)
				}
			}
			if len(keys) > 0 {
				updates := state.Updates{
					BackgroundKeys: keys,
					StepName:       "background_ready",
					StepElapsedMs:  time.Since(start).Milliseconds(),
				}
				return state.StatusBackgroundReady, updates, nil
			}
		}
	}

	variants := e.Deps.BackgroundVariantsPerJob
	if variants <= 0 {
		variants = 1
	}

	keys := make([]string, 0, variants)
	var totalCost float64
	for i := 0; i < variants; i++ {
		result, err := e.Deps.BackgroundGenerator.Generate(ctx, job.Theme, 1600, 1600, job.SKU, job.ImageHash)
		if err != nil {
			if classified := errx.As(err); classified != errx.Unknown {
				return "", state.Updates{}, err
			}
			return "", state.Updates{}, errx.Wrap(errx.BackgroundFailed, "generate background", err)
		}
		keys = append(keys, result.BackgroundKey)
		totalCost += result.CostUSD
	}

	updates := state.Updates{
		BackgroundKeys: keys,
		CostDelta:      totalCost,
		StepName:       "background_ready",
		StepElapsedMs:  time.Since(start).Milliseconds(),
	}
	return state.StatusBackgroundReady, updates, nil
}
