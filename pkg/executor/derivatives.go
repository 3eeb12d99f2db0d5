package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/objectstore"
	"github.com/stewart-y/photopipeline/pkg/state"
)

// manifestEntry is one row of the derivative manifest written to
// object storage alongside the derivative images themselves.
type manifestEntry struct {
	Aspect string `json:"aspect"`
	Format string `json:"format"`
	Key    string `json:"key"`
}

type manifest struct {
	SKU        string          `json:"sku"`
	ImageHash  string          `json:"imageHash"`
	Theme      string          `json:"theme"`
	Derivatives []manifestEntry `json:"derivatives"`
}

// Derivatives is the COMPOSITED executor: for every composite, it calls
// the DeterministicCompositor once per configured (aspect, format) pair,
// then writes a manifest object describing them all (spec §4.5). Only
// the format reaches the compositor; the aspect is recorded in the
// manifest entry but does not change the rendered image or its key, so
// two aspects with the same format yield the same derivative key.
type Derivatives struct {
	Deps *Deps
}

func (e *Derivatives) IsHealthy() bool { return e.Deps.DeterministicCompositor != nil }

func (e *Derivatives) Execute(ctx context.Context, job state.Job) (state.Status, state.Updates, error) {
	start := time.Now()

	aspects := e.Deps.DerivativeAspects
	if len(aspects) == 0 {
		aspects = []string{"1x1"}
	}
	formats := e.Deps.DerivativeFormats
	if len(formats) == 0 {
		formats = []string{"jpeg"}
	}

	var entries []manifestEntry
	var derivativeKeys []string
	var totalCost float64

	for _, compositeKey := range job.CompositeKeys {
		for _, aspect := range aspects {
			for _, format := range formats {
				settings := e.Deps.DefaultCompositeSettings
				settings.Format = format

				result, err := e.Deps.DeterministicCompositor.Compose(ctx, job.CutoutKey, compositeKey, settings)
				if err != nil {
					if classified := errx.As(err); classified != errx.Unknown {
						return "", state.Updates{}, err
					}
					return "", state.Updates{}, errx.Wrap(errx.CompositeFailed, "render derivative", err)
				}

				entries = append(entries, manifestEntry{Aspect: aspect, Format: format, Key: result.CompositeKey})
				derivativeKeys = append(derivativeKeys, result.CompositeKey)
				totalCost += result.CostUSD
			}
		}
	}

	m := manifest{SKU: job.SKU, ImageHash: job.ImageHash, Theme: job.Theme, Derivatives: entries}
	payload, err := json.Marshal(m)
	if err != nil {
		return "", state.Updates{}, errx.Wrap(errx.Unknown, "marshal derivative manifest", err)
	}

	manifestKey := objectstore.ManifestKey(job.SKU, job.ImageHash, job.Theme)
	if err := e.Deps.Objects.Put(ctx, manifestKey, bytes.NewReader(payload)); err != nil {
		return "", state.Updates{}, errx.Wrap(errx.StorageFailed, "upload derivative manifest", err)
	}

	updates := state.Updates{
		DerivativeKeys: derivativeKeys,
		ManifestKey:    &manifestKey,
		CostDelta:      totalCost,
		StepName:       "derivatives",
		StepElapsedMs:  time.Since(start).Milliseconds(),
	}
	return state.StatusDerivatives, updates, nil
}
