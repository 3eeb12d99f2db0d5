package executor

import (
	"context"
	"time"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/state"
)

// StorefrontPush is the DERIVATIVES executor: resolve the SKU to a
// storefront product, presign the composites, attach them as media,
// then advance the job through SHOPIFY_PUSH to DONE (spec §4.5).
//
// Unlike the other four steps this one spans two transitions, so it
// persists both itself via Deps.Store rather than returning a single
// target for the caller to apply. A zero-value returned Status signals
// "already persisted, nothing further to write" — the processor must
// check for this before calling Store.UpdateStatus.
type StorefrontPush struct {
	Deps *Deps
}

func (e *StorefrontPush) IsHealthy() bool {
	return e.Deps.Storefront != nil && e.Deps.Store != nil
}

func (e *StorefrontPush) Execute(ctx context.Context, job state.Job) (state.Status, state.Updates, error) {
	start := time.Now()

	product, found, err := e.Deps.Storefront.FindProduct(ctx, job.SKU)
	if err != nil {
		return "", state.Updates{}, errx.Wrap(errx.StorefrontUploadFailed, "resolve sku to product", err)
	}
	if !found {
		return "", state.Updates{}, errx.New(errx.ProductNotFound, "no storefront product for sku "+job.SKU)
	}

	urls := make([]string, 0, len(job.CompositeKeys))
	for _, key := range job.CompositeKeys {
		presigned, err := e.Deps.Objects.Presign(key, e.Deps.PresignTTL)
		if err != nil {
			return "", state.Updates{}, errx.Wrap(errx.StorageFailed, "presign composite for storefront push", err)
		}
		urls = append(urls, presigned)
	}

	mediaIDs, err := e.Deps.Storefront.AttachMedia(ctx, product.ProductID, urls, job.SKU)
	if err != nil {
		return "", state.Updates{}, errx.Wrap(errx.StorefrontUploadFailed, "attach media to product", err)
	}

	elapsed := time.Since(start).Milliseconds()
	pushUpdates := state.Updates{
		ShopifyMediaIDs: mediaIDs,
		StepName:        "storefront_push",
		StepElapsedMs:   elapsed,
	}
	if _, err := e.Deps.Store.UpdateStatus(ctx, job.ID, state.StatusShopifyPush, pushUpdates); err != nil {
		return "", state.Updates{}, err
	}
	if _, err := e.Deps.Store.UpdateStatus(ctx, job.ID, state.StatusDone, state.Updates{}); err != nil {
		return "", state.Updates{}, err
	}

	return "", state.Updates{}, nil
}
