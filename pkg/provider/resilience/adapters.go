package resilience

import (
	"context"

	"github.com/stewart-y/photopipeline/pkg/provider"
)

// Segmenter decorates a provider.Segmenter with a breaker and bounded
// retry so a transient backend blip never surfaces as a step failure
// (see package doc).
type Segmenter struct {
	Next provider.Segmenter
	W    *Wrapper
}

func (s Segmenter) RemoveBackground(ctx context.Context, sourceURL, sku, hash string) (provider.SegmentResult, error) {
	res, err := s.W.Call(ctx, nil, func(ctx context.Context) (interface{}, error) {
		return s.Next.RemoveBackground(ctx, sourceURL, sku, hash)
	})
	if err != nil {
		return provider.SegmentResult{}, err
	}
	return res.(provider.SegmentResult), nil
}

var _ provider.Segmenter = Segmenter{}

// BackgroundGenerator decorates a provider.BackgroundGenerator.
type BackgroundGenerator struct {
	Next provider.BackgroundGenerator
	W    *Wrapper
}

func (g BackgroundGenerator) Generate(ctx context.Context, themeOrPrompt string, width, height int, sku, hash string) (provider.BackgroundResult, error) {
	res, err := g.W.Call(ctx, nil, func(ctx context.Context) (interface{}, error) {
		return g.Next.Generate(ctx, themeOrPrompt, width, height, sku, hash)
	})
	if err != nil {
		return provider.BackgroundResult{}, err
	}
	return res.(provider.BackgroundResult), nil
}

var _ provider.BackgroundGenerator = BackgroundGenerator{}

// Storefront decorates a provider.Storefront. FindProduct and
// AttachMedia share one breaker, since both calls hit the same
// storefront backend.
type Storefront struct {
	Next provider.Storefront
	W    *Wrapper
}

func (s Storefront) FindProduct(ctx context.Context, sku string) (provider.StorefrontProduct, bool, error) {
	type result struct {
		product provider.StorefrontProduct
		found   bool
	}
	res, err := s.W.Call(ctx, nil, func(ctx context.Context) (interface{}, error) {
		p, found, err := s.Next.FindProduct(ctx, sku)
		return result{p, found}, err
	})
	if err != nil {
		return provider.StorefrontProduct{}, false, err
	}
	r := res.(result)
	return r.product, r.found, nil
}

func (s Storefront) AttachMedia(ctx context.Context, productID string, urls []string, altText string) ([]string, error) {
	res, err := s.W.Call(ctx, nil, func(ctx context.Context) (interface{}, error) {
		return s.Next.AttachMedia(ctx, productID, urls, altText)
	})
	if err != nil {
		return nil, err
	}
	return res.([]string), nil
}

var _ provider.Storefront = Storefront{}
