// Package fake supplies deterministic, in-memory implementations of
// every provider family in pkg/provider, for executor tests and local
// runs without a real segmentation/generation/storefront backend.
package fake

import (
	"context"
	"fmt"

	"github.com/stewart-y/photopipeline/pkg/objectstore"
	"github.com/stewart-y/photopipeline/pkg/provider"
)

// Segmenter always succeeds, producing keys from the deterministic
// key schema so repeated calls for the same (sku, hash) agree.
type Segmenter struct {
	CostUSD float64
}

func (s Segmenter) RemoveBackground(ctx context.Context, sourceURL, sku, hash string) (provider.SegmentResult, error) {
	return provider.SegmentResult{
		CutoutKey: objectstore.CutoutKey(sku, hash),
		MaskKey:   objectstore.MaskKey(sku, hash),
		CostUSD:   s.CostUSD,
		Metadata:  map[string]string{"source": sourceURL},
	}, nil
}

// BackgroundGenerator produces one deterministic key per call, using
// an internal counter as the version so repeated calls for the same
// job produce distinct variants.
type BackgroundGenerator struct {
	CostUSD float64
	calls   map[string]int
}

func NewBackgroundGenerator(cost float64) *BackgroundGenerator {
	return &BackgroundGenerator{CostUSD: cost, calls: map[string]int{}}
}

func (g *BackgroundGenerator) Generate(ctx context.Context, themeOrPrompt string, width, height int, sku, hash string) (provider.BackgroundResult, error) {
	if g.calls == nil {
		g.calls = map[string]int{}
	}
	key := sku + "/" + hash + "/" + themeOrPrompt
	g.calls[key]++
	return provider.BackgroundResult{
		BackgroundKey: objectstore.BackgroundKey(sku, hash, themeOrPrompt, g.calls[key]),
		CostUSD:       g.CostUSD,
		Metadata:      map[string]string{"width": fmt.Sprint(width), "height": fmt.Sprint(height)},
	}, nil
}

// DeterministicCompositor composes by string concatenation of the two
// input keys into a stable composite key, standing in for a real
// image-processing pipeline.
type DeterministicCompositor struct{}

func (DeterministicCompositor) Compose(ctx context.Context, cutoutKey, backgroundKey string, settings provider.CompositeSettings) (provider.CompositeResult, error) {
	kind := settings.Format
	if kind == "" {
		kind = "jpeg"
	}
	return provider.CompositeResult{
		CompositeKey: fmt.Sprintf("%s+%s.%s", cutoutKey, backgroundKey, kind),
		Metadata:     map[string]string{"gravity": settings.Gravity},
	}, nil
}

// AICompositor is the "none" variant: it never runs, because spec §3
// defines "none" as skip-AI-composition-use-deterministic-only. Invoking
// it with Variant "none" or "" returns an error so callers notice a
// misconfiguration instead of silently falling back; any other variant
// name produces a fake composite key under ai/<variant>/.
type AICompositor struct {
	Variant string
}

func (a AICompositor) Compose(ctx context.Context, cutoutKey, backgroundKey string, options map[string]string) (provider.CompositeResult, error) {
	if a.Variant == "none" || a.Variant == "" {
		return provider.CompositeResult{}, fmt.Errorf("AICompositor variant %q must not be invoked directly; use DeterministicCompositor", a.Variant)
	}
	return provider.CompositeResult{
		CompositeKey: fmt.Sprintf("ai/%s/%s+%s.jpg", a.Variant, cutoutKey, backgroundKey),
	}, nil
}

// Storefront is a fixed, in-memory SKU→product catalog.
type Storefront struct {
	Products map[string]provider.StorefrontProduct
	attached map[string][]string
}

func NewStorefront(products map[string]provider.StorefrontProduct) *Storefront {
	return &Storefront{Products: products, attached: map[string][]string{}}
}

func (s *Storefront) FindProduct(ctx context.Context, sku string) (provider.StorefrontProduct, bool, error) {
	p, ok := s.Products[sku]
	return p, ok, nil
}

func (s *Storefront) AttachMedia(ctx context.Context, productID string, urls []string, altText string) ([]string, error) {
	if s.attached == nil {
		s.attached = map[string][]string{}
	}
	ids := make([]string, len(urls))
	for i, u := range urls {
		id := fmt.Sprintf("media_%s_%d", productID, len(s.attached[productID])+i)
		ids[i] = id
		_ = u
	}
	s.attached[productID] = append(s.attached[productID], ids...)
	return ids, nil
}
