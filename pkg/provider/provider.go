// Package provider defines the external-collaborator contracts spec §3
// names: Segmenter, BackgroundGenerator, AICompositor,
// DeterministicCompositor, and Storefront. Concrete backends are out
// of scope (spec.md §1); pkg/provider/fake supplies deterministic
// in-memory implementations, pkg/provider/anthropicgen supplies one
// illustrative adapter, and pkg/provider/resilience wraps any of these
// with a circuit breaker and bounded retry.
package provider

import "context"

// SegmentResult is what Segmenter.RemoveBackground returns on success.
type SegmentResult struct {
	CutoutKey string
	MaskKey   string
	CostUSD   float64
	Metadata  map[string]string
}

// Segmenter removes the background from a source image, producing a
// cutout and a mask (spec §3, NEW → BG_REMOVED).
type Segmenter interface {
	RemoveBackground(ctx context.Context, sourceURL, sku, hash string) (SegmentResult, error)
}

// BackgroundResult is what BackgroundGenerator.Generate returns.
type BackgroundResult struct {
	BackgroundKey string
	CostUSD       float64
	Metadata      map[string]string
}

// BackgroundGenerator produces a background image for a theme or free
// text prompt. It may be called multiple times per job to produce
// variants (spec §3, BG_REMOVED → BACKGROUND_READY).
type BackgroundGenerator interface {
	Generate(ctx context.Context, themeOrPrompt string, width, height int, sku, hash string) (BackgroundResult, error)
}

// CompositeSettings governs the deterministic compositor (spec §3).
type CompositeSettings struct {
	BottleHeightPercent float64 // (0.1, 1.0]
	Quality             int     // [60, 100]
	Format              string  // jpeg | png | webp
	Gravity             string  // n | s | e | w | center
	Sharpen             float64 // >= 0
	Gamma               float64 // [0.5, 3.0]
}

// CompositeResult is what a compositor returns.
type CompositeResult struct {
	CompositeKey string
	CostUSD      float64
	Metadata     map[string]string
}

// AICompositor composes a cutout onto a background using an AI
// backend. The "none" variant skips AI composition entirely in favor
// of DeterministicCompositor (spec §3).
type AICompositor interface {
	Compose(ctx context.Context, cutoutKey, backgroundKey string, options map[string]string) (CompositeResult, error)
}

// DeterministicCompositor is the pure image-processing contract used
// both for BACKGROUND_READY → COMPOSITED and for derivative rendering
// in COMPOSITED → DERIVATIVES.
type DeterministicCompositor interface {
	Compose(ctx context.Context, cutoutKey, backgroundKey string, settings CompositeSettings) (CompositeResult, error)
}

// StorefrontProduct identifies a product resolved by SKU.
type StorefrontProduct struct {
	ProductID string
	Handle    string
}

// Storefront resolves SKUs to products and attaches media to them
// (spec §3, DERIVATIVES → SHOPIFY_PUSH).
type Storefront interface {
	FindProduct(ctx context.Context, sku string) (StorefrontProduct, bool, error)
	AttachMedia(ctx context.Context, productID string, urls []string, altText string) ([]string, error)
}
