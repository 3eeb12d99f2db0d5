// Package objectstore implements the object-store key schema (spec
// §6.4) and the presigned-URL contract over a local-disk-backed store.
// Real object storage (S3, GCS, ...) is explicitly out of scope
// (spec.md §1); this package exists only to make the key grammar and
// presign contract concrete and testable, so it leans on the standard
// library rather than a cloud SDK (see DESIGN.md).
package objectstore

import "fmt"

// OriginalKey returns the stable key for the uploaded source image.
func OriginalKey(sku, hash string) string {
	return fmt.Sprintf("originals/%s/%s.jpg", sku, hash)
}

// MaskKey returns the stable key for the segmentation mask.
func MaskKey(sku, hash string) string {
	return fmt.Sprintf("masks/%s/%s.png", sku, hash)
}

// CutoutKey returns the stable key for the foreground cutout.
func CutoutKey(sku, hash string) string {
	return fmt.Sprintf("cutouts/%s/%s.png", sku, hash)
}

// BackgroundKey returns the stable key for a generated background
// variant. Re-generating the same (sku, hash, theme, version) must
// produce this same key — determinism is the idempotency mechanism at
// the storage layer (spec §6.4).
func BackgroundKey(sku, hash, theme string, version int) string {
	return fmt.Sprintf("backgrounds/%s/%s/%s/v%d.jpg", sku, hash, theme, version)
}

// CompositeKey returns the stable key for one rendered composite.
func CompositeKey(sku, hash, theme, aspect string, version int, kind string) string {
	return fmt.Sprintf("composites/%s/%s/%s/%s/v%d/%s.jpg", sku, hash, theme, aspect, version, kind)
}

// ThumbnailKey returns the stable key for the job's thumbnail.
func ThumbnailKey(sku, hash string) string {
	return fmt.Sprintf("thumbnails/%s/%s.jpg", sku, hash)
}

// TemplateAssetKey returns the stable key for a background template
// asset. kind is "background" for an uploaded asset, or the literal
// version label otherwise.
func TemplateAssetKey(templateID string, version int, uploaded bool) string {
	if uploaded {
		return fmt.Sprintf("templates/%s/background.jpg", templateID)
	}
	return fmt.Sprintf("templates/%s/v%d.jpg", templateID, version)
}

// ManifestKey returns the stable key for a job's derivative manifest.
func ManifestKey(sku, hash, theme string) string {
	return fmt.Sprintf("manifests/%s/%s/%s.json", sku, hash, theme)
}
