// Package store defines the durable persistence contract (spec §4.2):
// transactional job CRUD, leasing, and the auxiliary Settings/Template/
// SKU-map/CustomPrompt records the rest of the system reads through it.
// The SQLite-backed implementation lives in the sqlitestore
// subpackage; this package only describes the contract and the shapes
// it moves.
package store

import (
	"context"
	"time"

	"github.com/stewart-y/photopipeline/pkg/state"
)

// ListFilters narrows List to a subset of jobs (spec §6.2). A nil
// Status slice means "any status".
type ListFilters struct {
	Status []state.Status
	SKU    string
	Theme  string
	Limit  int
	Offset int
}

// Stats is the aggregate summary spec §4.2 calls "Statistics".
type Stats struct {
	TotalByStatus   map[state.Status]int
	TotalCostUSD    float64
	AvgDurationSecs float64
	FailureRate     float64
}

// Store is the full durable-persistence contract. Every method is
// safe for concurrent use; multi-field writes are transactional and
// updateStatus/leaseRunnable are serializable per job id (spec §4.2).
type Store interface {
	// Create performs the atomic upsert keyed by (sku, image_hash,
	// theme): if a matching row exists it is returned unchanged,
	// otherwise a new NEW/attempt-0 job is inserted.
	Create(ctx context.Context, sku, imageHash, theme, sourceURL string) (state.Job, bool, error)

	Get(ctx context.Context, id string) (state.Job, bool, error)
	List(ctx context.Context, filters ListFilters) ([]state.Job, error)

	// UpdateStatus delegates legality to pkg/state, persists the
	// resulting snapshot in one statement, and returns the re-read
	// record.
	UpdateStatus(ctx context.Context, id string, target state.Status, updates state.Updates) (state.Job, error)

	// SetArtifacts merges artifact keys without touching status; list
	// fields overwrite rather than append.
	SetArtifacts(ctx context.Context, id string, updates state.Updates) (state.Job, error)

	IncrementAttempt(ctx context.Context, id string) (state.Job, error)
	AddCost(ctx context.Context, id string, delta float64) error

	// LeaseRunnable atomically claims up to limit non-terminal jobs
	// whose lease is absent or expired, stamping owner/ttl.
	LeaseRunnable(ctx context.Context, limit int, owner string, ttl time.Duration) ([]state.Job, error)
	// ReleaseLease is a no-op if owner no longer matches the current
	// lease holder (protects against stale releases after TTL expiry).
	ReleaseLease(ctx context.Context, id, owner string) error

	// Requeue applies the auto-requeue policy (pkg/state.Requeue) to a
	// retry-eligible FAILED job and persists the result.
	Requeue(ctx context.Context, id string) (state.Job, error)

	CountDoneForSKU(ctx context.Context, sku string) (int, error)

	Stats(ctx context.Context) (Stats, error)

	Settings
	Templates
	SkuMap
	Prompts
}

// Settings is the key/value tunable store (spec §3, §9).
type Settings interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	SetSetting(ctx context.Context, key, value string) error
	ListSettings(ctx context.Context) (map[string]string, error)
}

// TemplateStatus mirrors spec §3's Template.status enum.
type TemplateStatus string

const (
	TemplateGenerating TemplateStatus = "generating"
	TemplateActive     TemplateStatus = "active"
	TemplateArchived   TemplateStatus = "archived"
	TemplateFailed     TemplateStatus = "failed"
)

// TemplateAsset is one background image belonging to a Template.
type TemplateAsset struct {
	ID         string
	TemplateID string
	Key        string
	Width      int
	Height     int
	Selected   bool
}

// Template is a reusable background set (spec §3).
type Template struct {
	ID        string
	Name      string
	Status    TemplateStatus
	Prompt    string
	Assets    []TemplateAsset
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Templates is the background-template registry contract.
type Templates interface {
	CreateTemplate(ctx context.Context, name, prompt string) (Template, error)
	GetTemplate(ctx context.Context, id string) (Template, bool, error)
	ListTemplates(ctx context.Context) ([]Template, error)
	SetTemplateStatus(ctx context.Context, id string, status TemplateStatus) (Template, error)
	AddTemplateAsset(ctx context.Context, templateID, key string, width, height int) (TemplateAsset, error)
	SelectTemplateAsset(ctx context.Context, templateID, assetID string) error
	ActiveTemplate(ctx context.Context) (Template, bool, error)
}

// SkuProductMap is the cached SKU -> storefront product correlation.
type SkuProductMap struct {
	SKU         string
	ProductID   string
	Handle      string
	LastSyncAt  time.Time
}

// SkuMap is the storefront product-lookup cache contract.
type SkuMap interface {
	GetSkuProduct(ctx context.Context, sku string) (SkuProductMap, bool, error)
	UpsertSkuProduct(ctx context.Context, sku, productID, handle string) error
}

// CustomPrompt is a named piece of prompt text (spec §3).
type CustomPrompt struct {
	ID        string
	Name      string
	Text      string
	IsDefault bool
}

// Prompts is the custom-prompt registry contract.
type Prompts interface {
	ListPrompts(ctx context.Context) ([]CustomPrompt, error)
	CreatePrompt(ctx context.Context, name, text string) (CustomPrompt, error)
	UpdatePrompt(ctx context.Context, id, name, text string) (CustomPrompt, error)
	DeletePrompt(ctx context.Context, id string) error
	DefaultPrompt(ctx context.Context) (CustomPrompt, bool, error)
}
