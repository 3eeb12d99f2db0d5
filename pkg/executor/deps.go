package executor

import (
	"net/http"
	"time"

	"github.com/stewart-y/photopipeline/pkg/objectstore"
	"github.com/stewart-y/photopipeline/pkg/provider"
	"github.com/stewart-y/photopipeline/pkg/store"
)

// Deps collects every collaborator the step executors need. One Deps
// is shared across all five executors in a Registry; each executor
// only touches the fields its step requires.
type Deps struct {
	Objects    objectstore.Store
	HTTPClient *http.Client

	Segmenter               provider.Segmenter
	BackgroundGenerator     provider.BackgroundGenerator
	AICompositor            provider.AICompositor
	DeterministicCompositor provider.DeterministicCompositor
	Storefront              provider.Storefront

	Store store.Store // active-template lookup (background-ready) and storefront-push's two-hop transition

	AICompositorVariant     string // "none" | "freepik" | "nanobanana"
	DefaultCompositeSettings provider.CompositeSettings
	BackgroundVariantsPerJob int
	DerivativeAspects        []string
	DerivativeFormats        []string
	PresignTTL               time.Duration
}

func (d *Deps) httpClient() *http.Client {
	if d.HTTPClient != nil {
		return d.HTTPClient
	}
	return http.DefaultClient
}
