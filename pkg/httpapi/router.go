package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stewart-y/photopipeline/pkg/intake"
	"github.com/stewart-y/photopipeline/pkg/objectstore"
	"github.com/stewart-y/photopipeline/pkg/processor"
	"github.com/stewart-y/photopipeline/pkg/store"
	"github.com/stewart-y/photopipeline/pkg/telemetry"
)

// Deps bundles every collaborator the control plane dispatches into.
type Deps struct {
	Store      store.Store
	Objects    objectstore.Store
	Intaker    *intake.Intaker
	Processor  *processor.Processor
	Metrics    *telemetry.Metrics
	Logger     *zap.Logger
	PresignTTL time.Duration
}

// NewRouter builds the full HTTP surface (spec §6.1-§6.3,
// SPEC_FULL.md §6.7-§6.8).
func NewRouter(deps Deps) *chi.Mux {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.PresignTTL <= 0 {
		deps.PresignTTL = time.Hour
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger(deps.Logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "X-3JMS-Signature", "X-Webhook-Signature", "X-Signature"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := &handlers{deps: deps}

	r.Get("/healthz", h.healthz)
	r.Handle("/metrics", promhttp.HandlerFor(deps.Metrics.Registry, promhttp.HandlerOpts{}))

	r.Post("/webhooks/3jms/images", h.webhook)

	r.Route("/jobs", func(r chi.Router) {
		r.Get("/", h.listJobs)
		r.Get("/{id}", h.getJob)
		r.Get("/{id}/presign", h.presignGet)
		r.Post("/{id}/presign", h.presignPut)
		r.Post("/{id}/retry", h.retryJob)
		r.Post("/{id}/fail", h.failJob)
		r.Post("/{id}/push-shopify", h.pushShopify)
	})

	r.Route("/processor", func(r chi.Router) {
		r.Get("/status", h.processorStatus)
		r.Post("/start", h.processorStart)
		r.Post("/stop", h.processorStop)
	})

	r.Route("/templates", func(r chi.Router) {
		r.Get("/", h.listTemplates)
		r.Post("/", h.createTemplate)
		r.Post("/{id}/activate", h.activateTemplate)
		r.Delete("/{id}", h.archiveTemplate)
	})

	r.Route("/prompts", func(r chi.Router) {
		r.Get("/", h.listPrompts)
		r.Post("/", h.createPrompt)
		r.Put("/{id}", h.updatePrompt)
		r.Delete("/{id}", h.deletePrompt)
	})

	r.Route("/settings", func(r chi.Router) {
		r.Get("/", h.listSettings)
		r.Put("/{key}", h.setSetting)
	})

	return r
}

type handlers struct {
	deps Deps
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
			)
		})
	}
}
