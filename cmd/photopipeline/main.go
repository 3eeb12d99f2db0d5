// Command photopipeline is the job-lifecycle service (spec §1): it
// runs the HTTP control plane and the background processor in one
// process, the way the teacher's cmd entrypoints wire a single binary
// from its component packages.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stewart-y/photopipeline/internal/config"
	"github.com/stewart-y/photopipeline/internal/migrate"
	"github.com/stewart-y/photopipeline/pkg/executor"
	"github.com/stewart-y/photopipeline/pkg/httpapi"
	"github.com/stewart-y/photopipeline/pkg/intake"
	"github.com/stewart-y/photopipeline/pkg/notify"
	"github.com/stewart-y/photopipeline/pkg/objectstore"
	"github.com/stewart-y/photopipeline/pkg/processor"
	"github.com/stewart-y/photopipeline/pkg/provider"
	"github.com/stewart-y/photopipeline/pkg/provider/anthropicgen"
	"github.com/stewart-y/photopipeline/pkg/provider/fake"
	"github.com/stewart-y/photopipeline/pkg/provider/resilience"
	"github.com/stewart-y/photopipeline/pkg/state"
	"github.com/stewart-y/photopipeline/pkg/store"
	"github.com/stewart-y/photopipeline/pkg/store/sqlitestore"
	"github.com/stewart-y/photopipeline/pkg/telemetry"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := telemetry.NewLogger(cfg.Production)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync()

	tp, err := telemetry.NewTracerProvider("photopipeline")
	if err != nil {
		return fmt.Errorf("build tracer provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(ctx, tp); err != nil {
			logger.Warn("tracer provider shutdown failed", zap.Error(err))
		}
	}()

	metrics := telemetry.NewMetrics()

	db, err := sqlitestore.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := migrate.Run(db.DB); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	st := sqlitestore.New(db, logger)

	objects, err := objectstore.New(cfg.ObjectStoreDir, "https://"+localOrProductionHost(cfg)+"/objects", cfg.PresignSecret)
	if err != nil {
		return fmt.Errorf("open object store: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	const dedupeWindowSeconds = 300 // spec §4.3's Redis fast-path TTL
	ik := intake.New(st, redisClient, logger, cfg.WebhookSecret, cfg.SkipVerification(), dedupeWindowSeconds, cfg.DefaultTheme, cfg.ImageMaxPerSKU)

	var notifier notify.Notifier = notify.NoopNotifier{}
	if cfg.SlackWebhookURL != "" {
		notifier = notify.NewSlackNotifier(cfg.SlackWebhookURL, "", logger)
	}

	registry := buildExecutorRegistry(cfg, st, objects, logger)

	proc := processor.New(st, registry, notifier, metrics, logger, processor.Config{
		PollInterval: cfg.PollInterval,
		Concurrency:  cfg.Concurrency,
		MaxRetries:   cfg.MaxRetries,
		LeaseTTL:     cfg.LeaseTTL,
		Owner:        hostOwnerID(),
	})

	router := httpapi.NewRouter(httpapi.Deps{
		Store:      st,
		Objects:    objects,
		Intaker:    ik,
		Processor:  proc,
		Metrics:    metrics,
		Logger:     logger,
		PresignTTL: time.Hour,
	})

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	proc.Start(ctx)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.Int("port", cfg.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
		}
	}

	proc.Stop(30 * time.Second)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown failed", zap.Error(err))
	}

	return nil
}

// buildExecutorRegistry wires the five step executors. The segmenter,
// AI compositor variant, and storefront are out-of-scope concrete
// backends (spec.md §1): fake.* stands in for the segmenter and AI
// compositor, and the storefront is skuMapStorefront, a lookup over the
// store's SKU map, each behind the same provider interface a real
// adapter would satisfy — only
// BackgroundGenerator has a real adapter (pkg/provider/anthropicgen),
// selected when ANTHROPIC_API_KEY is configured.
func buildExecutorRegistry(cfg *config.Config, st *sqlitestore.Store, objects objectstore.Store, logger *zap.Logger) *executor.Registry {
	segmenter := resilience.Segmenter{
		Next: fake.Segmenter{CostUSD: 0},
		W:    resilience.New(resilience.DefaultConfig("segmenter")),
	}

	var bgGen provider.BackgroundGenerator = fake.NewBackgroundGenerator(0)
	if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		bgGen = anthropicBackgroundGenerator(apiKey)
	}
	bgGen = resilience.BackgroundGenerator{
		Next: bgGen,
		W:    resilience.New(resilience.DefaultConfig("background-generator")),
	}

	deterministic := fake.DeterministicCompositor{}
	aiCompositor := fake.AICompositor{Variant: cfg.AICompositor}

	storefront := resilience.Storefront{
		Next: newSkuMapStorefront(st),
		W:    resilience.New(resilience.DefaultConfig("storefront")),
	}

	deps := &executor.Deps{
		Objects:                  objects,
		Segmenter:                segmenter,
		BackgroundGenerator:      bgGen,
		AICompositor:             aiCompositor,
		DeterministicCompositor:  deterministic,
		Storefront:               storefront,
		Store:                    st,
		AICompositorVariant:      cfg.AICompositor,
		BackgroundVariantsPerJob: 1,
		DerivativeAspects:        []string{"1x1", "4x5"},
		DerivativeFormats:        []string{"jpeg"},
		PresignTTL:               time.Hour,
	}

	reg := executor.NewRegistry()
	reg.Register(state.StatusNew, &executor.FetchSegment{Deps: deps})
	reg.Register(state.StatusBGRemoved, &executor.BackgroundReady{Deps: deps})
	reg.Register(state.StatusBackgroundReady, &executor.Compose{Deps: deps})
	reg.Register(state.StatusComposited, &executor.Derivatives{Deps: deps})
	reg.Register(state.StatusDerivatives, &executor.StorefrontPush{Deps: deps})
	return reg
}

// skuMapStorefront resolves SKUs through the store's SkuMap cache
// (store.SkuMap), auto-provisioning a demo product and upserting it on
// first lookup so the storefront-push step has somewhere to terminate
// without a real commerce backend wired in (spec §1 scope, §9 SKU→
// Product Map). AttachMedia mirrors fake.Storefront's deterministic
// media-id scheme.
type skuMapStorefront struct {
	store store.SkuMap
}

func newSkuMapStorefront(s store.SkuMap) *skuMapStorefront {
	return &skuMapStorefront{store: s}
}

func (s *skuMapStorefront) FindProduct(ctx context.Context, sku string) (provider.StorefrontProduct, bool, error) {
	if cached, found, err := s.store.GetSkuProduct(ctx, sku); err != nil {
		return provider.StorefrontProduct{}, false, err
	} else if found {
		return provider.StorefrontProduct{ProductID: cached.ProductID, Handle: cached.Handle}, true, nil
	}

	productID := "demo_" + sku
	handle := strings.ToLower(strings.ReplaceAll(sku, "_", "-"))
	if err := s.store.UpsertSkuProduct(ctx, sku, productID, handle); err != nil {
		return provider.StorefrontProduct{}, false, err
	}
	return provider.StorefrontProduct{ProductID: productID, Handle: handle}, true, nil
}

func (s *skuMapStorefront) AttachMedia(ctx context.Context, productID string, urls []string, altText string) ([]string, error) {
	ids := make([]string, len(urls))
	for i := range urls {
		ids[i] = fmt.Sprintf("media_%s_%d", productID, i)
	}
	return ids, nil
}

func localOrProductionHost(cfg *config.Config) string {
	if cfg.Production {
		return "pipeline.internal"
	}
	return fmt.Sprintf("localhost:%d", cfg.Port)
}

func anthropicBackgroundGenerator(apiKey string) provider.BackgroundGenerator {
	return anthropicgen.New(apiKey, "")
}

func hostOwnerID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "processor"
	}
	return host
}
