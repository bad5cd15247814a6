package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/osvaldoandrade/dossier/internal/answering"
	"github.com/osvaldoandrade/dossier/internal/backoff"
	"github.com/osvaldoandrade/dossier/internal/corpus"
	"github.com/osvaldoandrade/dossier/internal/metrics"
	"github.com/osvaldoandrade/dossier/internal/middleware"
	"github.com/osvaldoandrade/dossier/internal/pipeline"
	"github.com/osvaldoandrade/dossier/internal/providers"
	"github.com/osvaldoandrade/dossier/internal/ratelimit"
	"github.com/osvaldoandrade/dossier/internal/services"
	"github.com/osvaldoandrade/dossier/internal/tracing"
	"github.com/osvaldoandrade/dossier/internal/transport"
	"github.com/osvaldoandrade/dossier/internal/worker"
	"github.com/osvaldoandrade/dossier/pkg/auth"
	_ "github.com/osvaldoandrade/dossier/pkg/auth/jwks"   // Register JWKS provider
	_ "github.com/osvaldoandrade/dossier/pkg/auth/static" // Register static provider
	"github.com/osvaldoandrade/dossier/pkg/config"
	"github.com/osvaldoandrade/dossier/pkg/domain"
	"github.com/osvaldoandrade/dossier/pkg/persistence"
	_ "github.com/osvaldoandrade/dossier/pkg/persistence/memory" // Register memory persistence
	_ "github.com/osvaldoandrade/dossier/pkg/persistence/redis"  // Register redis persistence

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

type Application struct {
	Config            *config.Config
	Engine            *gin.Engine
	Logger            *slog.Logger
	TZ                *time.Location
	Redis             *redis.Client
	Persistence       persistence.PluginPersistence
	Uploader          providers.Uploader
	Corpora           *corpus.Registry
	Uploads           services.UploadService
	Results           services.ResultsService
	Callbacks         services.ResultCallbackService
	Publisher         transport.Publisher
	Orchestrator      *pipeline.Orchestrator
	ProducerValidator auth.Validator
	RateLimiter       ratelimit.Limiter
	TracingShutdown   func(context.Context) error

	answering answering.Provider
	renderers map[domain.WorkType]pipeline.Renderer
	consumer  ConsumerFactory
	observer  pipeline.Observer
	shell     *worker.Shell
}

// ConsumerFactory opens the consumer of one input queue.
type ConsumerFactory func(ctx context.Context, queue string) (transport.Consumer, error)

// ApplicationOption configures the Application
type ApplicationOption func(*Application) error

// WithProducerValidator sets a custom producer validator
func WithProducerValidator(validator auth.Validator) ApplicationOption {
	return func(app *Application) error {
		app.ProducerValidator = validator
		return nil
	}
}

// WithAnsweringProvider replaces the genai-backed answering provider.
func WithAnsweringProvider(p answering.Provider) ApplicationOption {
	return func(app *Application) error {
		app.answering = p
		return nil
	}
}

// WithRenderer overrides the renderer of one work type.
func WithRenderer(wt domain.WorkType, r pipeline.Renderer) ApplicationOption {
	return func(app *Application) error {
		if app.renderers == nil {
			app.renderers = map[domain.WorkType]pipeline.Renderer{}
		}
		app.renderers[wt] = r
		return nil
	}
}

func WithUploader(u providers.Uploader) ApplicationOption {
	return func(app *Application) error {
		app.Uploader = u
		return nil
	}
}

// WithTransport replaces the configured queue transport.
func WithTransport(pub transport.Publisher, consumer ConsumerFactory) ApplicationOption {
	return func(app *Application) error {
		app.Publisher = pub
		app.consumer = consumer
		return nil
	}
}

// WithObserver receives orchestrator progress for every request.
func WithObserver(obs pipeline.Observer) ApplicationOption {
	return func(app *Application) error {
		app.observer = obs
		return nil
	}
}

func NewLogger(cfg *config.Config) *slog.Logger {
	level := new(slog.LevelVar)
	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	default:
		level.Set(slog.LevelInfo)
	}
	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return slog.New(handler).With("service", "dossier", "env", cfg.Env)
}

func NewApplication(cfg *config.Config, opts ...ApplicationOption) (*Application, error) {
	ctx := context.Background()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.FixedZone("UTC", 0)
	}
	logger := NewLogger(cfg)
	slog.SetDefault(logger)

	app := &Application{Config: cfg, Logger: logger, TZ: loc}
	for _, opt := range opts {
		if err := opt(app); err != nil {
			return nil, err
		}
	}

	app.TracingShutdown, err = tracing.Setup(ctx, tracing.Config{
		Enabled:      cfg.TracingEnabled,
		ServiceName:  "dossier",
		OTLPEndpoint: cfg.OTLPEndpoint,
		OTLPInsecure: cfg.OTLPInsecure,
		SampleRatio:  cfg.TraceSampleRatio,
	}, logger)
	if err != nil {
		return nil, err
	}

	app.Redis = providers.NewRedisProvider(cfg.RedisAddr, cfg.RedisPassword)
	limiter := ratelimit.NewTokenBucketLimiter(app.Redis)
	app.RateLimiter = limiter

	if app.Persistence, err = newPersistence(cfg, loc); err != nil {
		return nil, fmt.Errorf("persistence: %w", err)
	}
	if app.Uploader == nil {
		if app.Uploader, err = providers.NewUploader(ctx, cfg.Storage.Provider, cfg.Storage.Bucket, cfg.Storage.LocalArtifactsDir, cfg.Storage.PublicRead); err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
	}
	app.Corpora = corpus.NewRegistry(app.Persistence.CorpusStorage(), logger)

	if app.Publisher == nil {
		if err := app.configureTransport(ctx); err != nil {
			return nil, err
		}
	}
	queues := inputQueues(cfg)
	if cfg.Transport == "redis" && app.consumer == nil {
		metrics.RegisterRedisCollector(app.Redis, collectorQueues(cfg), logger)
	}

	app.Callbacks = services.NewResultCallbackService(
		logger,
		cfg.WebhookHmacSecret,
		cfg.ResultWebhookMaxAttempts,
		cfg.ResultWebhookBaseBackoffSeconds,
		cfg.ResultWebhookMaxBackoffSeconds,
		backoff.Policy(cfg.ResultWebhookBackoffPolicy),
		limiter,
		bucket(cfg.RateLimit.Webhook),
	)
	app.Uploads = services.NewUploadService(app.Persistence.UploadStorage(), app.Publisher, queues, logger, time.Now)
	app.Results = services.NewResultsService(app.Persistence.ResultStorage(), app.Persistence.UploadStorage(), app.Uploader, cfg.Render.ExpectedImages)

	if err := app.buildOrchestrator(ctx, limiter); err != nil {
		return nil, err
	}

	engine := gin.New()
	engine.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.TracingMiddleware("dossier"),
		middleware.LoggerMiddleware(logger),
	)
	app.Engine = engine

	if app.ProducerValidator == nil && cfg.ProducerAuthProvider != "" {
		raw, err := json.Marshal(cfg.ProducerAuthConfig)
		if err != nil {
			return nil, err
		}
		validator, err := auth.NewValidator(auth.ProviderConfig{
			Type:   cfg.ProducerAuthProvider,
			Config: raw,
		})
		if err != nil {
			return nil, err
		}
		app.ProducerValidator = validator
	}

	return app, nil
}

func newPersistence(cfg *config.Config, loc *time.Location) (persistence.PluginPersistence, error) {
	var raw json.RawMessage
	if cfg.PersistenceProvider == "redis" {
		b, err := json.Marshal(map[string]string{"addr": cfg.RedisAddr, "password": cfg.RedisPassword})
		if err != nil {
			return nil, err
		}
		raw = b
	}
	return persistence.NewPersistence(
		persistence.ProviderConfig{Type: cfg.PersistenceProvider, Config: raw},
		persistence.PluginConfig{Timezone: loc},
	)
}

func bucket(b config.RateLimitBucketConfig) ratelimit.Bucket {
	return ratelimit.Bucket{RequestsPerMinute: b.RequestsPerMinute, BurstSize: b.BurstSize}
}

// Shutdown stops the workers, lets pending webhooks finish and releases
// every backend. ctx bounds the whole drain.
func (a *Application) Shutdown(ctx context.Context) error {
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.shell != nil {
		keep(a.shell.Stop(ctx))
	}
	if a.Callbacks != nil {
		done := make(chan struct{})
		go func() {
			a.Callbacks.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			a.Logger.Warn("webhook deliveries still pending at shutdown")
		}
	}
	if a.Publisher != nil {
		keep(a.Publisher.Close())
	}
	if a.Persistence != nil {
		keep(a.Persistence.Close())
	}
	if a.Redis != nil {
		keep(a.Redis.Close())
	}
	if a.TracingShutdown != nil {
		keep(a.TracingShutdown(ctx))
	}
	return firstErr
}
