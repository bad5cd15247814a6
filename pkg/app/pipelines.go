package app

import (
	"context"
	"fmt"
	"time"

	"github.com/osvaldoandrade/dossier/internal/answering"
	"github.com/osvaldoandrade/dossier/internal/catalog"
	"github.com/osvaldoandrade/dossier/internal/executor"
	"github.com/osvaldoandrade/dossier/internal/metrics"
	"github.com/osvaldoandrade/dossier/internal/pipeline"
	"github.com/osvaldoandrade/dossier/internal/ratelimit"
	"github.com/osvaldoandrade/dossier/internal/render"
	"github.com/osvaldoandrade/dossier/internal/transport"
	"github.com/osvaldoandrade/dossier/internal/worker"
	"github.com/osvaldoandrade/dossier/pkg/config"
	"github.com/osvaldoandrade/dossier/pkg/domain"

	"cloud.google.com/go/pubsub"
)

const redisPollInterval = 500 * time.Millisecond

func (a *Application) configureTransport(ctx context.Context) error {
	cfg := a.Config
	switch cfg.Transport {
	case "kafka":
		pub, err := transport.NewKafkaPublisher(cfg.KafkaBrokers)
		if err != nil {
			return fmt.Errorf("kafka publisher: %w", err)
		}
		a.Publisher = pub
		a.consumer = func(ctx context.Context, queue string) (transport.Consumer, error) {
			return transport.NewKafkaConsumer(ctx, cfg.KafkaBrokers, cfg.KafkaGroupID, queue, a.Logger)
		}
	case "pubsub":
		client, err := pubsub.NewClient(ctx, cfg.PubSubProject)
		if err != nil {
			return fmt.Errorf("pubsub client: %w", err)
		}
		a.Publisher = transport.NewPubSubPublisher(client)
		a.consumer = func(ctx context.Context, queue string) (transport.Consumer, error) {
			return transport.NewPubSubConsumer(ctx, client, queue+cfg.PubSubSubscriptionSuffix, a.Logger), nil
		}
	default:
		a.Publisher = transport.NewRedisPublisher(a.Redis)
		a.consumer = func(ctx context.Context, queue string) (transport.Consumer, error) {
			c := transport.NewRedisConsumer(a.Redis, queue, redisPollInterval)
			n, err := c.Recover(ctx)
			if err != nil {
				return nil, fmt.Errorf("recover %s: %w", queue, err)
			}
			if n > 0 {
				a.Logger.Warn("requeued unacknowledged requests", "queue", queue, "count", n)
			}
			return c, nil
		}
	}
	return nil
}

// inputQueues maps every enabled work type to its request queue.
func inputQueues(cfg *config.Config) map[domain.WorkType]string {
	queues := map[domain.WorkType]string{}
	for _, p := range cfg.Pipelines {
		if p.Disabled {
			continue
		}
		wt, err := domain.ParseWorkType(p.WorkType)
		if err != nil {
			continue
		}
		queues[wt] = p.InputQueue
	}
	return queues
}

func collectorQueues(cfg *config.Config) []metrics.Queue {
	var out []metrics.Queue
	for _, p := range cfg.Pipelines {
		if p.Disabled {
			continue
		}
		out = append(out, metrics.Queue{WorkType: p.WorkType, Input: p.InputQueue, Output: p.OutputTopic})
	}
	return out
}

func (a *Application) buildOrchestrator(ctx context.Context, limiter ratelimit.Limiter) error {
	cfg := a.Config

	provider := a.answering
	if provider == nil {
		p, err := a.genaiProvider(ctx, limiter)
		if err != nil {
			return err
		}
		if p != nil {
			provider = p
		}
	}

	renderers := map[domain.WorkType]pipeline.Renderer{}
	if _, ok := cfg.Pipeline(string(domain.WorkTypeReport)); ok {
		var conv render.Converter
		if cfg.Render.Converter == "pandoc" {
			conv = render.NewPandocConverter(cfg.Render.PandocPath, cfg.Render.PDFEngine)
		} else {
			conv = render.NewChromeConverter(cfg.Render.ChromeBin)
		}
		renderers[domain.WorkTypeReport] = render.NewDocumentRenderer(conv, a.Uploader, a.Logger)
	}
	if _, ok := cfg.Pipeline(string(domain.WorkTypeInfographic)); ok {
		renderers[domain.WorkTypeInfographic] = render.NewSlideRenderer(
			cfg.Render.SlideTemplate,
			render.NewSofficeConverter(cfg.Render.SofficePath),
			render.NewPdftoppmRasterizer(cfg.Render.PdftoppmPath, cfg.Render.RasterDPI),
			a.Uploader,
			a.Logger,
		)
	}
	for wt, r := range a.renderers {
		renderers[wt] = r
	}

	opts := []pipeline.Option{pipeline.WithSectionConcurrency(cfg.SectionConcurrency)}
	if a.observer != nil {
		opts = append(opts, pipeline.WithObserver(a.observer))
	}
	exec := executor.New(time.Duration(cfg.AnswerTimeoutSeconds)*time.Second, a.Logger)
	a.Orchestrator = pipeline.New(provider, exec, renderers, a.Logger, opts...)
	return nil
}

// genaiProvider returns nil without error when dev runs carry no credentials;
// sections then fail individually instead of the process refusing to start.
func (a *Application) genaiProvider(ctx context.Context, limiter ratelimit.Limiter) (*answering.GenAIProvider, error) {
	g := a.Config.GenAI
	if !g.UseVertexAI && g.APIKey == "" {
		a.Logger.Warn("no genai credentials configured; sections will fail")
		return nil, nil
	}
	client, err := answering.NewGenAIClient(ctx, g.Project, g.Location, g.APIKey, g.UseVertexAI)
	if err != nil {
		return nil, err
	}
	return answering.NewGenAIProvider(client.Models, a.Corpora, answering.GenAIOptions{
		Model:                   g.Model,
		MaxToolTurns:            g.MaxToolTurns,
		SimilarityTopK:          g.SimilarityTopK,
		VectorDistanceThreshold: g.VectorDistanceThreshold,
		Limiter:                 limiter,
		Bucket:                  bucket(a.Config.RateLimit.Answering),
		Logger:                  a.Logger,
	}), nil
}

// StartWorkers opens one consumer per enabled pipeline and starts the
// worker shell. Calling it twice is an error.
func (a *Application) StartWorkers(ctx context.Context) error {
	if a.shell != nil {
		return fmt.Errorf("workers already started")
	}
	var pipelines []worker.Pipeline
	for _, p := range a.Config.Pipelines {
		if p.Disabled {
			continue
		}
		wt, err := domain.ParseWorkType(p.WorkType)
		if err != nil {
			return err
		}
		// Panics on a broken catalog before any request is consumed.
		catalog.MustSections(wt)

		c, err := a.consumer(ctx, p.InputQueue)
		if err != nil {
			for _, opened := range pipelines {
				_ = opened.Consumer.Close()
			}
			return err
		}
		pipelines = append(pipelines, worker.Pipeline{WorkType: wt, Consumer: c, OutputTopic: p.OutputTopic})
	}

	a.shell = worker.New(a.Orchestrator, pipelines, a.Persistence.ResultStorage(), a.Publisher, a.Logger, worker.Options{
		MaxWorkers:     a.Config.MaxWorkers,
		RequestTimeout: time.Duration(a.Config.RequestTimeoutSeconds) * time.Second,
		Uploads:        a.Persistence.UploadStorage(),
		Callback:       a.Callbacks,
	})
	a.shell.Start(ctx)
	return nil
}
