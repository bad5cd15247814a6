// Package pipeline runs one WorkRequest through its section catalog and
// renders the aggregated ResultRecord.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/osvaldoandrade/dossier/internal/answering"
	"github.com/osvaldoandrade/dossier/internal/catalog"
	"github.com/osvaldoandrade/dossier/internal/executor"
	"github.com/osvaldoandrade/dossier/internal/metrics"
	"github.com/osvaldoandrade/dossier/internal/tracing"
	"github.com/osvaldoandrade/dossier/pkg/domain"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// MaxSectionConcurrency caps section fan-out regardless of configuration.
const MaxSectionConcurrency = 4

type State string

const (
	StateValidating State = "validating"
	StateRunning    State = "running"
	StateRendering  State = "rendering"
	StateDone       State = "done"
)

// Observer receives progress callbacks. Calls for one request are
// serialized, so implementations need no locking of their own.
type Observer interface {
	OnState(requestID string, state State)
	OnSection(requestID string, index, total int, result domain.SectionResult)
}

// Renderer turns a completed record into a published artifact.
type Renderer interface {
	Render(ctx context.Context, rec domain.ResultRecord) (*domain.ArtifactReference, error)
}

// Catalog yields the ordered sections to run for a work type and subject.
type Catalog func(workType domain.WorkType, subjectName string) ([]domain.SectionSpec, error)

type Orchestrator struct {
	provider  answering.Provider
	executor  *executor.Executor
	renderers map[domain.WorkType]Renderer
	catalog   Catalog
	logger    *slog.Logger

	concurrency int
	observer    Observer
	now         func() time.Time
	newID       func() string
}

type Option func(*Orchestrator)

// WithSectionConcurrency runs up to n sections at once. Values below 2 keep
// the strictly sequential default.
func WithSectionConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > MaxSectionConcurrency {
			n = MaxSectionConcurrency
		}
		if n < 1 {
			n = 1
		}
		o.concurrency = n
	}
}

func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) { o.observer = obs }
}

// WithCatalog replaces the built-in section catalogs.
func WithCatalog(c Catalog) Option {
	return func(o *Orchestrator) {
		if c != nil {
			o.catalog = c
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) { o.newID = fn }
}

func New(provider answering.Provider, exec *executor.Executor, renderers map[domain.WorkType]Renderer, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	if exec == nil {
		exec = executor.New(0, logger)
	}
	o := &Orchestrator{
		provider:    provider,
		executor:    exec,
		renderers:   renderers,
		catalog:     catalog.SectionsFor,
		logger:      logger,
		concurrency: 1,
		now:         time.Now,
		newID:       uuid.NewString,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run always returns a record. Validation failures yield a FAILED record
// with no sections; everything else yields COMPLETED, even when every
// section failed or the artifact could not be rendered.
func (o *Orchestrator) Run(ctx context.Context, workType domain.WorkType, req domain.WorkRequest) domain.ResultRecord {
	requestID := o.newID()
	started := o.clock()
	logger := o.logger.With("request_id", requestID, "work_type", workType, "upload_id", req.UploadID, "subject", req.SubjectName)

	ctx, span := tracing.Tracer("pipeline").Start(ctx, "dossier.pipeline.run",
		trace.WithAttributes(
			attribute.String("dossier.request_id", requestID),
			attribute.String("dossier.work_type", string(workType)),
			attribute.String("dossier.upload_id", req.UploadID),
		),
	)
	defer span.End()

	rec := domain.ResultRecord{
		RequestID:   requestID,
		WorkType:    workType,
		SubjectName: req.SubjectName,
		UploadID:    req.UploadID,
		StartedAt:   started,
	}
	obs := o.serialObserver()

	obs.OnState(requestID, StateValidating)
	specs, err := o.validate(workType, req)
	if err != nil {
		tracing.Fail(span, err)
		logger.Error("work request rejected", "err", err)
		rec.Status = domain.StatusFailed
		rec.Error = err.Error()
		o.finish(&rec)
		metrics.RequestsTotal.WithLabelValues(string(workType), string(rec.Status)).Inc()
		obs.OnState(requestID, StateDone)
		return rec
	}

	obs.OnState(requestID, StateRunning)
	logger.Info("running sections", "sections", len(specs), "concurrency", o.concurrency)
	results := o.runSections(ctx, workType, req, specs, requestID, obs, logger)

	var sections domain.Sections
	for _, r := range results {
		sections.Put(r)
	}
	rec.Sections = sections
	rec.SectionsTotal = sections.Len()
	rec.SectionsSucceeded = sections.Succeeded()
	rec.Status = domain.StatusCompleted
	o.finish(&rec)
	span.SetAttributes(
		attribute.Int("dossier.sections_total", rec.SectionsTotal),
		attribute.Int("dossier.sections_succeeded", rec.SectionsSucceeded),
	)

	obs.OnState(requestID, StateRendering)
	ref, err := o.render(ctx, rec)
	if err != nil {
		logger.Error("artifact render failed", "err", err)
		rec.ArtifactError = err.Error()
		metrics.RenderTotal.WithLabelValues(string(workType), "error").Inc()
	} else {
		rec.ArtifactReference = ref
		metrics.RenderTotal.WithLabelValues(string(workType), "ok").Inc()
	}

	metrics.RequestsTotal.WithLabelValues(string(workType), string(rec.Status)).Inc()
	metrics.PipelineDurationSeconds.WithLabelValues(string(workType)).Observe(o.clock().Sub(started).Seconds())
	logger.Info("work request completed",
		"sections_total", rec.SectionsTotal,
		"sections_succeeded", rec.SectionsSucceeded,
		"duration_s", rec.ProcessingDuration,
		"artifact_error", rec.ArtifactError,
	)
	obs.OnState(requestID, StateDone)

	rec.Sections = rec.Sections.Clone()
	return rec
}

func (o *Orchestrator) validate(workType domain.WorkType, req domain.WorkRequest) ([]domain.SectionSpec, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	specs, err := o.catalog(workType, req.SubjectName)
	if err != nil {
		return nil, err
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: %q has no sections", catalog.ErrUnknownWorkType, workType)
	}
	return specs, nil
}

func (o *Orchestrator) runSections(ctx context.Context, workType domain.WorkType, req domain.WorkRequest, specs []domain.SectionSpec, requestID string, obs Observer, logger *slog.Logger) []domain.SectionResult {
	results := make([]domain.SectionResult, len(specs))

	svc, err := o.openSession(ctx, req)
	if err != nil {
		logger.Error("answering session unavailable", "err", err)
		for i, spec := range specs {
			results[i] = domain.FailureResult(spec.Name, fmt.Sprintf("answering session: %v", err), o.clock())
			o.record(workType, spec.Name, results[i], 0)
			obs.OnSection(requestID, i, len(specs), results[i])
		}
		return results
	}

	run := func(i int) {
		spec := specs[i]
		start := o.clock()
		r := o.executor.Execute(ctx, spec, svc, req)
		o.record(workType, spec.Name, r, o.clock().Sub(start))
		results[i] = r
		obs.OnSection(requestID, i, len(specs), r)
	}

	if o.concurrency <= 1 {
		for i := range specs {
			run(i)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i := range specs {
		i := i
		g.Go(func() error {
			run(i)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) openSession(ctx context.Context, req domain.WorkRequest) (svc answering.Service, err error) {
	if o.provider == nil {
		return nil, fmt.Errorf("no answering provider configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return o.provider.Session(ctx, req)
}

func (o *Orchestrator) render(ctx context.Context, rec domain.ResultRecord) (ref *domain.ArtifactReference, err error) {
	r, ok := o.renderers[rec.WorkType]
	if !ok || r == nil {
		return nil, fmt.Errorf("no renderer for work type %s", rec.WorkType)
	}
	ctx, span := tracing.Tracer("pipeline").Start(ctx, "dossier.render")
	defer span.End()
	defer func() {
		if p := recover(); p != nil {
			ref, err = nil, fmt.Errorf("renderer panic: %v", p)
		}
		tracing.Fail(span, err)
	}()
	ref, err = r.Render(ctx, rec)
	if err == nil && ref == nil {
		err = fmt.Errorf("renderer returned no artifact")
	}
	return ref, err
}

func (o *Orchestrator) record(workType domain.WorkType, section string, r domain.SectionResult, took time.Duration) {
	metrics.SectionsTotal.WithLabelValues(string(workType), section, string(r.Kind)).Inc()
	if took > 0 {
		metrics.SectionLatencySeconds.WithLabelValues(string(workType), section).Observe(took.Seconds())
	}
}

func (o *Orchestrator) finish(rec *domain.ResultRecord) {
	rec.FinishedAt = o.clock()
	rec.ProcessingDuration = rec.FinishedAt.Sub(rec.StartedAt).Seconds()
}

func (o *Orchestrator) clock() time.Time {
	return o.now().UTC()
}

func (o *Orchestrator) serialObserver() Observer {
	if o.observer == nil {
		return nopObserver{}
	}
	return &lockedObserver{next: o.observer}
}

type nopObserver struct{}

func (nopObserver) OnState(string, State)                            {}
func (nopObserver) OnSection(string, int, int, domain.SectionResult) {}

type lockedObserver struct {
	mu   sync.Mutex
	next Observer
}

func (l *lockedObserver) OnState(id string, s State) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnState(id, s)
}

func (l *lockedObserver) OnSection(id string, i, n int, r domain.SectionResult) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.next.OnSection(id, i, n, r)
}
