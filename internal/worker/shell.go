// Package worker is the delivery shell: it pulls WorkRequests off each
// pipeline's input queue, runs them on a bounded pool and ships the records.
package worker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/osvaldoandrade/dossier/internal/metrics"
	"github.com/osvaldoandrade/dossier/internal/tracing"
	"github.com/osvaldoandrade/dossier/internal/transport"
	"github.com/osvaldoandrade/dossier/pkg/domain"
	"github.com/osvaldoandrade/dossier/pkg/persistence"

	"github.com/google/uuid"
)

const (
	dropInvalidJSON   = "invalid_json"
	dropMissingFields = "missing_fields"
	dropDuplicate     = "duplicate"
)

// Runner executes one request to a record. *pipeline.Orchestrator satisfies it.
type Runner interface {
	Run(ctx context.Context, workType domain.WorkType, req domain.WorkRequest) domain.ResultRecord
}

type RunnerFunc func(ctx context.Context, workType domain.WorkType, req domain.WorkRequest) domain.ResultRecord

func (f RunnerFunc) Run(ctx context.Context, workType domain.WorkType, req domain.WorkRequest) domain.ResultRecord {
	return f(ctx, workType, req)
}

// Callback is notified with every finished record whose upload is known.
type Callback interface {
	Send(ctx context.Context, upload domain.Upload, rec domain.ResultRecord)
}

// Pipeline binds a work type to the consumer of its input queue and the
// topic its records are published on.
type Pipeline struct {
	WorkType    domain.WorkType
	Consumer    transport.Consumer
	OutputTopic string
}

type Options struct {
	MaxWorkers     int
	RequestTimeout time.Duration
	// RetryDelay is the pause after a failed Receive.
	RetryDelay time.Duration
	Uploads    persistence.UploadStorage
	Callback   Callback
}

type Shell struct {
	runner    Runner
	pipelines []Pipeline
	results   persistence.ResultStorage
	publisher transport.Publisher
	logger    *slog.Logger

	uploads    persistence.UploadStorage
	callback   Callback
	timeout    time.Duration
	retryDelay time.Duration
	sem        chan struct{}
	now        func() time.Time

	// inflight holds the body digests of requests whose worker is running.
	inflightMu sync.Mutex
	inflight   map[string]struct{}

	startOnce sync.Once
	stopOnce  sync.Once
	loops     sync.WaitGroup
	workers   sync.WaitGroup
	loopCtx   context.Context
	stopLoops context.CancelFunc
	workCtx   context.Context
	stopWork  context.CancelFunc
}

func New(runner Runner, pipelines []Pipeline, results persistence.ResultStorage, publisher transport.Publisher, logger *slog.Logger, opts Options) *Shell {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 1800 * time.Second
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}
	return &Shell{
		runner:     runner,
		pipelines:  pipelines,
		results:    results,
		publisher:  publisher,
		logger:     logger,
		uploads:    opts.Uploads,
		callback:   opts.Callback,
		timeout:    opts.RequestTimeout,
		retryDelay: opts.RetryDelay,
		sem:        make(chan struct{}, opts.MaxWorkers),
		inflight:   make(map[string]struct{}),
		now:        time.Now,
	}
}

// Start launches one receive loop per pipeline. Workers outlive ctx; only
// Stop ends them.
func (s *Shell) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		s.loopCtx, s.stopLoops = context.WithCancel(ctx)
		s.workCtx, s.stopWork = context.WithCancel(context.WithoutCancel(ctx))
		for _, p := range s.pipelines {
			s.loops.Add(1)
			go s.receiveLoop(s.loopCtx, p)
		}
		s.logger.Info("worker shell started", "pipelines", len(s.pipelines), "max_workers", cap(s.sem))
	})
}

// Stop ends the receive loops, closes the consumers and waits for running
// workers. When ctx expires first the workers are cancelled, still awaited,
// and ctx.Err() is returned.
func (s *Shell) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if s.stopLoops == nil {
			return
		}
		s.stopLoops()
		s.loops.Wait()
		for _, p := range s.pipelines {
			if cerr := p.Consumer.Close(); cerr != nil {
				s.logger.Warn("consumer close failed", "work_type", p.WorkType, "err", cerr)
			}
		}

		done := make(chan struct{})
		go func() {
			s.workers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			s.logger.Warn("drain deadline reached, cancelling workers")
			s.stopWork()
			<-done
			err = ctx.Err()
		}
		s.stopWork()
		s.logger.Info("worker shell stopped")
	})
	return err
}

func (s *Shell) receiveLoop(ctx context.Context, p Pipeline) {
	defer s.loops.Done()
	logger := s.logger.With("work_type", p.WorkType)

	for {
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return
		}

		d, err := p.Consumer.Receive(ctx)
		if err != nil {
			<-s.sem
			if ctx.Err() != nil || errors.Is(err, transport.ErrClosed) {
				return
			}
			logger.Error("receive failed", "err", err)
			if !sleep(ctx, s.retryDelay) {
				return
			}
			continue
		}

		req, reason, err := decode(d.Body)
		if err != nil {
			<-s.sem
			logger.Error("dropping message", "reason", reason, "err", err)
			metrics.MessagesDroppedTotal.WithLabelValues(string(p.WorkType), reason).Inc()
			if aerr := d.Ack(ctx); aerr != nil {
				logger.Warn("ack failed", "err", aerr)
			}
			continue
		}

		key := inflightKey(p.WorkType, d.Body)
		if !s.claim(key) {
			<-s.sem
			logger.Warn("dropping redelivery of a running request", "upload_id", req.UploadID)
			metrics.MessagesDroppedTotal.WithLabelValues(string(p.WorkType), dropDuplicate).Inc()
			if aerr := d.Ack(ctx); aerr != nil {
				logger.Warn("ack failed", "err", aerr)
			}
			continue
		}

		s.workers.Add(1)
		go s.work(p, req, key)

		// The worker owns the request from here on.
		if err := d.Ack(ctx); err != nil {
			logger.Warn("ack failed", "upload_id", req.UploadID, "err", err)
		}
	}
}

func decode(body []byte) (domain.WorkRequest, string, error) {
	var req domain.WorkRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, dropInvalidJSON, err
	}
	if err := req.Validate(); err != nil {
		return req, dropMissingFields, err
	}
	return req, "", nil
}

func (s *Shell) work(p Pipeline, req domain.WorkRequest, key string) {
	defer s.workers.Done()
	defer s.release(key)
	defer func() { <-s.sem }()
	metrics.WorkersBusy.Inc()
	defer metrics.WorkersBusy.Dec()

	logger := s.logger.With("work_type", p.WorkType, "upload_id", req.UploadID, "subject", req.SubjectName)

	ctx := s.workCtx
	upload := s.lookupUpload(ctx, req.UploadID, logger)
	if upload != nil {
		ctx = tracing.Resume(ctx, *upload)
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	rec := s.run(ctx, p.WorkType, req, logger)

	out := context.WithoutCancel(ctx)
	s.deliver(out, p, rec, logger)
	if upload != nil && s.callback != nil {
		s.callback.Send(out, *upload, rec)
	}
}

func (s *Shell) run(ctx context.Context, wt domain.WorkType, req domain.WorkRequest, logger *slog.Logger) (rec domain.ResultRecord) {
	started := s.now().UTC()
	defer func() {
		if r := recover(); r != nil {
			logger.Error("worker panic", "panic", r)
			finished := s.now().UTC()
			rec = domain.ResultRecord{
				RequestID:          uuid.NewString(),
				WorkType:           wt,
				SubjectName:        req.SubjectName,
				UploadID:           req.UploadID,
				Status:             domain.StatusFailed,
				StartedAt:          started,
				FinishedAt:         finished,
				ProcessingDuration: finished.Sub(started).Seconds(),
				Error:              fmt.Sprintf("panic: %v", r),
			}
			metrics.RequestsTotal.WithLabelValues(string(wt), string(rec.Status)).Inc()
		}
	}()
	return s.runner.Run(ctx, wt, req)
}

func (s *Shell) deliver(ctx context.Context, p Pipeline, rec domain.ResultRecord, logger *slog.Logger) {
	logger = logger.With("request_id", rec.RequestID, "status", rec.Status)
	if s.results != nil {
		if err := s.results.SaveResult(ctx, rec); err != nil {
			logger.Error("persist record failed", "err", err)
		}
	}
	body, err := json.Marshal(rec)
	if err != nil {
		logger.Error("encode record failed", "err", err)
		return
	}
	if err := s.publisher.Publish(ctx, p.OutputTopic, body); err != nil {
		logger.Error("publish record failed", "topic", p.OutputTopic, "err", err)
		return
	}
	logger.Info("record published", "topic", p.OutputTopic)
}

// inflightKey identifies a message by its exact body. A re-submission that
// changes any field is a different request.
func inflightKey(wt domain.WorkType, body []byte) string {
	sum := sha256.Sum256(body)
	return string(wt) + "/" + hex.EncodeToString(sum[:])
}

// claim marks key as running. It fails while an identical message is still
// being worked on; once that worker finishes the same message runs again.
func (s *Shell) claim(key string) bool {
	s.inflightMu.Lock()
	defer s.inflightMu.Unlock()
	if _, ok := s.inflight[key]; ok {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Shell) release(key string) {
	s.inflightMu.Lock()
	delete(s.inflight, key)
	s.inflightMu.Unlock()
}

func (s *Shell) lookupUpload(ctx context.Context, uploadID string, logger *slog.Logger) *domain.Upload {
	if s.uploads == nil {
		return nil
	}
	u, err := s.uploads.GetUpload(ctx, uploadID)
	if err != nil {
		if !errors.Is(err, persistence.ErrNotFound) {
			logger.Warn("upload lookup failed", "err", err)
		}
		return nil
	}
	return u
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
