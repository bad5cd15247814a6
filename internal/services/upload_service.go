package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/osvaldoandrade/dossier/internal/tracing"
	"github.com/osvaldoandrade/dossier/internal/transport"
	"github.com/osvaldoandrade/dossier/pkg/domain"
	"github.com/osvaldoandrade/dossier/pkg/persistence"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrInvalidUpload    = errors.New("invalid upload")
	ErrPipelineDisabled = errors.New("pipeline not enabled")
)

// UploadService registers uploads and enqueues one WorkRequest per requested
// work type.
type UploadService interface {
	Submit(ctx context.Context, req domain.SubmitUploadRequest) (*domain.Upload, error)
	Get(ctx context.Context, uploadID string) (*domain.Upload, error)
}

type uploadService struct {
	uploads   persistence.UploadStorage
	publisher transport.Publisher
	queues    map[domain.WorkType]string
	logger    *slog.Logger
	now       func() time.Time
	newID     func() string
}

// NewUploadService takes the input queue name of every enabled pipeline.
func NewUploadService(uploads persistence.UploadStorage, publisher transport.Publisher, queues map[domain.WorkType]string, logger *slog.Logger, now func() time.Time) UploadService {
	if logger == nil {
		logger = slog.Default()
	}
	if now == nil {
		now = time.Now
	}
	return &uploadService{
		uploads:   uploads,
		publisher: publisher,
		queues:    queues,
		logger:    logger,
		now:       now,
		newID:     uuid.NewString,
	}
}

func (s *uploadService) Submit(ctx context.Context, req domain.SubmitUploadRequest) (*domain.Upload, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidUpload, err)
	}
	for _, wt := range req.WorkTypes {
		if _, ok := s.queues[wt]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrPipelineDisabled, wt)
		}
	}

	u := domain.Upload{
		UploadID:        s.newID(),
		SubjectName:     req.SubjectName,
		CorpusReference: req.CorpusReference,
		WorkTypes:       req.WorkTypes,
		Webhook:         req.Webhook,
		IdempotencyKey:  req.IdempotencyKey,
		CreatedAt:       s.now().UTC(),
	}

	ctx, span := tracing.Tracer("uploads").Start(ctx, "dossier.upload.submit",
		trace.WithAttributes(
			attribute.String("dossier.upload_id", u.UploadID),
			attribute.String("dossier.subject", u.SubjectName),
			attribute.Int("dossier.work_types", len(u.WorkTypes)),
		),
	)
	defer span.End()
	tracing.Stamp(ctx, &u)

	if err := s.uploads.SaveUpload(ctx, u); err != nil {
		tracing.Fail(span, err)
		return nil, fmt.Errorf("save upload: %w", err)
	}
	if u.IdempotencyKey != "" {
		owner, err := s.uploads.ClaimIdempotencyKey(ctx, u.IdempotencyKey, u.UploadID)
		if err != nil {
			tracing.Fail(span, err)
			return nil, fmt.Errorf("claim idempotency key: %w", err)
		}
		if owner != u.UploadID {
			existing, err := s.uploads.GetUpload(ctx, owner)
			if err != nil {
				tracing.Fail(span, err)
				return nil, fmt.Errorf("load upload %s: %w", owner, err)
			}
			s.logger.Info("idempotent resubmission", "upload_id", owner, "idempotency_key", u.IdempotencyKey)
			return existing, nil
		}
	}

	body, err := json.Marshal(u.Request())
	if err != nil {
		return nil, err
	}
	for _, wt := range u.WorkTypes {
		if err := s.publisher.Publish(ctx, s.queues[wt], body); err != nil {
			if u.IdempotencyKey != "" {
				_ = s.uploads.ReleaseIdempotencyKey(context.WithoutCancel(ctx), u.IdempotencyKey)
			}
			tracing.Fail(span, err)
			return nil, fmt.Errorf("enqueue %s: %w", wt, err)
		}
	}
	s.logger.Info("upload registered", "upload_id", u.UploadID, "subject", u.SubjectName, "work_types", u.WorkTypes)
	return &u, nil
}

func (s *uploadService) Get(ctx context.Context, uploadID string) (*domain.Upload, error) {
	u, err := s.uploads.GetUpload(ctx, uploadID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrUploadNotFound
	}
	return u, err
}
