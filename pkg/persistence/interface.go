package persistence

import (
	"context"
	"errors"

	"github.com/osvaldoandrade/dossier/pkg/domain"
)

var (
	// ErrNotFound is returned when a key does not exist
	ErrNotFound = errors.New("not found")
)

// PluginPersistence provides storage operations for persistence plugins.
type PluginPersistence interface {
	ResultStorage() ResultStorage
	UploadStorage() UploadStorage
	CorpusStorage() CorpusStorage

	// Health checks if the persistence backend is healthy
	Health(ctx context.Context) error

	// Close releases resources held by the persistence backend
	Close() error
}

// ResultStorage keeps the latest ResultRecord per work type and upload.
type ResultStorage interface {
	SaveResult(ctx context.Context, rec domain.ResultRecord) error
	GetResult(ctx context.Context, workType domain.WorkType, uploadID string) (*domain.ResultRecord, error)
	GetResultByRequest(ctx context.Context, requestID string) (*domain.ResultRecord, error)
}

// UploadStorage indexes submitted uploads by id.
type UploadStorage interface {
	SaveUpload(ctx context.Context, u domain.Upload) error
	GetUpload(ctx context.Context, uploadID string) (*domain.Upload, error)
	// ClaimIdempotencyKey binds key to uploadID if no live upload owns it
	// and returns the owning upload id either way.
	ClaimIdempotencyKey(ctx context.Context, key, uploadID string) (string, error)
	ReleaseIdempotencyKey(ctx context.Context, key string) error
}

// CorpusStorage maps subject names to corpus resource names.
type CorpusStorage interface {
	PutCorpus(ctx context.Context, h domain.CorpusHandle) error
	GetCorpus(ctx context.Context, subject string) (*domain.CorpusHandle, error)
	ListCorpora(ctx context.Context) ([]domain.CorpusHandle, error)
}
