package redis

import (
	"context"

	"github.com/osvaldoandrade/dossier/internal/repository"
	"github.com/osvaldoandrade/dossier/pkg/domain"
	"github.com/osvaldoandrade/dossier/pkg/persistence"
)

// The repositories signal absence with a "not-found" error; the adapters
// translate it to persistence.ErrNotFound.
func translate(err error) error {
	if err != nil && err.Error() == "not-found" {
		return persistence.ErrNotFound
	}
	return err
}

type resultStorageAdapter struct {
	repo repository.ResultRepository
}

func (a *resultStorageAdapter) SaveResult(ctx context.Context, rec domain.ResultRecord) error {
	return a.repo.SaveResult(ctx, rec)
}

func (a *resultStorageAdapter) GetResult(ctx context.Context, workType domain.WorkType, uploadID string) (*domain.ResultRecord, error) {
	rec, err := a.repo.GetResult(ctx, workType, uploadID)
	return rec, translate(err)
}

func (a *resultStorageAdapter) GetResultByRequest(ctx context.Context, requestID string) (*domain.ResultRecord, error) {
	rec, err := a.repo.GetResultByRequest(ctx, requestID)
	return rec, translate(err)
}

type uploadStorageAdapter struct {
	repo repository.UploadRepository
}

func (a *uploadStorageAdapter) SaveUpload(ctx context.Context, u domain.Upload) error {
	return a.repo.SaveUpload(ctx, u)
}

func (a *uploadStorageAdapter) GetUpload(ctx context.Context, uploadID string) (*domain.Upload, error) {
	u, err := a.repo.GetUpload(ctx, uploadID)
	return u, translate(err)
}

func (a *uploadStorageAdapter) ClaimIdempotencyKey(ctx context.Context, key, uploadID string) (string, error) {
	return a.repo.ClaimIdempotencyKey(ctx, key, uploadID)
}

func (a *uploadStorageAdapter) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	return a.repo.ReleaseIdempotencyKey(ctx, key)
}

type corpusStorageAdapter struct {
	repo repository.CorpusRepository
}

func (a *corpusStorageAdapter) PutCorpus(ctx context.Context, h domain.CorpusHandle) error {
	return a.repo.PutCorpus(ctx, h)
}

func (a *corpusStorageAdapter) GetCorpus(ctx context.Context, subject string) (*domain.CorpusHandle, error) {
	h, err := a.repo.GetCorpus(ctx, subject)
	return h, translate(err)
}

func (a *corpusStorageAdapter) ListCorpora(ctx context.Context) ([]domain.CorpusHandle, error) {
	return a.repo.ListCorpora(ctx)
}
