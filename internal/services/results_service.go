package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/osvaldoandrade/dossier/internal/providers"
	"github.com/osvaldoandrade/dossier/pkg/domain"
	"github.com/osvaldoandrade/dossier/pkg/persistence"
)

var (
	ErrUploadNotFound       = errors.New("upload not found")
	ErrResultNotFound       = errors.New("result not found")
	ErrWorkTypeNotRequested = errors.New("work type not requested for upload")
)

// ResultsService answers status polls and result lookups for uploads.
type ResultsService interface {
	Status(ctx context.Context, workType domain.WorkType, uploadID string) (*domain.StatusResponse, error)
	Get(ctx context.Context, workType domain.WorkType, uploadID string) (*domain.ResultRecord, error)
	GetByRequest(ctx context.Context, requestID string) (*domain.ResultRecord, error)
}

type resultsService struct {
	results        persistence.ResultStorage
	uploads        persistence.UploadStorage
	uploader       providers.Uploader
	expectedImages int
}

// NewResultsService checks artifact presence through uploader. expectedImages
// is the number of deck pages an infographic must have to count as done.
func NewResultsService(results persistence.ResultStorage, uploads persistence.UploadStorage, uploader providers.Uploader, expectedImages int) ResultsService {
	if expectedImages <= 0 {
		expectedImages = 3
	}
	return &resultsService{results: results, uploads: uploads, uploader: uploader, expectedImages: expectedImages}
}

// Status reports completed once every deterministic artifact key exists, and
// failed when the stored record carries no artifact.
func (s *resultsService) Status(ctx context.Context, workType domain.WorkType, uploadID string) (*domain.StatusResponse, error) {
	u, err := s.upload(ctx, uploadID)
	if err != nil {
		return nil, err
	}
	if !u.Has(workType) {
		return nil, fmt.Errorf("%w: %s", ErrWorkTypeNotRequested, workType)
	}

	resp := &domain.StatusResponse{
		UploadID:    uploadID,
		WorkType:    workType,
		SubjectName: u.SubjectName,
		Status:      domain.ArtifactProcessing,
	}
	keys := domain.ArtifactKeys(workType, u.SubjectName, uploadID, s.expectedImages)
	urls := make([]string, 0, len(keys))
	for _, k := range keys {
		ok, err := s.uploader.Exists(ctx, k)
		if err != nil {
			return nil, fmt.Errorf("check artifact %s: %w", k, err)
		}
		if !ok {
			urls = nil
			break
		}
		urls = append(urls, s.uploader.URL(k))
	}
	if len(keys) > 0 && len(urls) == len(keys) {
		resp.Status = domain.ArtifactCompleted
		if workType == domain.WorkTypeReport {
			resp.URL = urls[0]
		} else {
			resp.URLs = urls
		}
		return resp, nil
	}

	rec, err := s.results.GetResult(ctx, workType, uploadID)
	if err == nil && rec != nil {
		switch {
		case rec.Status == domain.StatusFailed:
			resp.Status, resp.Error = domain.ArtifactFailed, rec.Error
		case rec.ArtifactReference == nil:
			resp.Status, resp.Error = domain.ArtifactFailed, rec.ArtifactError
		default:
			// A deck with fewer pages than expected never fills every key.
			resp.Status = domain.ArtifactCompleted
			resp.URL, resp.URLs = rec.ArtifactReference.URL, rec.ArtifactReference.URLs
		}
	} else if err != nil && !errors.Is(err, persistence.ErrNotFound) {
		return nil, err
	}
	return resp, nil
}

func (s *resultsService) Get(ctx context.Context, workType domain.WorkType, uploadID string) (*domain.ResultRecord, error) {
	rec, err := s.results.GetResult(ctx, workType, uploadID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrResultNotFound
	}
	return rec, err
}

func (s *resultsService) GetByRequest(ctx context.Context, requestID string) (*domain.ResultRecord, error) {
	rec, err := s.results.GetResultByRequest(ctx, requestID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrResultNotFound
	}
	return rec, err
}

func (s *resultsService) upload(ctx context.Context, uploadID string) (*domain.Upload, error) {
	u, err := s.uploads.GetUpload(ctx, uploadID)
	if errors.Is(err, persistence.ErrNotFound) {
		return nil, ErrUploadNotFound
	}
	return u, err
}
