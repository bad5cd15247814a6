package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/osvaldoandrade/dossier/pkg/domain"
	"github.com/osvaldoandrade/dossier/pkg/persistence"
)

// Plugin implements PluginPersistence for in-memory storage
// This is primarily for testing and local runs
type Plugin struct {
	mu        sync.RWMutex
	results   map[string]domain.ResultRecord
	byRequest map[string]string
	uploads   map[string]domain.Upload
	idem      map[string]string
	corpora   map[string]domain.CorpusHandle
	tz        *time.Location
}

// NewPlugin creates a new in-memory persistence plugin
func NewPlugin(config persistence.PluginConfig) (persistence.PluginPersistence, error) {
	return New(config.Timezone), nil
}

// New returns a ready in-memory store.
func New(tz *time.Location) *Plugin {
	if tz == nil {
		tz = time.UTC
	}
	return &Plugin{
		results:   make(map[string]domain.ResultRecord),
		byRequest: make(map[string]string),
		uploads:   make(map[string]domain.Upload),
		idem:      make(map[string]string),
		corpora:   make(map[string]domain.CorpusHandle),
		tz:        tz,
	}
}

func (p *Plugin) ResultStorage() persistence.ResultStorage { return &resultStorage{plugin: p} }
func (p *Plugin) UploadStorage() persistence.UploadStorage { return &uploadStorage{plugin: p} }
func (p *Plugin) CorpusStorage() persistence.CorpusStorage { return &corpusStorage{plugin: p} }

// Health always returns nil for in-memory storage
func (p *Plugin) Health(ctx context.Context) error {
	return nil
}

// Close is a no-op for in-memory storage
func (p *Plugin) Close() error {
	return nil
}

func init() {
	persistence.RegisterProvider("memory", NewPlugin)
}

type resultStorage struct {
	plugin *Plugin
}

func resultKey(wt domain.WorkType, uploadID string) string {
	return fmt.Sprintf("%s:%s", wt, uploadID)
}

func (s *resultStorage) SaveResult(ctx context.Context, rec domain.ResultRecord) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()

	key := resultKey(rec.WorkType, rec.UploadID)
	rec.Sections = rec.Sections.Clone()
	s.plugin.results[key] = rec
	if rec.RequestID != "" {
		s.plugin.byRequest[rec.RequestID] = key
	}
	return nil
}

func (s *resultStorage) GetResult(ctx context.Context, workType domain.WorkType, uploadID string) (*domain.ResultRecord, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()
	return s.get(resultKey(workType, uploadID))
}

func (s *resultStorage) GetResultByRequest(ctx context.Context, requestID string) (*domain.ResultRecord, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()
	key, ok := s.plugin.byRequest[requestID]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return s.get(key)
}

// get must be called with the read lock held.
func (s *resultStorage) get(key string) (*domain.ResultRecord, error) {
	rec, ok := s.plugin.results[key]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	rec.Sections = rec.Sections.Clone()
	return &rec, nil
}

type uploadStorage struct {
	plugin *Plugin
}

func (s *uploadStorage) SaveUpload(ctx context.Context, u domain.Upload) error {
	if u.UploadID == "" {
		return fmt.Errorf("upload id required")
	}
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().In(s.plugin.tz)
	}
	u.WorkTypes = append([]domain.WorkType(nil), u.WorkTypes...)
	s.plugin.uploads[u.UploadID] = u
	return nil
}

func (s *uploadStorage) GetUpload(ctx context.Context, uploadID string) (*domain.Upload, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()
	u, ok := s.plugin.uploads[uploadID]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	u.WorkTypes = append([]domain.WorkType(nil), u.WorkTypes...)
	return &u, nil
}

func (s *uploadStorage) ClaimIdempotencyKey(ctx context.Context, key, uploadID string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("idempotency key required")
	}
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	if owner, ok := s.plugin.idem[key]; ok {
		if _, live := s.plugin.uploads[owner]; live {
			return owner, nil
		}
	}
	s.plugin.idem[key] = uploadID
	return uploadID, nil
}

func (s *uploadStorage) ReleaseIdempotencyKey(ctx context.Context, key string) error {
	s.plugin.mu.Lock()
	delete(s.plugin.idem, key)
	s.plugin.mu.Unlock()
	return nil
}

type corpusStorage struct {
	plugin *Plugin
}

func (s *corpusStorage) PutCorpus(ctx context.Context, h domain.CorpusHandle) error {
	s.plugin.mu.Lock()
	defer s.plugin.mu.Unlock()
	if h.UpdatedAt.IsZero() {
		h.UpdatedAt = time.Now().In(s.plugin.tz)
	}
	s.plugin.corpora[h.Subject] = h
	return nil
}

func (s *corpusStorage) GetCorpus(ctx context.Context, subject string) (*domain.CorpusHandle, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()
	h, ok := s.plugin.corpora[subject]
	if !ok {
		return nil, persistence.ErrNotFound
	}
	return &h, nil
}

func (s *corpusStorage) ListCorpora(ctx context.Context) ([]domain.CorpusHandle, error) {
	s.plugin.mu.RLock()
	defer s.plugin.mu.RUnlock()
	out := make([]domain.CorpusHandle, 0, len(s.plugin.corpora))
	for _, h := range s.plugin.corpora {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out, nil
}
