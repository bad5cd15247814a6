// Package corpus resolves corpus references to backend resource names.
package corpus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/osvaldoandrade/dossier/pkg/domain"
	"github.com/osvaldoandrade/dossier/pkg/persistence"
)

// resourcePrefix marks a fully qualified Vertex RAG corpus name.
const resourcePrefix = "projects/"

// Registry maps subject names to corpus resource names. It is created once
// per process and shared by pointer. Reads hit the in-process cache first and
// fall back to the store; writes are serialized by mu.
type Registry struct {
	store  persistence.CorpusStorage
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[string]domain.CorpusHandle
}

func NewRegistry(store persistence.CorpusStorage, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{store: store, logger: logger, cache: make(map[string]domain.CorpusHandle)}
}

// IsResourceName reports whether ref is already a full corpus resource name.
func IsResourceName(ref string) bool {
	return strings.HasPrefix(ref, resourcePrefix) && strings.Contains(ref, "/ragCorpora/")
}

// Resolve returns the resource name for ref. Full resource names are returned
// unchanged; anything else is treated as a subject name. A subject with no
// registration resolves to itself so the backend can report the problem.
func (r *Registry) Resolve(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.New("empty corpus reference")
	}
	if IsResourceName(ref) {
		return ref, nil
	}

	r.mu.RLock()
	h, ok := r.cache[ref]
	r.mu.RUnlock()
	if ok {
		return h.ResourceName, nil
	}
	if r.store == nil {
		return ref, nil
	}

	stored, err := r.store.GetCorpus(ctx, ref)
	if errors.Is(err, persistence.ErrNotFound) {
		r.logger.Debug("corpus not registered, using reference as is", "corpus_reference", ref)
		return ref, nil
	}
	if err != nil {
		return "", fmt.Errorf("lookup corpus %s: %w", ref, err)
	}

	r.mu.Lock()
	r.cache[ref] = *stored
	r.mu.Unlock()
	return stored.ResourceName, nil
}

// Register records subject -> resourceName in the store and the cache.
func (r *Registry) Register(ctx context.Context, subject, resourceName string) (domain.CorpusHandle, error) {
	subject = strings.TrimSpace(subject)
	resourceName = strings.TrimSpace(resourceName)
	if subject == "" || resourceName == "" {
		return domain.CorpusHandle{}, errors.New("subject and resource name are required")
	}
	h := domain.CorpusHandle{Subject: subject, ResourceName: resourceName, UpdatedAt: time.Now().UTC()}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.store != nil {
		if err := r.store.PutCorpus(ctx, h); err != nil {
			return domain.CorpusHandle{}, fmt.Errorf("store corpus %s: %w", subject, err)
		}
	}
	r.cache[subject] = h
	r.logger.Info("corpus registered", "subject", subject, "resource", resourceName)
	return h, nil
}

// Get returns the registration for subject, if any.
func (r *Registry) Get(ctx context.Context, subject string) (*domain.CorpusHandle, error) {
	r.mu.RLock()
	h, ok := r.cache[subject]
	r.mu.RUnlock()
	if ok {
		return &h, nil
	}
	if r.store == nil {
		return nil, persistence.ErrNotFound
	}
	return r.store.GetCorpus(ctx, subject)
}

func (r *Registry) List(ctx context.Context) ([]domain.CorpusHandle, error) {
	if r.store == nil {
		r.mu.RLock()
		defer r.mu.RUnlock()
		out := make([]domain.CorpusHandle, 0, len(r.cache))
		for _, h := range r.cache {
			out = append(out, h)
		}
		return out, nil
	}
	return r.store.ListCorpora(ctx)
}
