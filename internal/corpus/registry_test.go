package corpus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/osvaldoandrade/dossier/pkg/domain"
	"github.com/osvaldoandrade/dossier/pkg/persistence"
	"github.com/osvaldoandrade/dossier/pkg/persistence/memory"
)

const fullName = "projects/p1/locations/us-central1/ragCorpora/123"

type countingStore struct {
	persistence.CorpusStorage
	mu   sync.Mutex
	gets int
}

func (c *countingStore) GetCorpus(ctx context.Context, subject string) (*domain.CorpusHandle, error) {
	c.mu.Lock()
	c.gets++
	c.mu.Unlock()
	return c.CorpusStorage.GetCorpus(ctx, subject)
}

func TestResolveResourceNameUnchanged(t *testing.T) {
	r := NewRegistry(nil, nil)
	got, err := r.Resolve(context.Background(), fullName)
	if err != nil || got != fullName {
		t.Fatalf("Resolve = %q, %v", got, err)
	}
}

func TestResolveRegisteredSubject(t *testing.T) {
	ctx := context.Background()
	store := &countingStore{CorpusStorage: memory.New(time.UTC).CorpusStorage()}
	_ = store.PutCorpus(ctx, domain.CorpusHandle{Subject: "acme", ResourceName: fullName})

	r := NewRegistry(store, nil)
	for i := 0; i < 3; i++ {
		got, err := r.Resolve(ctx, "acme")
		if err != nil || got != fullName {
			t.Fatalf("Resolve = %q, %v", got, err)
		}
	}
	if store.gets != 1 {
		t.Fatalf("expected one store lookup, got %d", store.gets)
	}
}

func TestResolveUnknownSubjectFallsThrough(t *testing.T) {
	r := NewRegistry(memory.New(time.UTC).CorpusStorage(), nil)
	got, err := r.Resolve(context.Background(), "unknown-co")
	if err != nil || got != "unknown-co" {
		t.Fatalf("Resolve = %q, %v", got, err)
	}
	if _, err := r.Resolve(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty reference")
	}
}

func TestRegisterUpdatesCacheAndStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New(time.UTC).CorpusStorage()
	r := NewRegistry(store, nil)

	if _, err := r.Register(ctx, "", fullName); err == nil {
		t.Fatal("expected validation error")
	}
	if _, err := r.Register(ctx, "acme", fullName); err != nil {
		t.Fatalf("Register: %v", err)
	}
	stored, err := store.GetCorpus(ctx, "acme")
	if err != nil || stored.ResourceName != fullName {
		t.Fatalf("store not updated: %+v %v", stored, err)
	}
	h, err := r.Get(ctx, "acme")
	if err != nil || h.ResourceName != fullName {
		t.Fatalf("Get: %+v %v", h, err)
	}
	if _, err := r.Get(ctx, "nobody"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	list, _ := r.List(ctx)
	if len(list) != 1 {
		t.Fatalf("List: %+v", list)
	}
}

func TestConcurrentResolveAndRegister(t *testing.T) {
	ctx := context.Background()
	r := NewRegistry(memory.New(time.UTC).CorpusStorage(), nil)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = r.Register(ctx, "acme", fullName)
		}()
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(ctx, "acme"); err != nil {
				t.Errorf("Resolve: %v", err)
			}
		}()
	}
	wg.Wait()
}
