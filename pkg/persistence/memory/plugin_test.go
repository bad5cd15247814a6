package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osvaldoandrade/dossier/pkg/domain"
	"github.com/osvaldoandrade/dossier/pkg/persistence"
)

func TestMemoryPlugin(t *testing.T) {
	plugin, err := persistence.NewPersistence(
		persistence.ProviderConfig{Type: "memory", Config: []byte("{}")},
		persistence.PluginConfig{Timezone: time.UTC},
	)
	if err != nil {
		t.Fatalf("Failed to create plugin: %v", err)
	}
	defer plugin.Close()

	ctx := context.Background()
	if err := plugin.Health(ctx); err != nil {
		t.Errorf("Health check failed: %v", err)
	}

	results := plugin.ResultStorage()
	now := time.Now().UTC()
	var sections domain.Sections
	sections.Put(domain.TextResult("company_overview", "text", now))
	rec := domain.ResultRecord{
		RequestID: "r1",
		WorkType:  domain.WorkTypeReport,
		UploadID:  "u1",
		Status:    domain.StatusCompleted,
		Sections:  sections,
	}
	if err := results.SaveResult(ctx, rec); err != nil {
		t.Fatalf("SaveResult failed: %v", err)
	}

	// mutating the caller's copy must not leak into the store
	sections.Put(domain.FailureResult("company_overview", "changed", now))

	got, err := results.GetResult(ctx, domain.WorkTypeReport, "u1")
	if err != nil {
		t.Fatalf("GetResult failed: %v", err)
	}
	if r, _ := got.Sections.Get("company_overview"); r.Kind != domain.KindText {
		t.Errorf("stored record was mutated: %+v", r)
	}
	if _, err := results.GetResultByRequest(ctx, "r1"); err != nil {
		t.Errorf("GetResultByRequest failed: %v", err)
	}
	if _, err := results.GetResult(ctx, domain.WorkTypeInfographic, "u1"); !errors.Is(err, persistence.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryUploadsAndCorpora(t *testing.T) {
	p := New(time.UTC)
	ctx := context.Background()

	if err := p.UploadStorage().SaveUpload(ctx, domain.Upload{UploadID: "u1", SubjectName: "acme"}); err != nil {
		t.Fatalf("SaveUpload: %v", err)
	}
	u, err := p.UploadStorage().GetUpload(ctx, "u1")
	if err != nil || u.SubjectName != "acme" || u.CreatedAt.IsZero() {
		t.Fatalf("GetUpload: %+v %v", u, err)
	}
	if _, err := p.UploadStorage().GetUpload(ctx, "u2"); !errors.Is(err, persistence.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_ = p.CorpusStorage().PutCorpus(ctx, domain.CorpusHandle{Subject: "b", ResourceName: "rb"})
	_ = p.CorpusStorage().PutCorpus(ctx, domain.CorpusHandle{Subject: "a", ResourceName: "ra"})
	list, _ := p.CorpusStorage().ListCorpora(ctx)
	if len(list) != 2 || list[0].Subject != "a" {
		t.Fatalf("unexpected corpora: %+v", list)
	}
	h, err := p.CorpusStorage().GetCorpus(ctx, "b")
	if err != nil || h.ResourceName != "rb" {
		t.Fatalf("GetCorpus: %+v %v", h, err)
	}
}

func TestMemoryIdempotencyKeys(t *testing.T) {
	ctx := context.Background()
	uploads := New(time.UTC).UploadStorage()

	if err := uploads.SaveUpload(ctx, domain.Upload{UploadID: "u1", SubjectName: "acme"}); err != nil {
		t.Fatal(err)
	}
	if owner, err := uploads.ClaimIdempotencyKey(ctx, "k", "u1"); err != nil || owner != "u1" {
		t.Fatalf("claim = %q, %v", owner, err)
	}
	if owner, _ := uploads.ClaimIdempotencyKey(ctx, "k", "u2"); owner != "u1" {
		t.Fatalf("second claim owner = %q, want u1", owner)
	}
	_ = uploads.ReleaseIdempotencyKey(ctx, "k")
	if owner, _ := uploads.ClaimIdempotencyKey(ctx, "k", "u2"); owner != "u2" {
		t.Fatalf("claim after release owner = %q, want u2", owner)
	}
	if _, err := uploads.ClaimIdempotencyKey(ctx, "", "u3"); err == nil {
		t.Fatal("expected error for empty key")
	}
}
