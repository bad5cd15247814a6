package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/osvaldoandrade/dossier/internal/providers"
	"github.com/osvaldoandrade/dossier/internal/ratelimit"
	"github.com/osvaldoandrade/dossier/pkg/domain"
	"github.com/osvaldoandrade/dossier/pkg/persistence/memory"
)

var zeroBucket = ratelimit.Bucket{}

func seedUpload(t *testing.T, store *memory.Plugin, wts ...domain.WorkType) domain.Upload {
	t.Helper()
	u := domain.Upload{UploadID: "up-1", SubjectName: "acme", CorpusReference: "acme", WorkTypes: wts, CreatedAt: time.Now().UTC()}
	if err := store.UploadStorage().SaveUpload(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func TestResultsServiceStatus_Report(t *testing.T) {
	ctx := context.Background()
	store := memory.New(time.UTC)
	up := providers.NewLocalUploader(t.TempDir())
	seedUpload(t, store, domain.WorkTypeReport)
	svc := NewResultsService(store.ResultStorage(), store.UploadStorage(), up, 3)

	st, err := svc.Status(ctx, domain.WorkTypeReport, "up-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != domain.ArtifactProcessing || st.URL != "" {
		t.Fatalf("before artifact: %+v", st)
	}

	if _, err := up.UploadBytes(ctx, domain.ReportKey("acme", "up-1"), "application/pdf", []byte("%PDF")); err != nil {
		t.Fatal(err)
	}
	st, err = svc.Status(ctx, domain.WorkTypeReport, "up-1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != domain.ArtifactCompleted || st.URL != up.URL(domain.ReportKey("acme", "up-1")) {
		t.Fatalf("after artifact: %+v", st)
	}
}

func TestResultsServiceStatus_InfographicNeedsEveryPage(t *testing.T) {
	ctx := context.Background()
	store := memory.New(time.UTC)
	up := providers.NewLocalUploader(t.TempDir())
	seedUpload(t, store, domain.WorkTypeInfographic)
	svc := NewResultsService(store.ResultStorage(), store.UploadStorage(), up, 3)

	for i := 1; i <= 2; i++ {
		if _, err := up.UploadBytes(ctx, domain.ImageKey("acme", "up-1", i), "image/png", []byte("png")); err != nil {
			t.Fatal(err)
		}
	}
	st, _ := svc.Status(ctx, domain.WorkTypeInfographic, "up-1")
	if st.Status != domain.ArtifactProcessing {
		t.Fatalf("partial deck reported %s", st.Status)
	}

	if _, err := up.UploadBytes(ctx, domain.ImageKey("acme", "up-1", 3), "image/png", []byte("png")); err != nil {
		t.Fatal(err)
	}
	st, _ = svc.Status(ctx, domain.WorkTypeInfographic, "up-1")
	if st.Status != domain.ArtifactCompleted || len(st.URLs) != 3 {
		t.Fatalf("full deck: %+v", st)
	}
}

func TestResultsServiceStatus_FromRecord(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		rec  domain.ResultRecord
		want domain.ArtifactStatus
		err  string
	}{
		{
			name: "validation failure",
			rec:  domain.ResultRecord{Status: domain.StatusFailed, Error: "missing required fields: upload_id"},
			want: domain.ArtifactFailed,
			err:  "missing required fields: upload_id",
		},
		{
			name: "render failure",
			rec:  domain.ResultRecord{Status: domain.StatusCompleted, ArtifactError: "convert report: converter unavailable"},
			want: domain.ArtifactFailed,
			err:  "convert report: converter unavailable",
		},
		{
			name: "short deck",
			rec:  domain.ResultRecord{Status: domain.StatusCompleted, ArtifactReference: &domain.ArtifactReference{URLs: []string{"a", "b"}}},
			want: domain.ArtifactCompleted,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.New(time.UTC)
			seedUpload(t, store, domain.WorkTypeInfographic)
			tc.rec.RequestID, tc.rec.UploadID, tc.rec.WorkType = "r", "up-1", domain.WorkTypeInfographic
			if err := store.ResultStorage().SaveResult(ctx, tc.rec); err != nil {
				t.Fatal(err)
			}
			svc := NewResultsService(store.ResultStorage(), store.UploadStorage(), providers.NewLocalUploader(t.TempDir()), 3)
			st, err := svc.Status(ctx, domain.WorkTypeInfographic, "up-1")
			if err != nil {
				t.Fatal(err)
			}
			if st.Status != tc.want || st.Error != tc.err {
				t.Errorf("status = %+v", st)
			}
		})
	}
}

func TestResultsServiceStatus_Errors(t *testing.T) {
	store := memory.New(time.UTC)
	seedUpload(t, store, domain.WorkTypeReport)
	svc := NewResultsService(store.ResultStorage(), store.UploadStorage(), providers.NewLocalUploader(t.TempDir()), 0)

	if _, err := svc.Status(context.Background(), domain.WorkTypeReport, "missing"); !errors.Is(err, ErrUploadNotFound) {
		t.Errorf("unknown upload: %v", err)
	}
	if _, err := svc.Status(context.Background(), domain.WorkTypeInfographic, "up-1"); !errors.Is(err, ErrWorkTypeNotRequested) {
		t.Errorf("unrequested work type: %v", err)
	}
}

func TestResultsServiceGet(t *testing.T) {
	ctx := context.Background()
	store := memory.New(time.UTC)
	svc := NewResultsService(store.ResultStorage(), store.UploadStorage(), providers.NewLocalUploader(t.TempDir()), 3)

	if _, err := svc.Get(ctx, domain.WorkTypeReport, "up-1"); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}
	if _, err := svc.GetByRequest(ctx, "req-1"); !errors.Is(err, ErrResultNotFound) {
		t.Fatalf("expected ErrResultNotFound, got %v", err)
	}

	if err := store.ResultStorage().SaveResult(ctx, completedRecord()); err != nil {
		t.Fatal(err)
	}
	rec, err := svc.Get(ctx, domain.WorkTypeReport, "up-1")
	if err != nil || rec.RequestID != "req-1" {
		t.Fatalf("Get = %+v, %v", rec, err)
	}
	rec, err = svc.GetByRequest(ctx, "req-1")
	if err != nil || rec.UploadID != "up-1" {
		t.Fatalf("GetByRequest = %+v, %v", rec, err)
	}
}
