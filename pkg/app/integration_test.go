package app

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/osvaldoandrade/dossier/internal/answering"
	"github.com/osvaldoandrade/dossier/internal/providers"
	"github.com/osvaldoandrade/dossier/pkg/config"
	"github.com/osvaldoandrade/dossier/pkg/domain"

	"github.com/alicebob/miniredis/v2"
)

const producerToken = "producer-token"

// pdfRenderer stores a placeholder PDF under the deterministic report key.
type pdfRenderer struct {
	uploader providers.Uploader
}

func (r pdfRenderer) Render(ctx context.Context, rec domain.ResultRecord) (*domain.ArtifactReference, error) {
	url, err := r.uploader.UploadBytes(ctx, domain.ReportKey(rec.SubjectName, rec.UploadID), "application/pdf", []byte("%PDF-1.7"))
	if err != nil {
		return nil, err
	}
	return &domain.ArtifactReference{URL: url}, nil
}

func TestHTTPIntegrationFlow(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	hooks := make(chan *http.Request, 1)
	bodies := make(chan map[string]any, 1)
	hookSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var payload map[string]any
		_ = json.Unmarshal(b, &payload)
		select {
		case hooks <- r:
			bodies <- payload
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(hookSrv.Close)

	cfg := &config.Config{
		Env:                   "test",
		Timezone:              "UTC",
		LogLevel:              "error",
		LogFormat:             "json",
		RedisAddr:             mr.Addr(),
		PersistenceProvider:   "redis",
		Transport:             "redis",
		MaxWorkers:            2,
		RequestTimeoutSeconds: 30,
		AnswerTimeoutSeconds:  5,
		SectionConcurrency:    2,
		Pipelines: []config.PipelineConfig{
			{WorkType: "report", InputQueue: "analysis-requests", OutputTopic: "analysis-results"},
			{WorkType: "infographic", InputQueue: "infographic-requests", OutputTopic: "infographic-results", Disabled: true},
		},
		Storage:              config.StorageConfig{Provider: "local", LocalArtifactsDir: t.TempDir()},
		Render:               config.RenderConfig{Converter: "chrome", ExpectedImages: 3},
		ProducerAuthProvider: "static",
		ProducerAuthConfig: map[string]any{
			"token": producerToken,
			"raw":   map[string]any{"role": "admin"},
		},
		GenAI:                           config.GenAIConfig{APIKey: "unused"},
		WebhookHmacSecret:               "secret",
		ResultWebhookMaxAttempts:        3,
		ResultWebhookBaseBackoffSeconds: 1,
		ResultWebhookMaxBackoffSeconds:  2,
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("config validate: %v", err)
	}

	uploader := providers.NewLocalUploader(cfg.Storage.LocalArtifactsDir)
	answers := answering.ProviderFunc(func(_ context.Context, req domain.WorkRequest) (answering.Service, error) {
		return answering.ServiceFunc(func(_ context.Context, directive, corpus string) (string, error) {
			return "Findings for " + req.SubjectName + " from " + corpus, nil
		}), nil
	})

	app, err := NewApplication(cfg,
		WithAnsweringProvider(answers),
		WithUploader(uploader),
		WithRenderer(domain.WorkTypeReport, pdfRenderer{uploader: uploader}),
	)
	if err != nil {
		t.Fatalf("new application: %v", err)
	}
	SetupMappings(app)
	if err := app.StartWorkers(context.Background()); err != nil {
		t.Fatalf("start workers: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})
	server := httptest.NewServer(app.Engine)
	t.Cleanup(server.Close)

	do(t, http.MethodPut, server.URL+"/v1/dossier/corpora/acme", map[string]any{
		"resource_name": "projects/p/locations/us-central1/ragCorpora/42",
	}, http.StatusOK, nil)

	var upload domain.Upload
	do(t, http.MethodPost, server.URL+"/v1/dossier/uploads", map[string]any{
		"subject_name": "acme",
		"work_types":   []string{"report"},
		"webhook":      hookSrv.URL,
	}, http.StatusAccepted, &upload)
	if upload.UploadID == "" || upload.CorpusReference != "acme" {
		t.Fatalf("unexpected upload %+v", upload)
	}

	do(t, http.MethodPost, server.URL+"/v1/dossier/uploads", map[string]any{
		"subject_name": "acme",
		"work_types":   []string{"infographic"},
	}, http.StatusServiceUnavailable, nil)

	// The webhook fires after the record is stored.
	select {
	case r := <-hooks:
		payload := <-bodies
		if r.Header.Get("X-Dossier-Signature") == "" {
			t.Fatal("webhook was not signed")
		}
		if payload["upload_id"] != upload.UploadID || payload["status"] != string(domain.StatusCompleted) {
			t.Fatalf("unexpected webhook payload %v", payload)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("expected webhook callback")
	}

	var status domain.StatusResponse
	do(t, http.MethodGet, server.URL+"/v1/dossier/status/report?upload_id="+upload.UploadID, nil, http.StatusOK, &status)
	if status.Status != domain.ArtifactCompleted || !strings.HasSuffix(status.URL, "_analysis.pdf") {
		t.Fatalf("unexpected status %+v", status)
	}

	var rec domain.ResultRecord
	do(t, http.MethodGet, server.URL+"/v1/dossier/results/report/"+upload.UploadID, nil, http.StatusOK, &rec)
	if rec.Status != domain.StatusCompleted || rec.SectionsTotal == 0 || rec.SectionsSucceeded != rec.SectionsTotal {
		t.Fatalf("unexpected record: status=%s total=%d ok=%d", rec.Status, rec.SectionsTotal, rec.SectionsSucceeded)
	}
	var byID domain.ResultRecord
	do(t, http.MethodGet, server.URL+"/v1/dossier/requests/"+rec.RequestID, nil, http.StatusOK, &byID)
	if byID.UploadID != upload.UploadID {
		t.Fatalf("record by request id = %+v", byID)
	}

	do(t, http.MethodGet, server.URL+"/v1/dossier/status/infographic?upload_id="+upload.UploadID, nil, http.StatusConflict, nil)
	do(t, http.MethodGet, server.URL+"/v1/dossier/uploads/missing", nil, http.StatusNotFound, nil)
}

func TestHTTPRequiresAuth(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis start: %v", err)
	}
	t.Cleanup(mr.Close)

	cfg, err := config.LoadConfigOptional("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.Env = "test"
	cfg.RedisAddr = mr.Addr()
	cfg.PersistenceProvider = "memory"
	cfg.ProducerAuthProvider = "static"
	cfg.ProducerAuthConfig = map[string]any{"token": producerToken}
	cfg.Storage.LocalArtifactsDir = t.TempDir()

	app, err := NewApplication(cfg, WithAnsweringProvider(answering.ProviderFunc(func(context.Context, domain.WorkRequest) (answering.Service, error) {
		return nil, nil
	})))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	SetupMappings(app)

	rec := httptest.NewRecorder()
	app.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/dossier/corpora", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous request got %d", rec.Code)
	}

	// Non-admin producers cannot register corpora.
	req := httptest.NewRequest(http.MethodPut, "/v1/dossier/corpora/acme", strings.NewReader(`{"resource_name":"projects/p/locations/l/ragCorpora/1"}`))
	req.Header.Set("Authorization", "Bearer "+producerToken)
	rec = httptest.NewRecorder()
	app.Engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin corpus write got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	app.Engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz got %d", rec.Code)
	}
}

func do(t *testing.T, method, url string, body any, want int, out any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, url, r)
	req.Header.Set("Authorization", "Bearer "+producerToken)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != want {
		t.Fatalf("%s %s: status %d, want %d: %s", method, url, resp.StatusCode, want, b)
	}
	if out != nil {
		if err := json.Unmarshal(b, out); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
}
