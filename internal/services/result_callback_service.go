package services

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/osvaldoandrade/dossier/internal/backoff"
	"github.com/osvaldoandrade/dossier/internal/metrics"
	"github.com/osvaldoandrade/dossier/internal/ratelimit"
	"github.com/osvaldoandrade/dossier/internal/tracing"
	"github.com/osvaldoandrade/dossier/pkg/domain"
)

const (
	HeaderTimestamp = "X-Dossier-Timestamp"
	HeaderSignature = "X-Dossier-Signature"
	HeaderEvent     = "X-Dossier-Event"
)

// ResultCallbackService notifies the upload's webhook that a record is ready.
type ResultCallbackService interface {
	Send(ctx context.Context, upload domain.Upload, rec domain.ResultRecord)
	// Wait blocks until every in-flight delivery has finished.
	Wait()
}

type resultCallbackService struct {
	logger      *slog.Logger
	secret      string
	maxAttempts int
	schedule    *backoff.Schedule
	client      *http.Client
	sleep       func(ctx context.Context, d time.Duration) error

	limiter ratelimit.Limiter
	bucket  ratelimit.Bucket

	wg sync.WaitGroup
}

func NewResultCallbackService(logger *slog.Logger, secret string, maxAttempts int, baseDelaySeconds int, maxDelaySeconds int, policy backoff.Policy, limiter ratelimit.Limiter, bucket ratelimit.Bucket) ResultCallbackService {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if baseDelaySeconds <= 0 {
		baseDelaySeconds = 2
	}
	if maxDelaySeconds <= 0 {
		maxDelaySeconds = 60
	}
	if logger == nil {
		logger = slog.Default()
	}
	base := time.Duration(baseDelaySeconds) * time.Second
	schedule := backoff.NewSchedule(policy, base, time.Duration(maxDelaySeconds)*time.Second, time.Now().UnixNano())
	return &resultCallbackService{
		logger:      logger,
		secret:      secret,
		maxAttempts: maxAttempts,
		schedule:    schedule,
		client:      &http.Client{Timeout: 30 * time.Second},
		sleep:       sleepOrDone,
		limiter:     limiter,
		bucket:      bucket,
	}
}

// WebhookPayload is the body POSTed to the upload's webhook. Sections are
// left out; the full record is available from the results endpoint.
type WebhookPayload struct {
	RequestID         string                    `json:"request_id"`
	UploadID          string                    `json:"upload_id"`
	WorkType          domain.WorkType           `json:"work_type"`
	SubjectName       string                    `json:"subject_name"`
	Status            domain.RecordStatus       `json:"status"`
	SectionsTotal     int                       `json:"sections_total"`
	SectionsSucceeded int                       `json:"sections_succeeded"`
	ArtifactReference *domain.ArtifactReference `json:"artifact_reference,omitempty"`
	ArtifactError     string                    `json:"artifact_error,omitempty"`
	Error             string                    `json:"error,omitempty"`
	FinishedAt        time.Time                 `json:"finished_at"`
}

func NewWebhookPayload(rec domain.ResultRecord) WebhookPayload {
	return WebhookPayload{
		RequestID:         rec.RequestID,
		UploadID:          rec.UploadID,
		WorkType:          rec.WorkType,
		SubjectName:       rec.SubjectName,
		Status:            rec.Status,
		SectionsTotal:     rec.SectionsTotal,
		SectionsSucceeded: rec.SectionsSucceeded,
		ArtifactReference: rec.ArtifactReference,
		ArtifactError:     rec.ArtifactError,
		Error:             rec.Error,
		FinishedAt:        rec.FinishedAt,
	}
}

func (s *resultCallbackService) Send(ctx context.Context, upload domain.Upload, rec domain.ResultRecord) {
	if strings.TrimSpace(upload.Webhook) == "" {
		return
	}
	b, _ := json.Marshal(NewWebhookPayload(rec))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.sendWithRetry(ctx, rec.WorkType, upload.Webhook, b)
	}()
}

func (s *resultCallbackService) Wait() { s.wg.Wait() }

func (s *resultCallbackService) sendWithRetry(ctx context.Context, wt domain.WorkType, url string, body []byte) {
	ctx, span := tracing.Tracer("webhook").Start(ctx, "dossier.webhook.deliver")
	defer span.End()

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		if err := ratelimit.Wait(ctx, s.limiter, ratelimit.ScopeWebhook, url, s.bucket); err != nil {
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			metrics.WebhookDeliveriesTotal.WithLabelValues(string(wt), "failure").Inc()
			s.logger.Warn("result callback dropped: invalid webhook url", "url", url, "err", err)
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(HeaderEvent, string(wt))
		tracing.InjectWebhookHeaders(ctx, req.Header)
		s.addSignature(req, body)
		resp, err := s.client.Do(req)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			_ = resp.Body.Close()
			metrics.WebhookDeliveriesTotal.WithLabelValues(string(wt), "success").Inc()
			return
		}
		if resp != nil {
			_ = resp.Body.Close()
			err = fmt.Errorf("webhook status %d", resp.StatusCode)
		}
		s.logger.Debug("result callback attempt failed", "url", url, "attempt", attempt, "err", err)
		if attempt == s.maxAttempts {
			break
		}
		if s.sleep(ctx, s.backoffDelay(attempt)) != nil {
			break
		}
	}
	metrics.WebhookDeliveriesTotal.WithLabelValues(string(wt), "failure").Inc()
	s.logger.Warn("result callback failed", "url", url, "attempts", s.maxAttempts)
}

func (s *resultCallbackService) backoffDelay(attempt int) time.Duration {
	return s.schedule.Delay(attempt)
}

func sleepOrDone(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Sign returns the hex HMAC-SHA256 of "<ts>.<body>" under secret.
func Sign(secret string, ts int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write([]byte(fmt.Sprintf("%d.", ts)))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s *resultCallbackService) addSignature(req *http.Request, body []byte) {
	if strings.TrimSpace(s.secret) == "" {
		return
	}
	ts := time.Now().UTC().Unix()
	req.Header.Set(HeaderTimestamp, fmt.Sprintf("%d", ts))
	req.Header.Set(HeaderSignature, Sign(s.secret, ts, body))
}
