package domain

import (
	"errors"
	"net/url"
	"strings"
)

// SubmitUploadRequest registers a subject for one or more pipelines.
type SubmitUploadRequest struct {
	SubjectName     string     `json:"subject_name"`
	CorpusReference string     `json:"corpus_reference"`
	WorkTypes       []WorkType `json:"work_types"`
	Webhook         string     `json:"webhook,omitempty"`
	// IdempotencyKey makes retried submissions return the first upload
	// instead of enqueueing the work again.
	IdempotencyKey  string     `json:"idempotency_key,omitempty"`
}

// Normalize trims fields, lowercases and dedupes work types and defaults
// the corpus reference to the subject name.
func (r *SubmitUploadRequest) Normalize() {
	r.SubjectName = strings.TrimSpace(r.SubjectName)
	r.CorpusReference = strings.TrimSpace(r.CorpusReference)
	r.Webhook = strings.TrimSpace(r.Webhook)
	r.IdempotencyKey = strings.TrimSpace(r.IdempotencyKey)
	if r.CorpusReference == "" {
		r.CorpusReference = r.SubjectName
	}
	seen := map[WorkType]bool{}
	out := r.WorkTypes[:0]
	for _, wt := range r.WorkTypes {
		wt = WorkType(strings.ToLower(strings.TrimSpace(string(wt))))
		if wt == "" || seen[wt] {
			continue
		}
		seen[wt] = true
		out = append(out, wt)
	}
	r.WorkTypes = out
}

func (r SubmitUploadRequest) Validate() error {
	if r.SubjectName == "" {
		return errors.New("subject_name is required")
	}
	if len(r.WorkTypes) == 0 {
		return errors.New("work_types must name at least one pipeline")
	}
	for _, wt := range r.WorkTypes {
		if _, err := ParseWorkType(string(wt)); err != nil {
			return err
		}
	}
	if len(r.IdempotencyKey) > 200 {
		return errors.New("idempotency_key must be at most 200 characters")
	}
	if r.Webhook != "" {
		u, err := url.Parse(r.Webhook)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("invalid webhook url")
		}
	}
	return nil
}

type ArtifactStatus string

const (
	ArtifactProcessing ArtifactStatus = "processing"
	ArtifactCompleted  ArtifactStatus = "completed"
	ArtifactFailed     ArtifactStatus = "failed"
)

// StatusResponse answers a status poll for one upload and work type.
type StatusResponse struct {
	UploadID    string         `json:"upload_id"`
	WorkType    WorkType       `json:"work_type"`
	SubjectName string         `json:"subject_name"`
	Status      ArtifactStatus `json:"status"`
	URL         string         `json:"url,omitempty"`
	URLs        []string       `json:"urls,omitempty"`
	Error       string         `json:"error,omitempty"`
}
