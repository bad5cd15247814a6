package domain

import "time"

// Upload indexes a submitted subject so its status can be answered from the
// upload id alone.
type Upload struct {
	UploadID        string     `json:"upload_id"`
	SubjectName     string     `json:"subject_name"`
	CorpusReference string     `json:"corpus_reference"`
	WorkTypes       []WorkType `json:"work_types"`
	Webhook         string     `json:"webhook,omitempty"`
	IdempotencyKey  string     `json:"idempotency_key,omitempty"`
	// TraceParent/TraceState carry the W3C trace context of the submission so
	// the worker and the result webhook join the same trace.
	TraceParent string    `json:"trace_parent,omitempty"`
	TraceState  string    `json:"trace_state,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (u Upload) Request() WorkRequest {
	return WorkRequest{CorpusReference: u.CorpusReference, SubjectName: u.SubjectName, UploadID: u.UploadID}
}

func (u Upload) Has(wt WorkType) bool {
	for _, w := range u.WorkTypes {
		if w == wt {
			return true
		}
	}
	return false
}

// CorpusHandle maps a subject to the backend resource name of its corpus.
type CorpusHandle struct {
	Subject      string    `json:"subject"`
	ResourceName string    `json:"resource_name"`
	UpdatedAt    time.Time `json:"updated_at"`
}
