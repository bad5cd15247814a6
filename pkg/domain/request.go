package domain

import (
	"encoding"
	"fmt"
	"strings"
)

type WorkType string

const (
	WorkTypeReport      WorkType = "report"
	WorkTypeInfographic WorkType = "infographic"
)

// WorkTypes lists every work type the service knows how to run.
var WorkTypes = []WorkType{WorkTypeReport, WorkTypeInfographic}

func ParseWorkType(s string) (WorkType, error) {
	wt := WorkType(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range WorkTypes {
		if wt == known {
			return wt, nil
		}
	}
	return "", fmt.Errorf("unknown work type %q", s)
}

// WorkRequest is the inbound unit of work: one subject, one corpus, one upload.
type WorkRequest struct {
	CorpusReference string `json:"corpus_reference"`
	SubjectName     string `json:"subject_name"`
	UploadID        string `json:"upload_id"`
}

// MissingFields returns the JSON names of every blank required field.
func (r WorkRequest) MissingFields() []string {
	var missing []string
	if strings.TrimSpace(r.CorpusReference) == "" {
		missing = append(missing, "corpus_reference")
	}
	if strings.TrimSpace(r.SubjectName) == "" {
		missing = append(missing, "subject_name")
	}
	if strings.TrimSpace(r.UploadID) == "" {
		missing = append(missing, "upload_id")
	}
	return missing
}

func (r WorkRequest) Validate() error {
	if missing := r.MissingFields(); len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

var (
	_ encoding.BinaryMarshaler = WorkType("")
	_ encoding.TextMarshaler   = WorkType("")
)

func (w WorkType) MarshalBinary() ([]byte, error) { return []byte(string(w)), nil }
func (w WorkType) MarshalText() ([]byte, error)   { return []byte(string(w)), nil }
