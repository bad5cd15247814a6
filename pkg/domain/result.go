package domain

import (
	"bytes"
	"encoding"
	"encoding/json"
	"fmt"
	"time"
)

type RecordStatus string

const (
	StatusCompleted RecordStatus = "COMPLETED"
	StatusFailed    RecordStatus = "FAILED"
)

var (
	_ encoding.BinaryMarshaler = RecordStatus("")
	_ encoding.TextMarshaler   = RecordStatus("")
)

func (s RecordStatus) MarshalBinary() ([]byte, error) { return []byte(string(s)), nil }
func (s RecordStatus) MarshalText() ([]byte, error)   { return []byte(string(s)), nil }

// ArtifactReference points at the rendered deliverable: URL for a document,
// URLs (page order) for an image deck.
type ArtifactReference struct {
	URL  string   `json:"url,omitempty"`
	URLs []string `json:"urls,omitempty"`
}

type ResultRecord struct {
	RequestID   string       `json:"request_id"`
	WorkType    WorkType     `json:"work_type"`
	SubjectName string       `json:"subject_name"`
	UploadID    string       `json:"upload_id"`
	Status      RecordStatus `json:"status"`
	StartedAt   time.Time    `json:"started_at"`
	FinishedAt  time.Time    `json:"finished_at"`
	// ProcessingDuration is FinishedAt-StartedAt in seconds.
	ProcessingDuration float64            `json:"processing_duration"`
	Sections           Sections           `json:"sections"`
	SectionsTotal      int                `json:"sections_total"`
	SectionsSucceeded  int                `json:"sections_succeeded"`
	ArtifactReference  *ArtifactReference `json:"artifact_reference,omitempty"`
	ArtifactError      string             `json:"artifact_error,omitempty"`
	Error              string             `json:"error,omitempty"`
}

// Sections is an insertion-ordered map of section name to result. The zero
// value is ready to use.
type Sections struct {
	order []SectionResult
	index map[string]int
}

// Put appends r, or replaces the entry with the same name in place.
func (s *Sections) Put(r SectionResult) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[r.SectionName]; ok {
		s.order[i] = r
		return
	}
	s.index[r.SectionName] = len(s.order)
	s.order = append(s.order, r)
}

func (s Sections) Get(name string) (SectionResult, bool) {
	i, ok := s.index[name]
	if !ok {
		return SectionResult{}, false
	}
	return s.order[i], true
}

func (s Sections) Len() int { return len(s.order) }

func (s Sections) Names() []string {
	names := make([]string, len(s.order))
	for i, r := range s.order {
		names[i] = r.SectionName
	}
	return names
}

// All returns a copy of the results in insertion order.
func (s Sections) All() []SectionResult {
	out := make([]SectionResult, len(s.order))
	copy(out, s.order)
	return out
}

func (s Sections) Succeeded() int {
	n := 0
	for _, r := range s.order {
		if r.Succeeded() {
			n++
		}
	}
	return n
}

// Clone returns an independent copy; records hand out clones so a frozen
// record cannot be changed through a shared backing array.
func (s Sections) Clone() Sections {
	var c Sections
	for _, r := range s.order {
		c.Put(r)
	}
	return c
}

func (s Sections) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range s.order {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(r.SectionName)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(r)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (s *Sections) UnmarshalJSON(data []byte) error {
	*s = Sections{}
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("sections: expected object, got %v", tok)
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("sections: expected key, got %v", tok)
		}
		var r SectionResult
		if err := dec.Decode(&r); err != nil {
			return fmt.Errorf("sections: %s: %w", name, err)
		}
		if r.SectionName == "" {
			r.SectionName = name
		}
		s.Put(r)
	}
	_, err = dec.Token()
	return err
}
