package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type ShapeKind string

const (
	ShapeFreeText   ShapeKind = "free_text"
	ShapeStructured ShapeKind = "structured"
)

// Shape describes what a section answer should look like. Fields is the
// advisory key list of a structured object; it is never enforced.
type Shape struct {
	Kind   ShapeKind `json:"kind"`
	Fields []string  `json:"fields,omitempty"`
}

func FreeText() Shape { return Shape{Kind: ShapeFreeText} }

func Structured(fields ...string) Shape {
	return Shape{Kind: ShapeStructured, Fields: fields}
}

type SectionSpec struct {
	Name      string `json:"name"`
	Directive string `json:"directive"`
	Shape     Shape  `json:"shape"`
}

type ResultKind string

const (
	KindText        ResultKind = "text"
	KindStructured  ResultKind = "structured"
	KindRawFallback ResultKind = "raw_fallback"
	KindFailure     ResultKind = "failure"
)

// RawOutputKey holds the cleaned answer of a structured section that could
// not be parsed.
const RawOutputKey = "raw_output"

// SectionResult is the outcome of one section. Kind is the discriminant:
// Text is set for KindText and KindRawFallback, Object for KindStructured,
// Error for KindFailure.
//
// On the wire a result is {section_name, kind, content | error_message,
// produced_at}, where content is Content().
type SectionResult struct {
	SectionName string
	Kind        ResultKind
	Text        string
	Object      map[string]any
	Error       string
	ProducedAt  time.Time
}

type sectionResultJSON struct {
	SectionName  string          `json:"section_name"`
	Kind         ResultKind      `json:"kind"`
	Content      json.RawMessage `json:"content,omitempty"`
	ErrorMessage string          `json:"error_message,omitempty"`
	ProducedAt   time.Time       `json:"produced_at"`
}

func (r SectionResult) MarshalJSON() ([]byte, error) {
	out := sectionResultJSON{
		SectionName:  r.SectionName,
		Kind:         r.Kind,
		ErrorMessage: r.Error,
		ProducedAt:   r.ProducedAt,
	}
	if c := r.Content(); c != nil {
		b, err := json.Marshal(c)
		if err != nil {
			return nil, fmt.Errorf("section %s: %w", r.SectionName, err)
		}
		out.Content = b
	}
	return json.Marshal(out)
}

func (r *SectionResult) UnmarshalJSON(data []byte) error {
	var in sectionResultJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*r = SectionResult{SectionName: in.SectionName, Kind: in.Kind, ProducedAt: in.ProducedAt}
	switch in.Kind {
	case KindText:
		return json.Unmarshal(in.Content, &r.Text)
	case KindStructured:
		return json.Unmarshal(in.Content, &r.Object)
	case KindRawFallback:
		var raw map[string]string
		if err := json.Unmarshal(in.Content, &raw); err != nil {
			return err
		}
		r.Text = raw[RawOutputKey]
	case KindFailure:
		r.Error = in.ErrorMessage
	default:
		return fmt.Errorf("section %s: unknown kind %q", in.SectionName, in.Kind)
	}
	return nil
}

func TextResult(name, text string, at time.Time) SectionResult {
	return SectionResult{SectionName: name, Kind: KindText, Text: text, ProducedAt: at}
}

func StructuredResult(name string, obj map[string]any, at time.Time) SectionResult {
	if obj == nil {
		obj = map[string]any{}
	}
	return SectionResult{SectionName: name, Kind: KindStructured, Object: obj, ProducedAt: at}
}

func RawFallbackResult(name, raw string, at time.Time) SectionResult {
	return SectionResult{SectionName: name, Kind: KindRawFallback, Text: raw, ProducedAt: at}
}

func FailureResult(name, msg string, at time.Time) SectionResult {
	if msg == "" {
		msg = "unknown error"
	}
	return SectionResult{SectionName: name, Kind: KindFailure, Error: msg, ProducedAt: at}
}

func (r SectionResult) Succeeded() bool { return r.Kind != KindFailure }

// Content returns the section payload: markdown text for text sections, the
// parsed object for structured ones and {"raw_output": ...} for fallbacks.
// Failures have no content.
func (r SectionResult) Content() any {
	switch r.Kind {
	case KindText:
		return r.Text
	case KindStructured:
		return r.Object
	case KindRawFallback:
		return map[string]any{RawOutputKey: r.Text}
	default:
		return nil
	}
}

// Fields returns the object view of a structured or raw fallback result.
func (r SectionResult) Fields() map[string]any {
	if m, ok := r.Content().(map[string]any); ok {
		return m
	}
	return nil
}
