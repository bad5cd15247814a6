// Package executor turns one section spec into exactly one SectionResult.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/osvaldoandrade/dossier/internal/answering"
	"github.com/osvaldoandrade/dossier/internal/tracing"
	"github.com/osvaldoandrade/dossier/pkg/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const DefaultTimeout = 300 * time.Second

const freeTextHint = `Please provide a detailed analysis with proper citations and sources.
Format the response in markdown with clear sections and bullet points where appropriate.`

// ErrTimeout reports that the answering call outlived the per-call timeout.
var ErrTimeout = errors.New("section timed out")

type Executor struct {
	Timeout time.Duration
	Logger  *slog.Logger
	Now     func() time.Time
}

func New(timeout time.Duration, logger *slog.Logger) *Executor {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{Timeout: timeout, Logger: logger, Now: time.Now}
}

// Execute never returns an error: every failure, including a panic inside
// the answering service, becomes a failure result.
func (e *Executor) Execute(ctx context.Context, spec domain.SectionSpec, svc answering.Service, req domain.WorkRequest) (res domain.SectionResult) {
	ctx, span := tracing.Tracer("executor").Start(ctx, "dossier.section.execute",
		trace.WithAttributes(
			attribute.String("dossier.section", spec.Name),
			attribute.String("dossier.shape", string(spec.Shape.Kind)),
			attribute.String("dossier.upload_id", req.UploadID),
		),
	)
	defer span.End()
	logger := e.Logger.With("section", spec.Name, "upload_id", req.UploadID)

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic: %v", r)
			tracing.Fail(span, err)
			logger.Error("section panicked", "err", err)
			res = domain.FailureResult(spec.Name, err.Error(), e.now())
		}
	}()

	if svc == nil {
		return domain.FailureResult(spec.Name, "no answering service", e.now())
	}

	answer, err := e.answer(ctx, svc, ComposePrompt(spec, req), req.CorpusReference)
	if err != nil {
		tracing.Fail(span, err)
		logger.Warn("section failed", "err", err)
		return domain.FailureResult(spec.Name, err.Error(), e.now())
	}

	if spec.Shape.Kind != domain.ShapeStructured {
		return domain.TextResult(spec.Name, answer, e.now())
	}

	cleaned := StripFence(answer)
	obj, err := parseObject(cleaned)
	if err != nil {
		logger.Warn("structured answer not parseable, keeping raw output", "err", err)
		span.SetAttributes(attribute.Bool("dossier.raw_fallback", true))
		return domain.RawFallbackResult(spec.Name, cleaned, e.now())
	}
	if missing := missingFields(spec.Shape.Fields, obj); len(missing) > 0 {
		logger.Debug("structured answer missing fields", "fields", missing)
	}
	return domain.StructuredResult(spec.Name, obj, e.now())
}

func (e *Executor) answer(ctx context.Context, svc answering.Service, prompt, corpus string) (string, error) {
	timeout := e.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		text string
		err  error
		pnc  any
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{pnc: r}
			}
		}()
		text, err := svc.Answer(cctx, prompt, corpus)
		done <- outcome{text: text, err: err}
	}()

	// The service may ignore ctx; the timeout still bounds how long the
	// section waits for it.
	select {
	case o := <-done:
		if o.pnc != nil {
			panic(o.pnc)
		}
		if o.err != nil {
			if errors.Is(o.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
			}
			return "", o.err
		}
		if strings.TrimSpace(o.text) == "" {
			return "", answering.ErrEmptyAnswer
		}
		return o.text, nil
	case <-cctx.Done():
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w after %s", ErrTimeout, timeout)
	}
}

func (e *Executor) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now().UTC()
}

// ComposePrompt frames a directive with the section and subject it belongs to.
func ComposePrompt(spec domain.SectionSpec, req domain.WorkRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Section: %s\nStartup: %s\n\n%s", spec.Name, req.SubjectName, spec.Directive)
	if spec.Shape.Kind != domain.ShapeStructured {
		b.WriteString("\n\n")
		b.WriteString(freeTextHint)
	}
	return b.String()
}

// StripFence removes one surrounding markdown code fence, optionally tagged
// json, and trims whitespace.
func StripFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if strings.HasPrefix(strings.ToLower(s), "json") {
			s = s[len("json"):]
		}
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseObject(s string) (map[string]any, error) {
	if s == "" {
		return nil, errors.New("empty answer")
	}
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, errors.New("answer is not a JSON object")
	}
	return obj, nil
}

func missingFields(fields []string, obj map[string]any) []string {
	var missing []string
	for _, f := range fields {
		if _, ok := obj[f]; !ok {
			missing = append(missing, f)
		}
	}
	return missing
}
