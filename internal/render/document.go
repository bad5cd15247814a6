package render

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/osvaldoandrade/dossier/internal/providers"
	"github.com/osvaldoandrade/dossier/pkg/domain"
)

// PageBreak separates sections in the composed markdown. Converters map it to
// their own page-break construct.
const PageBreak = `\newpage`

// ComposeReport builds the markdown body of a report: a header block followed
// by every section in record order. Failed sections appear as an error
// notice so the reader can tell which parts are missing.
func ComposeReport(rec domain.ResultRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Analysis Report: %s\n\n", rec.SubjectName)
	fmt.Fprintf(&b, "**Generated:** %s  \n", rec.FinishedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Processing Time:** %.2f seconds  \n", rec.ProcessingDuration)
	fmt.Fprintf(&b, "**Request ID:** %s\n\n", rec.RequestID)
	b.WriteString("---\n\n")

	for _, s := range rec.Sections.All() {
		if s.Succeeded() {
			b.WriteString(sectionBody(s))
		} else {
			fmt.Fprintf(&b, "**Error:** %s", s.Error)
		}
		b.WriteString("\n\n---\n\n")
		b.WriteString(PageBreak)
		b.WriteString("\n\n")
	}
	return b.String()
}

func sectionBody(s domain.SectionResult) string {
	switch s.Kind {
	case domain.KindText:
		if strings.TrimSpace(s.Text) == "" {
			return "No content available"
		}
		return s.Text
	default:
		out, err := json.MarshalIndent(s.Content(), "", "  ")
		if err != nil {
			return fmt.Sprintf("%v", s.Content())
		}
		return "```json\n" + string(out) + "\n```"
	}
}

type DocumentRenderer struct {
	converter Converter
	uploader  providers.Uploader
	logger    *slog.Logger
}

func NewDocumentRenderer(converter Converter, uploader providers.Uploader, logger *slog.Logger) *DocumentRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &DocumentRenderer{converter: converter, uploader: uploader, logger: logger}
}

func (r *DocumentRenderer) Render(ctx context.Context, rec domain.ResultRecord) (*domain.ArtifactReference, error) {
	if r.converter == nil {
		return nil, fmt.Errorf("%w: no document converter configured", ErrConverterUnavailable)
	}
	pdf, err := r.converter.Convert(ctx, ComposeReport(rec))
	if err != nil {
		return nil, fmt.Errorf("convert report: %w", err)
	}
	if len(pdf) == 0 {
		return nil, fmt.Errorf("convert report: empty output")
	}
	key := domain.ReportKey(rec.SubjectName, rec.UploadID)
	url, err := r.uploader.UploadBytes(ctx, key, "application/pdf", pdf)
	if err != nil {
		return nil, fmt.Errorf("upload report: %w", err)
	}
	r.logger.Info("report published", "upload_id", rec.UploadID, "key", key, "bytes", len(pdf))
	return &domain.ArtifactReference{URL: url}, nil
}
