package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// PandocConverter shells out to pandoc with a LaTeX engine, which understands
// the \newpage marker natively.
type PandocConverter struct {
	Bin       string
	PDFEngine string
}

func NewPandocConverter(bin, engine string) *PandocConverter {
	if bin == "" {
		bin = "pandoc"
	}
	if engine == "" {
		engine = "xelatex"
	}
	return &PandocConverter{Bin: bin, PDFEngine: engine}
}

func (c *PandocConverter) Convert(ctx context.Context, markdown string) ([]byte, error) {
	dir, cleanup, err := workDir("dossier-pandoc-*")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	src := filepath.Join(dir, "report.md")
	out := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(src, []byte(markdown), 0o600); err != nil {
		return nil, err
	}
	if err := runTool(ctx, dir, c.Bin, src, "--from", "markdown", "--pdf-engine="+c.PDFEngine, "-o", out); err != nil {
		return nil, err
	}
	pdf, err := os.ReadFile(out)
	if err != nil {
		return nil, fmt.Errorf("pandoc produced no pdf: %w", err)
	}
	return pdf, nil
}
