package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/osvaldoandrade/dossier/internal/providers"
	"github.com/osvaldoandrade/dossier/pkg/domain"
)

// DeckConverter turns a PPTX deck into a PDF.
type DeckConverter interface {
	ConvertDeck(ctx context.Context, pptx []byte) ([]byte, error)
}

// Rasterizer turns every page of a PDF into a PNG, in page order.
type Rasterizer interface {
	Rasterize(ctx context.Context, pdf []byte) ([][]byte, error)
}

// slideFields binds each placeholder token of the infographic template to a
// section and field.
var slideFields = []struct {
	slide   int
	section string
	field   string
	token   string
}{
	{2, "product", "problem", "PLACEHOLDER_PROBLEM"},
	{2, "product", "problem_category", "PLACEHOLDER_CP"},
	{2, "product", "current_alternatives", "PLACEHOLDER_CA"},
	{2, "product", "why_now", "PLACEHOLDER_WN"},
	{2, "product", "product_details", "PLACEHOLDER_PD"},
	{2, "product", "replacement_for", "PLACEHOLDER_RF"},
	{3, "financial_metric", "overview", "PLACEHOLDER_OVERVIEW"},
	{3, "financial_metric", "growth_rate", "PLACEHOLDER_GR"},
	{3, "financial_metric", "capital_efficiency", "PLACEHOLDER_CE"},
	{3, "financial_metric", "valuation", "PLACEHOLDER_VALUATION"},
	{3, "financial_metric", "analysis", "PLACEHOLDER_ANALYSIS"},
	{3, "financial_metric", "profitability_margin", "PLACEHOLDER_PM"},
}

const subjectToken = "PLACEHOLDER_STARTUP_NAME"

// SlideReplacementsFor derives the template substitutions from a record.
// Missing sections or fields blank their tokens.
func SlideReplacementsFor(rec domain.ResultRecord) SlideReplacements {
	out := SlideReplacements{1: {subjectToken: rec.SubjectName}}
	for _, f := range slideFields {
		if out[f.slide] == nil {
			out[f.slide] = map[string]string{}
		}
		out[f.slide][f.token] = fieldText(rec, f.section, f.field)
	}
	return out
}

func fieldText(rec domain.ResultRecord, section, field string) string {
	s, ok := rec.Sections.Get(section)
	if !ok {
		return ""
	}
	v, ok := s.Fields()[field]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

type SlideRenderer struct {
	template string
	deck     DeckConverter
	raster   Rasterizer
	uploader providers.Uploader
	logger   *slog.Logger
	readFile func(string) ([]byte, error)
}

func NewSlideRenderer(templatePath string, deck DeckConverter, raster Rasterizer, uploader providers.Uploader, logger *slog.Logger) *SlideRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlideRenderer{
		template: templatePath,
		deck:     deck,
		raster:   raster,
		uploader: uploader,
		logger:   logger,
		readFile: os.ReadFile,
	}
}

func (r *SlideRenderer) Render(ctx context.Context, rec domain.ResultRecord) (*domain.ArtifactReference, error) {
	if r.deck == nil || r.raster == nil {
		return nil, fmt.Errorf("%w: slide pipeline not configured", ErrConverterUnavailable)
	}
	tpl, err := r.readFile(r.template)
	if err != nil {
		return nil, fmt.Errorf("read slide template: %w", err)
	}
	deck, err := FillTemplate(tpl, SlideReplacementsFor(rec))
	if err != nil {
		return nil, err
	}
	pdf, err := r.deck.ConvertDeck(ctx, deck)
	if err != nil {
		return nil, fmt.Errorf("convert deck: %w", err)
	}
	pages, err := r.raster.Rasterize(ctx, pdf)
	if err != nil {
		return nil, fmt.Errorf("rasterize deck: %w", err)
	}
	if len(pages) == 0 {
		return nil, fmt.Errorf("rasterize deck: no pages")
	}

	urls := make([]string, 0, len(pages))
	for i, png := range pages {
		key := domain.ImageKey(rec.SubjectName, rec.UploadID, i+1)
		url, err := r.uploader.UploadBytes(ctx, key, "image/png", png)
		if err != nil {
			return nil, fmt.Errorf("upload page %d: %w", i+1, err)
		}
		urls = append(urls, url)
	}
	r.logger.Info("infographic published", "upload_id", rec.UploadID, "pages", len(urls))
	return &domain.ArtifactReference{URLs: urls}, nil
}

// SofficeConverter converts decks with LibreOffice in headless mode.
type SofficeConverter struct {
	Bin string
}

func NewSofficeConverter(bin string) *SofficeConverter {
	if bin == "" {
		bin = "soffice"
	}
	return &SofficeConverter{Bin: bin}
}

func (c *SofficeConverter) ConvertDeck(ctx context.Context, pptx []byte) ([]byte, error) {
	dir, cleanup, err := workDir("dossier-deck-*")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	src := filepath.Join(dir, "deck.pptx")
	if err := os.WriteFile(src, pptx, 0o600); err != nil {
		return nil, err
	}
	err = runTool(ctx, dir, c.Bin,
		"--headless", "--invisible", "--nocrashreport", "--nodefault", "--nolockcheck", "--nologo",
		// soffice locks its user profile; each conversion gets its own.
		"-env:UserInstallation=file://"+filepath.ToSlash(filepath.Join(dir, "profile")),
		"--convert-to", "pdf", "--outdir", dir, src)
	if err != nil {
		return nil, err
	}
	pdf, err := os.ReadFile(filepath.Join(dir, "deck.pdf"))
	if err != nil {
		return nil, fmt.Errorf("soffice produced no pdf: %w", err)
	}
	return pdf, nil
}

// PdftoppmRasterizer renders PDF pages with poppler's pdftoppm.
type PdftoppmRasterizer struct {
	Bin string
	DPI int
}

func NewPdftoppmRasterizer(bin string, dpi int) *PdftoppmRasterizer {
	if bin == "" {
		bin = "pdftoppm"
	}
	if dpi <= 0 {
		dpi = 220
	}
	return &PdftoppmRasterizer{Bin: bin, DPI: dpi}
}

var pageSuffix = regexp.MustCompile(`-(\d+)\.png$`)

func (r *PdftoppmRasterizer) Rasterize(ctx context.Context, pdf []byte) ([][]byte, error) {
	dir, cleanup, err := workDir("dossier-raster-*")
	if err != nil {
		return nil, err
	}
	defer cleanup()

	src := filepath.Join(dir, "deck.pdf")
	if err := os.WriteFile(src, pdf, 0o600); err != nil {
		return nil, err
	}
	if err := runTool(ctx, dir, r.Bin, "-png", "-r", strconv.Itoa(r.DPI), src, filepath.Join(dir, "page")); err != nil {
		return nil, err
	}
	return readPages(dir)
}

// readPages loads page-N.png files ordered by N; pdftoppm zero-pads N to the
// width of the page count, so lexical order is not enough.
func readPages(dir string) ([][]byte, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "page-*.png"))
	if err != nil {
		return nil, err
	}
	type page struct {
		n    int
		path string
	}
	pages := make([]page, 0, len(matches))
	for _, m := range matches {
		sub := pageSuffix.FindStringSubmatch(m)
		if sub == nil {
			continue
		}
		n, _ := strconv.Atoi(sub[1])
		pages = append(pages, page{n: n, path: m})
	}
	sort.Slice(pages, func(i, j int) bool { return pages[i].n < pages[j].n })

	out := make([][]byte, 0, len(pages))
	for _, p := range pages {
		b, err := os.ReadFile(p.path)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}
