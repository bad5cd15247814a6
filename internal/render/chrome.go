package render

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"io"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

const pageStyle = `
body { font-family: "Helvetica Neue", Arial, sans-serif; font-size: 11pt; line-height: 1.45; margin: 0 12mm; }
h1, h2, h3 { color: #1f2933; }
table { border-collapse: collapse; }
th, td { border: 1px solid #cbd2d9; padding: 4px 8px; }
pre { background: #f5f7fa; padding: 8px; white-space: pre-wrap; }
.page-break { page-break-after: always; break-after: page; }
`

// MarkdownToHTML renders GitHub-flavoured markdown into a standalone HTML
// page. Page-break markers become CSS page breaks.
func MarkdownToHTML(title, markdown string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var body bytes.Buffer
	for i, chunk := range strings.Split(markdown, PageBreak) {
		if i > 0 {
			body.WriteString(`<div class="page-break"></div>` + "\n")
		}
		if err := md.Convert([]byte(chunk), &body); err != nil {
			return "", fmt.Errorf("markdown: %w", err)
		}
	}
	var doc strings.Builder
	doc.WriteString("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\">")
	fmt.Fprintf(&doc, "<title>%s</title><style>%s</style></head><body>\n", html.EscapeString(title), pageStyle)
	doc.Write(body.Bytes())
	doc.WriteString("</body></html>\n")
	return doc.String(), nil
}

// ChromeConverter prints markdown to PDF through a headless Chrome started
// for each conversion. Bin may be empty to let rod locate or download a
// browser.
type ChromeConverter struct {
	Bin string
}

func NewChromeConverter(bin string) *ChromeConverter {
	return &ChromeConverter{Bin: bin}
}

func (c *ChromeConverter) Convert(ctx context.Context, markdown string) ([]byte, error) {
	page, err := MarkdownToHTML("report", markdown)
	if err != nil {
		return nil, err
	}

	l := launcher.New().Headless(true).Context(ctx)
	if c.Bin != "" {
		l = l.Bin(c.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("%w: launch chrome: %v", ErrConverterUnavailable, err)
	}
	defer l.Cleanup()
	defer l.Kill()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("%w: connect chrome: %v", ErrConverterUnavailable, err)
	}
	defer browser.Close()

	tab, err := browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	if err := tab.SetDocumentContent(page); err != nil {
		return nil, fmt.Errorf("set content: %w", err)
	}
	if err := tab.WaitLoad(); err != nil {
		return nil, fmt.Errorf("wait load: %w", err)
	}

	stream, err := tab.PDF(&proto.PagePrintToPDF{PrintBackground: true, PreferCSSPageSize: true})
	if err != nil {
		return nil, fmt.Errorf("print to pdf: %w", err)
	}
	return io.ReadAll(stream)
}
