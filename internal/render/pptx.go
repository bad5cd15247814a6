package render

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// SlideReplacements maps a 1-based slide number to the tokens to replace on
// that slide.
type SlideReplacements map[int]map[string]string

var (
	slidePart = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)
	textRun   = regexp.MustCompile(`(<a:t(?:\s[^>]*)?>)([^<]*)(</a:t>)`)
)

// FillTemplate rewrites the text runs of the given slides in a PPTX archive.
// Only the text inside existing <a:t> runs changes, so run styling and shape
// layout survive untouched. Every other archive member is copied verbatim.
func FillTemplate(pptx []byte, replacements SlideReplacements) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(pptx), int64(len(pptx)))
	if err != nil {
		return nil, fmt.Errorf("open template: %w", err)
	}

	var out bytes.Buffer
	zw := zip.NewWriter(&out)
	for _, f := range zr.File {
		data, err := readMember(f)
		if err != nil {
			return nil, err
		}
		if m := slidePart.FindStringSubmatch(f.Name); m != nil {
			n, _ := strconv.Atoi(m[1])
			if tokens := replacements[n]; len(tokens) > 0 {
				data = replaceInRuns(data, tokens)
			}
		}
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.Name, Method: f.Method, Modified: f.Modified})
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(data); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func readMember(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// replaceInRuns substitutes every token in one left-to-right pass, so a value
// that happens to contain another token is written literally. Longer tokens
// win over tokens that prefix them.
func replaceInRuns(slide []byte, tokens map[string]string) []byte {
	keys := make([]string, 0, len(tokens))
	for token := range tokens {
		keys = append(keys, token)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})
	pairs := make([]string, 0, 2*len(keys))
	for _, token := range keys {
		pairs = append(pairs, token, escapeXML(tokens[token]))
	}
	replacer := strings.NewReplacer(pairs...)

	return textRun.ReplaceAllFunc(slide, func(run []byte) []byte {
		m := textRun.FindSubmatch(run)
		text := replacer.Replace(string(m[2]))
		if text == string(m[2]) {
			return run
		}
		var b bytes.Buffer
		b.Write(m[1])
		b.WriteString(text)
		b.Write(m[3])
		return b.Bytes()
	})
}

func escapeXML(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
