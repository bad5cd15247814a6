// Package render turns a completed ResultRecord into its published artifact:
// a PDF report for the report pipeline and a deck of PNG pages for the
// infographic pipeline.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// ErrConverterUnavailable is returned when an external conversion tool or
// browser cannot be started.
var ErrConverterUnavailable = errors.New("converter unavailable")

// Converter turns a markdown document into PDF bytes.
type Converter interface {
	Convert(ctx context.Context, markdown string) ([]byte, error)
}

// ConverterFunc adapts a function to Converter.
type ConverterFunc func(ctx context.Context, markdown string) ([]byte, error)

func (f ConverterFunc) Convert(ctx context.Context, markdown string) ([]byte, error) {
	return f(ctx, markdown)
}

// runTool executes bin with args inside dir and folds stderr into the error.
func runTool(ctx context.Context, dir, bin string, args ...string) error {
	path, err := exec.LookPath(bin)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrConverterUnavailable, bin, err)
	}
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Dir = dir
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return fmt.Errorf("%s: %w", bin, err)
		}
		return fmt.Errorf("%s: %w: %s", bin, err, msg)
	}
	return nil
}

func workDir(pattern string) (string, func(), error) {
	dir, err := os.MkdirTemp("", pattern)
	if err != nil {
		return "", nil, err
	}
	return dir, func() { _ = os.RemoveAll(dir) }, nil
}
