// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package convert adapts an opaque PDF-to-Markdown engine to the
// pipeline. The engine is a black box: submit a file, await completion,
// retrieve text. The adapter classifies failures (bad input is fatal, a
// slow engine is not) and persists the converted output.
package convert

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"

	"github.com/lycheng/paperboy/internal/retry"
	"github.com/lycheng/paperboy/pkg/types"
)

// markdownDir is the subdirectory under the papers base for converted text.
const markdownDir = "markdown"

// Engine converts one PDF into Markdown text.
type Engine interface {
	Convert(ctx context.Context, pdfPath string) (string, error)
}

// ConversionError reports unsupported or corrupt input. It is never
// retried: the same bytes will fail the same way, so the paper should
// fail immediately instead of burning retry budget.
type ConversionError struct {
	Reason string
}

func (e *ConversionError) Error() string {
	return "conversion rejected: " + e.Reason
}

// ConversionTimeout reports an engine that did not finish within the
// poll budget. Retriable.
type ConversionTimeout struct {
	Elapsed time.Duration
}

func (e *ConversionTimeout) Error() string {
	return fmt.Sprintf("conversion timed out after %s", e.Elapsed)
}

// IsFatal reports whether err means the input itself is bad and no
// retry can help.
func IsFatal(err error) bool {
	var ce *ConversionError
	return errors.As(err, &ce)
}

// Adapter drives an Engine with the shared retry policy and writes the
// converted Markdown next to the raw PDFs.
type Adapter struct {
	engine Engine
	cfg    types.ConversionConfig
	policy retry.Policy
}

// NewAdapter builds an Adapter around the given engine.
func NewAdapter(engine Engine, cfg types.ConversionConfig) *Adapter {
	return &Adapter{
		engine: engine,
		cfg:    cfg,
		policy: retry.FromConfig(cfg.Retry, func(err error) bool {
			return !IsFatal(err)
		}),
	}
}

// Convert runs the engine on pdfPath and writes the result to
// papersDir/markdown/<id>.md, returning that path. The file is fully
// written before the caller commits a stage transition, so a crash
// between the two leaves a re-runnable record, never a half-converted
// one marked done.
func (a *Adapter) Convert(ctx context.Context, id, pdfPath string) (string, error) {
	outDir := filepath.Join(a.cfg.PapersDir, markdownDir)
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("creating markdown directory: %w", err)
	}

	var raw string
	err := a.policy.Do(ctx, func() error {
		var convErr error
		raw, convErr = a.engine.Convert(ctx, pdfPath)
		return convErr
	})
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(raw) == "" {
		return "", &ConversionError{Reason: "engine produced empty output"}
	}

	content, err := withFrontmatter(id, pdfPath, raw)
	if err != nil {
		return "", fmt.Errorf("building markdown for %s: %w", id, err)
	}
	docPath := filepath.Join(outDir, id+".md")
	if err := os.WriteFile(docPath, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("writing markdown for %s: %w", id, err)
	}
	return docPath, nil
}

// frontmatter records conversion provenance at the top of each Markdown file.
type frontmatter struct {
	PaperID     string `yaml:"paper_id"`
	SourcePDF   string `yaml:"source_pdf"`
	ConvertedAt string `yaml:"converted_at"`
}

// withFrontmatter prepends YAML frontmatter recording provenance.
func withFrontmatter(id, pdfPath, body string) (string, error) {
	meta, err := yaml.Marshal(frontmatter{
		PaperID:     id,
		SourcePDF:   pdfPath,
		ConvertedAt: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString("---\n")
	b.Write(meta)
	b.WriteString("---\n\n")
	b.WriteString(body)
	return b.String(), nil
}

// StripFrontmatter removes the leading provenance block so downstream
// consumers see only the converted document body. Text without one is
// returned unchanged.
func StripFrontmatter(text string) string {
	rest, ok := strings.CutPrefix(text, "---\n")
	if !ok {
		return text
	}
	_, body, ok := strings.Cut(rest, "\n---\n")
	if !ok {
		return text
	}
	return strings.TrimLeft(body, "\n")
}
