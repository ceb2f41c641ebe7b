// Package qc implements the per-document quality gate that every file must
// clear before it may enter a sequence.
//
// A check normalizes the artifact to an archival-safe form, verifies it is
// text-searchable, enforces the size cap, synthesizes a navigation outline
// from heading-like lines, scans embedded hyperlinks, and emits a content
// hash plus a structured report persisted next to the artifact.
//
// Checks on different documents are embarrassingly parallel; Pool bounds
// the concurrency. No shared mutable state exists beyond each document's
// own report file.
package qc

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/avenalabs/regsub/internal/submission"
)

// DefaultMaxSize is the default per-document size cap.
const DefaultMaxSize = 10 << 20 // 10 MiB

// QC rule identifiers.
const (
	RuleNotSearchable   = "QC-001"
	RuleFileTooLarge    = "QC-002"
	RuleMalformedLink   = "QC-003"
	RuleNormalizeFailed = "QC-004"
)

// Config holds the gate's tunables. Passed in at construction; the gate
// keeps no package-level state.
type Config struct {
	// MaxSize is the per-document size cap in bytes. Zero means
	// DefaultMaxSize.
	MaxSize int64
	// Workers bounds Pool concurrency. Zero means DefaultWorkers.
	Workers int
}

func (c Config) maxSize() int64 {
	if c.MaxSize <= 0 {
		return DefaultMaxSize
	}
	return c.MaxSize
}

// Gate runs quality control on individual documents.
type Gate struct {
	cfg        Config
	normalizer Normalizer
}

// NewGate creates a Gate with the given normalizer.
func NewGate(cfg Config, n Normalizer) *Gate {
	return &Gate{cfg: cfg, normalizer: n}
}

// Check runs the full QC pipeline on one source file.
//
// Check never fails the whole batch for a content problem: findings land in
// the returned report and the report is persisted, so a size or
// searchability violation is an error finding, not a returned error.
// A returned error means the check itself could not run (e.g. the source
// file is unreadable).
func (g *Gate) Check(ctx context.Context, sourcePath string) (*Report, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("qc: stat source: %w", err)
	}

	report := &Report{Source: sourcePath}

	if info.Size() > g.cfg.maxSize() {
		report.add(RuleFileTooLarge, submission.SeverityError,
			fmt.Sprintf("file is %d bytes, cap is %d", info.Size(), g.cfg.maxSize()), "")
	}

	artifactPath := normalizedPath(sourcePath)
	if err := g.normalizer.Normalize(ctx, sourcePath, artifactPath); err != nil {
		report.add(RuleNormalizeFailed, submission.SeverityError,
			fmt.Sprintf("normalization failed: %v", err), "")
		// No artifact to inspect further; persist the report next to the
		// source instead.
		if perr := report.persist(sourcePath); perr != nil {
			return nil, perr
		}
		return report, nil
	}
	report.Artifact = artifactPath

	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("qc: read artifact: %w", err)
	}

	if !textSearchable(data) {
		report.add(RuleNotSearchable, submission.SeverityError,
			"artifact has no extractable text layer (visual-only)", "")
	}

	outline := synthesizeOutline(data)
	if len(outline) > 0 {
		if err := writeOutline(artifactPath, outline); err != nil {
			return nil, err
		}
		report.OutlineEntries = len(outline)
	} else {
		slog.Debug("no headings detected, outline skipped", "source", sourcePath)
	}

	for _, bad := range scanLinks(data) {
		report.add(RuleMalformedLink, submission.SeverityWarning,
			fmt.Sprintf("malformed hyperlink %q", bad), "")
	}

	report.Hash = submission.HashBytes(data)

	if err := report.persist(artifactPath); err != nil {
		return nil, err
	}

	slog.Info("qc check complete",
		"source", sourcePath,
		"passed", report.Passed(),
		"errors", report.errorCount(),
		"warnings", report.warningCount())
	return report, nil
}

// normalizedPath places the archival artifact next to the original:
// "cover.pdf" -> "cover.norm.pdf".
func normalizedPath(sourcePath string) string {
	ext := filepath.Ext(sourcePath)
	base := strings.TrimSuffix(sourcePath, ext)
	return base + ".norm" + ext
}
