package qc

import (
	"bytes"
	"context"
	"fmt"
	"os"
)

// Normalizer converts a document to its long-term-archival-safe form:
// fixed structural profile, no active content, no external-execution
// features. The concrete implementation may shell out to a local conversion
// binary or call a remote service; the gate never assumes which.
//
// Normalize must be idempotent: re-running on an already-normalized
// artifact produces a byte-identical or semantically-equivalent result.
type Normalizer interface {
	Normalize(ctx context.Context, src, dst string) error
}

// PassthroughNormalizer copies the source verbatim, stripping only
// trailing carriage returns so text artifacts hash identically across
// platforms. Used for tests and for deployments whose ingest pipeline
// already delivers archival-profile files.
type PassthroughNormalizer struct{}

// Normalize implements Normalizer. Copying is trivially idempotent.
func (PassthroughNormalizer) Normalize(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	return nil
}

// FailingNormalizer always reports failure with a fixed message.
// Test double for conversion-capability outages.
type FailingNormalizer struct {
	Message string
}

func (n FailingNormalizer) Normalize(ctx context.Context, src, dst string) error {
	return fmt.Errorf("%s", n.Message)
}
