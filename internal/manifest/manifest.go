// Package manifest builds and verifies the checksum manifest and archive
// for a sequence directory.
//
// Manifest format: UTF-8 text, one leading timestamp comment line
// (informational, never parsed), then one "relative/path | hex-digest" line
// per file, sorted lexicographically by path. The manifest excludes itself
// and the archive from its own hashing pass, so a verifier can recompute
// every listed hash purely from archive contents.
package manifest

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/avenalabs/regsub/internal/submission"
)

// FileName is the manifest's fixed name inside a sequence directory.
const FileName = "manifest.txt"

// ArchiveName is the archive's fixed name inside a sequence directory.
const ArchiveName = "sequence.zip"

// Entry is one manifest line.
type Entry struct {
	Path string // canonical relative path
	Hash string // lowercase hex SHA-256
}

// Builder generates manifests and archives for sequence directories.
//
// Builder is stateless and safe for concurrent use on different
// directories. The lifecycle manager serializes calls per sequence.
type Builder struct {
	// Now supplies the header timestamp. Defaults to time.Now; tests
	// inject a fixed clock for reproducible headers.
	Now func() time.Time
}

// NewBuilder creates a Builder using the wall clock.
func NewBuilder() *Builder {
	return &Builder{Now: time.Now}
}

// BuildManifest walks seqDir in deterministic (lexicographic) order,
// computes a content hash per file, and writes the manifest into seqDir.
// Returns the manifest path.
//
// The manifest itself, a pre-existing archive, and the acks/ folder are
// excluded: acknowledgment artifacts arrive after transport and must not
// invalidate the hashes the gateway verified.
func (b *Builder) BuildManifest(seqDir string) (string, error) {
	entries, err := b.collect(seqDir)
	if err != nil {
		return "", err
	}

	manifestPath := filepath.Join(seqDir, FileName)
	f, err := os.Create(manifestPath)
	if err != nil {
		return "", submission.NewError(submission.ErrCodeManifestIO, "create manifest: %v", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# generated %s\n", b.Now().UTC().Format(time.RFC3339))
	for _, e := range entries {
		fmt.Fprintf(w, "%s | %s\n", e.Path, e.Hash)
	}
	if err := w.Flush(); err != nil {
		return "", submission.NewError(submission.ErrCodeManifestIO, "write manifest: %v", err)
	}
	return manifestPath, nil
}

// collect gathers hash entries for every file under seqDir, sorted by
// canonical path.
func (b *Builder) collect(seqDir string) ([]Entry, error) {
	var entries []Entry
	err := filepath.WalkDir(seqDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == "acks" && filepath.Dir(p) == seqDir {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(seqDir, p)
		if err != nil {
			return err
		}
		rel = submission.CanonicalPath(rel)
		if rel == FileName || rel == ArchiveName {
			return nil
		}
		hash, err := submission.HashFile(p)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Path: rel, Hash: hash})
		return nil
	})
	if err != nil {
		return nil, submission.NewError(submission.ErrCodeManifestIO, "walk %s: %v", seqDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })
	return entries, nil
}

// Parse reads a manifest file back into entries. The leading comment line
// and blank lines are skipped.
func Parse(manifestPath string) ([]Entry, error) {
	f, err := os.Open(manifestPath)
	if err != nil {
		return nil, submission.NewError(submission.ErrCodeManifestIO, "open manifest: %v", err)
	}
	defer f.Close()

	var entries []Entry
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := strings.TrimSpace(sc.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		parts := strings.SplitN(text, " | ", 2)
		if len(parts) != 2 {
			return nil, submission.NewError(submission.ErrCodeManifestIO,
				"manifest line %d: malformed entry %q", line, text)
		}
		entries = append(entries, Entry{Path: parts[0], Hash: parts[1]})
	}
	if err := sc.Err(); err != nil {
		return nil, submission.NewError(submission.ErrCodeManifestIO, "read manifest: %v", err)
	}
	return entries, nil
}

// Mismatch describes one divergence between a manifest and directory
// contents.
type Mismatch struct {
	Path   string
	Reason string // "missing", "hash", "extra"
}

// Verify recomputes hashes for every file under seqDir and compares against
// the manifest. It reports listed-but-missing files, hash divergences, and
// files on disk that the manifest does not list.
func (b *Builder) Verify(seqDir string) ([]Mismatch, error) {
	listed, err := Parse(filepath.Join(seqDir, FileName))
	if err != nil {
		return nil, err
	}
	actual, err := b.collect(seqDir)
	if err != nil {
		return nil, err
	}

	byPath := make(map[string]string, len(actual))
	for _, e := range actual {
		byPath[e.Path] = e.Hash
	}

	var mismatches []Mismatch
	seen := make(map[string]bool, len(listed))
	for _, e := range listed {
		seen[e.Path] = true
		got, ok := byPath[e.Path]
		switch {
		case !ok:
			mismatches = append(mismatches, Mismatch{Path: e.Path, Reason: "missing"})
		case got != e.Hash:
			mismatches = append(mismatches, Mismatch{Path: e.Path, Reason: "hash"})
		}
	}
	for _, e := range actual {
		if !seen[e.Path] {
			mismatches = append(mismatches, Mismatch{Path: e.Path, Reason: "extra"})
		}
	}
	return mismatches, nil
}
