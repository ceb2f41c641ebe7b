package manifest

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/avenalabs/regsub/internal/submission"
)

// Archive produces a single compressed archive of seqDir whose internal
// paths mirror the directory exactly (no path is renamed), so a verifier
// can recompute manifest hashes purely from archive contents.
//
// A missing manifest is generated first. The archive itself and the acks/
// folder are excluded. Returns the archive path.
func (b *Builder) Archive(seqDir string) (string, error) {
	manifestPath := filepath.Join(seqDir, FileName)
	if _, err := os.Stat(manifestPath); os.IsNotExist(err) {
		if _, err := b.BuildManifest(seqDir); err != nil {
			return "", err
		}
	}

	archivePath := filepath.Join(seqDir, ArchiveName)
	out, err := os.Create(archivePath)
	if err != nil {
		return "", submission.NewError(submission.ErrCodeManifestIO, "create archive: %v", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)

	// Collect first, then add in sorted order so the archive layout is
	// deterministic.
	var paths []string
	err = filepath.WalkDir(seqDir, func(p string, d fs.DirEntry, err error) error {
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
		if submission.CanonicalPath(rel) == ArchiveName {
			return nil
		}
		paths = append(paths, rel)
		return nil
	})
	if err != nil {
		return "", submission.NewError(submission.ErrCodeManifestIO, "walk %s: %v", seqDir, err)
	}
	sort.Strings(paths)

	for _, rel := range paths {
		if err := addFile(zw, seqDir, rel); err != nil {
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		return "", submission.NewError(submission.ErrCodeManifestIO, "finalize archive: %v", err)
	}
	return archivePath, nil
}

func addFile(zw *zip.Writer, seqDir, rel string) error {
	src, err := os.Open(filepath.Join(seqDir, rel))
	if err != nil {
		return submission.NewError(submission.ErrCodeManifestIO, "archive %s: %v", rel, err)
	}
	defer src.Close()

	// Fixed header fields keep archive bytes stable across rebuilds of
	// identical content.
	hdr := &zip.FileHeader{
		Name:   submission.CanonicalPath(rel),
		Method: zip.Deflate,
	}
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return submission.NewError(submission.ErrCodeManifestIO, "archive %s: %v", rel, err)
	}
	if _, err := io.Copy(w, src); err != nil {
		return submission.NewError(submission.ErrCodeManifestIO, "archive %s: %v", rel, err)
	}
	return nil
}
