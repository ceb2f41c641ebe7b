package transport

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/avenalabs/regsub/internal/submission"
)

// DirGateway implements Gateway against a local directory. It backs tests
// and local development, where the "gateway" is a shared drop folder.
type DirGateway struct {
	Root string
}

// NewDirGateway creates a directory-backed gateway rooted at root.
func NewDirGateway(root string) *DirGateway {
	return &DirGateway{Root: root}
}

func (g *DirGateway) abs(p string) string {
	return filepath.Join(g.Root, filepath.FromSlash(p))
}

func (g *DirGateway) MkdirAll(dir string) error {
	if err := os.MkdirAll(g.abs(dir), 0o755); err != nil {
		return submission.NewError(submission.ErrCodeTransportNetwork, "mkdir %s: %v", dir, err)
	}
	return nil
}

func (g *DirGateway) Put(remotePath string, r io.Reader) error {
	abs := g.abs(remotePath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return submission.NewError(submission.ErrCodeTransportNetwork, "mkdir for %s: %v", remotePath, err)
	}
	f, err := os.Create(abs)
	if err != nil {
		return submission.NewError(submission.ErrCodeTransportNetwork, "create %s: %v", remotePath, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return submission.NewError(submission.ErrCodeTransportNetwork, "upload %s: %v", remotePath, err)
	}
	return f.Close()
}

func (g *DirGateway) Get(remotePath string) (io.ReadCloser, error) {
	f, err := os.Open(g.abs(remotePath))
	if err != nil {
		return nil, submission.NewError(submission.ErrCodeTransportNetwork, "open %s: %v", remotePath, err)
	}
	return f, nil
}

func (g *DirGateway) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(g.abs(dir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, submission.NewError(submission.ErrCodeTransportNetwork, "list %s: %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

func (g *DirGateway) Close() error { return nil }
