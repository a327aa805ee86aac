// Package covers stages book cover images on disk until the sync engine
// uploads them to the server.
package covers

import (
	"crypto/sha256"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Staging stores cover files keyed by the owning book's local id. Files stay
// on disk until the upload succeeds and the engine discards them.
type Staging struct {
	dir string
}

// NewStaging creates a staging store at the specified directory.
func NewStaging(dir string) (*Staging, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create staging dir: %w", err)
	}
	return &Staging{dir: dir}, nil
}

// Stage writes the cover image for a book and returns the staged file path.
// Restaging a cover for the same book replaces the previous file.
func (s *Staging) Stage(bookID uint, r io.Reader) (string, error) {
	if err := s.Discard(bookID); err != nil {
		return "", err
	}

	tmpFile, err := os.CreateTemp(s.dir, "cover_tmp_")
	if err != nil {
		return "", err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmpFile, hasher), r); err != nil {
		return "", err
	}
	if err := tmpFile.Close(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, fmt.Sprintf("cover_%d_%x.jpg", bookID, hasher.Sum(nil)[:8]))
	if err := os.Rename(tmpPath, path); err != nil {
		return "", err
	}
	return path, nil
}

// Open returns a reader for a staged cover file.
func (s *Staging) Open(path string) (io.ReadCloser, error) {
	// Staged paths always live under the staging dir; reject anything else.
	rel, err := filepath.Rel(s.dir, path)
	if err != nil || !filepath.IsLocal(rel) {
		return nil, fmt.Errorf("not a staged cover path: %s", path)
	}
	return os.Open(path)
}

// Discard removes any staged cover files for a book.
func (s *Staging) Discard(bookID uint) error {
	pattern := filepath.Join(s.dir, fmt.Sprintf("cover_%d_*", bookID))
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.Remove(match); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// Dir returns the staging directory path.
func (s *Staging) Dir() string {
	return s.dir
}
