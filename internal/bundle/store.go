package bundle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const archiveName = "site.zip"

// Store keeps a copy of every uploaded archive under a common root, one
// directory per deployment job.
type Store struct {
	root string
}

// NewStore ensures the archive root exists and is accessible.
func NewStore(root string) (*Store, error) {
	if root == "" {
		return nil, fmt.Errorf("archive root cannot be empty")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create archive root: %w", err)
	}
	return &Store{root: root}, nil
}

// Save writes archive for the job, replacing any previous attempt.
func (s *Store) Save(jobID string, archive []byte) (string, error) {
	dir, err := s.dir(jobID)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create archive dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, archiveName+".*")
	if err != nil {
		return "", fmt.Errorf("create archive file: %w", err)
	}
	if _, err := tmp.Write(archive); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close archive: %w", err)
	}
	dest := filepath.Join(dir, archiveName)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("store archive: %w", err)
	}
	return dest, nil
}

// dir resolves the directory of a job, refusing identifiers that would land
// outside the root.
func (s *Store) dir(jobID string) (string, error) {
	if jobID == "" {
		return "", fmt.Errorf("archive identifier cannot be empty")
	}
	dir := filepath.Join(s.root, jobID)
	rel, err := filepath.Rel(s.root, dir)
	if err != nil || rel == "." || rel == "" || strings.HasPrefix(rel, "..") || strings.ContainsRune(rel, filepath.Separator) {
		return "", fmt.Errorf("refusing archive path outside root")
	}
	return dir, nil
}
