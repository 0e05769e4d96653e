package fs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/souvikree/myShare/internal/files"
)

const tmpSuffix = ".tmp"

// Storage implements files.Storage using the filesystem
type Storage struct {
	dataDir string
}

// NewStorage creates the data directory if needed and returns a storage
// rooted at it.
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create data directory %s: %w", dataDir, err)
	}

	return &Storage{dataDir: dataDir}, nil
}

// DataDir returns the directory blobs are stored in
func (s *Storage) DataDir() string {
	return s.dataDir
}

// Save streams content into a temp file, syncs it and renames it into place.
func (s *Storage) Save(name string, content io.Reader) (int64, error) {
	filePath, err := s.path(name)
	if err != nil {
		return 0, err
	}
	tmpPath := filePath + tmpSuffix

	file, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return 0, fmt.Errorf("failed to create file: %w", err)
	}

	size, err := io.Copy(file, content)
	if err != nil {
		file.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to write file content: %w", err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to sync file: %w", err)
	}

	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tmpPath, filePath); err != nil {
		os.Remove(tmpPath)
		return 0, fmt.Errorf("failed to move file into place: %w", err)
	}

	return size, nil
}

// Open returns a reader for the file content
func (s *Storage) Open(name string) (io.ReadCloser, error) {
	filePath, err := s.path(name)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, files.ErrBlobNotFound
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, nil
}

// Delete removes a file by name
func (s *Storage) Delete(name string) error {
	filePath, err := s.path(name)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil // File already deleted
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}

	return nil
}

// RemoveOlderThan deletes regular files, temp files included, whose
// modification time is before cutoff.
func (s *Storage) RemoveOlderThan(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return 0, fmt.Errorf("failed to read data directory: %w", err)
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		err = os.Remove(filepath.Join(s.dataDir, entry.Name()))
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, fmt.Errorf("failed to delete %s: %w", entry.Name(), err))
			continue
		}
		removed++
	}

	return removed, errors.Join(errs...)
}

// path resolves name inside the data directory, rejecting anything that
// is not a plain file name.
func (s *Storage) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	return filepath.Join(s.dataDir, name), nil
}
