package files

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Subjects published through the Notifier
const (
	SubjectUploaded = "files.uploaded"
	SubjectExpired  = "files.expired"
)

// maxExtLen bounds the extension carried over into a stored name.
const maxExtLen = 16

// Notifier publishes file lifecycle events
type Notifier interface {
	Publish(ctx context.Context, subject string, payload any) error
}

// Service provides application-level file operations
type Service struct {
	storage   Storage
	repo      Repository
	notifier  Notifier
	retention time.Duration
	now       func() time.Time
}

// NewService creates a new file service. notifier may be nil.
func NewService(storage Storage, repo Repository, notifier Notifier, retention time.Duration) *Service {
	return &Service{
		storage:   storage,
		repo:      repo,
		notifier:  notifier,
		retention: retention,
		now:       time.Now,
	}
}

// Retention returns the configured retention window
func (s *Service) Retention() time.Duration {
	return s.retention
}

// UploadRequest represents a file upload request
type UploadRequest struct {
	Name    string
	Content io.Reader
}

// Upload writes the content to storage and then saves its metadata.
// If the metadata cannot be saved the blob is removed again.
func (s *Service) Upload(ctx context.Context, req *UploadRequest) (*FileRecord, error) {
	if req == nil || req.Content == nil {
		return nil, ErrMissingInput
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	storedName := generateStoredName(req.Name, now)

	size, err := s.storage.Save(storedName, req.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	file := &FileRecord{
		ID:           uuid.NewString(),
		StoredName:   storedName,
		OriginalName: req.Name,
		Size:         size,
		CreatedAt:    now,
	}

	if err := s.repo.Create(ctx, file); err != nil {
		if delErr := s.storage.Delete(storedName); delErr != nil {
			slog.Error("Failed to remove blob after metadata failure",
				"error", delErr,
				"stored_name", storedName,
			)
		}
		return nil, fmt.Errorf("failed to save file metadata: %w", err)
	}

	s.publish(ctx, SubjectUploaded, file)

	return file, nil
}

// Download looks up a file by its public ID and opens its content.
// The caller must close the returned reader.
func (s *Service) Download(ctx context.Context, id string) (*FileRecord, io.ReadCloser, error) {
	file, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("failed to find file: %w", err)
	}

	// The sweeper may lag behind the retention window.
	if file.IsExpired(s.now(), s.retention) {
		return nil, nil, ErrNotFound
	}

	content, err := s.storage.Open(file.StoredName)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, nil, fmt.Errorf("%w: blob %q missing for file %s",
				ErrStorageInconsistency, file.StoredName, file.ID)
		}
		return nil, nil, fmt.Errorf("failed to open file content: %w", err)
	}

	return file, content, nil
}

func (s *Service) publish(ctx context.Context, subject string, file *FileRecord) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Publish(ctx, subject, file); err != nil {
		slog.Warn("Failed to publish event",
			"error", err,
			"subject", subject,
			"file_id", file.ID,
		)
	}
}

// generateStoredName builds "<unix-millis>-<uuid><ext>" keeping a sanitized
// extension of the original filename.
func generateStoredName(originalName string, now time.Time) string {
	return fmt.Sprintf("%d-%s%s", now.UnixMilli(), uuid.NewString(), extension(originalName))
}

// extension returns the extension of the base name including the dot.
// Extensions that are too long or not alphanumeric are dropped.
func extension(name string) string {
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	dot := strings.LastIndexByte(name, '.')
	if dot <= 0 || dot == len(name)-1 {
		return ""
	}
	ext := name[dot+1:]
	if len(ext) > maxExtLen {
		return ""
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return ""
		}
	}
	return "." + ext
}
