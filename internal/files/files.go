package files

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrMissingInput is returned when an upload carries no file part.
	ErrMissingInput = errors.New("missing file input")

	// ErrNotFound is returned for unknown or expired identifiers.
	ErrNotFound = errors.New("file not found")

	// ErrStorageInconsistency means a record exists but its blob does not.
	ErrStorageInconsistency = errors.New("storage inconsistency")
)

// FileRecord represents the metadata of a stored file
type FileRecord struct {
	ID           string    `json:"id" bson:"_id"`
	StoredName   string    `json:"-" bson:"storedName"`
	OriginalName string    `json:"originalName" bson:"originalName"`
	Size         int64     `json:"size" bson:"size"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
}

// ExpiresAt reports when the record leaves the retention window.
func (f *FileRecord) ExpiresAt(retention time.Duration) time.Time {
	return f.CreatedAt.Add(retention)
}

// IsExpired reports whether the record is past its retention window at now.
func (f *FileRecord) IsExpired(now time.Time, retention time.Duration) bool {
	return !now.Before(f.ExpiresAt(retention))
}

// Repository defines the interface for storing and retrieving file metadata.
// Implementations return ErrNotFound when a record does not exist.
type Repository interface {
	Create(ctx context.Context, file *FileRecord) error
	FindByID(ctx context.Context, id string) (*FileRecord, error)
	ListExpired(ctx context.Context, cutoff time.Time) ([]*FileRecord, error)
	Delete(ctx context.Context, id string) error
}
