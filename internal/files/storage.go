package files

import (
	"errors"
	"io"
	"time"
)

// ErrBlobNotFound is returned by Storage when the named blob does not exist.
var ErrBlobNotFound = errors.New("blob not found")

// Storage defines the interface for the physical file storage
type Storage interface {
	// Save writes content under name and returns the number of bytes written
	Save(name string, content io.Reader) (int64, error)

	// Open returns a reader for the blob content
	Open(name string) (io.ReadCloser, error)

	// Delete removes a blob, it is not an error if the blob is already gone
	Delete(name string) error

	// RemoveOlderThan deletes blobs last modified before cutoff
	RemoveOlderThan(cutoff time.Time) (int, error)
}
