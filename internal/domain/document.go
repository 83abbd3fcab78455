package domain

import (
	"fmt"
	"time"
)

// Document represents an immutable source document registered for processing.
// Chunking and generation never mutate it; re-runs create new Jobs against it.
type Document struct {
	ID         string
	Name       string
	Path       string // local filesystem path, empty when stored remotely
	StorageKey string // object storage key, empty for local documents
	PageCount  int
	ByteSize   int64
	CreatedAt  time.Time
}

// NewDocument creates a new Document instance
func NewDocument(id, name, path, storageKey string, pageCount int, byteSize int64, createdAt time.Time) *Document {
	return &Document{
		ID:         id,
		Name:       name,
		Path:       path,
		StorageKey: storageKey,
		PageCount:  pageCount,
		ByteSize:   byteSize,
		CreatedAt:  createdAt,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}
	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}
	if d.Name == "" {
		return fmt.Errorf("document Name is required")
	}
	if d.Path == "" && d.StorageKey == "" {
		return fmt.Errorf("document must have either Path or StorageKey")
	}
	if d.PageCount < 0 {
		return fmt.Errorf("document PageCount cannot be negative")
	}
	return nil
}
