package simplecms

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// BlobStore defines the interface for attachment storage backends
type BlobStore interface {
	// Put stores the content read from reader and returns the path that
	// identifies it. PathHint seeds the path; the store guarantees uniqueness.
	Put(ctx context.Context, reader io.Reader, params PutParams) (string, error)

	// Open returns a reader for the blob at path. Missing paths yield ErrBlobNotFound.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the blob at path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether a blob is stored at path.
	Exists(ctx context.Context, path string) (bool, error)
}

// PutParams contains parameters for storing a blob
type PutParams struct {
	PathHint string
	MimeType string
	Size     int64
}

// Repository defines the interface for record persistence
type Repository interface {
	// InsertRecord persists a new record and sets its timestamps and version.
	InsertRecord(ctx context.Context, record *Record) error

	// GetRecord returns ErrNotFound when no record matches.
	GetRecord(ctx context.Context, resource string, id uuid.UUID) (*Record, error)

	// UpdateRecord replaces the record's fields and attachment only if the
	// stored version equals expectedVersion, returning ErrConflict otherwise.
	// On success record.Version and record.UpdatedAt are refreshed.
	UpdateRecord(ctx context.Context, record *Record, expectedVersion int) error

	// DeleteRecord returns ErrNotFound when no record matches.
	DeleteRecord(ctx context.Context, resource string, id uuid.UUID) error

	// QueryRecords returns one page of matching records and the total match count.
	QueryRecords(ctx context.Context, q Query) ([]*Record, int64, error)

	// CountByField groups a resource's records by the value of one field.
	CountByField(ctx context.Context, resource, field string) (map[string]int64, error)
}

// EventSink defines the interface for record lifecycle events
type EventSink interface {
	RecordCreated(ctx context.Context, record *Record) error
	RecordUpdated(ctx context.Context, record *Record) error
	RecordDeleted(ctx context.Context, resource string, id uuid.UUID) error
	AttachmentStored(ctx context.Context, record *Record, ref *AttachmentRef) error
	AttachmentRemoved(ctx context.Context, resource string, id uuid.UUID, path string) error
}
