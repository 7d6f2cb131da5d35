package simplecms

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Service defines the main interface for the record manager
type Service interface {
	// Record operations
	CreateRecord(ctx context.Context, req CreateRecordRequest) (*Record, error)
	GetRecord(ctx context.Context, resource string, id uuid.UUID) (*Record, error)
	// UpdateRecord may return a non-nil record together with an error when the
	// update was persisted but the previous attachment could not be removed.
	UpdateRecord(ctx context.Context, req UpdateRecordRequest) (*Record, error)
	DeleteRecord(ctx context.Context, resource string, id uuid.UUID) error
	DeleteRecords(ctx context.Context, req DeleteRecordsRequest) (*BulkDeleteResult, error)
	ListRecords(ctx context.Context, req ListRecordsRequest) (*Page, error)
	Stats(ctx context.Context, resource string) (*Stats, error)

	// Public read view
	ListPublished(ctx context.Context, req ListRecordsRequest) (*Page, error)
	GetPublished(ctx context.Context, resource string, id uuid.UUID) (*Record, error)

	// Attachment access
	OpenAttachment(ctx context.Context, resource string, id uuid.UUID) (io.ReadCloser, *AttachmentRef, error)
	AttachmentExists(ctx context.Context, ref *AttachmentRef) (bool, error)

	// Resource configuration
	Resource(name string) (ResourceConfig, error)
	Resources() []ResourceConfig
}
