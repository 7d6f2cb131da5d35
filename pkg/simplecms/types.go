package simplecms

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// Fields holds the domain attributes of a record. The core never interprets
// them beyond search, filter and sort lookups.
type Fields map[string]interface{}

// String returns the field value as a string, or "" if absent or not a string.
func (f Fields) String(name string) string {
	if v, ok := f[name].(string); ok {
		return v
	}
	return ""
}

// Clone returns a shallow copy of the fields.
func (f Fields) Clone() Fields {
	if f == nil {
		return Fields{}
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// AttachmentRef is the persisted reference from a record to its blob.
// Path is the opaque handle returned by the BlobStore; the remaining fields
// are descriptive metadata captured at upload time.
type AttachmentRef struct {
	Path      string `json:"path"`
	FileName  string `json:"file_name,omitempty"`
	MimeType  string `json:"mime_type,omitempty"`
	SizeBytes int64  `json:"size_bytes,omitempty"`
}

// Clone returns a copy of the reference, or nil.
func (a *AttachmentRef) Clone() *AttachmentRef {
	if a == nil {
		return nil
	}
	c := *a
	return &c
}

// Record is a managed CMS record with an optional attachment.
type Record struct {
	ID         uuid.UUID      `json:"id"`
	Resource   string         `json:"resource"`
	Fields     Fields         `json:"fields"`
	Attachment *AttachmentRef `json:"attachment,omitempty"`
	Version    int            `json:"version"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// Clone returns a deep enough copy for stores to hand out without sharing
// mutable state with callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	c.Fields = r.Fields.Clone()
	c.Attachment = r.Attachment.Clone()
	return &c
}

// Upload is an incoming file awaiting storage.
type Upload struct {
	Reader   io.Reader
	FileName string
	MimeType string
	Size     int64
}

// Page is one slice of a paginated listing.
type Page struct {
	Items       []*Record `json:"items"`
	TotalCount  int64     `json:"total_count"`
	CurrentPage int       `json:"current_page"`
	PageSize    int       `json:"page_size"`
	TotalPages  int       `json:"total_pages"`
	HasNext     bool      `json:"has_next"`
	HasPrev     bool      `json:"has_prev"`
}

// Stats summarizes a resource's records.
type Stats struct {
	Resource string           `json:"resource"`
	Total    int64            `json:"total"`
	Field    string           `json:"field,omitempty"`
	ByValue  map[string]int64 `json:"by_value,omitempty"`
}

// BulkDeleteResult reports the outcome of DeleteMany.
type BulkDeleteResult struct {
	Deleted []uuid.UUID          `json:"deleted"`
	Failed  map[uuid.UUID]string `json:"failed,omitempty"`
}

// DanglingAttachment is a record whose attachment names a missing blob.
type DanglingAttachment struct {
	RecordID uuid.UUID `json:"record_id"`
	Path     string    `json:"path"`
}

// ReconcileReport is the result of CheckAttachments.
type ReconcileReport struct {
	Resource string               `json:"resource"`
	Scanned  int                  `json:"scanned"`
	Dangling []DanglingAttachment `json:"dangling"`
}
