package api

import (
	"context"
	"time"

	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/urlstrategy"
)

// AttachmentResponse describes a record's attachment without its storage path
type AttachmentResponse struct {
	FileName  string `json:"file_name"`
	MimeType  string `json:"mime_type"`
	SizeBytes int64  `json:"size_bytes"`
}

// RecordResponse is the response body for a record
type RecordResponse struct {
	ID            string                 `json:"id"`
	Resource      string                 `json:"resource"`
	Fields        map[string]interface{} `json:"fields"`
	Attachment    *AttachmentResponse    `json:"attachment,omitempty"`
	AttachmentURL string                 `json:"attachment_url,omitempty"`
	Version       int                    `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
	Warning       string                 `json:"warning,omitempty"`
}

// PageResponse is the response body for a listing
type PageResponse struct {
	Items       []RecordResponse `json:"items"`
	TotalCount  int64            `json:"total_count"`
	CurrentPage int              `json:"current_page"`
	PageSize    int              `json:"page_size"`
	TotalPages  int              `json:"total_pages"`
	HasNext     bool             `json:"has_next"`
	HasPrev     bool             `json:"has_prev"`
}

// BulkDeleteResponse reports which records a bulk delete removed
type BulkDeleteResponse struct {
	Deleted []string          `json:"deleted"`
	Failed  map[string]string `json:"failed,omitempty"`
}

func newRecordResponse(record *simplecms.Record) RecordResponse {
	fields := map[string]interface{}(record.Fields)
	if fields == nil {
		fields = map[string]interface{}{}
	}
	resp := RecordResponse{
		ID:        record.ID.String(),
		Resource:  record.Resource,
		Fields:    fields,
		Version:   record.Version,
		CreatedAt: record.CreatedAt,
		UpdatedAt: record.UpdatedAt,
	}
	if a := record.Attachment; a != nil {
		resp.Attachment = &AttachmentResponse{
			FileName:  a.FileName,
			MimeType:  a.MimeType,
			SizeBytes: a.SizeBytes,
		}
	}
	return resp
}

// newPublicRecordResponse adds the attachment download URL.
func newPublicRecordResponse(ctx context.Context, urls urlstrategy.URLStrategy, record *simplecms.Record) RecordResponse {
	resp := newRecordResponse(record)
	if urls != nil {
		resp.AttachmentURL = urlstrategy.Attach(ctx, urls, record)
	}
	return resp
}

func newPageResponse(page *simplecms.Page, convert func(*simplecms.Record) RecordResponse) PageResponse {
	items := make([]RecordResponse, 0, len(page.Items))
	for _, record := range page.Items {
		items = append(items, convert(record))
	}
	return PageResponse{
		Items:       items,
		TotalCount:  page.TotalCount,
		CurrentPage: page.CurrentPage,
		PageSize:    page.PageSize,
		TotalPages:  page.TotalPages,
		HasNext:     page.HasNext,
		HasPrev:     page.HasPrev,
	}
}
