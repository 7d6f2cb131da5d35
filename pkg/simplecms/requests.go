package simplecms

import "github.com/google/uuid"

// Request/Response DTOs for service operations

// CreateRecordRequest contains parameters for creating a record. The
// attachment instruction must be Keep or Replace.
type CreateRecordRequest struct {
	Resource   string
	Fields     Fields
	Attachment AttachmentInstruction
}

// UpdateRecordRequest contains parameters for updating a record. Fields
// replace the stored fields wholesale.
type UpdateRecordRequest struct {
	Resource   string
	ID         uuid.UUID
	Fields     Fields
	Attachment AttachmentInstruction
	// ExpectedVersion guards against lost updates; nil uses the version read
	// at the start of the update.
	ExpectedVersion *int
}

// ListRecordsRequest contains parameters for listing records
type ListRecordsRequest struct {
	Resource string
	Filter   ListFilter
}

// DeleteRecordsRequest contains parameters for deleting several records
type DeleteRecordsRequest struct {
	Resource string
	IDs      []uuid.UUID
}
