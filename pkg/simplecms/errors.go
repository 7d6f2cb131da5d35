package simplecms

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Error types
var (
	// ErrNotFound indicates a record was not found
	ErrNotFound = errors.New("record not found")

	// ErrConflict indicates a record changed since it was read
	ErrConflict = errors.New("record version conflict")

	// ErrStoreUnavailable indicates the blob or record store could not complete a write
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrPersistenceFailed indicates a record write failed after a new blob was stored
	ErrPersistenceFailed = errors.New("record persistence failed after blob store")

	// ErrInconsistentState indicates a blob was removed but the record still references it
	ErrInconsistentState = errors.New("record references a deleted attachment")

	// ErrAttachmentDeleteFailed indicates an attachment blob could not be removed
	ErrAttachmentDeleteFailed = errors.New("attachment delete failed")

	// ErrInvalidInstruction indicates an attachment instruction not allowed for the operation
	ErrInvalidInstruction = errors.New("invalid attachment instruction")

	// ErrInvalidFilter indicates a filter or sort on a field the resource does not allow
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrResourceNotFound indicates an unknown resource type
	ErrResourceNotFound = errors.New("resource not found")

	// ErrBlobNotFound indicates a blob path does not exist in the store
	ErrBlobNotFound = errors.New("blob not found")

	// ErrNoAttachment indicates a record has no attachment to serve
	ErrNoAttachment = errors.New("record has no attachment")
)

// RecordError represents a failed record manager operation. Kind is one of
// the sentinel errors above; Err is the underlying cause. errors.Is matches
// both.
type RecordError struct {
	Resource string
	RecordID uuid.UUID
	Op       string
	Kind     error
	Err      error

	// OrphanedBlob is a stored blob no record references.
	OrphanedBlob string
	// DanglingRef is a path the record still holds after its blob was deleted.
	DanglingRef string
}

func (e *RecordError) Error() string {
	msg := fmt.Sprintf("%s operation %s failed for record %s: %v", e.Resource, e.Op, e.RecordID, e.Kind)
	if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	if e.OrphanedBlob != "" {
		msg += " (orphaned blob " + e.OrphanedBlob + ")"
	}
	if e.DanglingRef != "" {
		msg += " (dangling ref " + e.DanglingRef + ")"
	}
	return msg
}

func (e *RecordError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Err != nil && e.Err != e.Kind {
		errs = append(errs, e.Err)
	}
	return errs
}

// KindOf returns the primary error kind of err, or nil when err is not a
// RecordError. Plain sentinel errors are returned as-is.
func KindOf(err error) error {
	if err == nil {
		return nil
	}
	var re *RecordError
	if errors.As(err, &re) {
		return re.Kind
	}
	for _, kind := range []error{ErrNotFound, ErrConflict, ErrInvalidInstruction, ErrInvalidFilter, ErrResourceNotFound} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// StorageError represents an error related to blob storage operations
type StorageError struct {
	Backend string
	Key     string
	Op      string
	Err     error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s on backend %s: %v", e.Op, e.Key, e.Backend, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
