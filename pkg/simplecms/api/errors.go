package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

var (
	// ErrValidationRejected indicates request input failed validation before
	// reaching the record manager
	ErrValidationRejected = errors.New("validation rejected")

	errBadRequest = errors.New("bad request")
)

// ValidationError carries field-level validation messages.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+": "+e.Fields[name])
	}
	return fmt.Sprintf("%s: %s", ErrValidationRejected, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationRejected
}

// Add records a message for field. The first message for a field wins.
func (e *ValidationError) Add(field, message string) {
	if e.Fields == nil {
		e.Fields = make(map[string]string)
	}
	if _, ok := e.Fields[field]; !ok {
		e.Fields[field] = message
	}
}

// Err returns e when it holds at least one message, nil otherwise.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}

// ErrorResponse is the body of every non-2xx JSON response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// classify maps err onto a status code and a client-safe error body.
// Messages never include blob paths.
func classify(err error) (int, ErrorResponse) {
	var verr *ValidationError
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity, ErrorResponse{Error: "validation_failed", Message: "validation failed", Fields: verr.Fields}
	case errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge, ErrorResponse{Error: "payload_too_large", Message: fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)}
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, ErrorResponse{Error: "bad_request", Message: err.Error()}
	}

	// Kind first: a conflict reached after a blob side effect is not retryable.
	switch simplecms.KindOf(err) {
	case simplecms.ErrPersistenceFailed, simplecms.ErrInconsistentState:
		return http.StatusInternalServerError, ErrorResponse{Error: "operation_failed", Message: "operation failed"}
	case simplecms.ErrAttachmentDeleteFailed:
		return http.StatusInternalServerError, ErrorResponse{Error: "attachment_delete_failed", Message: "attachment could not be removed"}
	case simplecms.ErrStoreUnavailable:
		return http.StatusServiceUnavailable, ErrorResponse{Error: "store_unavailable", Message: "storage is temporarily unavailable"}
	}

	switch {
	case errors.Is(err, simplecms.ErrResourceNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "resource_not_found", Message: "unknown resource"}
	case errors.Is(err, simplecms.ErrNoAttachment):
		return http.StatusNotFound, ErrorResponse{Error: "no_attachment", Message: "record has no attachment"}
	case errors.Is(err, simplecms.ErrBlobNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "attachment_missing", Message: "attachment is not available"}
	case errors.Is(err, simplecms.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Error: "not_found", Message: "record not found"}
	case errors.Is(err, simplecms.ErrConflict):
		return http.StatusConflict, ErrorResponse{Error: "conflict", Message: "record was modified by another request"}
	case errors.Is(err, simplecms.ErrInvalidFilter):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_filter", Message: invalidMessage(err, simplecms.ErrInvalidFilter)}
	case errors.Is(err, simplecms.ErrInvalidInstruction):
		return http.StatusBadRequest, ErrorResponse{Error: "invalid_instruction", Message: "attachment instruction is not allowed for this operation"}
	case errors.Is(err, simplecms.ErrAttachmentDeleteFailed):
		return http.StatusInternalServerError, ErrorResponse{Error: "attachment_delete_failed", Message: "attachment could not be removed"}
	case errors.Is(err, simplecms.ErrStoreUnavailable):
		return http.StatusServiceUnavailable, ErrorResponse{Error: "store_unavailable", Message: "storage is temporarily unavailable"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Error: "internal_error", Message: "internal server error"}
	}
}

// invalidMessage returns the query-building message, which names fields but
// never paths. RecordError text is replaced by the bare sentinel.
func invalidMessage(err, kind error) string {
	var rerr *simplecms.RecordError
	if errors.As(err, &rerr) {
		return kind.Error()
	}
	return err.Error()
}

// writeError logs err and renders the mapped JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, msg string, err error) {
	status, body := classify(err)
	logReconcile(r, logger, err)
	if status >= http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), msg, "status", status, "error", err)
	} else {
		logger.DebugContext(r.Context(), msg, "status", status, "error", err)
	}
	render.Status(r, status)
	render.JSON(w, r, body)
}

// logReconcile emits the blob paths a reconciliation job needs. These never
// go back to the client.
func logReconcile(r *http.Request, logger *slog.Logger, err error) {
	for _, rerr := range recordErrors(err) {
		if rerr.OrphanedBlob != "" {
			logger.ErrorContext(r.Context(), "Orphaned attachment blob",
				"resource", rerr.Resource, "record_id", rerr.RecordID, "orphaned_blob", rerr.OrphanedBlob)
		}
		if rerr.DanglingRef != "" {
			logger.ErrorContext(r.Context(), "Dangling attachment reference",
				"resource", rerr.Resource, "record_id", rerr.RecordID, "dangling_ref", rerr.DanglingRef)
		}
	}
}

// recordErrors flattens err, including errors.Join trees, into its RecordErrors.
func recordErrors(err error) []*simplecms.RecordError {
	if err == nil {
		return nil
	}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		if _, isRecord := err.(*simplecms.RecordError); !isRecord {
			var out []*simplecms.RecordError
			for _, e := range joined.Unwrap() {
				out = append(out, recordErrors(e)...)
			}
			return out
		}
	}
	var rerr *simplecms.RecordError
	if errors.As(err, &rerr) {
		return []*simplecms.RecordError{rerr}
	}
	return nil
}

// failureMessages maps each failed record of a bulk operation to its
// client-safe message.
func failureMessages(err error) map[string]string {
	out := make(map[string]string)
	for _, rerr := range recordErrors(err) {
		if rerr.RecordID == uuid.Nil {
			continue
		}
		_, body := classify(rerr)
		out[rerr.RecordID.String()] = body.Message
	}
	return out
}
