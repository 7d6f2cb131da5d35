package api

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

const (
	maxIDsPerBulkDelete = 100
	maxBulkDeleteBody   = 64 << 10
)

// AdminHandler serves the management API for every configured resource
type AdminHandler struct {
	service   simplecms.Service
	validator Validator
	logger    *slog.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(service simplecms.Service, validator Validator, logger *slog.Logger) *AdminHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		service:   service,
		validator: validator,
		logger:    logger,
	}
}

// Routes returns the routes for admin record management
func (h *AdminHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/{resource}", func(r chi.Router) {
		r.Use(resourceContext(h.service, h.logger))

		r.Get("/", h.ListRecords)
		r.Post("/", h.CreateRecord)
		r.Get("/stats", h.GetStats)
		r.With(RequestSizeLimitMiddleware(maxBulkDeleteBody)).Post("/bulk-delete", h.BulkDelete)

		r.Get("/{id}", h.GetRecord)
		r.Put("/{id}", h.UpdateRecord)
		r.Delete("/{id}", h.DeleteRecord)
		r.Get("/{id}/attachment", h.DownloadAttachment)
	})

	return r
}

// ListRecords lists records with search, filters, sorting and paging
func (h *AdminHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	cfg := resourceFrom(r)
	filter, err := parseListFilter(cfg, r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, "Invalid list parameters", err)
		return
	}

	page, err := h.service.ListRecords(r.Context(), simplecms.ListRecordsRequest{
		Resource: cfg.Name,
		Filter:   filter,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to list records", err)
		return
	}

	render.JSON(w, r, newPageResponse(page, newRecordResponse))
}

// GetStats returns the record totals for a resource
func (h *AdminHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	cfg := resourceFrom(r)
	stats, err := h.service.Stats(r.Context(), cfg.Name)
	if err != nil {
		writeError(w, r, h.logger, "Failed to compute stats", err)
		return
	}
	render.JSON(w, r, stats)
}

// GetRecord returns one record
func (h *AdminHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	cfg := resourceFrom(r)
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, h.logger, "Invalid record ID", err)
		return
	}

	record, err := h.service.GetRecord(r.Context(), cfg.Name, id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to get record", err)
		return
	}
	render.JSON(w, r, newRecordResponse(record))
}

// CreateRecord creates a record from a multipart form or a JSON body
func (h *AdminHandler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	cfg := resourceFrom(r)
	h.limitBody(w, r)

	in, err := parseRecordInput(r, cfg)
	if err != nil {
		writeError(w, r, h.logger, "Invalid create request", err)
		return
	}
	defer in.Close()

	if err := h.validate(cfg, in); err != nil {
		writeError(w, r, h.logger, "Create request rejected", err)
		return
	}

	record, err := h.service.CreateRecord(r.Context(), simplecms.CreateRecordRequest{
		Resource:   cfg.Name,
		Fields:     in.fields,
		Attachment: in.instruction(),
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to create record", err)
		return
	}

	h.logger.Info("Record created", "resource", cfg.Name, "record_id", record.ID.String())
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, newRecordResponse(record))
}

// UpdateRecord replaces a record's fields and applies the attachment instruction
func (h *AdminHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	cfg := resourceFrom(r)
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, h.logger, "Invalid record ID", err)
		return
	}
	h.limitBody(w, r)

	in, err := parseRecordInput(r, cfg)
	if err != nil {
		writeError(w, r, h.logger, "Invalid update request", err)
		return
	}
	defer in.Close()

	if err := h.validate(cfg, in); err != nil {
		writeError(w, r, h.logger, "Update request rejected", err)
		return
	}

	record, err := h.service.UpdateRecord(r.Context(), simplecms.UpdateRecordRequest{
		Resource:        cfg.Name,
		ID:              id,
		Fields:          in.fields,
		Attachment:      in.instruction(),
		ExpectedVersion: in.version,
	})
	if err != nil && record == nil {
		writeError(w, r, h.logger, "Failed to update record", err)
		return
	}

	resp := newRecordResponse(record)
	if err != nil {
		// The update is stored; only the previous attachment lingers.
		logReconcile(r, h.logger, err)
		h.logger.Warn("Record updated with leftover attachment", "resource", cfg.Name, "record_id", id.String(), "error", err)
		resp.Warning = "previous attachment could not be removed"
	}

	h.logger.Info("Record updated", "resource", cfg.Name, "record_id", id.String(), "attachment", in.instruction().String())
	render.JSON(w, r, resp)
}

// DeleteRecord removes a record and its attachment
func (h *AdminHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	cfg := resourceFrom(r)
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, h.logger, "Invalid record ID", err)
		return
	}

	if err := h.service.DeleteRecord(r.Context(), cfg.Name, id); err != nil {
		writeError(w, r, h.logger, "Failed to delete record", err)
		return
	}

	h.logger.Info("Record deleted", "resource", cfg.Name, "record_id", id.String())
	render.NoContent(w, r)
}

// BulkDelete removes several records. Failures are reported per record and
// do not stop the remaining deletions.
func (h *AdminHandler) BulkDelete(w http.ResponseWriter, r *http.Request) {
	cfg := resourceFrom(r)

	var req BulkDeleteRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		writeError(w, r, h.logger, "Invalid bulk delete request", fmt.Errorf("%w: invalid JSON body", errBadRequest))
		return
	}

	verr := &ValidationError{}
	if len(req.IDs) == 0 {
		verr.Add("ids", "is required")
	}
	if len(req.IDs) > maxIDsPerBulkDelete {
		verr.Add("ids", "too many ids")
	}
	ids := make([]uuid.UUID, 0, len(req.IDs))
	for _, raw := range req.IDs {
		id, err := uuid.Parse(raw)
		if err != nil {
			verr.Add("ids", "contains an invalid id")
			continue
		}
		ids = append(ids, id)
	}
	if err := verr.Err(); err != nil {
		writeError(w, r, h.logger, "Bulk delete rejected", err)
		return
	}

	result, err := h.service.DeleteRecords(r.Context(), simplecms.DeleteRecordsRequest{
		Resource: cfg.Name,
		IDs:      ids,
	})
	if result == nil {
		writeError(w, r, h.logger, "Failed to delete records", err)
		return
	}

	resp := BulkDeleteResponse{Deleted: make([]string, 0, len(result.Deleted))}
	for _, id := range result.Deleted {
		resp.Deleted = append(resp.Deleted, id.String())
	}
	if len(result.Failed) > 0 {
		logReconcile(r, h.logger, err)
		messages := failureMessages(err)
		resp.Failed = make(map[string]string, len(result.Failed))
		for id := range result.Failed {
			msg, ok := messages[id.String()]
			if !ok {
				msg = "delete failed"
			}
			resp.Failed[id.String()] = msg
		}
		h.logger.Warn("Bulk delete partially failed", "resource", cfg.Name, "failed", len(result.Failed), "error", err)
	}

	h.logger.Info("Records deleted", "resource", cfg.Name, "count", len(resp.Deleted))
	render.JSON(w, r, resp)
}

// DownloadAttachment streams a record's attachment regardless of its
// publication state
func (h *AdminHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	cfg := resourceFrom(r)
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, h.logger, "Invalid record ID", err)
		return
	}
	serveAttachment(w, r, h.logger, h.service, cfg.Name, id)
}

func (h *AdminHandler) limitBody(w http.ResponseWriter, r *http.Request) {
	if h.validator.MaxUploadBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.validator.MaxUploadBytes+formOverhead)
	}
}

func (h *AdminHandler) validate(cfg simplecms.ResourceConfig, in *recordInput) error {
	verr := &ValidationError{}
	h.validator.ValidateFields(cfg, in.fields, verr)
	h.validator.ValidateUpload(cfg, in.upload, verr)
	return verr.Err()
}
