package api

import (
	"context"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/urlstrategy"
)

// PublicHandler serves the read-only public view: published articles and
// news, and announcements that have not expired.
type PublicHandler struct {
	service simplecms.Service
	urls    urlstrategy.URLStrategy
	logger  *slog.Logger
}

// NewPublicHandler creates a new public handler
func NewPublicHandler(service simplecms.Service, urls urlstrategy.URLStrategy, logger *slog.Logger) *PublicHandler {
	if urls == nil {
		urls = urlstrategy.NewDefaultStrategy("")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PublicHandler{
		service: service,
		urls:    urls,
		logger:  logger,
	}
}

// Routes returns the routes for the public view
func (h *PublicHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/{resource}", func(r chi.Router) {
		r.Use(resourceContext(h.service, h.logger))

		r.Get("/", h.ListRecords)
		r.Get("/{id}", h.GetRecord)
		r.Get("/{id}/attachment", h.DownloadAttachment)
	})

	return r
}

// ListRecords lists the publicly visible records
func (h *PublicHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	cfg := resourceFrom(r)
	filter, err := parseListFilter(cfg, r.URL.Query())
	if err != nil {
		writeError(w, r, h.logger, "Invalid list parameters", err)
		return
	}

	page, err := h.service.ListPublished(r.Context(), simplecms.ListRecordsRequest{
		Resource: cfg.Name,
		Filter:   filter,
	})
	if err != nil {
		writeError(w, r, h.logger, "Failed to list published records", err)
		return
	}

	render.JSON(w, r, newPageResponse(page, h.convert(r.Context())))
}

// GetRecord returns one publicly visible record with its attachment URL
func (h *PublicHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	cfg := resourceFrom(r)
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, h.logger, "Invalid record ID", err)
		return
	}

	record, err := h.service.GetPublished(r.Context(), cfg.Name, id)
	if err != nil {
		writeError(w, r, h.logger, "Failed to get published record", err)
		return
	}
	render.JSON(w, r, newPublicRecordResponse(r.Context(), h.urls, record))
}

// DownloadAttachment streams the attachment of a publicly visible record
func (h *PublicHandler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	cfg := resourceFrom(r)
	id, err := recordID(r)
	if err != nil {
		writeError(w, r, h.logger, "Invalid record ID", err)
		return
	}
	if _, err := h.service.GetPublished(r.Context(), cfg.Name, id); err != nil {
		writeError(w, r, h.logger, "Attachment not published", err)
		return
	}
	serveAttachment(w, r, h.logger, h.service, cfg.Name, id)
}

func (h *PublicHandler) convert(ctx context.Context) func(*simplecms.Record) RecordResponse {
	return func(record *simplecms.Record) RecordResponse {
		return newPublicRecordResponse(ctx, h.urls, record)
	}
}

// serveAttachment streams a record's attachment with its stored type and
// file name.
func serveAttachment(w http.ResponseWriter, r *http.Request, logger *slog.Logger, svc simplecms.Service, resource string, id uuid.UUID) {
	reader, ref, err := svc.OpenAttachment(r.Context(), resource, id)
	if err != nil {
		writeError(w, r, logger, "Failed to open attachment", err)
		return
	}
	defer reader.Close()

	contentType := ref.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("X-Content-Type-Options", "nosniff")
	if ref.FileName != "" {
		w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": ref.FileName}))
	}
	if ref.SizeBytes > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(ref.SizeBytes, 10))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, reader); err != nil {
		logger.Error("Failed to stream attachment", "resource", resource, "record_id", id.String(), "error", err)
	}
}
