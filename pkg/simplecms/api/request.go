package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Multipart form keys with a meaning beyond record fields.
const (
	fieldAttachment      = "attachment"
	fieldClearAttachment = "clear_attachment"
	fieldVersion         = "version"
)

const (
	sniffLen = 512
	// formOverhead is the slack above MaxUploadBytes allowed for the
	// non-file parts of a multipart body.
	formOverhead    = 1 << 20
	multipartMemory = 8 << 20
)

// RecordPayload is the JSON body accepted by create and update.
type RecordPayload struct {
	Fields          map[string]interface{} `json:"fields"`
	ClearAttachment bool                   `json:"clear_attachment,omitempty"`
	Version         *int                   `json:"version,omitempty"`
}

// BulkDeleteRequest is the body of POST /bulk-delete.
type BulkDeleteRequest struct {
	IDs []string `json:"ids"`
}

type recordInput struct {
	fields  simplecms.Fields
	upload  *simplecms.Upload
	clear   bool
	version *int
	file    multipart.File
	form    *multipart.Form
}

func (in *recordInput) instruction() simplecms.AttachmentInstruction {
	return simplecms.AttachmentInstruction{Upload: in.upload, Clear: in.clear}
}

func (in *recordInput) Close() {
	if in.file != nil {
		in.file.Close()
	}
	if in.form != nil {
		in.form.RemoveAll()
	}
}

// parseRecordInput reads a multipart or JSON create/update body.
func parseRecordInput(r *http.Request, cfg simplecms.ResourceConfig) (*recordInput, error) {
	mediaType := ""
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mt, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid content type", errBadRequest)
		}
		mediaType = mt
	}
	switch mediaType {
	case "multipart/form-data":
		return parseMultipart(r, cfg)
	case "application/json", "":
		return parseJSON(r)
	default:
		return nil, fmt.Errorf("%w: unsupported content type %q", errBadRequest, mediaType)
	}
}

func parseJSON(r *http.Request) (*recordInput, error) {
	var payload RecordPayload
	if err := render.DecodeJSON(r.Body, &payload); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: invalid JSON body", errBadRequest)
	}
	fields := simplecms.Fields(payload.Fields)
	if fields == nil {
		fields = simplecms.Fields{}
	}
	return &recordInput{fields: fields, clear: payload.ClearAttachment, version: payload.Version}, nil
}

func parseMultipart(r *http.Request, cfg simplecms.ResourceConfig) (*recordInput, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: invalid multipart body", errBadRequest)
	}
	in := &recordInput{fields: simplecms.Fields{}, form: r.MultipartForm}

	for key, values := range r.MultipartForm.Value {
		if len(values) == 0 {
			continue
		}
		value := values[0]
		switch key {
		case fieldClearAttachment:
			clearAttachment, err := strconv.ParseBool(value)
			if err != nil {
				in.Close()
				return nil, fmt.Errorf("%w: %s must be a boolean", errBadRequest, fieldClearAttachment)
			}
			in.clear = clearAttachment
		case fieldVersion:
			version, err := strconv.Atoi(value)
			if err != nil {
				in.Close()
				return nil, fmt.Errorf("%w: %s must be an integer", errBadRequest, fieldVersion)
			}
			in.version = &version
		default:
			in.fields[key] = coerceValue(cfg, key, value)
		}
	}

	if files := r.MultipartForm.File[fieldAttachment]; len(files) > 0 {
		if err := in.openUpload(files[0]); err != nil {
			in.Close()
			return nil, err
		}
	}
	return in, nil
}

// openUpload opens the file part and sniffs its MIME type from the content.
// The declared part type is ignored.
func (in *recordInput) openUpload(fh *multipart.FileHeader) error {
	f, err := fh.Open()
	if err != nil {
		return fmt.Errorf("open upload: %w", err)
	}
	in.file = f

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	in.upload = &simplecms.Upload{
		Reader:   io.MultiReader(bytes.NewReader(head), f),
		FileName: fh.Filename,
		MimeType: sniffMimeType(head),
		Size:     fh.Size,
	}
	return nil
}

func sniffMimeType(head []byte) string {
	ct := http.DetectContentType(head)
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return ct
	}
	return mt
}

// coerceValue turns "true"/"false" into booleans for filterable fields so
// that form and query values compare equal to JSON-submitted ones.
func coerceValue(cfg simplecms.ResourceConfig, field, value string) interface{} {
	if !containsString(cfg.FilterFields, field) {
		return value
	}
	switch value {
	case "true":
		return true
	case "false":
		return false
	}
	return value
}

// parseListFilter reads search, paging, sorting and filter parameters.
// Unknown parameters are ignored.
func parseListFilter(cfg simplecms.ResourceConfig, q url.Values) (simplecms.ListFilter, error) {
	filter := simplecms.ListFilter{
		Search:    q.Get("search"),
		SortBy:    q.Get("sort_by"),
		SortOrder: q.Get("sort_order"),
	}
	if filter.Search == "" {
		filter.Search = q.Get("q")
	}

	var err error
	if filter.Page, err = intParam(q, "page"); err != nil {
		return filter, err
	}
	if filter.PageSize, err = intParam(q, "page_size"); err != nil {
		return filter, err
	}

	for _, field := range cfg.FilterFields {
		if v := strings.TrimSpace(q.Get(field)); v != "" {
			if filter.Equals == nil {
				filter.Equals = make(map[string]interface{})
			}
			filter.Equals[field] = coerceValue(cfg, field, v)
		}
	}
	if cfg.ExpiryField != "" {
		if v := strings.TrimSpace(q.Get(cfg.ExpiryField + "_from")); v != "" {
			filter.AtLeast = map[string]interface{}{cfg.ExpiryField: v}
		}
	}
	return filter, nil
}

func intParam(q url.Values, name string) (int, error) {
	raw := q.Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", errBadRequest, name)
	}
	return n, nil
}

func recordID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid record id", errBadRequest)
	}
	return id, nil
}

type contextKey string

const resourceKey contextKey = "resource"

// resourceContext resolves the {resource} URL parameter and rejects unknown
// resources with 404.
func resourceContext(svc simplecms.Service, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			cfg, err := svc.Resource(chi.URLParam(r, "resource"))
			if err != nil {
				writeError(w, r, logger, "Unknown resource", err)
				return
			}
			ctx := context.WithValue(r.Context(), resourceKey, cfg)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func resourceFrom(r *http.Request) simplecms.ResourceConfig {
	cfg, _ := r.Context().Value(resourceKey).(simplecms.ResourceConfig)
	return cfg
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
