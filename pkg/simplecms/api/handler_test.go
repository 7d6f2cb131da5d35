package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	memorystorage "github.com/tendant/simple-cms/pkg/simplecms/storage/memory"
)

var (
	pngContent = append([]byte("\x89PNG\r\n\x1a\n"), bytes.Repeat([]byte{0x01}, 64)...)
	pdfContent = []byte("%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n")
)

type failingDeleteStore struct {
	*memorystorage.Backend
}

func (s failingDeleteStore) Delete(ctx context.Context, path string) error {
	return errors.New("bucket unreachable")
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testValidator() Validator {
	return Validator{
		MaxUploadBytes:   1024,
		AllowedMimeTypes: []string{"image/png", "application/pdf"},
	}
}

// setupHandlerTest creates a router backed by in-memory stores
func setupHandlerTest(t *testing.T, store simplecms.BlobStore) (http.Handler, simplecms.Service) {
	if store == nil {
		store = memorystorage.New()
	}
	service, err := simplecms.New(
		simplecms.WithRepository(memory.New()),
		simplecms.WithBlobStore(store),
		simplecms.WithEventSink(simplecms.NewNoopEventSink()),
		simplecms.WithLogger(testLogger()),
		simplecms.WithClock(func() time.Time { return time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC) }),
	)
	require.NoError(t, err)

	router := NewRouter(RouterConfig{
		Service:   service,
		Validator: testValidator(),
		Logger:    testLogger(),
	})
	return router, service
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func doMultipart(t *testing.T, h http.Handler, method, path string, fields map[string]string, fileName string, content []byte) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if fileName != "" {
		fw, err := mw.CreateFormFile(fieldAttachment, fileName)
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func articleFields(title string, published bool) map[string]interface{} {
	return map[string]interface{}{
		"title":        title,
		"content":      "Body of " + title,
		"category":     "career",
		"is_published": published,
	}
}

func articleForm(title string) map[string]string {
	return map[string]string{
		"title":        title,
		"content":      "Body of " + title,
		"category":     "career",
		"is_published": "true",
	}
}

func TestAdminHandler_CreateRecord_JSON(t *testing.T) {
	router, _ := setupHandlerTest(t, nil)

	w := doJSON(t, router, http.MethodPost, "/admin/articles", RecordPayload{Fields: articleFields("Job fair", true)})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[RecordResponse](t, w)
	assert.NotEmpty(t, resp.ID)
	assert.Equal(t, "articles", resp.Resource)
	assert.Equal(t, "Job fair", resp.Fields["title"])
	assert.Equal(t, true, resp.Fields["is_published"])
	assert.Equal(t, 1, resp.Version)
	assert.Nil(t, resp.Attachment)
}

func TestAdminHandler_CreateRecord_MissingFields(t *testing.T) {
	router, _ := setupHandlerTest(t, nil)

	w := doJSON(t, router, http.MethodPost, "/admin/articles", RecordPayload{Fields: map[string]interface{}{"title": "  "}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "validation_failed", resp.Error)
	assert.Equal(t, "is required", resp.Fields["title"])
	assert.Equal(t, "is required", resp.Fields["content"])
	assert.Equal(t, "is required", resp.Fields["category"])
}

func TestAdminHandler_CreateRecord_Multipart(t *testing.T) {
	store := memorystorage.New()
	router, _ := setupHandlerTest(t, store)

	w := doMultipart(t, router, http.MethodPost, "/admin/articles", articleForm("With logo"), "logo.png", pngContent)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	resp := decode[RecordResponse](t, w)
	require.NotNil(t, resp.Attachment)
	assert.Equal(t, "logo.png", resp.Attachment.FileName)
	assert.Equal(t, "image/png", resp.Attachment.MimeType)
	assert.Equal(t, int64(len(pngContent)), resp.Attachment.SizeBytes)
	assert.Equal(t, true, resp.Fields["is_published"])

	paths := store.Paths()
	require.Len(t, paths, 1)
	assert.NotContains(t, w.Body.String(), paths[0])
}

func TestAdminHandler_CreateRecord_UploadRejected(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content []byte
		message string
	}{
		{name: "disallowed type", file: "notes.txt", content: []byte("plain text notes"), message: "file type text/plain is not allowed"},
		{name: "too large", file: "big.pdf", content: append(append([]byte{}, pdfContent...), bytes.Repeat([]byte("x"), 2048)...), message: "must not exceed 1024 bytes"},
		{name: "empty", file: "empty.png", content: []byte{}, message: "must not be empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := memorystorage.New()
			router, _ := setupHandlerTest(t, store)

			w := doMultipart(t, router, http.MethodPost, "/admin/articles", articleForm("Rejected"), tt.file, tt.content)
			require.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())

			resp := decode[ErrorResponse](t, w)
			assert.Equal(t, tt.message, resp.Fields[fieldAttachment])
			assert.Empty(t, store.Paths())
		})
	}
}

func TestAdminHandler_CreateRecord_InvalidExpiry(t *testing.T) {
	router, _ := setupHandlerTest(t, nil)

	w := doJSON(t, router, http.MethodPost, "/admin/announcements", RecordPayload{Fields: map[string]interface{}{
		"title":      "Closed",
		"body":       "Office closed",
		"expires_on": "next week",
	}})
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)
	resp := decode[ErrorResponse](t, w)
	assert.Equal(t, "must be a date (YYYY-MM-DD)", resp.Fields["expires_on"])
}

func TestAdminHandler_UnknownResource(t *testing.T) {
	router, _ := setupHandlerTest(t, nil)

	w := doJSON(t, router, http.MethodGet, "/admin/events", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "resource_not_found", decode[ErrorResponse](t, w).Error)
}

func TestAdminHandler_GetRecord(t *testing.T) {
	router, _ := setupHandlerTest(t, nil)

	created := decode[RecordResponse](t, doJSON(t, router, http.MethodPost, "/admin/articles", RecordPayload{Fields: articleFields("Draft", false)}))

	t.Run("found", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/admin/articles/"+created.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, created.ID, decode[RecordResponse](t, w).ID)
	})

	t.Run("wrong resource", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/admin/news/"+created.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/admin/articles/not-a-uuid", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "bad_request", decode[ErrorResponse](t, w).Error)
	})

	t.Run("missing", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/admin/articles/"+uuid.NewString(), nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", decode[ErrorResponse](t, w).Error)
	})
}

func TestAdminHandler_UpdateRecord_ReplaceAttachment(t *testing.T) {
	store := memorystorage.New()
	router, _ := setupHandlerTest(t, store)

	created := decode[RecordResponse](t, doMultipart(t, router, http.MethodPost, "/admin/articles", articleForm("Brochure"), "logo.png", pngContent))
	oldPaths := store.Paths()
	require.Len(t, oldPaths, 1)

	form := articleForm("Brochure v2")
	form[fieldVersion] = "1"
	w := doMultipart(t, router, http.MethodPut, "/admin/articles/"+created.ID, form, "brochure.pdf", pdfContent)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[RecordResponse](t, w)
	assert.Equal(t, "Brochure v2", resp.Fields["title"])
	assert.Equal(t, 2, resp.Version)
	require.NotNil(t, resp.Attachment)
	assert.Equal(t, "application/pdf", resp.Attachment.MimeType)
	assert.Empty(t, resp.Warning)

	newPaths := store.Paths()
	require.Len(t, newPaths, 1)
	assert.NotEqual(t, oldPaths[0], newPaths[0])
}

func TestAdminHandler_UpdateRecord_ClearAttachment(t *testing.T) {
	store := memorystorage.New()
	router, _ := setupHandlerTest(t, store)

	created := decode[RecordResponse](t, doMultipart(t, router, http.MethodPost, "/admin/articles", articleForm("Poster"), "poster.png", pngContent))
	require.Len(t, store.Paths(), 1)

	w := doJSON(t, router, http.MethodPut, "/admin/articles/"+created.ID, RecordPayload{
		Fields:          articleFields("Poster", true),
		ClearAttachment: true,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Nil(t, decode[RecordResponse](t, w).Attachment)
	assert.Empty(t, store.Paths())
}

func TestAdminHandler_UpdateRecord_VersionConflict(t *testing.T) {
	router, _ := setupHandlerTest(t, nil)

	created := decode[RecordResponse](t, doJSON(t, router, http.MethodPost, "/admin/articles", RecordPayload{Fields: articleFields("Stale", false)}))

	stale := 5
	w := doJSON(t, router, http.MethodPut, "/admin/articles/"+created.ID, RecordPayload{
		Fields:  articleFields("Stale edit", false),
		Version: &stale,
	})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "conflict", decode[ErrorResponse](t, w).Error)
}

func TestAdminHandler_UpdateRecord_OrphanedAttachment(t *testing.T) {
	store := failingDeleteStore{Backend: memorystorage.New()}
	router, _ := setupHandlerTest(t, store)

	created := decode[RecordResponse](t, doMultipart(t, router, http.MethodPost, "/admin/articles", articleForm("Orphan"), "logo.png", pngContent))

	w := doMultipart(t, router, http.MethodPut, "/admin/articles/"+created.ID, articleForm("Orphan"), "brochure.pdf", pdfContent)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[RecordResponse](t, w)
	assert.Equal(t, "previous attachment could not be removed", resp.Warning)
	assert.Equal(t, "application/pdf", resp.Attachment.MimeType)
	for _, p := range store.Paths() {
		assert.NotContains(t, w.Body.String(), p)
	}
}

func TestAdminHandler_DeleteRecord(t *testing.T) {
	store := memorystorage.New()
	router, _ := setupHandlerTest(t, store)

	created := decode[RecordResponse](t, doMultipart(t, router, http.MethodPost, "/admin/articles", articleForm("Old"), "logo.png", pngContent))

	w := doJSON(t, router, http.MethodDelete, "/admin/articles/"+created.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, store.Paths())

	w = doJSON(t, router, http.MethodGet, "/admin/articles/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminHandler_DeleteRecord_AttachmentDeleteFails(t *testing.T) {
	store := failingDeleteStore{Backend: memorystorage.New()}
	router, _ := setupHandlerTest(t, store)

	created := decode[RecordResponse](t, doMultipart(t, router, http.MethodPost, "/admin/articles", articleForm("Stuck"), "logo.png", pngContent))

	w := doJSON(t, router, http.MethodDelete, "/admin/articles/"+created.ID, nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "attachment_delete_failed", decode[ErrorResponse](t, w).Error)

	w = doJSON(t, router, http.MethodGet, "/admin/articles/"+created.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminHandler_BulkDelete(t *testing.T) {
	router, _ := setupHandlerTest(t, nil)

	a := decode[RecordResponse](t, doJSON(t, router, http.MethodPost, "/admin/articles", RecordPayload{Fields: articleFields("A", true)}))
	b := decode[RecordResponse](t, doJSON(t, router, http.MethodPost, "/admin/articles", RecordPayload{Fields: articleFields("B", true)}))
	missing := uuid.NewString()

	w := doJSON(t, router, http.MethodPost, "/admin/articles/bulk-delete", BulkDeleteRequest{IDs: []string{a.ID, b.ID, missing}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := decode[BulkDeleteResponse](t, w)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, resp.Deleted)
	assert.Equal(t, map[string]string{missing: "record not found"}, resp.Failed)

	t.Run("rejects invalid ids", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/admin/articles/bulk-delete", BulkDeleteRequest{IDs: []string{"nope"}})
		require.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Equal(t, "contains an invalid id", decode[ErrorResponse](t, w).Fields["ids"])
	})

	t.Run("rejects empty list", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/admin/articles/bulk-delete", BulkDeleteRequest{})
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	})
}

func TestAdminHandler_ListRecords(t *testing.T) {
	router, _ := setupHandlerTest(t, nil)

	for _, f := range []map[string]interface{}{
		articleFields("Resume workshop", true),
		articleFields("Interview tips", true),
		articleFields("Resume draft", false),
	} {
		w := doJSON(t, router, http.MethodPost, "/admin/articles", RecordPayload{Fields: f})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	t.Run("all", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/admin/articles", nil)
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[PageResponse](t, w)
		assert.Equal(t, int64(3), page.TotalCount)
		assert.Len(t, page.Items, 3)
		assert.Equal(t, 1, page.CurrentPage)
	})

	t.Run("search and filter", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/admin/articles?search=resume&is_published=true", nil)
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[PageResponse](t, w)
		require.Equal(t, int64(1), page.TotalCount)
		assert.Equal(t, "Resume workshop", page.Items[0].Fields["title"])
	})

	t.Run("sorted and paged", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/admin/articles?sort_by=title&sort_order=asc&page=2&page_size=2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[PageResponse](t, w)
		assert.Equal(t, int64(3), page.TotalCount)
		require.Len(t, page.Items, 1)
		assert.Equal(t, "Resume workshop", page.Items[0].Fields["title"])
		assert.True(t, page.HasPrev)
		assert.False(t, page.HasNext)
	})

	t.Run("page beyond end", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/admin/articles?page=9", nil)
		require.Equal(t, http.StatusOK, w.Code)
		page := decode[PageResponse](t, w)
		assert.Equal(t, int64(3), page.TotalCount)
		assert.Empty(t, page.Items)
	})

	t.Run("invalid sort field", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/admin/articles?sort_by=content", nil)
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_filter", decode[ErrorResponse](t, w).Error)
	})

	t.Run("invalid page", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/admin/articles?page=abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAdminHandler_GetStats(t *testing.T) {
	router, _ := setupHandlerTest(t, nil)

	for _, category := range []string{"career", "career", "alumni"} {
		f := articleFields("Stat", true)
		f["category"] = category
		require.Equal(t, http.StatusCreated, doJSON(t, router, http.MethodPost, "/admin/articles", RecordPayload{Fields: f}).Code)
	}

	w := doJSON(t, router, http.MethodGet, "/admin/articles/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	stats := decode[simplecms.Stats](t, w)
	assert.Equal(t, int64(3), stats.Total)
	assert.Equal(t, "category", stats.Field)
	assert.Equal(t, map[string]int64{"career": 2, "alumni": 1}, stats.ByValue)
}

func TestPublicHandler_Articles(t *testing.T) {
	router, _ := setupHandlerTest(t, nil)

	published := decode[RecordResponse](t, doMultipart(t, router, http.MethodPost, "/admin/articles", articleForm("Public"), "logo.png", pngContent))
	draft := decode[RecordResponse](t, doJSON(t, router, http.MethodPost, "/admin/articles", RecordPayload{Fields: articleFields("Hidden", false)}))

	t.Run("list shows published only", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/public/articles", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Header().Get("Cache-Control"), "max-age=60")

		page := decode[PageResponse](t, w)
		require.Equal(t, int64(1), page.TotalCount)
		assert.Equal(t, published.ID, page.Items[0].ID)
	})

	t.Run("get published with attachment url", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/public/articles/"+published.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[RecordResponse](t, w)
		assert.Equal(t, "/api/v1/public/articles/"+published.ID+"/attachment?filename=logo.png&version=1", resp.AttachmentURL)
	})

	t.Run("draft is hidden", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/public/articles/"+draft.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("download attachment", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/public/articles/"+published.ID+"/attachment", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
		assert.Equal(t, `inline; filename=logo.png`, w.Header().Get("Content-Disposition"))
		assert.Equal(t, pngContent, w.Body.Bytes())
	})

	t.Run("record without attachment", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/admin/articles/"+draft.ID+"/attachment", nil)
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "no_attachment", decode[ErrorResponse](t, w).Error)
	})
}

func TestPublicHandler_AnnouncementsExpire(t *testing.T) {
	router, _ := setupHandlerTest(t, nil)

	for _, expires := range []string{"2026-01-14", "2026-01-15", "2026-02-01"} {
		w := doJSON(t, router, http.MethodPost, "/admin/announcements", RecordPayload{Fields: map[string]interface{}{
			"title":      "Notice " + expires,
			"body":       "Details",
			"expires_on": expires,
		}})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	}

	w := doJSON(t, router, http.MethodGet, "/public/announcements?sort_by=expires_on&sort_order=asc", nil)
	require.Equal(t, http.StatusOK, w.Code)

	page := decode[PageResponse](t, w)
	require.Equal(t, int64(2), page.TotalCount)
	assert.Equal(t, "2026-01-15", page.Items[0].Fields["expires_on"])
	assert.Equal(t, "2026-02-01", page.Items[1].Fields["expires_on"])
}
