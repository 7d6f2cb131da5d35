package simplecms

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms/objectkey"
)

// service implements the Service interface
type service struct {
	repository Repository
	blobStore  BlobStore
	eventSink  EventSink
	hooks      *Hooks
	keyGen     objectkey.Generator
	resources  map[string]ResourceConfig
	order      []string
	logger     *slog.Logger
	now        func() time.Time
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithRepository sets the repository for the service
func WithRepository(repo Repository) Option {
	return func(s *service) {
		s.repository = repo
	}
}

// WithBlobStore sets the attachment storage backend
func WithBlobStore(store BlobStore) Option {
	return func(s *service) {
		s.blobStore = store
	}
}

// WithEventSink adds an event sink; several sinks all receive every event
func WithEventSink(sink EventSink) Option {
	return func(s *service) {
		switch existing := s.eventSink.(type) {
		case nil:
			s.eventSink = sink
		case MultiEventSink:
			s.eventSink = append(existing, sink)
		default:
			s.eventSink = MultiEventSink{existing, sink}
		}
	}
}

// WithHooks registers lifecycle hooks
func WithHooks(hooks *Hooks) Option {
	return func(s *service) {
		s.hooks.Merge(hooks)
	}
}

// WithKeyGenerator sets the blob path generator
func WithKeyGenerator(gen objectkey.Generator) Option {
	return func(s *service) {
		s.keyGen = gen
	}
}

// WithResource registers a resource type, replacing any with the same name
func WithResource(cfg ResourceConfig) Option {
	return func(s *service) {
		if _, exists := s.resources[cfg.Name]; !exists {
			s.order = append(s.order, cfg.Name)
		}
		s.resources[cfg.Name] = cfg
	}
}

// WithResources registers several resource types
func WithResources(cfgs ...ResourceConfig) Option {
	return func(s *service) {
		for _, cfg := range cfgs {
			WithResource(cfg)(s)
		}
	}
}

// WithLogger sets the logger used for failures that need reconciliation
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithClock overrides the clock used for timestamps and expiry checks
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		s.now = now
	}
}

// New creates a new service instance with the given options. Without
// WithResource the built-in resources are registered.
func New(options ...Option) (Service, error) {
	s := &service{
		hooks:     &Hooks{},
		keyGen:    objectkey.NewRecommendedGenerator(),
		resources: make(map[string]ResourceConfig),
		logger:    slog.Default(),
		now:       time.Now,
	}

	for _, option := range options {
		option(s)
	}

	if s.repository == nil {
		return nil, fmt.Errorf("repository is required")
	}
	if s.blobStore == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if s.eventSink == nil {
		s.eventSink = NewNoopEventSink()
	}
	if len(s.resources) == 0 {
		WithResources(DefaultResources()...)(s)
	}
	for _, name := range s.order {
		if err := s.resources[name].Validate(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Resource configuration

func (s *service) Resource(name string) (ResourceConfig, error) {
	cfg, ok := s.resources[name]
	if !ok {
		return ResourceConfig{}, fmt.Errorf("%w: %s", ErrResourceNotFound, name)
	}
	return cfg, nil
}

func (s *service) Resources() []ResourceConfig {
	out := make([]ResourceConfig, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.resources[name])
	}
	return out
}

// Record operations

func (s *service) CreateRecord(ctx context.Context, req CreateRecordRequest) (*Record, error) {
	cfg, err := s.Resource(req.Resource)
	if err != nil {
		return nil, err
	}
	if req.Attachment.IsClear() {
		return nil, s.fail(ctx, newRecordError(cfg.Name, uuid.Nil, "create", ErrInvalidInstruction,
			errors.New("clear is not allowed when creating a record")))
	}
	if err := s.hooks.executeBeforeCreate(ctx, &req); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := &Record{
		ID:        uuid.New(),
		Resource:  cfg.Name,
		Fields:    req.Fields.Clone(),
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}

	decision := Decide(nil, req.Attachment)
	if decision.Action == ActionStore {
		ref, err := s.storeUpload(ctx, cfg, decision.Upload)
		if err != nil {
			return nil, s.fail(ctx, newRecordError(cfg.Name, record.ID, "create", ErrStoreUnavailable, err))
		}
		record.Attachment = ref
	}

	if err := s.repository.InsertRecord(ctx, record); err != nil {
		if record.Attachment == nil {
			return nil, s.fail(ctx, newRecordError(cfg.Name, record.ID, "create", ErrStoreUnavailable, err))
		}
		rerr := newRecordError(cfg.Name, record.ID, "create", ErrPersistenceFailed, err)
		return nil, s.fail(ctx, s.compensate(ctx, rerr, record.Attachment.Path))
	}

	if record.Attachment != nil {
		s.logEventErr(ctx, "attachment_stored", s.eventSink.AttachmentStored(ctx, record, record.Attachment))
	}
	s.logEventErr(ctx, "record_created", s.eventSink.RecordCreated(ctx, record))
	s.hooks.executeAfterRecord(ctx, s.hooks.AfterCreate, record)

	return record.Clone(), nil
}

func (s *service) GetRecord(ctx context.Context, resource string, id uuid.UUID) (*Record, error) {
	cfg, err := s.Resource(resource)
	if err != nil {
		return nil, err
	}
	record, err := s.repository.GetRecord(ctx, cfg.Name, id)
	if err != nil {
		return nil, s.fail(ctx, newRecordError(cfg.Name, id, "get", readKind(err), err))
	}
	return record, nil
}

func (s *service) UpdateRecord(ctx context.Context, req UpdateRecordRequest) (*Record, error) {
	cfg, err := s.Resource(req.Resource)
	if err != nil {
		return nil, err
	}
	current, err := s.repository.GetRecord(ctx, cfg.Name, req.ID)
	if err != nil {
		return nil, s.fail(ctx, newRecordError(cfg.Name, req.ID, "update", readKind(err), err))
	}

	expected := current.Version
	if req.ExpectedVersion != nil {
		expected = *req.ExpectedVersion
	}
	if expected != current.Version {
		return nil, s.fail(ctx, newRecordError(cfg.Name, req.ID, "update", ErrConflict,
			fmt.Errorf("expected version %d, found %d", expected, current.Version)))
	}
	if err := s.hooks.executeBeforeUpdate(ctx, current, &req); err != nil {
		return nil, err
	}

	updated := current.Clone()
	updated.Fields = req.Fields.Clone()
	decision := Decide(current.Attachment, req.Attachment)

	switch decision.Action {
	case ActionStore:
		ref, err := s.storeUpload(ctx, cfg, decision.Upload)
		if err != nil {
			return nil, s.fail(ctx, newRecordError(cfg.Name, req.ID, "update", ErrStoreUnavailable, err))
		}
		updated.Attachment = ref
		if err := s.repository.UpdateRecord(ctx, updated, expected); err != nil {
			rerr := newRecordError(cfg.Name, req.ID, "update", ErrPersistenceFailed, err)
			return nil, s.fail(ctx, s.compensate(ctx, rerr, ref.Path))
		}
		s.logEventErr(ctx, "attachment_stored", s.eventSink.AttachmentStored(ctx, updated, ref))

	case ActionDeleteOld:
		if err := s.blobStore.Delete(ctx, decision.Old.Path); err != nil {
			return nil, s.fail(ctx, newRecordError(cfg.Name, req.ID, "update", ErrAttachmentDeleteFailed, err))
		}
		updated.Attachment = nil
		if err := s.repository.UpdateRecord(ctx, updated, expected); err != nil {
			rerr := newRecordError(cfg.Name, req.ID, "update", ErrInconsistentState, err)
			rerr.DanglingRef = decision.Old.Path
			s.logger.ErrorContext(ctx, "record references deleted attachment",
				"resource", cfg.Name, "id", req.ID, "dangling_ref", decision.Old.Path, "error", err)
			return nil, s.fail(ctx, rerr)
		}
		s.logEventErr(ctx, "attachment_removed", s.eventSink.AttachmentRemoved(ctx, cfg.Name, req.ID, decision.Old.Path))

	default:
		if err := s.repository.UpdateRecord(ctx, updated, expected); err != nil {
			return nil, s.fail(ctx, newRecordError(cfg.Name, req.ID, "update", writeKind(err), err))
		}
	}

	// The record now points at the new blob; the old one goes last.
	var oldErr error
	if decision.Action == ActionStore && decision.Old != nil {
		if err := s.blobStore.Delete(ctx, decision.Old.Path); err != nil {
			rerr := newRecordError(cfg.Name, req.ID, "update", ErrAttachmentDeleteFailed, err)
			rerr.OrphanedBlob = decision.Old.Path
			s.logger.ErrorContext(ctx, "previous attachment left orphaned",
				"resource", cfg.Name, "id", req.ID, "orphaned_blob", decision.Old.Path, "error", err)
			oldErr = s.fail(ctx, rerr)
		} else {
			s.logEventErr(ctx, "attachment_removed", s.eventSink.AttachmentRemoved(ctx, cfg.Name, req.ID, decision.Old.Path))
		}
	}

	s.logEventErr(ctx, "record_updated", s.eventSink.RecordUpdated(ctx, updated))
	s.hooks.executeAfterRecord(ctx, s.hooks.AfterUpdate, updated)

	return updated.Clone(), oldErr
}

func (s *service) DeleteRecord(ctx context.Context, resource string, id uuid.UUID) error {
	cfg, err := s.Resource(resource)
	if err != nil {
		return err
	}
	current, err := s.repository.GetRecord(ctx, cfg.Name, id)
	if err != nil {
		return s.fail(ctx, newRecordError(cfg.Name, id, "delete", readKind(err), err))
	}
	if err := s.hooks.executeBeforeDelete(ctx, current); err != nil {
		return err
	}

	if current.Attachment != nil {
		if err := s.blobStore.Delete(ctx, current.Attachment.Path); err != nil {
			return s.fail(ctx, newRecordError(cfg.Name, id, "delete", ErrAttachmentDeleteFailed, err))
		}
	}

	if err := s.repository.DeleteRecord(ctx, cfg.Name, id); err != nil {
		if current.Attachment != nil && !errors.Is(err, ErrNotFound) {
			rerr := newRecordError(cfg.Name, id, "delete", ErrInconsistentState, err)
			rerr.DanglingRef = current.Attachment.Path
			s.logger.ErrorContext(ctx, "record references deleted attachment",
				"resource", cfg.Name, "id", id, "dangling_ref", current.Attachment.Path, "error", err)
			return s.fail(ctx, rerr)
		}
		return s.fail(ctx, newRecordError(cfg.Name, id, "delete", readKind(err), err))
	}

	if current.Attachment != nil {
		s.logEventErr(ctx, "attachment_removed", s.eventSink.AttachmentRemoved(ctx, cfg.Name, id, current.Attachment.Path))
	}
	s.logEventErr(ctx, "record_deleted", s.eventSink.RecordDeleted(ctx, cfg.Name, id))
	s.hooks.executeAfterDelete(ctx, cfg.Name, id)

	return nil
}

func (s *service) DeleteRecords(ctx context.Context, req DeleteRecordsRequest) (*BulkDeleteResult, error) {
	result := &BulkDeleteResult{Deleted: []uuid.UUID{}}
	if len(req.IDs) == 0 {
		return result, nil
	}
	if _, err := s.Resource(req.Resource); err != nil {
		return nil, err
	}

	var errs []error
	seen := make(map[uuid.UUID]bool, len(req.IDs))
	for _, id := range req.IDs {
		if seen[id] {
			continue
		}
		seen[id] = true

		if err := s.DeleteRecord(ctx, req.Resource, id); err != nil {
			if result.Failed == nil {
				result.Failed = make(map[uuid.UUID]string)
			}
			result.Failed[id] = err.Error()
			errs = append(errs, err)
			continue
		}
		result.Deleted = append(result.Deleted, id)
	}
	return result, errors.Join(errs...)
}

func (s *service) ListRecords(ctx context.Context, req ListRecordsRequest) (*Page, error) {
	cfg, err := s.Resource(req.Resource)
	if err != nil {
		return nil, err
	}
	q, err := BuildQuery(cfg, req.Filter)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, q)
}

func (s *service) Stats(ctx context.Context, resource string) (*Stats, error) {
	cfg, err := s.Resource(resource)
	if err != nil {
		return nil, err
	}
	_, total, err := s.repository.QueryRecords(ctx, Query{
		Resource: cfg.Name,
		SortBy:   SortCreatedAt,
		Desc:     true,
		Page:     1,
		PageSize: 1,
	})
	if err != nil {
		return nil, s.fail(ctx, newRecordError(cfg.Name, uuid.Nil, "stats", ErrStoreUnavailable, err))
	}

	stats := &Stats{Resource: cfg.Name, Total: total}
	if cfg.StatsField != "" {
		counts, err := s.repository.CountByField(ctx, cfg.Name, cfg.StatsField)
		if err != nil {
			return nil, s.fail(ctx, newRecordError(cfg.Name, uuid.Nil, "stats", ErrStoreUnavailable, err))
		}
		stats.Field = cfg.StatsField
		stats.ByValue = counts
	}
	return stats, nil
}

// Public read view

func (s *service) ListPublished(ctx context.Context, req ListRecordsRequest) (*Page, error) {
	cfg, err := s.Resource(req.Resource)
	if err != nil {
		return nil, err
	}
	q, err := BuildQuery(cfg, req.Filter)
	if err != nil {
		return nil, err
	}
	return s.query(ctx, s.publicQuery(cfg, q))
}

func (s *service) GetPublished(ctx context.Context, resource string, id uuid.UUID) (*Record, error) {
	record, err := s.GetRecord(ctx, resource, id)
	if err != nil {
		return nil, err
	}
	cfg := s.resources[record.Resource]
	if !s.publicQuery(cfg, Query{Resource: cfg.Name}).Matches(record) {
		return nil, newRecordError(cfg.Name, id, "get", ErrNotFound, errors.New("record is not published"))
	}
	return record, nil
}

// Attachment access

func (s *service) OpenAttachment(ctx context.Context, resource string, id uuid.UUID) (io.ReadCloser, *AttachmentRef, error) {
	record, err := s.GetRecord(ctx, resource, id)
	if err != nil {
		return nil, nil, err
	}
	if record.Attachment == nil {
		return nil, nil, newRecordError(record.Resource, id, "open_attachment", ErrNotFound, ErrNoAttachment)
	}
	reader, err := s.blobStore.Open(ctx, record.Attachment.Path)
	if err != nil {
		kind := ErrStoreUnavailable
		if errors.Is(err, ErrBlobNotFound) {
			kind = ErrNotFound
		}
		return nil, nil, s.fail(ctx, newRecordError(record.Resource, id, "open_attachment", kind, err))
	}
	return reader, record.Attachment.Clone(), nil
}

func (s *service) AttachmentExists(ctx context.Context, ref *AttachmentRef) (bool, error) {
	if ref == nil || ref.Path == "" {
		return false, nil
	}
	return s.blobStore.Exists(ctx, ref.Path)
}

// Helper methods

func (s *service) query(ctx context.Context, q Query) (*Page, error) {
	items, total, err := s.repository.QueryRecords(ctx, q)
	if err != nil {
		return nil, s.fail(ctx, newRecordError(q.Resource, uuid.Nil, "list", ErrStoreUnavailable, err))
	}
	return NewPage(items, total, q.Page, q.PageSize), nil
}

// publicQuery narrows q to records visible on the public site.
func (s *service) publicQuery(cfg ResourceConfig, q Query) Query {
	for _, field := range sortedKeys(cfg.PublicEquals) {
		q.Equals = setFilter(q.Equals, field, cfg.PublicEquals[field])
	}
	if cfg.ExpiryField != "" {
		q.AtLeast = setFilter(q.AtLeast, cfg.ExpiryField, s.now().UTC().Format(time.DateOnly))
	}
	return q
}

func (s *service) storeUpload(ctx context.Context, cfg ResourceConfig, upload *Upload) (*AttachmentRef, error) {
	if upload.Reader == nil {
		return nil, errors.New("upload has no content")
	}
	hint := s.keyGen.GenerateKey(cfg.keyPrefix(), uuid.New(), upload.FileName)
	counter := &countingReader{r: upload.Reader}
	path, err := s.blobStore.Put(ctx, counter, PutParams{
		PathHint: hint,
		MimeType: upload.MimeType,
		Size:     upload.Size,
	})
	if err != nil {
		return nil, err
	}
	return &AttachmentRef{
		Path:      path,
		FileName:  upload.FileName,
		MimeType:  upload.MimeType,
		SizeBytes: counter.n,
	}, nil
}

// compensate removes a blob stored for a write that did not persist.
func (s *service) compensate(ctx context.Context, rerr *RecordError, path string) *RecordError {
	if err := s.blobStore.Delete(context.WithoutCancel(ctx), path); err != nil {
		rerr.OrphanedBlob = path
		rerr.Err = errors.Join(rerr.Err, fmt.Errorf("compensating delete: %w", err))
		s.logger.ErrorContext(ctx, "stored attachment left orphaned",
			"resource", rerr.Resource, "id", rerr.RecordID, "orphaned_blob", path, "error", err)
	}
	return rerr
}

func (s *service) fail(ctx context.Context, rerr *RecordError) error {
	s.hooks.executeOnError(ctx, rerr.Resource+"."+rerr.Op, rerr)
	return rerr
}

func (s *service) logEventErr(ctx context.Context, event string, err error) {
	if err != nil {
		s.logger.WarnContext(ctx, "event sink failed", "event", event, "error", err)
	}
}

func newRecordError(resource string, id uuid.UUID, op string, kind, err error) *RecordError {
	return &RecordError{Resource: resource, RecordID: id, Op: op, Kind: kind, Err: err}
}

func readKind(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFound
	}
	return ErrStoreUnavailable
}

func writeKind(err error) error {
	switch {
	case errors.Is(err, ErrConflict):
		return ErrConflict
	case errors.Is(err, ErrNotFound):
		return ErrNotFound
	default:
		return ErrStoreUnavailable
	}
}

func setFilter(filters []FieldFilter, field string, value interface{}) []FieldFilter {
	out := make([]FieldFilter, 0, len(filters)+1)
	for _, f := range filters {
		if f.Field != field {
			out = append(out, f)
		}
	}
	return append(out, FieldFilter{Field: field, Value: value})
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
