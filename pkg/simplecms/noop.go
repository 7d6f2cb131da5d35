package simplecms

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// NoopEventSink is a no-op implementation of EventSink
type NoopEventSink struct{}

func NewNoopEventSink() EventSink {
	return &NoopEventSink{}
}

func (n *NoopEventSink) RecordCreated(ctx context.Context, record *Record) error {
	return nil
}

func (n *NoopEventSink) RecordUpdated(ctx context.Context, record *Record) error {
	return nil
}

func (n *NoopEventSink) RecordDeleted(ctx context.Context, resource string, id uuid.UUID) error {
	return nil
}

func (n *NoopEventSink) AttachmentStored(ctx context.Context, record *Record, ref *AttachmentRef) error {
	return nil
}

func (n *NoopEventSink) AttachmentRemoved(ctx context.Context, resource string, id uuid.UUID, path string) error {
	return nil
}

// LoggingEventSink writes every event to a slog logger at debug level.
type LoggingEventSink struct {
	logger *slog.Logger
}

func NewLoggingEventSink(logger *slog.Logger) EventSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LoggingEventSink{logger: logger}
}

func (l *LoggingEventSink) RecordCreated(ctx context.Context, record *Record) error {
	l.logger.DebugContext(ctx, "record created", "resource", record.Resource, "id", record.ID)
	return nil
}

func (l *LoggingEventSink) RecordUpdated(ctx context.Context, record *Record) error {
	l.logger.DebugContext(ctx, "record updated", "resource", record.Resource, "id", record.ID, "version", record.Version)
	return nil
}

func (l *LoggingEventSink) RecordDeleted(ctx context.Context, resource string, id uuid.UUID) error {
	l.logger.DebugContext(ctx, "record deleted", "resource", resource, "id", id)
	return nil
}

func (l *LoggingEventSink) AttachmentStored(ctx context.Context, record *Record, ref *AttachmentRef) error {
	l.logger.DebugContext(ctx, "attachment stored", "resource", record.Resource, "id", record.ID, "path", ref.Path, "size", ref.SizeBytes)
	return nil
}

func (l *LoggingEventSink) AttachmentRemoved(ctx context.Context, resource string, id uuid.UUID, path string) error {
	l.logger.DebugContext(ctx, "attachment removed", "resource", resource, "id", id, "path", path)
	return nil
}

// MultiEventSink fans events out to several sinks and joins their errors.
type MultiEventSink []EventSink

func (m MultiEventSink) RecordCreated(ctx context.Context, record *Record) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordCreated(ctx, record))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) RecordUpdated(ctx context.Context, record *Record) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordUpdated(ctx, record))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) RecordDeleted(ctx context.Context, resource string, id uuid.UUID) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.RecordDeleted(ctx, resource, id))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) AttachmentStored(ctx context.Context, record *Record, ref *AttachmentRef) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.AttachmentStored(ctx, record, ref))
	}
	return errors.Join(errs...)
}

func (m MultiEventSink) AttachmentRemoved(ctx context.Context, resource string, id uuid.UUID, path string) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.AttachmentRemoved(ctx, resource, id, path))
	}
	return errors.Join(errs...)
}
