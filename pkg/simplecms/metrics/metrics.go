// Package metrics exports record manager activity to Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

const defaultNamespace = "simplecms"

// Collector counts record and attachment events and failed operations. It is
// an EventSink and contributes an OnError hook.
type Collector struct {
	records         *prometheus.CounterVec
	attachments     *prometheus.CounterVec
	attachmentBytes *prometheus.CounterVec
	operationErrors *prometheus.CounterVec
	reconcileNeeded *prometheus.CounterVec
	gatherer        prometheus.Gatherer
}

// New registers the collector's metrics with reg. A nil reg uses a fresh
// registry; metrics already registered under the same names are reused.
func New(namespace string, reg *prometheus.Registry) (*Collector, error) {
	if namespace == "" {
		namespace = defaultNamespace
	}
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	c := &Collector{
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "record_events_total",
			Help:      "Records created, updated and deleted.",
		}, []string{"resource", "event"}),
		attachments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachment_events_total",
			Help:      "Attachments stored and removed.",
		}, []string{"resource", "event"}),
		attachmentBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "attachment_stored_bytes_total",
			Help:      "Cumulative size of stored attachments.",
		}, []string{"resource"}),
		operationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operation_errors_total",
			Help:      "Failed record manager operations by kind.",
		}, []string{"operation", "kind"}),
		reconcileNeeded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_needed_total",
			Help:      "Failures that left an orphaned blob or a dangling reference.",
		}, []string{"resource", "reason"}),
		gatherer: reg,
	}

	var err error
	if c.records, err = register(reg, c.records); err != nil {
		return nil, err
	}
	if c.attachments, err = register(reg, c.attachments); err != nil {
		return nil, err
	}
	if c.attachmentBytes, err = register(reg, c.attachmentBytes); err != nil {
		return nil, err
	}
	if c.operationErrors, err = register(reg, c.operationErrors); err != nil {
		return nil, err
	}
	if c.reconcileNeeded, err = register(reg, c.reconcileNeeded); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T) (T, error) {
	if err := reg.Register(col); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
		}
		return col, fmt.Errorf("register metric: %w", err)
	}
	return col, nil
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Hooks returns lifecycle hooks that count failed operations.
func (c *Collector) Hooks() *simplecms.Hooks {
	return &simplecms.Hooks{
		OnError: []simplecms.ErrorHook{c.observeError},
	}
}

func (c *Collector) observeError(_ *simplecms.HookContext, operation string, err error) {
	c.operationErrors.WithLabelValues(operation, KindLabel(err)).Inc()

	var re *simplecms.RecordError
	if !errors.As(err, &re) {
		return
	}
	if re.OrphanedBlob != "" {
		c.reconcileNeeded.WithLabelValues(re.Resource, "orphaned_blob").Inc()
	}
	if re.DanglingRef != "" {
		c.reconcileNeeded.WithLabelValues(re.Resource, "dangling_ref").Inc()
	}
}

// KindLabel names the error kind of err for use as a metric label.
func KindLabel(err error) string {
	switch simplecms.KindOf(err) {
	case simplecms.ErrNotFound:
		return "not_found"
	case simplecms.ErrConflict:
		return "conflict"
	case simplecms.ErrStoreUnavailable:
		return "store_unavailable"
	case simplecms.ErrPersistenceFailed:
		return "persistence_failed"
	case simplecms.ErrInconsistentState:
		return "inconsistent_state"
	case simplecms.ErrAttachmentDeleteFailed:
		return "attachment_delete_failed"
	case simplecms.ErrInvalidInstruction:
		return "invalid_instruction"
	case simplecms.ErrInvalidFilter:
		return "invalid_filter"
	case simplecms.ErrResourceNotFound:
		return "resource_not_found"
	default:
		return "other"
	}
}

func (c *Collector) RecordCreated(_ context.Context, record *simplecms.Record) error {
	c.records.WithLabelValues(record.Resource, "created").Inc()
	return nil
}

func (c *Collector) RecordUpdated(_ context.Context, record *simplecms.Record) error {
	c.records.WithLabelValues(record.Resource, "updated").Inc()
	return nil
}

func (c *Collector) RecordDeleted(_ context.Context, resource string, _ uuid.UUID) error {
	c.records.WithLabelValues(resource, "deleted").Inc()
	return nil
}

func (c *Collector) AttachmentStored(_ context.Context, record *simplecms.Record, ref *simplecms.AttachmentRef) error {
	c.attachments.WithLabelValues(record.Resource, "stored").Inc()
	if ref != nil && ref.SizeBytes > 0 {
		c.attachmentBytes.WithLabelValues(record.Resource).Add(float64(ref.SizeBytes))
	}
	return nil
}

func (c *Collector) AttachmentRemoved(_ context.Context, resource string, _ uuid.UUID, _ string) error {
	c.attachments.WithLabelValues(resource, "removed").Inc()
	return nil
}

var _ simplecms.EventSink = (*Collector)(nil)
