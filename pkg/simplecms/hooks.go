package simplecms

import (
	"context"

	"github.com/google/uuid"
)

// Hooks extend the record manager at fixed points of the record lifecycle.
// Before hooks may reject an operation by returning an error; after hooks
// run once the record store reflects the change.
type Hooks struct {
	BeforeCreate []BeforeCreateHook
	AfterCreate  []AfterRecordHook
	BeforeUpdate []BeforeUpdateHook
	AfterUpdate  []AfterRecordHook
	BeforeDelete []BeforeDeleteHook
	AfterDelete  []AfterDeleteHook

	// OnError is called for every failed operation
	OnError []ErrorHook
}

// HookContext carries information through the hook chain
type HookContext struct {
	Context   context.Context
	Metadata  map[string]interface{}
	StopChain bool // set to true to skip the remaining hooks
}

// NewHookContext creates a new hook context
func NewHookContext(ctx context.Context) *HookContext {
	return &HookContext{
		Context:  ctx,
		Metadata: make(map[string]interface{}),
	}
}

// BeforeCreateHook is called before any blob is stored for a new record
type BeforeCreateHook func(hctx *HookContext, req *CreateRecordRequest) error

// BeforeUpdateHook is called with the current record before any side effect
type BeforeUpdateHook func(hctx *HookContext, current *Record, req *UpdateRecordRequest) error

// BeforeDeleteHook is called with the record about to be removed
type BeforeDeleteHook func(hctx *HookContext, current *Record) error

// AfterRecordHook is called after a record is created or updated
type AfterRecordHook func(hctx *HookContext, record *Record)

// AfterDeleteHook is called after a record is removed
type AfterDeleteHook func(hctx *HookContext, resource string, id uuid.UUID)

// ErrorHook is called when an operation fails
type ErrorHook func(hctx *HookContext, operation string, err error)

func (h *Hooks) executeBeforeCreate(ctx context.Context, req *CreateRecordRequest) error {
	if h == nil || len(h.BeforeCreate) == 0 {
		return nil
	}
	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforeCreate {
		if err := hook(hctx, req); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeBeforeUpdate(ctx context.Context, current *Record, req *UpdateRecordRequest) error {
	if h == nil || len(h.BeforeUpdate) == 0 {
		return nil
	}
	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforeUpdate {
		if err := hook(hctx, current, req); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeBeforeDelete(ctx context.Context, current *Record) error {
	if h == nil || len(h.BeforeDelete) == 0 {
		return nil
	}
	hctx := NewHookContext(ctx)
	for _, hook := range h.BeforeDelete {
		if err := hook(hctx, current); err != nil {
			return err
		}
		if hctx.StopChain {
			break
		}
	}
	return nil
}

func (h *Hooks) executeAfterRecord(ctx context.Context, hooks []AfterRecordHook, record *Record) {
	if len(hooks) == 0 {
		return
	}
	hctx := NewHookContext(ctx)
	for _, hook := range hooks {
		hook(hctx, record)
		if hctx.StopChain {
			break
		}
	}
}

func (h *Hooks) executeAfterDelete(ctx context.Context, resource string, id uuid.UUID) {
	if h == nil || len(h.AfterDelete) == 0 {
		return
	}
	hctx := NewHookContext(ctx)
	for _, hook := range h.AfterDelete {
		hook(hctx, resource, id)
		if hctx.StopChain {
			break
		}
	}
}

func (h *Hooks) executeOnError(ctx context.Context, operation string, err error) {
	if h == nil || len(h.OnError) == 0 {
		return
	}
	hctx := NewHookContext(ctx)
	for _, hook := range h.OnError {
		hook(hctx, operation, err)
		if hctx.StopChain {
			break
		}
	}
}

// Merge appends other's hooks to h.
func (h *Hooks) Merge(other *Hooks) {
	if other == nil {
		return
	}
	h.BeforeCreate = append(h.BeforeCreate, other.BeforeCreate...)
	h.AfterCreate = append(h.AfterCreate, other.AfterCreate...)
	h.BeforeUpdate = append(h.BeforeUpdate, other.BeforeUpdate...)
	h.AfterUpdate = append(h.AfterUpdate, other.AfterUpdate...)
	h.BeforeDelete = append(h.BeforeDelete, other.BeforeDelete...)
	h.AfterDelete = append(h.AfterDelete, other.AfterDelete...)
	h.OnError = append(h.OnError, other.OnError...)
}
