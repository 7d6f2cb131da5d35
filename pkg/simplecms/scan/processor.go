package scan

import (
	"context"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// RecordProcessor processes individual records.
// External apps implement this to define custom processing logic, e.g.
// re-indexing, exports or integrity checks.
type RecordProcessor interface {
	// Process is called for each record found during scan.
	// Return error to mark this record as failed (scan continues with next record).
	Process(ctx context.Context, record *simplecms.Record) error
}

// funcProcessor adapts a function to the RecordProcessor interface.
type funcProcessor struct {
	fn func(context.Context, *simplecms.Record) error
}

func (p *funcProcessor) Process(ctx context.Context, record *simplecms.Record) error {
	return p.fn(ctx, record)
}
