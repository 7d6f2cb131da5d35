package scan

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// DefaultBatchSize is the page size used when ScanOptions.BatchSize is zero.
const DefaultBatchSize = 100

// Scanner lists records page by page and processes them with the provided processor.
type Scanner struct {
	svc    simplecms.Service
	logger *slog.Logger
}

// New creates a new Scanner instance. A nil logger uses slog.Default.
func New(svc simplecms.Service, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{svc: svc, logger: logger}
}

// ScanOptions configures the scan operation.
type ScanOptions struct {
	// Resource names the record type to scan (required)
	Resource string

	// Filter narrows the scan; paging and ordering are managed by the scanner
	Filter simplecms.ListFilter

	// Processor defines the processing logic (required unless DryRun is true)
	Processor RecordProcessor

	// BatchSize controls how many records to list at once (default and maximum: 100)
	BatchSize int

	// DryRun if true, doesn't process records, just reports what would be processed
	DryRun bool

	// OnProgress is called after each batch is processed (optional)
	OnProgress func(processed, total int64)
}

// ScanResult contains statistics about the scan operation.
type ScanResult struct {
	// TotalFound is the total number of records visited
	TotalFound int64

	// TotalProcessed is the number of records successfully processed
	TotalProcessed int64

	// TotalFailed is the number of records that failed processing
	TotalFailed int64

	// FailedIDs contains the IDs of records that failed processing
	FailedIDs []string
}

// Scan lists records matching the options and processes each one. Records are
// visited oldest first so that updates made by the processor do not shift
// later pages. A failing record is recorded and scanning continues.
func (s *Scanner) Scan(ctx context.Context, opts ScanOptions) (*ScanResult, error) {
	result := &ScanResult{}

	if !opts.DryRun && opts.Processor == nil {
		return result, fmt.Errorf("processor is required when DryRun is false")
	}
	if opts.BatchSize <= 0 || opts.BatchSize > simplecms.MaxPageSize {
		opts.BatchSize = DefaultBatchSize
	}

	filter := opts.Filter
	filter.PageSize = opts.BatchSize
	filter.SortBy = simplecms.SortCreatedAt
	filter.SortOrder = "asc"

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		filter.Page = page

		resp, err := s.svc.ListRecords(ctx, simplecms.ListRecordsRequest{
			Resource: opts.Resource,
			Filter:   filter,
		})
		if err != nil {
			return result, fmt.Errorf("failed to list %s: %w", opts.Resource, err)
		}

		if len(resp.Items) == 0 {
			break
		}

		result.TotalFound += int64(len(resp.Items))

		for _, record := range resp.Items {
			if opts.DryRun {
				s.logger.InfoContext(ctx, "dry run: would process record",
					"resource", record.Resource, "id", record.ID)
				result.TotalProcessed++
				continue
			}

			if err := opts.Processor.Process(ctx, record); err != nil {
				result.TotalFailed++
				result.FailedIDs = append(result.FailedIDs, record.ID.String())
				s.logger.WarnContext(ctx, "failed to process record",
					"resource", record.Resource, "id", record.ID, "error", err)
				continue
			}

			result.TotalProcessed++
		}

		if opts.OnProgress != nil {
			opts.OnProgress(result.TotalProcessed+result.TotalFailed, resp.TotalCount)
		}

		if !resp.HasNext {
			break
		}
	}

	return result, nil
}

// ForEach processes every record of resource with fn.
//
// Example:
//
//	scanner.ForEach(ctx, "news", func(ctx context.Context, rec *simplecms.Record) error {
//	    return reindex(rec)
//	})
func (s *Scanner) ForEach(ctx context.Context, resource string, fn func(context.Context, *simplecms.Record) error) (*ScanResult, error) {
	return s.Scan(ctx, ScanOptions{
		Resource:  resource,
		Processor: &funcProcessor{fn: fn},
	})
}
