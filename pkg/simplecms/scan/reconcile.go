package scan

import (
	"context"
	"errors"
	"fmt"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// CheckAttachments reports records of resource whose attachment reference
// names a blob the store no longer has. It changes nothing.
func (s *Scanner) CheckAttachments(ctx context.Context, resource string) (*simplecms.ReconcileReport, error) {
	report := &simplecms.ReconcileReport{Resource: resource, Dangling: []simplecms.DanglingAttachment{}}

	result, err := s.ForEach(ctx, resource, func(ctx context.Context, rec *simplecms.Record) error {
		if rec.Attachment == nil {
			return nil
		}
		ok, err := s.svc.AttachmentExists(ctx, rec.Attachment)
		if err != nil {
			return err
		}
		if !ok {
			report.Dangling = append(report.Dangling, simplecms.DanglingAttachment{
				RecordID: rec.ID,
				Path:     rec.Attachment.Path,
			})
		}
		return nil
	})
	if result != nil {
		report.Scanned = int(result.TotalFound)
	}
	if err != nil {
		return report, err
	}
	if result.TotalFailed > 0 {
		return report, fmt.Errorf("could not check %d attachment(s) of %s", result.TotalFailed, resource)
	}
	return report, nil
}

// RepairDangling clears attachment references that point at missing blobs.
// A record whose reference changed since the check is left alone. The
// returned report lists the references that were cleared.
func (s *Scanner) RepairDangling(ctx context.Context, resource string) (*simplecms.ReconcileReport, error) {
	found, err := s.CheckAttachments(ctx, resource)
	if err != nil {
		return found, err
	}

	repaired := &simplecms.ReconcileReport{
		Resource: resource,
		Scanned:  found.Scanned,
		Dangling: []simplecms.DanglingAttachment{},
	}
	var errs []error
	for _, d := range found.Dangling {
		cleared, err := s.clearReference(ctx, resource, d)
		if err != nil {
			errs = append(errs, fmt.Errorf("record %s: %w", d.RecordID, err))
			continue
		}
		if !cleared {
			continue
		}
		repaired.Dangling = append(repaired.Dangling, d)
		s.logger.InfoContext(ctx, "cleared dangling attachment reference",
			"resource", resource, "id", d.RecordID, "dangling_ref", d.Path)
	}
	return repaired, errors.Join(errs...)
}

func (s *Scanner) clearReference(ctx context.Context, resource string, d simplecms.DanglingAttachment) (bool, error) {
	rec, err := s.svc.GetRecord(ctx, resource, d.RecordID)
	if err != nil {
		return false, err
	}
	if rec.Attachment == nil || rec.Attachment.Path != d.Path {
		return false, nil
	}
	version := rec.Version
	_, err = s.svc.UpdateRecord(ctx, simplecms.UpdateRecordRequest{
		Resource:        resource,
		ID:              rec.ID,
		Fields:          rec.Fields,
		Attachment:      simplecms.Clear(),
		ExpectedVersion: &version,
	})
	return err == nil, err
}
