package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Repository implements simplecms.Repository using in-memory storage
type Repository struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*simplecms.Record
	now     func() time.Time
}

// New creates a new in-memory repository
func New() *Repository {
	return &Repository{
		records: make(map[uuid.UUID]*simplecms.Record),
		now:     time.Now,
	}
}

func (r *Repository) InsertRecord(ctx context.Context, record *simplecms.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[record.ID]; exists {
		return fmt.Errorf("record %s already exists", record.ID)
	}
	if r.pathTaken(record) {
		return fmt.Errorf("%w: attachment path already referenced by another record", simplecms.ErrConflict)
	}
	now := r.now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = record.CreatedAt
	record.Version = 1

	r.records[record.ID] = record.Clone()
	return nil
}

func (r *Repository) GetRecord(ctx context.Context, resource string, id uuid.UUID) (*simplecms.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, exists := r.records[id]
	if !exists || record.Resource != resource {
		return nil, simplecms.ErrNotFound
	}
	return record.Clone(), nil
}

func (r *Repository) UpdateRecord(ctx context.Context, record *simplecms.Record, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, exists := r.records[record.ID]
	if !exists || existing.Resource != record.Resource {
		return simplecms.ErrNotFound
	}
	if existing.Version != expectedVersion {
		return simplecms.ErrConflict
	}
	if r.pathTaken(record) {
		return fmt.Errorf("%w: attachment path already referenced by another record", simplecms.ErrConflict)
	}

	stored := record.Clone()
	stored.CreatedAt = existing.CreatedAt
	stored.UpdatedAt = r.now().UTC()
	if !stored.UpdatedAt.After(existing.UpdatedAt) {
		stored.UpdatedAt = existing.UpdatedAt.Add(time.Microsecond)
	}
	stored.Version = expectedVersion + 1
	r.records[record.ID] = stored

	record.CreatedAt = stored.CreatedAt
	record.UpdatedAt = stored.UpdatedAt
	record.Version = stored.Version
	return nil
}

// pathTaken reports whether another record references record's attachment path.
// Callers hold the lock.
func (r *Repository) pathTaken(record *simplecms.Record) bool {
	if record.Attachment == nil {
		return false
	}
	for id, other := range r.records {
		if id != record.ID && other.Attachment != nil && other.Attachment.Path == record.Attachment.Path {
			return true
		}
	}
	return false
}

func (r *Repository) DeleteRecord(ctx context.Context, resource string, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[id]
	if !exists || record.Resource != resource {
		return simplecms.ErrNotFound
	}
	delete(r.records, id)
	return nil
}

func (r *Repository) QueryRecords(ctx context.Context, q simplecms.Query) ([]*simplecms.Record, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*simplecms.Record
	for _, record := range r.records {
		if q.Matches(record) {
			matched = append(matched, record)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return q.Less(matched[i], matched[j])
	})

	total := int64(len(matched))
	offset := q.Offset()
	if offset < 0 || offset >= len(matched) {
		return []*simplecms.Record{}, total, nil
	}
	end := offset + q.PageSize
	if end > len(matched) || end < offset {
		end = len(matched)
	}

	result := make([]*simplecms.Record, 0, end-offset)
	for _, record := range matched[offset:end] {
		result = append(result, record.Clone())
	}
	return result, total, nil
}

func (r *Repository) CountByField(ctx context.Context, resource, field string) (map[string]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[string]int64)
	for _, record := range r.records {
		if record.Resource != resource {
			continue
		}
		value := ""
		if v, ok := record.Fields[field]; ok && v != nil {
			value = fmt.Sprint(v)
		}
		counts[value]++
	}
	return counts, nil
}
