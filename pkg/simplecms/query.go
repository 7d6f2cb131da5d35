package simplecms

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// Built-in sort keys.
const (
	SortCreatedAt = "created_at"
	SortUpdatedAt = "updated_at"
)

// ListFilter is the caller-facing listing input.
type ListFilter struct {
	Search    string
	Equals    map[string]interface{}
	AtLeast   map[string]interface{}
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// FieldFilter compares one record field against a value.
type FieldFilter struct {
	Field string
	Value interface{}
}

// Query is a normalized listing query. Repositories translate it into their
// own query language; Matches and Less define the reference semantics.
type Query struct {
	Resource     string
	Search       string
	SearchFields []string
	Equals       []FieldFilter
	AtLeast      []FieldFilter
	SortBy       string
	Desc         bool
	Page         int
	PageSize     int
}

// Offset is the number of matching records before the requested page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.PageSize
}

// SortsByField reports whether SortBy names a Fields key rather than a timestamp.
func (q Query) SortsByField() bool {
	return q.SortBy != SortCreatedAt && q.SortBy != SortUpdatedAt
}

// BuildQuery validates filter against cfg and normalizes it. Filters and sorts
// on fields the resource does not declare return ErrInvalidFilter.
func BuildQuery(cfg ResourceConfig, filter ListFilter) (Query, error) {
	q := Query{
		Resource:     cfg.Name,
		Search:       strings.TrimSpace(filter.Search),
		SearchFields: cfg.SearchFields,
		SortBy:       SortCreatedAt,
		Desc:         true,
		Page:         filter.Page,
		PageSize:     filter.PageSize,
	}

	for _, field := range sortedKeys(filter.Equals) {
		if !cfg.filterable(field) {
			return Query{}, fmt.Errorf("%w: %s cannot be filtered on %q", ErrInvalidFilter, cfg.Name, field)
		}
		q.Equals = append(q.Equals, FieldFilter{Field: field, Value: filter.Equals[field]})
	}
	for _, field := range sortedKeys(filter.AtLeast) {
		if !cfg.filterable(field) {
			return Query{}, fmt.Errorf("%w: %s cannot be filtered on %q", ErrInvalidFilter, cfg.Name, field)
		}
		q.AtLeast = append(q.AtLeast, FieldFilter{Field: field, Value: filter.AtLeast[field]})
	}

	if filter.SortBy != "" {
		if !cfg.sortable(filter.SortBy) {
			return Query{}, fmt.Errorf("%w: %s cannot be sorted by %q", ErrInvalidFilter, cfg.Name, filter.SortBy)
		}
		q.SortBy = filter.SortBy
	}
	switch strings.ToLower(filter.SortOrder) {
	case "", "desc":
		q.Desc = true
	case "asc":
		q.Desc = false
	default:
		return Query{}, fmt.Errorf("%w: invalid sort order %q", ErrInvalidFilter, filter.SortOrder)
	}

	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = cfg.pageSize()
	}
	if q.PageSize > MaxPageSize {
		q.PageSize = MaxPageSize
	}
	// Keep Offset and Offset+PageSize representable.
	if q.Page > math.MaxInt/q.PageSize {
		q.Page = math.MaxInt / q.PageSize
	}
	return q, nil
}

// NewPage assembles a Page from one slice of results and the total count.
func NewPage(items []*Record, total int64, page, pageSize int) *Page {
	if items == nil {
		items = []*Record{}
	}
	totalPages := 0
	if pageSize > 0 {
		totalPages = int((total + int64(pageSize) - 1) / int64(pageSize))
	}
	return &Page{
		Items:       items,
		TotalCount:  total,
		CurrentPage: page,
		PageSize:    pageSize,
		TotalPages:  totalPages,
		HasNext:     int64(page)*int64(pageSize) < total,
		HasPrev:     page > 1,
	}
}

// Matches reports whether r satisfies the query's resource, search and filters.
func (q Query) Matches(r *Record) bool {
	if r.Resource != q.Resource {
		return false
	}
	if q.Search != "" {
		term := strings.ToLower(q.Search)
		found := false
		for _, f := range q.SearchFields {
			if strings.Contains(strings.ToLower(r.Fields.String(f)), term) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for _, f := range q.Equals {
		v, ok := r.Fields[f.Field]
		if !ok || !JSONEqual(v, f.Value) {
			return false
		}
	}
	for _, f := range q.AtLeast {
		v, ok := r.Fields[f.Field].(string)
		if !ok || v < fmt.Sprint(f.Value) {
			return false
		}
	}
	return true
}

// Less reports whether a sorts before b under the query's ordering.
// Ties are broken by ID in the same direction.
func (q Query) Less(a, b *Record) bool {
	var cmp int
	switch q.SortBy {
	case SortCreatedAt:
		cmp = a.CreatedAt.Compare(b.CreatedAt)
	case SortUpdatedAt:
		cmp = a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		cmp = strings.Compare(sortValue(a.Fields[q.SortBy]), sortValue(b.Fields[q.SortBy]))
	}
	if cmp == 0 {
		cmp = strings.Compare(a.ID.String(), b.ID.String())
	}
	if q.Desc {
		return cmp > 0
	}
	return cmp < 0
}

func sortValue(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	default:
		return fmt.Sprint(t)
	}
}

// JSONEqual compares two field values by their JSON encoding.
func JSONEqual(a, b interface{}) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ja, jb)
}

// EscapeLike escapes LIKE wildcards so the term matches literally with ESCAPE '\'.
func EscapeLike(term string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(term)
}
