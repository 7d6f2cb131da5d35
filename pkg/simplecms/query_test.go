package simplecms

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildQuery_Defaults(t *testing.T) {
	q, err := BuildQuery(ArticlesResource(), ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, "articles", q.Resource)
	assert.Equal(t, SortCreatedAt, q.SortBy)
	assert.True(t, q.Desc)
	assert.Equal(t, 1, q.Page)
	assert.Equal(t, DefaultPageSize, q.PageSize)
	assert.Equal(t, 0, q.Offset())
	assert.False(t, q.SortsByField())
}

func TestBuildQuery_Normalizes(t *testing.T) {
	tests := []struct {
		name     string
		filter   ListFilter
		page     int
		pageSize int
	}{
		{"negative page", ListFilter{Page: -3}, 1, 10},
		{"oversized page", ListFilter{PageSize: 1000}, 1, MaxPageSize},
		{"explicit", ListFilter{Page: 3, PageSize: 25}, 3, 25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := BuildQuery(NewsResource(), tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.page, q.Page)
			assert.Equal(t, tt.pageSize, q.PageSize)
		})
	}
}

func TestBuildQuery_HugePageKeepsOffsetInRange(t *testing.T) {
	q, err := BuildQuery(NewsResource(), ListFilter{Page: math.MaxInt64 / 5})
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt/DefaultPageSize, q.Page)
	assert.Positive(t, q.Offset())
	assert.Positive(t, q.Offset()+q.PageSize)
}

func TestBuildQuery_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		filter ListFilter
	}{
		{"unknown equality field", ListFilter{Equals: map[string]interface{}{"password": "x"}}},
		{"unknown range field", ListFilter{AtLeast: map[string]interface{}{"title": "a"}}},
		{"unknown sort field", ListFilter{SortBy: "body"}},
		{"bad sort order", ListFilter{SortOrder: "sideways"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildQuery(NewsResource(), tt.filter)
			assert.ErrorIs(t, err, ErrInvalidFilter)
		})
	}
}

func TestBuildQuery_FiltersAreSorted(t *testing.T) {
	q, err := BuildQuery(NewsResource(), ListFilter{
		Search:    "  karir ",
		Equals:    map[string]interface{}{"status": "draft", "author": "admin"},
		SortBy:    "title",
		SortOrder: "ASC",
	})
	require.NoError(t, err)
	assert.Equal(t, "karir", q.Search)
	assert.Equal(t, []FieldFilter{{Field: "author", Value: "admin"}, {Field: "status", Value: "draft"}}, q.Equals)
	assert.Equal(t, "title", q.SortBy)
	assert.False(t, q.Desc)
	assert.True(t, q.SortsByField())
}

func TestBuildQuery_ExpiryFieldIsFilterable(t *testing.T) {
	q, err := BuildQuery(AnnouncementsResource(), ListFilter{AtLeast: map[string]interface{}{"expires_on": "2026-01-01"}})
	require.NoError(t, err)
	assert.Equal(t, []FieldFilter{{Field: "expires_on", Value: "2026-01-01"}}, q.AtLeast)
}

func TestNewPage(t *testing.T) {
	tests := []struct {
		name       string
		total      int64
		page, size int
		totalPages int
		hasNext    bool
		hasPrev    bool
	}{
		{"empty", 0, 1, 10, 0, false, false},
		{"single page", 7, 1, 10, 1, false, false},
		{"exact boundary", 20, 2, 10, 2, false, true},
		{"first of many", 25, 1, 10, 3, true, false},
		{"beyond end", 25, 9, 10, 3, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPage(nil, tt.total, tt.page, tt.size)
			assert.NotNil(t, p.Items)
			assert.Equal(t, tt.totalPages, p.TotalPages)
			assert.Equal(t, tt.hasNext, p.HasNext)
			assert.Equal(t, tt.hasPrev, p.HasPrev)
			assert.Equal(t, tt.total, p.TotalCount)
		})
	}
}

func TestQuery_Matches(t *testing.T) {
	rec := &Record{
		ID:       uuid.New(),
		Resource: "articles",
		Fields: Fields{
			"title":        "Tips Wawancara",
			"content":      "Siapkan CV",
			"category":     "tips",
			"is_published": true,
			"views":        3,
		},
	}

	tests := []struct {
		name  string
		q     Query
		match bool
	}{
		{"resource mismatch", Query{Resource: "news"}, false},
		{"no filters", Query{Resource: "articles"}, true},
		{"search title", Query{Resource: "articles", Search: "wawancara", SearchFields: []string{"title", "content"}}, true},
		{"search content", Query{Resource: "articles", Search: "cv", SearchFields: []string{"title", "content"}}, true},
		{"search miss", Query{Resource: "articles", Search: "gaji", SearchFields: []string{"title"}}, false},
		{"bool equality", Query{Resource: "articles", Equals: []FieldFilter{{"is_published", true}}}, true},
		{"bool vs string", Query{Resource: "articles", Equals: []FieldFilter{{"is_published", "true"}}}, false},
		{"number equality across types", Query{Resource: "articles", Equals: []FieldFilter{{"views", 3.0}}}, true},
		{"missing field", Query{Resource: "articles", Equals: []FieldFilter{{"author", "x"}}}, false},
		{"at least on missing field", Query{Resource: "articles", AtLeast: []FieldFilter{{"expires_on", "2026-01-01"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, tt.q.Matches(rec))
		})
	}
}

func TestQuery_LessTieBreaksByID(t *testing.T) {
	ts := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	a := &Record{ID: uuid.MustParse("00000000-0000-0000-0000-000000000001"), CreatedAt: ts}
	b := &Record{ID: uuid.MustParse("00000000-0000-0000-0000-000000000002"), CreatedAt: ts}

	desc := Query{SortBy: SortCreatedAt, Desc: true}
	assert.True(t, desc.Less(b, a))
	assert.False(t, desc.Less(a, b))

	asc := Query{SortBy: SortCreatedAt}
	assert.True(t, asc.Less(a, b))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `100\%`, EscapeLike("100%"))
	assert.Equal(t, `a\_b`, EscapeLike("a_b"))
	assert.Equal(t, `c:\\x`, EscapeLike(`c:\x`))
}

func TestResourceConfig_Validate(t *testing.T) {
	for _, cfg := range DefaultResources() {
		assert.NoError(t, cfg.Validate(), cfg.Name)
	}
	assert.Error(t, ResourceConfig{Name: "Bad Name"}.Validate())
	assert.Error(t, ResourceConfig{Name: "ok", SortFields: []string{"x'; drop"}}.Validate())
	assert.Error(t, ResourceConfig{Name: "ok", DefaultPageSize: 500}.Validate())
}
