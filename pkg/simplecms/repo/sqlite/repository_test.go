package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

func openTestRepository(t *testing.T) *Repository {
	t.Helper()
	repo, err := Open(filepath.Join(t.TempDir(), "cms.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func insert(t *testing.T, repo *Repository, resource string, fields simplecms.Fields, createdAt time.Time) *simplecms.Record {
	t.Helper()
	rec := &simplecms.Record{ID: uuid.New(), Resource: resource, Fields: fields, CreatedAt: createdAt}
	require.NoError(t, repo.InsertRecord(context.Background(), rec))
	return rec
}

func TestOpen_MigratesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cms.db")
	repo, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	repo, err = Open(path)
	require.NoError(t, err)
	defer repo.Close()

	version, err := CurrentVersion(repo.DB())
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), version)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestRepository_CRUD(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	rec := &simplecms.Record{
		ID:        uuid.New(),
		Resource:  "articles",
		Fields:    simplecms.Fields{"title": "Résumé <tips>", "content": "c", "category": "career", "is_published": true},
		CreatedAt: time.Now(),
		Attachment: &simplecms.AttachmentRef{
			Path: "uploads/articles/ab/cd_file.pdf", FileName: "file.pdf", MimeType: "application/pdf", SizeBytes: 10,
		},
	}
	require.NoError(t, repo.InsertRecord(ctx, rec))
	assert.Equal(t, 1, rec.Version)

	got, err := repo.GetRecord(ctx, "articles", rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Résumé <tips>", got.Fields.String("title"))
	assert.Equal(t, true, got.Fields["is_published"])
	require.NotNil(t, got.Attachment)
	assert.Equal(t, *rec.Attachment, *got.Attachment)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))

	_, err = repo.GetRecord(ctx, "news", rec.ID)
	assert.ErrorIs(t, err, simplecms.ErrNotFound)

	got.Attachment = nil
	got.Fields["title"] = "Updated"
	require.NoError(t, repo.UpdateRecord(ctx, got, 1))
	assert.Equal(t, 2, got.Version)

	assert.ErrorIs(t, repo.UpdateRecord(ctx, got.Clone(), 1), simplecms.ErrConflict)

	reloaded, err := repo.GetRecord(ctx, "articles", rec.ID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.Attachment)
	assert.Equal(t, 2, reloaded.Version)
	assert.Equal(t, "Updated", reloaded.Fields.String("title"))

	require.NoError(t, repo.DeleteRecord(ctx, "articles", rec.ID))
	assert.ErrorIs(t, repo.DeleteRecord(ctx, "articles", rec.ID), simplecms.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateRecord(ctx, reloaded, 2), simplecms.ErrNotFound)
}

func TestRepository_AttachmentPathUnique(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	ref := &simplecms.AttachmentRef{Path: "uploads/news/x.png"}
	a := &simplecms.Record{ID: uuid.New(), Resource: "news", Fields: simplecms.Fields{}, Attachment: ref}
	require.NoError(t, repo.InsertRecord(ctx, a))

	b := &simplecms.Record{ID: uuid.New(), Resource: "news", Fields: simplecms.Fields{}, Attachment: ref.Clone()}
	assert.ErrorIs(t, repo.InsertRecord(ctx, b), simplecms.ErrConflict)

	c := &simplecms.Record{ID: uuid.New(), Resource: "news", Fields: simplecms.Fields{}}
	require.NoError(t, repo.InsertRecord(ctx, c))
	c.Attachment = ref.Clone()
	assert.ErrorIs(t, repo.UpdateRecord(ctx, c, 1), simplecms.ErrConflict)

	// records without attachments never collide
	insert(t, repo, "news", simplecms.Fields{}, time.Now())
	insert(t, repo, "news", simplecms.Fields{}, time.Now())
}

func TestRepository_QueryRecords(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	insert(t, repo, "articles", simplecms.Fields{"title": "Interview 101", "content": "prep", "category": "tips", "is_published": true}, base)
	insert(t, repo, "articles", simplecms.Fields{"title": "Salary talk", "content": "negotiate 100%", "category": "tips", "is_published": false}, base.Add(time.Minute))
	insert(t, repo, "articles", simplecms.Fields{"title": "Job fair", "content": "hall B", "category": "events", "is_published": true}, base.Add(2*time.Minute))
	insert(t, repo, "news", simplecms.Fields{"title": "Interview day", "body": "x", "status": "published"}, base)

	t.Run("default order is newest first", func(t *testing.T) {
		q := simplecms.Query{Resource: "articles", SortBy: simplecms.SortCreatedAt, Desc: true, Page: 1, PageSize: 10}
		records, total, err := repo.QueryRecords(ctx, q)
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		require.Len(t, records, 3)
		assert.Equal(t, "Job fair", records[0].Fields.String("title"))
		assert.Equal(t, "Interview 101", records[2].Fields.String("title"))
	})

	t.Run("search is case insensitive and literal", func(t *testing.T) {
		q := simplecms.Query{Resource: "articles", Search: "INTERVIEW", SearchFields: []string{"title", "content"}, SortBy: simplecms.SortCreatedAt, Page: 1, PageSize: 10}
		records, total, err := repo.QueryRecords(ctx, q)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, records, 1)

		q.Search = "100%"
		_, total, err = repo.QueryRecords(ctx, q)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)

		q.Search = "%"
		_, total, err = repo.QueryRecords(ctx, q)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
	})

	t.Run("search folds non-ASCII case", func(t *testing.T) {
		insert(t, repo, "news", simplecms.Fields{"title": "Résumé Tips", "body": "x", "status": "draft"}, base)
		q := simplecms.Query{Resource: "news", SearchFields: []string{"title", "body"}, SortBy: simplecms.SortCreatedAt, Page: 1, PageSize: 10}
		for _, term := range []string{"résumé", "RÉSUMÉ", "Résumé"} {
			q.Search = term
			_, total, err := repo.QueryRecords(ctx, q)
			require.NoError(t, err)
			assert.EqualValues(t, 1, total, term)
		}
	})

	t.Run("equality uses json values", func(t *testing.T) {
		q := simplecms.Query{
			Resource: "articles",
			Equals: []simplecms.FieldFilter{
				{Field: "category", Value: "tips"},
				{Field: "is_published", Value: true},
			},
			SortBy: simplecms.SortCreatedAt, Page: 1, PageSize: 10,
		}
		records, total, err := repo.QueryRecords(ctx, q)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, records, 1)
		assert.Equal(t, "Interview 101", records[0].Fields.String("title"))

		q.Equals = []simplecms.FieldFilter{{Field: "is_published", Value: "true"}}
		_, total, err = repo.QueryRecords(ctx, q)
		require.NoError(t, err)
		assert.EqualValues(t, 0, total)
	})

	t.Run("field sort with pagination", func(t *testing.T) {
		q := simplecms.Query{Resource: "articles", SortBy: "title", Desc: false, Page: 2, PageSize: 2}
		records, total, err := repo.QueryRecords(ctx, q)
		require.NoError(t, err)
		assert.EqualValues(t, 3, total)
		require.Len(t, records, 1)
		assert.Equal(t, "Salary talk", records[0].Fields.String("title"))

		q.Page = 3
		records, _, err = repo.QueryRecords(ctx, q)
		require.NoError(t, err)
		assert.NotNil(t, records)
		assert.Empty(t, records)
	})
}

func TestRepository_AtLeast(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	insert(t, repo, "announcements", simplecms.Fields{"title": "old", "expires_on": "2026-01-01"}, time.Now())
	insert(t, repo, "announcements", simplecms.Fields{"title": "today", "expires_on": "2026-05-10"}, time.Now())
	insert(t, repo, "announcements", simplecms.Fields{"title": "later", "expires_on": "2026-12-31"}, time.Now())
	insert(t, repo, "announcements", simplecms.Fields{"title": "none"}, time.Now())

	q := simplecms.Query{
		Resource: "announcements",
		AtLeast:  []simplecms.FieldFilter{{Field: "expires_on", Value: "2026-05-10"}},
		SortBy:   "expires_on",
		Page:     1,
		PageSize: 10,
	}
	records, total, err := repo.QueryRecords(ctx, q)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, records, 2)
	assert.Equal(t, "today", records[0].Fields.String("title"))
	assert.Equal(t, "later", records[1].Fields.String("title"))
}

func TestRepository_CountByField(t *testing.T) {
	repo := openTestRepository(t)
	ctx := context.Background()

	insert(t, repo, "articles", simplecms.Fields{"category": "tips", "is_published": true}, time.Now())
	insert(t, repo, "articles", simplecms.Fields{"category": "tips", "is_published": false}, time.Now())
	insert(t, repo, "articles", simplecms.Fields{"category": "events", "is_published": true}, time.Now())
	insert(t, repo, "articles", simplecms.Fields{}, time.Now())
	insert(t, repo, "news", simplecms.Fields{"category": "tips"}, time.Now())

	counts, err := repo.CountByField(ctx, "articles", "category")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"tips": 2, "events": 1, "": 1}, counts)

	counts, err = repo.CountByField(ctx, "articles", "is_published")
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"true": 2, "false": 1, "": 1}, counts)
}

func TestEncodeJSON_NoHTMLEscape(t *testing.T) {
	s, err := encodeJSON(simplecms.Fields{"title": "<b>&"})
	require.NoError(t, err)
	assert.Equal(t, `{"title":"<b>&"}`, s)

	s, err = encodeJSON(simplecms.Fields(nil))
	require.NoError(t, err)
	assert.Equal(t, "{}", s)
}
