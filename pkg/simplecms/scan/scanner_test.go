package scan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	memorystorage "github.com/tendant/simple-cms/pkg/simplecms/storage/memory"
)

func setup(t *testing.T) (simplecms.Service, *memorystorage.Backend) {
	t.Helper()
	store := memorystorage.New()
	svc, err := simplecms.New(
		simplecms.WithRepository(memory.New()),
		simplecms.WithBlobStore(store),
	)
	require.NoError(t, err)
	return svc, store
}

func createNews(t *testing.T, svc simplecms.Service, n int, withAttachment bool) []*simplecms.Record {
	t.Helper()
	var out []*simplecms.Record
	for i := 0; i < n; i++ {
		req := simplecms.CreateRecordRequest{
			Resource: simplecms.ResourceNews,
			Fields:   simplecms.Fields{"title": fmt.Sprintf("news %d", i), "body": "b", "status": "draft"},
		}
		if withAttachment {
			req.Attachment = simplecms.Replace(&simplecms.Upload{
				Reader:   strings.NewReader("img"),
				FileName: fmt.Sprintf("img-%d.png", i),
				MimeType: "image/png",
				Size:     3,
			})
		}
		rec, err := svc.CreateRecord(context.Background(), req)
		require.NoError(t, err)
		out = append(out, rec)
	}
	return out
}

func TestScan_Batches(t *testing.T) {
	svc, _ := setup(t)
	createNews(t, svc, 7, false)

	var seen []string
	var progress [][2]int64
	result, err := New(svc, nil).Scan(context.Background(), ScanOptions{
		Resource:  simplecms.ResourceNews,
		BatchSize: 3,
		Processor: &funcProcessor{fn: func(_ context.Context, rec *simplecms.Record) error {
			seen = append(seen, rec.ID.String())
			return nil
		}},
		OnProgress: func(processed, total int64) {
			progress = append(progress, [2]int64{processed, total})
		},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 7, result.TotalFound)
	assert.EqualValues(t, 7, result.TotalProcessed)
	assert.Len(t, seen, 7)
	assert.Equal(t, [][2]int64{{3, 7}, {6, 7}, {7, 7}}, progress)
}

func TestScan_ProcessorFailureContinues(t *testing.T) {
	svc, _ := setup(t)
	recs := createNews(t, svc, 3, false)

	result, err := New(svc, nil).ForEach(context.Background(), simplecms.ResourceNews,
		func(_ context.Context, rec *simplecms.Record) error {
			if rec.ID == recs[1].ID {
				return errors.New("boom")
			}
			return nil
		})
	require.NoError(t, err)
	assert.EqualValues(t, 2, result.TotalProcessed)
	assert.EqualValues(t, 1, result.TotalFailed)
	assert.Equal(t, []string{recs[1].ID.String()}, result.FailedIDs)
}

func TestScan_RequiresProcessor(t *testing.T) {
	svc, _ := setup(t)
	_, err := New(svc, nil).Scan(context.Background(), ScanOptions{Resource: simplecms.ResourceNews})
	assert.Error(t, err)

	result, err := New(svc, nil).Scan(context.Background(), ScanOptions{Resource: simplecms.ResourceNews, DryRun: true})
	require.NoError(t, err)
	assert.Zero(t, result.TotalFound)
}

func TestScan_UnknownResource(t *testing.T) {
	svc, _ := setup(t)
	_, err := New(svc, nil).ForEach(context.Background(), "events", func(context.Context, *simplecms.Record) error { return nil })
	assert.ErrorIs(t, err, simplecms.ErrResourceNotFound)
}

func TestCheckAndRepairDangling(t *testing.T) {
	ctx := context.Background()
	svc, store := setup(t)
	recs := createNews(t, svc, 3, true)
	createNews(t, svc, 1, false)

	// lose one blob behind the service's back
	require.NoError(t, store.Delete(ctx, recs[1].Attachment.Path))

	scanner := New(svc, nil)
	report, err := scanner.CheckAttachments(ctx, simplecms.ResourceNews)
	require.NoError(t, err)
	assert.Equal(t, 4, report.Scanned)
	require.Len(t, report.Dangling, 1)
	assert.Equal(t, recs[1].ID, report.Dangling[0].RecordID)
	assert.Equal(t, recs[1].Attachment.Path, report.Dangling[0].Path)

	repaired, err := scanner.RepairDangling(ctx, simplecms.ResourceNews)
	require.NoError(t, err)
	require.Len(t, repaired.Dangling, 1)

	got, err := svc.GetRecord(ctx, simplecms.ResourceNews, recs[1].ID)
	require.NoError(t, err)
	assert.Nil(t, got.Attachment)
	assert.Equal(t, "news 1", got.Fields.String("title"))

	// intact attachments are untouched
	other, err := svc.GetRecord(ctx, simplecms.ResourceNews, recs[0].ID)
	require.NoError(t, err)
	require.NotNil(t, other.Attachment)
	exists, err := store.Exists(ctx, other.Attachment.Path)
	require.NoError(t, err)
	assert.True(t, exists)

	report, err = scanner.CheckAttachments(ctx, simplecms.ResourceNews)
	require.NoError(t, err)
	assert.Empty(t, report.Dangling)
}
