package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

func TestBackend_PutOpenDelete(t *testing.T) {
	ctx := context.Background()
	b := New()

	path, err := b.Put(ctx, strings.NewReader("hello"), simplecms.PutParams{PathHint: "uploads/news/a.txt", MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, "uploads/news/a.txt", path)
	assert.Equal(t, "text/plain", b.MimeType(path))

	rc, err := b.Open(ctx, path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	exists, err := b.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, b.Delete(ctx, path))
	exists, err = b.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBackend_DeleteMissingIsNoop(t *testing.T) {
	b := New()
	assert.NoError(t, b.Delete(context.Background(), "never/stored"))
}

func TestBackend_OpenMissing(t *testing.T) {
	b := New()
	_, err := b.Open(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, simplecms.ErrBlobNotFound))
}

func TestBackend_PutDoesNotOverwrite(t *testing.T) {
	ctx := context.Background()
	b := New()

	first, err := b.Put(ctx, strings.NewReader("one"), simplecms.PutParams{PathHint: "same"})
	require.NoError(t, err)
	second, err := b.Put(ctx, strings.NewReader("two"), simplecms.PutParams{PathHint: "same"})
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Len(t, b.Paths(), 2)
	assert.Equal(t, "application/octet-stream", b.MimeType(first))
}
