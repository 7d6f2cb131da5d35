package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

type object struct {
	data     []byte
	mimeType string
}

// Backend is an in-memory implementation of the simplecms.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{
		objects: make(map[string]object),
	}
}

// Put stores the content under the path hint, suffixing it if the path is taken
func (b *Backend) Put(ctx context.Context, reader io.Reader, params simplecms.PutParams) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", &simplecms.StorageError{Backend: "memory", Key: params.PathHint, Op: "put", Err: err}
	}

	key := strings.TrimPrefix(params.PathHint, "/")
	if key == "" {
		key = uuid.NewString()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[key]; exists {
		key = fmt.Sprintf("%s-%s", key, uuid.NewString()[:8])
	}
	mimeType := params.MimeType
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	b.objects[key] = object{data: data, mimeType: mimeType}
	return key, nil
}

// Open returns a reader over a copy of the stored bytes
func (b *Backend) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[path]
	if !exists {
		return nil, &simplecms.StorageError{Backend: "memory", Key: path, Op: "open", Err: simplecms.ErrBlobNotFound}
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete deletes content; missing paths are ignored
func (b *Backend) Delete(ctx context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.objects, path)
	return nil
}

// Exists reports whether path is stored
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	_, exists := b.objects[path]
	return exists, nil
}

// MimeType returns the stored content type for path
func (b *Backend) MimeType(path string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.objects[path].mimeType
}

// Paths lists every stored path in sorted order
func (b *Backend) Paths() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	paths := make([]string, 0, len(b.objects))
	for p := range b.objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
