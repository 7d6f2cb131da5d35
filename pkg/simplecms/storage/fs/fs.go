package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Backend is a filesystem implementation of the simplecms.BlobStore interface
type Backend struct {
	baseDir string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir string // Base directory for storing files
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}

	baseDir, err := filepath.Abs(config.BaseDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve base directory: %w", err)
	}
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Backend{baseDir: baseDir}, nil
}

// BaseDir returns the absolute directory files are stored under
func (b *Backend) BaseDir() string {
	return b.baseDir
}

// resolve maps a blob path onto the filesystem, refusing paths that escape baseDir.
func (b *Backend) resolve(path string) (string, error) {
	cleaned := filepath.Clean("/" + filepath.FromSlash(path))
	full := filepath.Join(b.baseDir, cleaned)
	if full == b.baseDir || !strings.HasPrefix(full, b.baseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid blob path %q", path)
	}
	return full, nil
}

// Put writes the content to a temporary file and renames it into place
func (b *Backend) Put(ctx context.Context, reader io.Reader, params simplecms.PutParams) (string, error) {
	key := strings.TrimPrefix(filepath.ToSlash(filepath.Clean("/"+params.PathHint)), "/")
	if key == "" || key == "." {
		key = uuid.NewString()
	}
	filePath, err := b.resolve(key)
	if err != nil {
		return "", &simplecms.StorageError{Backend: "fs", Key: key, Op: "put", Err: err}
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", &simplecms.StorageError{Backend: "fs", Key: key, Op: "put", Err: fmt.Errorf("failed to create directory: %w", err)}
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", &simplecms.StorageError{Backend: "fs", Key: key, Op: "put", Err: fmt.Errorf("failed to create file: %w", err)}
	}
	tmpName := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpName)
	}

	if _, err := io.Copy(tmp, &contextReader{ctx: ctx, r: reader}); err != nil {
		cleanup()
		return "", &simplecms.StorageError{Backend: "fs", Key: key, Op: "put", Err: fmt.Errorf("failed to write file: %w", err)}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &simplecms.StorageError{Backend: "fs", Key: key, Op: "put", Err: fmt.Errorf("failed to close file: %w", err)}
	}

	if _, err := os.Stat(filePath); err == nil {
		ext := filepath.Ext(key)
		key = fmt.Sprintf("%s-%s%s", strings.TrimSuffix(key, ext), uuid.NewString()[:8], ext)
		filePath = filepath.Join(dir, filepath.Base(filepath.FromSlash(key)))
	}
	if err := os.Rename(tmpName, filePath); err != nil {
		os.Remove(tmpName)
		return "", &simplecms.StorageError{Backend: "fs", Key: key, Op: "put", Err: fmt.Errorf("failed to move file into place: %w", err)}
	}

	return key, nil
}

// Open opens the stored file for reading
func (b *Backend) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	filePath, err := b.resolve(path)
	if err != nil {
		return nil, &simplecms.StorageError{Backend: "fs", Key: path, Op: "open", Err: err}
	}

	file, err := os.Open(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, &simplecms.StorageError{Backend: "fs", Key: path, Op: "open", Err: simplecms.ErrBlobNotFound}
	} else if err != nil {
		return nil, &simplecms.StorageError{Backend: "fs", Key: path, Op: "open", Err: err}
	}
	return file, nil
}

// Delete deletes content from the filesystem; missing files are ignored
func (b *Backend) Delete(ctx context.Context, path string) error {
	filePath, err := b.resolve(path)
	if err != nil {
		return &simplecms.StorageError{Backend: "fs", Key: path, Op: "delete", Err: err}
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return &simplecms.StorageError{Backend: "fs", Key: path, Op: "delete", Err: fmt.Errorf("failed to delete file: %w", err)}
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// Exists reports whether a regular file is stored at path
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	filePath, err := b.resolve(path)
	if err != nil {
		return false, &simplecms.StorageError{Backend: "fs", Key: path, Op: "exists", Err: err}
	}

	info, err := os.Stat(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, &simplecms.StorageError{Backend: "fs", Key: path, Op: "exists", Err: err}
	}
	return info.Mode().IsRegular(), nil
}

// cleanupEmptyDirectories recursively removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir || !strings.HasPrefix(dir, b.baseDir) {
		return
	}

	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}

// contextReader stops a copy once the context is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
