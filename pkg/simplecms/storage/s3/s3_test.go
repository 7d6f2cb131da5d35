package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"empty bucket", Config{}, "bucket name is required"},
		{"unknown SSE algorithm", Config{Bucket: "b", EnableSSE: true, SSEAlgorithm: "rot13"}, "invalid SSE algorithm"},
		{"AES256", Config{Bucket: "b", EnableSSE: true, SSEAlgorithm: "AES256"}, ""},
		{"kms", Config{Bucket: "b", EnableSSE: true, SSEAlgorithm: "aws:kms"}, ""},
		{"SSE disabled ignores algorithm", Config{Bucket: "b", SSEAlgorithm: "rot13"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNew_EmptyBucket(t *testing.T) {
	_, err := New(Config{Region: "us-east-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket name is required")
}

func TestNew_MinIOConfiguration(t *testing.T) {
	backend, err := New(Config{
		Bucket:          "test-bucket",
		AccessKeyID:     "minioadmin",
		SecretAccessKey: "minioadmin",
		Endpoint:        "http://localhost:9000",
		UsePathStyle:    true,
		KeyPrefix:       "cms",
	})
	if err != nil {
		assert.NotContains(t, err.Error(), "bucket name is required")
		return
	}
	assert.Equal(t, "us-east-1", backend.config.Region)
	assert.Equal(t, "cms/uploads/news/a.png", backend.objectKey("uploads/news/a.png"))
}

func TestApplySSE(t *testing.T) {
	input := &s3.PutObjectInput{}
	applySSE(Config{EnableSSE: true, SSEAlgorithm: "aws:kms", SSEKMSKeyID: "key-1"}, input)
	assert.Equal(t, types.ServerSideEncryptionAwsKms, input.ServerSideEncryption)
	require.NotNil(t, input.SSEKMSKeyId)
	assert.Equal(t, "key-1", *input.SSEKMSKeyId)

	input = &s3.PutObjectInput{}
	applySSE(Config{}, input)
	assert.Empty(t, input.ServerSideEncryption)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(&types.NotFound{}))
	assert.True(t, isNotFound(fmt.Errorf("wrapped: %w", &types.NoSuchKey{})))
	assert.True(t, isNotFound(&smithy.GenericAPIError{Code: "NotFound"}))
	assert.False(t, isNotFound(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
	assert.True(t, hasErrorCode(&smithy.GenericAPIError{Code: "BucketAlreadyOwnedByYou"}, "BucketAlreadyExists", "BucketAlreadyOwnedByYou"))
}

// TestBackend_Integration requires a running MinIO instance or S3 credentials
func TestBackend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	endpoint := os.Getenv("AWS_S3_ENDPOINT")
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	bucket := os.Getenv("AWS_S3_BUCKET")
	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		t.Skip("Skipping integration test: S3/MinIO environment variables not set")
	}

	backend, err := New(Config{
		Bucket:                 bucket,
		Region:                 "us-east-1",
		AccessKeyID:            accessKey,
		SecretAccessKey:        secretKey,
		Endpoint:               endpoint,
		UsePathStyle:           true,
		CreateBucketIfNotExist: true,
	})
	require.NoError(t, err)

	ctx := context.Background()
	hint := fmt.Sprintf("test/integration/%d/file.txt", time.Now().UnixNano())

	path, err := backend.Put(ctx, strings.NewReader("hello"), simplecms.PutParams{PathHint: hint, MimeType: "text/plain"})
	require.NoError(t, err)
	assert.Equal(t, hint, path)

	exists, err := backend.Exists(ctx, path)
	require.NoError(t, err)
	assert.True(t, exists)

	rc, err := backend.Open(ctx, path)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	rc.Close()
	assert.Equal(t, "hello", string(data))

	require.NoError(t, backend.Delete(ctx, path))
	require.NoError(t, backend.Delete(ctx, path))

	exists, err = backend.Exists(ctx, path)
	require.NoError(t, err)
	assert.False(t, exists)

	_, err = backend.Open(ctx, path)
	assert.ErrorIs(t, err, simplecms.ErrBlobNotFound)
}
