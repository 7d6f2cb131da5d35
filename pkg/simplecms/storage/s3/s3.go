package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Config options for the S3 backend
type Config struct {
	Region          string // AWS region
	Bucket          string // S3 bucket name
	KeyPrefix       string // Optional prefix prepended to every object key
	AccessKeyID     string // AWS access key ID
	SecretAccessKey string // AWS secret access key
	Endpoint        string // Optional custom endpoint for S3-compatible services
	UsePathStyle    bool   // Use path-style addressing (default: false)

	// Server-side encryption options
	EnableSSE    bool   // Enable server-side encryption
	SSEAlgorithm string // SSE algorithm (AES256 or aws:kms)
	SSEKMSKeyID  string // Optional KMS key ID for aws:kms algorithm

	// MinIO/S3-compatible service options
	CreateBucketIfNotExist bool // Create bucket if it doesn't exist
}

// Validate checks the configuration without contacting S3
func (c Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("bucket name is required")
	}
	if c.EnableSSE {
		switch c.SSEAlgorithm {
		case "AES256", "aws:kms":
		default:
			return fmt.Errorf("invalid SSE algorithm %q", c.SSEAlgorithm)
		}
	}
	return nil
}

// Backend is an S3-compatible implementation of the simplecms.BlobStore interface
type Backend struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	config   Config
}

// New creates a new S3-compatible storage backend
func New(config Config) (*Backend, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Region == "" {
		config.Region = "us-east-1"
	}

	var awsCfg aws.Config
	var err error

	if config.AccessKeyID != "" && config.SecretAccessKey != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
			awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
				config.AccessKeyID,
				config.SecretAccessKey,
				"",
			)),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.Background(),
			awsconfig.WithRegion(config.Region),
		)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var s3Options []func(*s3.Options)
	if config.Endpoint != "" {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(config.Endpoint)
			o.UsePathStyle = config.UsePathStyle
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Options...)

	backend := &Backend{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   config.Bucket,
		config:   config,
	}

	if config.CreateBucketIfNotExist {
		if err := backend.createBucketIfNotExists(context.Background()); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return backend, nil
}

// createBucketIfNotExists creates the bucket if it doesn't exist
func (b *Backend) createBucketIfNotExists(ctx context.Context) error {
	_, err := b.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(b.bucket),
	})
	if err == nil {
		return nil
	}

	// MinIO reports a missing bucket in several ways
	var noSuchBucket *types.NoSuchBucket
	if !isNotFound(err) && !errors.As(err, &noSuchBucket) &&
		!strings.Contains(err.Error(), "BadRequest") {
		return fmt.Errorf("failed to check bucket: %w", err)
	}

	createInput := &s3.CreateBucketInput{
		Bucket: aws.String(b.bucket),
	}
	if b.config.Region != "us-east-1" {
		createInput.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(b.config.Region),
		}
	}

	_, err = b.client.CreateBucket(ctx, createInput)
	if err != nil {
		if hasErrorCode(err, "BucketAlreadyExists", "BucketAlreadyOwnedByYou") {
			return nil
		}
		return fmt.Errorf("failed to create bucket: %w", err)
	}
	return nil
}

// objectKey maps a blob path to the bucket key.
func (b *Backend) objectKey(blobPath string) string {
	if b.config.KeyPrefix == "" {
		return blobPath
	}
	return path.Join(b.config.KeyPrefix, blobPath)
}

// Put uploads content to S3 under the path hint
func (b *Backend) Put(ctx context.Context, reader io.Reader, params simplecms.PutParams) (string, error) {
	blobPath := strings.TrimPrefix(params.PathHint, "/")
	if blobPath == "" {
		return "", &simplecms.StorageError{Backend: "s3", Op: "put", Err: errors.New("empty path")}
	}

	input := &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(blobPath)),
		Body:   reader,
	}
	if params.MimeType != "" {
		input.ContentType = aws.String(params.MimeType)
	}
	applySSE(b.config, input)

	if _, err := b.uploader.Upload(ctx, input); err != nil {
		return "", &simplecms.StorageError{Backend: "s3", Key: blobPath, Op: "put", Err: err}
	}
	return blobPath, nil
}

// Open streams an object from S3
func (b *Backend) Open(ctx context.Context, blobPath string) (io.ReadCloser, error) {
	result, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(blobPath)),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, &simplecms.StorageError{Backend: "s3", Key: blobPath, Op: "open", Err: simplecms.ErrBlobNotFound}
		}
		return nil, &simplecms.StorageError{Backend: "s3", Key: blobPath, Op: "open", Err: err}
	}
	return result.Body, nil
}

// Delete deletes an object; S3 treats missing keys as deleted
func (b *Backend) Delete(ctx context.Context, blobPath string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(blobPath)),
	})
	if err != nil && !isNotFound(err) {
		return &simplecms.StorageError{Backend: "s3", Key: blobPath, Op: "delete", Err: err}
	}
	return nil
}

// Exists checks for the object with a HEAD request
func (b *Backend) Exists(ctx context.Context, blobPath string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.objectKey(blobPath)),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, &simplecms.StorageError{Backend: "s3", Key: blobPath, Op: "exists", Err: err}
	}
	return true, nil
}

func applySSE(config Config, input *s3.PutObjectInput) {
	if !config.EnableSSE {
		return
	}
	switch config.SSEAlgorithm {
	case "AES256":
		input.ServerSideEncryption = types.ServerSideEncryptionAes256
	case "aws:kms":
		input.ServerSideEncryption = types.ServerSideEncryptionAwsKms
		if config.SSEKMSKeyID != "" {
			input.SSEKMSKeyId = aws.String(config.SSEKMSKeyID)
		}
	}
}

func isNotFound(err error) bool {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return true
	}
	return hasErrorCode(err, "NotFound", "NoSuchKey", "NoSuchBucket")
}

func hasErrorCode(err error, codes ...string) bool {
	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, code := range codes {
		if apiErr.ErrorCode() == code {
			return true
		}
	}
	return false
}
