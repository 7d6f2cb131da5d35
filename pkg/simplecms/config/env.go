package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	s3storage "github.com/tendant/simple-cms/pkg/simplecms/storage/s3"
)

// Settings is the flat key set read from the environment or a config file.
// Empty values leave the corresponding ServerConfig field untouched.
//
// Database:
//
//	DATABASE_URL - "memory", "postgres://...", "postgresql://..." or "sqlite:///path/to/cms.db"
//
// Storage:
//
//	STORAGE_URL - one of:
//	              "memory://" - in-memory storage
//	              "file:///path/to/data" - filesystem storage
//	              "s3://bucket?region=us-east-1&endpoint=http://localhost:9000&path_style=true"
type Settings struct {
	Port        string `yaml:"port" json:"port" env:"PORT"`
	Environment string `yaml:"environment" json:"environment" env:"ENVIRONMENT"`
	LogLevel    string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`

	DatabaseURL string `yaml:"database_url" json:"database_url" env:"DATABASE_URL"`
	DBSchema    string `yaml:"db_schema" json:"db_schema" env:"CMS_DB_SCHEMA"`
	AutoMigrate string `yaml:"auto_migrate" json:"auto_migrate" env:"AUTO_MIGRATE"`

	StorageURL         string `yaml:"storage_url" json:"storage_url" env:"STORAGE_URL"`
	AWSAccessKeyID     string `yaml:"aws_access_key_id" json:"aws_access_key_id" env:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `yaml:"aws_secret_access_key" json:"aws_secret_access_key" env:"AWS_SECRET_ACCESS_KEY"`
	AWSRegion          string `yaml:"aws_region" json:"aws_region" env:"AWS_REGION"`

	MaxUploadBytes   string   `yaml:"max_upload_bytes" json:"max_upload_bytes" env:"MAX_UPLOAD_BYTES"`
	AllowedMimeTypes []string `yaml:"allowed_mime_types" json:"allowed_mime_types" env:"ALLOWED_MIME_TYPES" env-separator:","`
	PublicBaseURL    string   `yaml:"public_base_url" json:"public_base_url" env:"PUBLIC_BASE_URL"`

	CORSOrigins       []string `yaml:"cors_origins" json:"cors_origins" env:"CORS_ORIGINS" env-separator:","`
	PublicCacheMaxAge string   `yaml:"public_cache_max_age" json:"public_cache_max_age" env:"PUBLIC_CACHE_MAX_AGE"`

	EnableEventLogging string `yaml:"enable_event_logging" json:"enable_event_logging" env:"ENABLE_EVENT_LOGGING"`
	EnableMetrics      string `yaml:"enable_metrics" json:"enable_metrics" env:"ENABLE_METRICS"`
}

// WithEnv applies environment variable overrides.
func WithEnv() Option {
	return func(c *ServerConfig) error {
		var s Settings
		if err := cleanenv.ReadEnv(&s); err != nil {
			return fmt.Errorf("read environment: %w", err)
		}
		return s.apply(c)
	}
}

// WithConfigFile applies settings from a YAML, JSON, TOML or .env file.
// Environment variables override values from the file.
func WithConfigFile(path string) Option {
	return func(c *ServerConfig) error {
		var s Settings
		if err := cleanenv.ReadConfig(path, &s); err != nil {
			return fmt.Errorf("read config file %s: %w", path, err)
		}
		return s.apply(c)
	}
}

func (s Settings) apply(c *ServerConfig) error {
	if s.Port != "" {
		c.Port = s.Port
	}
	if s.Environment != "" {
		c.Environment = s.Environment
	}
	if s.LogLevel != "" {
		c.LogLevel = s.LogLevel
	}
	if s.DBSchema != "" {
		c.DBSchema = s.DBSchema
	}
	if s.PublicBaseURL != "" {
		c.PublicBaseURL = s.PublicBaseURL
	}
	if len(s.AllowedMimeTypes) > 0 {
		c.AllowedMimeTypes = trimAll(s.AllowedMimeTypes)
	}

	if len(s.CORSOrigins) > 0 {
		c.CORSOrigins = trimAll(s.CORSOrigins)
	}
	if s.PublicCacheMaxAge != "" {
		n, err := strconv.Atoi(s.PublicCacheMaxAge)
		if err != nil {
			return fmt.Errorf("invalid integer for PUBLIC_CACHE_MAX_AGE: %w", err)
		}
		c.PublicCacheMaxAge = n
	}

	if s.DatabaseURL != "" {
		if err := applyDatabaseURL(c, s.DatabaseURL); err != nil {
			return err
		}
	}
	if s.StorageURL != "" {
		if err := applyStorageURL(c, s.StorageURL); err != nil {
			return err
		}
	}
	if c.Storage.Type == StorageS3 {
		if s.AWSAccessKeyID != "" {
			c.Storage.S3.AccessKeyID = s.AWSAccessKeyID
		}
		if s.AWSSecretAccessKey != "" {
			c.Storage.S3.SecretAccessKey = s.AWSSecretAccessKey
		}
		if s.AWSRegion != "" && c.Storage.S3.Region == "" {
			c.Storage.S3.Region = s.AWSRegion
		}
	}

	if s.MaxUploadBytes != "" {
		n, err := strconv.ParseInt(s.MaxUploadBytes, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid integer for MAX_UPLOAD_BYTES: %w", err)
		}
		c.MaxUploadBytes = n
	}

	for _, b := range []struct {
		key   string
		raw   string
		field *bool
	}{
		{"AUTO_MIGRATE", s.AutoMigrate, &c.AutoMigrate},
		{"ENABLE_EVENT_LOGGING", s.EnableEventLogging, &c.EnableEventLogging},
		{"ENABLE_METRICS", s.EnableMetrics, &c.EnableMetrics},
	} {
		if b.raw == "" {
			continue
		}
		v, err := strconv.ParseBool(b.raw)
		if err != nil {
			return fmt.Errorf("invalid boolean for %s: %w", b.key, err)
		}
		*b.field = v
	}
	return nil
}

// applyDatabaseURL sets the database type from the URL scheme.
func applyDatabaseURL(c *ServerConfig, raw string) error {
	switch {
	case raw == "memory":
		c.DatabaseType = DatabaseMemory
		c.DatabaseURL = ""
		c.SQLitePath = ""
	case strings.HasPrefix(raw, "postgres://"), strings.HasPrefix(raw, "postgresql://"):
		c.DatabaseType = DatabasePostgres
		c.DatabaseURL = raw
	case strings.HasPrefix(raw, "sqlite://"):
		path := strings.TrimPrefix(raw, "sqlite://")
		if path == "" {
			return fmt.Errorf("sqlite path cannot be empty in DATABASE_URL")
		}
		c.DatabaseType = DatabaseSQLite
		c.SQLitePath = path
	default:
		return fmt.Errorf("unsupported DATABASE_URL format: %s (use 'memory', 'postgres://...' or 'sqlite://...')", raw)
	}
	return nil
}

// applyStorageURL configures the blob store from a storage URL.
func applyStorageURL(c *ServerConfig, raw string) error {
	switch {
	case raw == "memory" || raw == "memory://":
		c.Storage = StorageConfig{Type: StorageMemory}
		return nil
	case strings.HasPrefix(raw, "file://"):
		path := strings.TrimPrefix(raw, "file://")
		if path == "" {
			return fmt.Errorf("filesystem path cannot be empty in STORAGE_URL")
		}
		c.Storage = StorageConfig{Type: StorageFS, BaseDir: path}
		return nil
	case strings.HasPrefix(raw, "s3://"):
		s3cfg, err := parseS3URL(raw)
		if err != nil {
			return err
		}
		c.Storage = StorageConfig{Type: StorageS3, S3: s3cfg}
		return nil
	}
	return fmt.Errorf("unsupported STORAGE_URL format: %s (use 'memory://', 'file://...', or 's3://...')", raw)
}

// parseS3URL reads s3://bucket?region=&endpoint=&prefix=&path_style=&sse=&kms_key_id=&create_bucket=
func parseS3URL(raw string) (s3storage.Config, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return s3storage.Config{}, fmt.Errorf("invalid STORAGE_URL: %w", err)
	}
	if u.Host == "" {
		return s3storage.Config{}, fmt.Errorf("S3 bucket name cannot be empty in STORAGE_URL")
	}
	q := u.Query()
	cfg := s3storage.Config{
		Bucket:      u.Host,
		Region:      q.Get("region"),
		Endpoint:    q.Get("endpoint"),
		KeyPrefix:   q.Get("prefix"),
		SSEKMSKeyID: q.Get("kms_key_id"),
	}
	if sse := q.Get("sse"); sse != "" {
		cfg.EnableSSE = true
		cfg.SSEAlgorithm = sse
	}
	for key, field := range map[string]*bool{
		"path_style":    &cfg.UsePathStyle,
		"create_bucket": &cfg.CreateBucketIfNotExist,
	} {
		raw := q.Get(key)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return s3storage.Config{}, fmt.Errorf("invalid boolean for %s in STORAGE_URL: %w", key, err)
		}
		*field = v
	}
	return cfg, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
