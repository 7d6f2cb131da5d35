package config

import (
	"errors"
	"fmt"

	"github.com/tendant/simple-cms/pkg/simplecms"
	s3storage "github.com/tendant/simple-cms/pkg/simplecms/storage/s3"
)

// Database types.
const (
	DatabaseMemory   = "memory"
	DatabasePostgres = "postgres"
	DatabaseSQLite   = "sqlite"
)

// Storage types.
const (
	StorageMemory = "memory"
	StorageFS     = "fs"
	StorageS3     = "s3"
)

// DefaultMaxUploadBytes caps attachment uploads at 5 MiB.
const DefaultMaxUploadBytes int64 = 5 << 20

// DefaultAllowedMimeTypes accepts common images and PDF documents.
var DefaultAllowedMimeTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
}

// Option applies configuration to a ServerConfig instance.
type Option func(*ServerConfig) error

// Load constructs a ServerConfig by applying the supplied options on top of library defaults.
func Load(opts ...Option) (*ServerConfig, error) {
	cfg := defaults()

	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func defaults() ServerConfig {
	return ServerConfig{
		Port:               "8080",
		Environment:        "development",
		LogLevel:           "info",
		DatabaseType:       DatabaseMemory,
		DBSchema:           "cms",
		Storage:            StorageConfig{Type: StorageMemory},
		MaxUploadBytes:     DefaultMaxUploadBytes,
		AllowedMimeTypes:   append([]string(nil), DefaultAllowedMimeTypes...),
		PublicBaseURL:      "/api/v1",
		EnableEventLogging: true,
		EnableMetrics:      true,
	}
}

// ServerConfig represents server configuration for the simple-cms service
type ServerConfig struct {
	Port        string
	Environment string // development, production, testing
	LogLevel    string // debug, info, warn, error

	// Database configuration
	DatabaseURL  string
	DatabaseType string // "memory", "postgres", "sqlite"
	DBSchema     string // Postgres schema to use (default: cms)
	SQLitePath   string
	AutoMigrate  bool

	Storage StorageConfig

	// Upload validation applied by the api layer
	MaxUploadBytes   int64
	AllowedMimeTypes []string

	// PublicBaseURL prefixes attachment URLs in public responses
	PublicBaseURL string

	CORSOrigins []string
	// PublicCacheMaxAge in seconds; zero uses the api default, negative disables.
	PublicCacheMaxAge int

	// Resources overrides the built-in resource set when non-empty
	Resources []simplecms.ResourceConfig

	EnableEventLogging bool
	EnableMetrics      bool
}

// StorageConfig selects and configures the attachment blob store.
type StorageConfig struct {
	Type    string // "memory", "fs", "s3"
	BaseDir string
	S3      s3storage.Config
}

// IsProduction reports whether the server runs with production settings.
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Validate validates the server configuration
func (c *ServerConfig) Validate() error {
	if c.Port == "" {
		return errors.New("port is required")
	}

	switch c.DatabaseType {
	case DatabaseMemory:
	case DatabasePostgres:
		if c.DatabaseURL == "" {
			return errors.New("database_url is required when using postgres")
		}
	case DatabaseSQLite:
		if c.SQLitePath == "" {
			return errors.New("sqlite path is required when using sqlite")
		}
	default:
		return fmt.Errorf("database_type must be 'memory', 'postgres' or 'sqlite', got %q", c.DatabaseType)
	}

	switch c.Storage.Type {
	case StorageMemory:
	case StorageFS:
		if c.Storage.BaseDir == "" {
			return errors.New("filesystem storage requires a base directory")
		}
	case StorageS3:
		if err := c.Storage.S3.Validate(); err != nil {
			return fmt.Errorf("s3 storage: %w", err)
		}
	default:
		return fmt.Errorf("unsupported storage type %q", c.Storage.Type)
	}

	if c.MaxUploadBytes <= 0 {
		return errors.New("max upload size must be positive")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	for _, r := range c.Resources {
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ResourceSet returns the configured resources or the built-in set.
func (c *ServerConfig) ResourceSet() []simplecms.ResourceConfig {
	if len(c.Resources) > 0 {
		return c.Resources
	}
	return simplecms.DefaultResources()
}
