package config

import (
	"fmt"

	"github.com/tendant/simple-cms/pkg/simplecms"
	s3storage "github.com/tendant/simple-cms/pkg/simplecms/storage/s3"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithLogLevel sets the minimum log level (debug, info, warn, error)
func WithLogLevel(level string) Option {
	return func(c *ServerConfig) error {
		if _, err := parseLevel(level); err != nil {
			return err
		}
		c.LogLevel = level
		return nil
	}
}

// WithDatabaseURL selects the record store from a URL
// ("memory", "postgres://...", "sqlite:///path/to/cms.db")
func WithDatabaseURL(url string) Option {
	return func(c *ServerConfig) error {
		return applyDatabaseURL(c, url)
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate applies pending Postgres migrations when the service is built
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithStorageURL selects the blob store from a URL
// ("memory://", "file:///path", "s3://bucket?region=...")
func WithStorageURL(url string) Option {
	return func(c *ServerConfig) error {
		return applyStorageURL(c, url)
	}
}

// WithMemoryStorage keeps attachments in process memory
func WithMemoryStorage() Option {
	return func(c *ServerConfig) error {
		c.Storage = StorageConfig{Type: StorageMemory}
		return nil
	}
}

// WithFilesystemStorage stores attachments under baseDir
func WithFilesystemStorage(baseDir string) Option {
	return func(c *ServerConfig) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.Storage = StorageConfig{Type: StorageFS, BaseDir: baseDir}
		return nil
	}
}

// WithS3Storage stores attachments in an S3-compatible bucket
func WithS3Storage(cfg s3storage.Config) Option {
	return func(c *ServerConfig) error {
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("s3 storage: %w", err)
		}
		c.Storage = StorageConfig{Type: StorageS3, S3: cfg}
		return nil
	}
}

// WithMaxUploadBytes caps the size of a single attachment upload
func WithMaxUploadBytes(n int64) Option {
	return func(c *ServerConfig) error {
		if n <= 0 {
			return fmt.Errorf("max upload size must be positive, got: %d", n)
		}
		c.MaxUploadBytes = n
		return nil
	}
}

// WithAllowedMimeTypes replaces the upload whitelist
func WithAllowedMimeTypes(types ...string) Option {
	return func(c *ServerConfig) error {
		c.AllowedMimeTypes = trimAll(types)
		return nil
	}
}

// WithPublicBaseURL sets the prefix used in public attachment URLs
func WithPublicBaseURL(base string) Option {
	return func(c *ServerConfig) error {
		c.PublicBaseURL = base
		return nil
	}
}

// WithResources replaces the built-in resource set
func WithResources(resources ...simplecms.ResourceConfig) Option {
	return func(c *ServerConfig) error {
		c.Resources = append([]simplecms.ResourceConfig(nil), resources...)
		return nil
	}
}

// WithEventLogging enables or disables the logging event sink
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithMetrics enables or disables Prometheus metrics
func WithMetrics(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableMetrics = enabled
		return nil
	}
}

// WithCORSOrigins restricts cross-origin requests to the given origins
func WithCORSOrigins(origins ...string) Option {
	return func(c *ServerConfig) error {
		c.CORSOrigins = trimAll(origins)
		return nil
	}
}

// WithPublicCacheMaxAge sets the Cache-Control max-age of public responses
func WithPublicCacheMaxAge(seconds int) Option {
	return func(c *ServerConfig) error {
		c.PublicCacheMaxAge = seconds
		return nil
	}
}
